package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestRestServer(t *testing.T) *RestServer {
	t.Helper()
	return &RestServer{engine: newTestEngine(t)}
}

func doJSONRequest(t *testing.T, handler http.HandlerFunc, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)

	var decoded map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not valid json: %v (body=%s)", err, rec.Body.String())
	}
	return rec, decoded
}

func TestWriteErrorNormalizesInfraErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, "test", http.StatusBadRequest, newErr(KindSystemError, "badger: disk is on fire"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid json: %v", err)
	}
	if body["message"] != "internal server error" {
		t.Errorf("message = %v, want a generic fixed message, not the raw engine error", body["message"])
	}
}

func TestWriteErrorPassesThroughDomainErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, "test", http.StatusBadRequest, newErr(KindInsufficientFunds, "address J... needs 10, has 1"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid json: %v", err)
	}
	want := "InsufficientFunds: address J... needs 10, has 1"
	if body["message"] != want {
		t.Errorf("message = %v, want %q (the domain error verbatim)", body["message"], want)
	}
}

func TestGetStatsEnvelope(t *testing.T) {
	rs := newTestRestServer(t)
	rec, body := doJSONRequest(t, rs.getStats, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["status"] != "success" {
		t.Errorf("status field = %v, want success", body["status"])
	}
	for _, key := range []string{"total_supply", "volume", "hourly_volume", "daily_volume", "monthly_volume"} {
		if _, ok := body[key]; !ok {
			t.Errorf("stats response missing %q", key)
		}
	}
}

func TestAddUnconfirmedTransactionThenGetAddressInfo(t *testing.T) {
	rs := newTestRestServer(t)
	priv, pub, addr, err := keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	tx, err := NewTransferTransaction(addr, pub, "Jrecipient0000000000000000000000000000000000000000000000000000", 10, 1000)
	if err != nil {
		t.Fatalf("NewTransferTransaction: %v", err)
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	rec, body := doJSONRequest(t, rs.addUnconfirmedTransaction, map[string]interface{}{"transaction": json.RawMessage(tx.CanonicalJSON())})
	if rec.Code != http.StatusOK {
		t.Fatalf("add-unconfirmed status = %d, body=%v", rec.Code, body)
	}
	if body["status"] != "success" {
		t.Fatalf("add-unconfirmed did not succeed: %v", body)
	}

	_, infoBody := doJSONRequest(t, rs.getAddressInfo, map[string]interface{}{"address": addr})
	if infoBody["status"] != "success" {
		t.Fatalf("get-address-info did not succeed: %v", infoBody)
	}
	if _, ok := infoBody["n_unconfirmed_transactions"]; !ok {
		t.Error("get-address-info response missing snake_case n_unconfirmed_transactions field")
	}
	if _, ok := infoBody["ConfirmedTotalReceived"]; ok {
		t.Error("get-address-info response leaked a PascalCase Go field name")
	}
}

func TestAddBlockHandler(t *testing.T) {
	rs := newTestRestServer(t)
	miner := "Jminer000000000000000000000000000000000000000000000000000000000"
	credit, err := NewCreditTransaction(miner, 1000, "")
	if err != nil {
		t.Fatalf("NewCreditTransaction: %v", err)
	}
	id, err := randomID()
	if err != nil {
		t.Fatalf("randomID: %v", err)
	}
	b := &Block{
		Version:      blockVersion,
		Height:       0,
		ID:           id,
		Time:         nowISO(),
		Transactions: []*Transaction{credit},
		Difficulty:   rs.engine.Policy().Difficulty,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := b.Mine(ctx); err != nil {
		t.Fatalf("Mine: %v", err)
	}

	rec, body := doJSONRequest(t, rs.addBlock, map[string]interface{}{"block": json.RawMessage(b.CanonicalJSON())})
	if rec.Code != http.StatusOK {
		t.Fatalf("add-block status = %d, body=%v", rec.Code, body)
	}
	if body["status"] != "success" {
		t.Fatalf("add-block did not succeed: %v", body)
	}

	last, err := rs.engine.GetLastBlock()
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if last == nil || last.ID != b.ID {
		t.Error("block was not persisted by the add-block handler")
	}
}
