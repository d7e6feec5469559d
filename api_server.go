package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RestServer is the C9 HTTP API: every route responds inside the
// {status, ...} envelope node.py's aiohttp handlers use, except /metrics
// which is plain Prometheus exposition format. Grounded on the teacher's
// gorilla/mux RestServer shape, re-pointed at the chain engine instead of
// the UTXO blockchain/P2P server.
type RestServer struct {
	engine *Engine
}

func envelope(status string, fields map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"status": status}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, route string, code int, status string, fields map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	metricAPIRequests.WithLabelValues(route, status).Inc()
	_ = json.NewEncoder(w).Encode(envelope(status, fields))
}

// writeError normalises infrastructure failures per spec.md §7: a
// KindSystemError/KindTransportError never reaches the caller as-is, since
// its message can carry raw badger/IO detail. It is logged in full and the
// caller gets a fixed generic message at 500, regardless of the status the
// handler asked for. Domain errors (bad address, insufficient funds, wrong
// signature, ...) are stable and safe to return verbatim at the handler's
// chosen code.
func writeError(w http.ResponseWriter, route string, code int, err error) {
	if ce, ok := err.(*ChainError); ok {
		switch ce.ChainKind {
		case KindSystemError, KindTransportError:
			Error("api: %s: %v", route, err)
			writeJSON(w, route, http.StatusInternalServerError, "error", map[string]interface{}{"message": "internal server error"})
			return
		}
	}
	writeJSON(w, route, code, "error", map[string]interface{}{"message": err.Error()})
}

func writeOK(w http.ResponseWriter, route string, fields map[string]interface{}) {
	writeJSON(w, route, http.StatusOK, "success", fields)
}

// StartRestServer starts the API server on the specified host:port in a
// background goroutine and returns the *http.Server at once; the caller
// stops it with Shutdown (the CLI's signal handler does). A listen error is
// logged from that goroutine, not returned.
func StartRestServer(engine *Engine, host string, port int) *http.Server {
	rs := &RestServer{engine: engine}

	router := mux.NewRouter()
	router.Use(commonMiddleware)

	readLimiter := NewIPRateLimiter(20, 30)
	writeLimiter := NewIPRateLimiter(5, 10)
	readMW := RateLimitMiddleware(readLimiter)
	writeMW := RateLimitMiddleware(writeLimiter)

	router.Handle("/v1/stats", readMW(http.HandlerFunc(rs.getStats))).Methods("GET", "POST")
	router.Handle("/v1/difficulty", readMW(http.HandlerFunc(rs.getDifficulty))).Methods("POST")
	router.Handle("/v1/reward", readMW(http.HandlerFunc(rs.getReward))).Methods("POST")
	router.Handle("/v1/fee", readMW(http.HandlerFunc(rs.getFee))).Methods("POST")
	router.Handle("/v1/get-address-info", readMW(http.HandlerFunc(rs.getAddressInfo))).Methods("POST")

	router.Handle("/v1/transaction/get", readMW(http.HandlerFunc(rs.getTransaction))).Methods("POST")
	router.Handle("/v1/transaction/get-range", readMW(http.HandlerFunc(rs.getTransactionsRange))).Methods("POST")
	router.Handle("/v1/unconfirmed-transaction/get", readMW(http.HandlerFunc(rs.getUnconfirmedTransaction))).Methods("POST")
	router.Handle("/v1/unconfirmed-transaction/get-range", readMW(http.HandlerFunc(rs.getUnconfirmedTransactionsRange))).Methods("POST")
	router.Handle("/v1/unconfirmed-transaction/add", writeMW(http.HandlerFunc(rs.addUnconfirmedTransaction))).Methods("POST")

	router.Handle("/v1/block/get", readMW(http.HandlerFunc(rs.getBlock))).Methods("POST")
	router.Handle("/v1/block/get-range", readMW(http.HandlerFunc(rs.getBlocksRange))).Methods("POST")
	router.Handle("/v1/block/add", writeMW(http.HandlerFunc(rs.addBlock))).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	addr := fmt.Sprintf("%s:%d", host, port)
	PrintNetwork("API server listening on http://%s", addr)

	srv := &http.Server{
		Handler:      CORSMiddleware(router),
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Error("api: server stopped: %v", err)
		}
	}()
	return srv
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// --- handlers -------------------------------------------------------------

const coinName = "Sole"
const coinSymbol = "SOLE"

func (rs *RestServer) getStats(w http.ResponseWriter, r *http.Request) {
	total, err := rs.engine.TotalSupply()
	if err != nil {
		writeError(w, "stats", http.StatusInternalServerError, err)
		return
	}
	volume, err := rs.engine.Volume()
	if err != nil {
		writeError(w, "stats", http.StatusInternalServerError, err)
		return
	}
	policy := rs.engine.Policy()
	writeOK(w, "stats", map[string]interface{}{
		"name":               coinName,
		"symbol":             coinSymbol,
		"total_supply":       total,
		"circulating_supply": total,
		"max_supply":         policy.MaxSupply,
		"volume":             volume["1d"],
		"hourly_volume":      volume["1h"],
		"daily_volume":       volume["1d"],
		"monthly_volume":     volume["1m"],
	})
}

func (rs *RestServer) getDifficulty(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "difficulty", map[string]interface{}{"difficulty": rs.engine.Policy().Difficulty.String()})
}

func (rs *RestServer) getReward(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "reward", map[string]interface{}{"reward": rs.engine.Policy().RewardAmount})
}

func (rs *RestServer) getFee(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "fee", map[string]interface{}{"fee": rs.engine.Policy().MinFee})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (rs *RestServer) getAddressInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "get-address-info", http.StatusBadRequest, err)
		return
	}
	info, err := rs.engine.GetAddressInfo(req.Address, true)
	if err != nil {
		writeError(w, "get-address-info", http.StatusBadRequest, err)
		return
	}
	fields := map[string]interface{}{}
	raw, _ := json.Marshal(info)
	_ = json.Unmarshal(raw, &fields)
	writeOK(w, "get-address-info", fields)
}

func (rs *RestServer) getTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "transaction/get", http.StatusBadRequest, err)
		return
	}
	tx, ok, err := rs.engine.GetTransaction(req.TransactionID)
	if err != nil {
		writeError(w, "transaction/get", http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeJSON(w, "transaction/get", http.StatusNotFound, "error", map[string]interface{}{"message": "transaction not found"})
		return
	}
	writeOK(w, "transaction/get", map[string]interface{}{"transaction": tx})
}

type rangeRequest struct {
	Start      uint64 `json:"start"`
	End        uint64 `json:"end"`
	IsReversed bool   `json:"is_reversed"`
}

func (rs *RestServer) getTransactionsRange(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "transaction/get-range", http.StatusBadRequest, err)
		return
	}
	txs, total, err := rs.engine.GetTransactionsRange(req.Start, req.End, req.IsReversed)
	if err != nil {
		writeError(w, "transaction/get-range", http.StatusBadRequest, err)
		return
	}
	writeOK(w, "transaction/get-range", map[string]interface{}{"transactions": txs, "total": total})
}

func (rs *RestServer) getUnconfirmedTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "unconfirmed-transaction/get", http.StatusBadRequest, err)
		return
	}
	tx, ok, err := rs.engine.GetUnconfirmedTransaction(req.TransactionID)
	if err != nil {
		writeError(w, "unconfirmed-transaction/get", http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeJSON(w, "unconfirmed-transaction/get", http.StatusNotFound, "error", map[string]interface{}{"message": "transaction not found"})
		return
	}
	writeOK(w, "unconfirmed-transaction/get", map[string]interface{}{"transaction": tx})
}

func (rs *RestServer) getUnconfirmedTransactionsRange(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "unconfirmed-transaction/get-range", http.StatusBadRequest, err)
		return
	}
	txs, total, err := rs.engine.GetUnconfirmedTransactionsRange(req.Start, req.End, req.IsReversed)
	if err != nil {
		writeError(w, "unconfirmed-transaction/get-range", http.StatusBadRequest, err)
		return
	}
	writeOK(w, "unconfirmed-transaction/get-range", map[string]interface{}{"transactions": txs, "total": total})
}

func (rs *RestServer) addUnconfirmedTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transaction json.RawMessage `json:"transaction"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "unconfirmed-transaction/add", http.StatusBadRequest, err)
		return
	}
	tx, err := ParseTransaction(req.Transaction, false)
	if err != nil {
		writeError(w, "unconfirmed-transaction/add", http.StatusBadRequest, err)
		return
	}
	if err := rs.engine.AddUnconfirmedTransaction(tx); err != nil {
		metricTxRejected.WithLabelValues(string(KindOf(err))).Inc()
		writeError(w, "unconfirmed-transaction/add", http.StatusBadRequest, err)
		return
	}
	writeOK(w, "unconfirmed-transaction/add", map[string]interface{}{"transaction_id": tx.ID})
}

func (rs *RestServer) getBlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BlockID string `json:"block_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "block/get", http.StatusBadRequest, err)
		return
	}
	block, ok, err := rs.engine.GetBlock(req.BlockID)
	if err != nil {
		writeError(w, "block/get", http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeJSON(w, "block/get", http.StatusNotFound, "error", map[string]interface{}{"message": "block not found"})
		return
	}
	writeOK(w, "block/get", map[string]interface{}{"block": block})
}

func (rs *RestServer) getBlocksRange(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "block/get-range", http.StatusBadRequest, err)
		return
	}
	blocks, total, err := rs.engine.GetBlocksRange(req.Start, req.End, req.IsReversed)
	if err != nil {
		writeError(w, "block/get-range", http.StatusBadRequest, err)
		return
	}
	writeOK(w, "block/get-range", map[string]interface{}{"blocks": blocks, "total": total})
}

func (rs *RestServer) addBlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Block json.RawMessage `json:"block"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "block/add", http.StatusBadRequest, err)
		return
	}
	block, err := ParseBlock(req.Block, true)
	if err != nil {
		writeError(w, "block/add", http.StatusBadRequest, err)
		return
	}
	if err := rs.engine.AddBlock(block, true); err != nil {
		metricTxRejected.WithLabelValues(string(KindOf(err))).Inc()
		writeError(w, "block/add", http.StatusBadRequest, err)
		return
	}
	metricBlocksAdded.Inc()
	metricChainHeight.Set(float64(block.Height))
	writeOK(w, "block/add", map[string]interface{}{"block_id": block.ID})
}
