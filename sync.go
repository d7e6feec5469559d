package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"time"
)

// syncRetryDelay is T1 from spec.md §5 (transport/non-success retries).
const syncRetryDelay = 10 * time.Second

// blockBatchLimit bounds a single coordinator pull, well under the
// store's own 15,000-block range cap.
const blockBatchLimit = 500

type httpStatusEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// postJSON posts body to url and decodes the JSON response into out. A
// short per-call timeout (T1) makes the call itself a retryable error on
// timeout, per spec.md §5.
func postJSON(ctx context.Context, client *http.Client, url string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// SyncBlockchain implements the C7 block-sync loop (spec.md §4.7): on
// start, resume from the local tip; otherwise pull [next, next+limit) from
// the coordinator, hand each block to the engine without the difficulty
// gate, and advance. Every failure — transport, non-success envelope, or
// engine rejection — waits syncRetryDelay and retries the same `next`.
func SyncBlockchain(ctx context.Context, engine *Engine, coordinator string) {
	Info("sync: started blockchain sync against %s", coordinator)
	client := &http.Client{Timeout: 10 * time.Second}

	last, err := engine.GetLastBlock()
	if err != nil {
		Error("sync: could not read local tip: %v", err)
	}
	var next uint64
	if last != nil {
		next = last.Height + 1
	}

	for {
		select {
		case <-ctx.Done():
			Info("sync: stopped blockchain sync")
			return
		default:
		}

		var resp struct {
			httpStatusEnvelope
			Blocks []json.RawMessage `json:"blocks"`
		}
		reqBody := map[string]interface{}{"start": next, "end": next + blockBatchLimit}
		err := postJSON(ctx, client, coordinator+"/v1/block/get-range", reqBody, &resp)
		if err != nil {
			Warn("sync: transport error fetching blocks: %v", err)
			if !sleepOrDone(ctx, syncRetryDelay) {
				return
			}
			continue
		}
		if resp.Status != "success" {
			Warn("sync: coordinator returned error fetching blocks, retrying...")
			if !sleepOrDone(ctx, syncRetryDelay) {
				return
			}
			continue
		}
		if len(resp.Blocks) == 0 {
			if !sleepOrDone(ctx, 5*time.Second) {
				return
			}
			continue
		}

		failed := false
		for _, raw := range resp.Blocks {
			block, err := ParseBlock(raw, false)
			if err != nil {
				Warn("sync: could not parse block, retrying: %v", err)
				failed = true
				break
			}
			if err := engine.AddBlock(block, false); err != nil {
				Warn("sync: could not add block %s, retrying: %v", block.ID, err)
				failed = true
				break
			}
		}
		if failed {
			if !sleepOrDone(ctx, syncRetryDelay) {
				return
			}
			continue
		}

		last, err := engine.GetLastBlock()
		if err == nil && last != nil {
			next = last.Height + 1
		}
		if !sleepOrDone(ctx, 5*time.Second) {
			return
		}
	}
}

// SyncDifficulty implements the lightweight difficulty poller half of C7
// (spec.md §4.7's "separate lightweight loop").
func SyncDifficulty(ctx context.Context, engine *Engine, coordinator string) {
	Info("sync: started difficulty sync")
	client := &http.Client{Timeout: 10 * time.Second}

	for {
		select {
		case <-ctx.Done():
			Info("sync: stopped difficulty sync")
			return
		default:
		}

		var resp struct {
			httpStatusEnvelope
			Difficulty string `json:"difficulty"`
		}
		err := postJSON(ctx, client, coordinator+"/v1/difficulty", map[string]interface{}{}, &resp)
		if err != nil {
			Warn("sync: transport error fetching difficulty: %v", err)
			if !sleepOrDone(ctx, syncRetryDelay) {
				return
			}
			continue
		}
		if resp.Status != "success" || resp.Difficulty == "" {
			Warn("sync: could not get difficulty, retrying...")
			if !sleepOrDone(ctx, syncRetryDelay) {
				return
			}
			continue
		}
		d, ok := new(big.Int).SetString(resp.Difficulty, 10)
		if !ok {
			Warn("sync: malformed difficulty %q", resp.Difficulty)
			if !sleepOrDone(ctx, syncRetryDelay) {
				return
			}
			continue
		}
		if d.Cmp(engine.Policy().Difficulty) != 0 {
			Warn("sync: difficulty changed %s -> %s", engine.Policy().Difficulty, d)
			engine.SetDifficulty(d)
		}
		if !sleepOrDone(ctx, syncRetryDelay) {
			return
		}
	}
}

// sleepOrDone sleeps for d unless ctx is cancelled first, returning false
// if the caller should stop.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// submitBlock posts a mined block to the coordinator's block-add endpoint
// (grounded on original_source/jollycoin/blockchain.py::submit_block).
func submitBlock(ctx context.Context, coordinator string, block *Block) error {
	client := &http.Client{Timeout: 10 * time.Second}
	var resp httpStatusEnvelope
	err := postJSON(ctx, client, coordinator+"/v1/block/add", map[string]interface{}{"block": block}, &resp)
	if err != nil {
		return newErr(KindTransportError, "%v", err)
	}
	if resp.Status != "success" {
		return newErr(KindTransportError, "coordinator rejected block: %s", resp.Message)
	}
	return nil
}
