package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// unconfirmedPullLimit mirrors node.py::mine_blocks pulling
// {start:0, end:200} unconfirmed transactions from the coordinator each
// round.
const unconfirmedPullLimit = 200

// MineBlocks implements the C8 mining loop: pull a batch of unconfirmed
// transactions from the coordinator, admit as many as the sender's
// confirmed balance (minus what's already been committed to earlier
// transactions this round) can cover, build a reward transaction paying
// rewardAmount plus the accepted fees, mine the resulting block and
// submit it back to the coordinator. Grounded on
// original_source/jollycoin/node.py::mine_blocks.
func MineBlocks(ctx context.Context, engine *Engine, coordinator, minerAddress string) {
	Info("mining: started mining loop, miner address %s", minerAddress)
	client := &http.Client{Timeout: 10 * time.Second}

	for {
		select {
		case <-ctx.Done():
			Info("mining: stopped mining loop")
			return
		default:
		}

		if err := mineOnce(ctx, engine, client, coordinator, minerAddress); err != nil {
			Warn("mining: round failed: %v", err)
			if !sleepOrDone(ctx, 30*time.Second) {
				return
			}
			continue
		}
		if !sleepOrDone(ctx, 5*time.Second) {
			return
		}
	}
}

func mineOnce(ctx context.Context, engine *Engine, client *http.Client, coordinator, minerAddress string) error {
	metricMiningAttempts.Inc()
	var resp struct {
		httpStatusEnvelope
		Transactions []json.RawMessage `json:"transactions"`
	}
	// coordinator == "" is standalone mode (no coordinator at all): mine
	// reward-only blocks straight onto the local engine rather than
	// attempting a pull against an empty base URL.
	if coordinator != "" {
		reqBody := map[string]interface{}{"start": 0, "end": unconfirmedPullLimit}
		if err := postJSON(ctx, client, coordinator+"/v1/unconfirmed-transaction/get-range", reqBody, &resp); err != nil {
			return newErr(KindTransportError, "%v", err)
		}
		if resp.Status != "success" {
			return newErr(KindTransportError, "coordinator rejected unconfirmed-transaction pull: %s", resp.Message)
		}
	}

	last, err := engine.GetLastBlock()
	if err != nil {
		return err
	}
	var height uint64
	var prevHash *string
	if last != nil {
		height = last.Height + 1
		h := last.Hash
		prevHash = &h
	}

	policy := engine.Policy()
	balances := map[string]int64{}
	accepted := make([]*Transaction, 0, len(resp.Transactions))
	var feeTotal int64

	for _, raw := range resp.Transactions {
		tx, err := ParseTransaction(raw, true)
		if err != nil {
			continue
		}
		if tx.SenderAddress == nil {
			continue
		}
		if !isValidAddressShape(*tx.SenderAddress) || !isValidAddressShape(tx.RecipientAddress) {
			continue
		}

		bal, ok := balances[*tx.SenderAddress]
		if !ok {
			bal, err = engine.ConfirmedBalance(*tx.SenderAddress)
			if err != nil {
				continue
			}
		}
		need := tx.Amount + tx.Fee
		if bal < need {
			continue
		}
		balances[*tx.SenderAddress] = bal - need
		accepted = append(accepted, tx)
		feeTotal += tx.Fee
	}

	rewardTx, err := NewCreditTransaction(minerAddress, policy.RewardAmount+feeTotal, "")
	if err != nil {
		return err
	}
	txs := make([]*Transaction, 0, len(accepted)+1)
	txs = append(txs, rewardTx)
	txs = append(txs, accepted...)

	block := &Block{
		Version:      blockVersion,
		Height:       height,
		PrevHash:     prevHash,
		Time:         nowISO(),
		Transactions: txs,
		Difficulty:   policy.Difficulty,
	}
	id, err := randomID()
	if err != nil {
		return err
	}
	block.ID = id

	if err := block.Mine(ctx); err != nil {
		return err
	}
	PrintMiner("found block %d (%s), %d transactions", block.Height, block.Hash, len(block.Transactions))

	if coordinator == "" {
		return engine.AddBlock(block, true)
	}
	return submitBlock(ctx, coordinator, block)
}
