package main

import (
	"context"
	"testing"
	"time"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewEngine(store)
}

// mineBlock builds and mines a block at the given height crediting amount
// to address via a reward-shape transaction, plus any extra transfer-shape
// transactions supplied.
func mineBlock(t *testing.T, e *Engine, height uint64, prevHash *string, rewardAddr string, rewardAmount int64, extras ...*Transaction) *Block {
	t.Helper()
	var txs []*Transaction
	if height == 0 {
		credit, err := NewCreditTransaction(rewardAddr, rewardAmount, "")
		if err != nil {
			t.Fatalf("NewCreditTransaction: %v", err)
		}
		txs = append(txs, credit)
	} else {
		reward, err := NewCreditTransaction(rewardAddr, rewardAmount, "")
		if err != nil {
			t.Fatalf("NewCreditTransaction: %v", err)
		}
		txs = append(txs, reward)
		txs = append(txs, extras...)
	}
	id, err := randomID()
	if err != nil {
		t.Fatalf("randomID: %v", err)
	}
	b := &Block{
		Version:      blockVersion,
		Height:       height,
		ID:           id,
		PrevHash:     prevHash,
		Time:         nowISO(),
		Transactions: txs,
		Difficulty:   e.Policy().Difficulty,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := b.Mine(ctx); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	return b
}

func TestAddBlockGenesisThenChild(t *testing.T) {
	e := newTestEngine(t)
	miner := "Jabababababababababababababababababababababababababababababababab"

	genesis := mineBlock(t, e, 0, nil, miner, 1000)
	if err := e.AddBlock(genesis, false); err != nil {
		t.Fatalf("AddBlock(genesis): %v", err)
	}

	child := mineBlock(t, e, 1, &genesis.Hash, miner, e.Policy().RewardAmount)
	if err := e.AddBlock(child, false); err != nil {
		t.Fatalf("AddBlock(child): %v", err)
	}

	bal, err := e.ConfirmedBalance(miner)
	if err != nil {
		t.Fatalf("ConfirmedBalance: %v", err)
	}
	if want := int64(1000) + e.Policy().RewardAmount; bal != want {
		t.Errorf("miner balance = %d, want %d", bal, want)
	}
}

func TestAddBlockRejectsDuplicateHeight(t *testing.T) {
	e := newTestEngine(t)
	miner := "Jabababababababababababababababababababababababababababababababab"
	genesis := mineBlock(t, e, 0, nil, miner, 1000)
	if err := e.AddBlock(genesis, false); err != nil {
		t.Fatalf("AddBlock(genesis): %v", err)
	}
	dup := mineBlock(t, e, 0, nil, miner, 1000)
	if err := e.AddBlock(dup, false); err == nil {
		t.Error("AddBlock should reject a second block at an already-occupied height")
	}
}

func TestAddBlockRejectsMissingParent(t *testing.T) {
	e := newTestEngine(t)
	miner := "Jabababababababababababababababababababababababababababababababab"
	orphan := mineBlock(t, e, 5, nil, miner, 1000)
	if err := e.AddBlock(orphan, false); err == nil {
		t.Error("AddBlock should reject a block whose parent height does not exist")
	}
}

func TestAddBlockRejectsPrevHashMismatch(t *testing.T) {
	e := newTestEngine(t)
	miner := "Jabababababababababababababababababababababababababababababababab"
	genesis := mineBlock(t, e, 0, nil, miner, 1000)
	if err := e.AddBlock(genesis, false); err != nil {
		t.Fatalf("AddBlock(genesis): %v", err)
	}
	wrongHash := genesis.Hash + "00"
	child := mineBlock(t, e, 1, &wrongHash, miner, e.Policy().RewardAmount)
	if err := e.AddBlock(child, false); err == nil {
		t.Error("AddBlock should reject a block whose prev_hash does not match the parent")
	}
}

func TestAddBlockRejectsDifficultyMismatch(t *testing.T) {
	e := newTestEngine(t)
	miner := "Jabababababababababababababababababababababababababababababababab"
	genesis := mineBlock(t, e, 0, nil, miner, 1000)
	genesis.Difficulty = easyPolicy()
	genesis.MerkleRoot = ""
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := genesis.Mine(ctx); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if err := e.AddBlock(genesis, true); err == nil {
		t.Error("AddBlock(checkDifficulty=true) should reject a block mined at a different difficulty")
	}
}

func TestAddBlockRejectsInsufficientFunds(t *testing.T) {
	e := newTestEngine(t)
	miner := "Jabababababababababababababababababababababababababababababababab"
	spender := "Jspend00000000000000000000000000000000000000000000000000000000"
	genesis := mineBlock(t, e, 0, nil, miner, 1000)
	if err := e.AddBlock(genesis, false); err != nil {
		t.Fatalf("AddBlock(genesis): %v", err)
	}

	_ = spender
	priv, pub, addr, err := keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	transfer, err := NewTransferTransaction(addr, pub, miner, 999999, 100)
	if err != nil {
		t.Fatalf("NewTransferTransaction: %v", err)
	}
	if err := transfer.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	child := mineBlock(t, e, 1, &genesis.Hash, miner, e.Policy().RewardAmount, transfer)
	if err := e.AddBlock(child, false); err == nil {
		t.Error("AddBlock should reject a block whose sender cannot cover amount+fee")
	}
}

func TestAddUnconfirmedTransactionValidationOrder(t *testing.T) {
	e := newTestEngine(t)
	priv, pub, addr, err := keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	t.Run("negative amount rejected first", func(t *testing.T) {
		tx, err := NewTransferTransaction(addr, pub, "Jrecipient0000000000000000000000000000000000000000000000000000", -1, 1000)
		if err != nil {
			t.Fatalf("NewTransferTransaction: %v", err)
		}
		if err := e.AddUnconfirmedTransaction(tx); KindOf(err) != KindNegativeAmount {
			t.Errorf("expected NegativeAmount rejection, got %v", err)
		}
	})

	t.Run("fee below minimum rejected", func(t *testing.T) {
		tx, err := NewTransferTransaction(addr, pub, "Jrecipient0000000000000000000000000000000000000000000000000000", 10, 0)
		if err != nil {
			t.Fatalf("NewTransferTransaction: %v", err)
		}
		if err := e.AddUnconfirmedTransaction(tx); KindOf(err) != KindFeeTooLow {
			t.Errorf("expected FeeTooLow rejection, got %v", err)
		}
	})

	t.Run("unsigned transaction rejected", func(t *testing.T) {
		tx, err := NewTransferTransaction(addr, pub, "Jrecipient0000000000000000000000000000000000000000000000000000", 10, 1000)
		if err != nil {
			t.Fatalf("NewTransferTransaction: %v", err)
		}
		if err := e.AddUnconfirmedTransaction(tx); KindOf(err) != KindInvalidSignature {
			t.Errorf("expected InvalidSignature rejection for an unsigned transaction, got %v", err)
		}
	})

	t.Run("valid transaction admitted then rejected as duplicate", func(t *testing.T) {
		tx, err := NewTransferTransaction(addr, pub, "Jrecipient0000000000000000000000000000000000000000000000000000", 10, 1000)
		if err != nil {
			t.Fatalf("NewTransferTransaction: %v", err)
		}
		if err := tx.Sign(priv); err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if err := e.AddUnconfirmedTransaction(tx); err != nil {
			t.Fatalf("AddUnconfirmedTransaction: %v", err)
		}
		if err := e.AddUnconfirmedTransaction(tx); KindOf(err) != KindAlreadyPending {
			t.Errorf("expected AlreadyPending rejection for a transaction already pending, got %v", err)
		}
	})
}

func TestGetAddressInfoCounts(t *testing.T) {
	e := newTestEngine(t)
	miner := "Jabababababababababababababababababababababababababababababababab"
	genesis := mineBlock(t, e, 0, nil, miner, 1000)
	if err := e.AddBlock(genesis, false); err != nil {
		t.Fatalf("AddBlock(genesis): %v", err)
	}
	info, err := e.GetAddressInfo(miner, false)
	if err != nil {
		t.Fatalf("GetAddressInfo: %v", err)
	}
	if info.ConfirmedBalance != 1000 {
		t.Errorf("confirmed balance = %d, want 1000", info.ConfirmedBalance)
	}
	if info.NConfirmedTransactions != 1 {
		t.Errorf("n_confirmed_transactions = %d, want 1", info.NConfirmedTransactions)
	}
	if info.ConfirmedTransactions != nil {
		t.Error("with_transactions=false should not populate ConfirmedTransactions")
	}
}

func TestVolumeWindowsCoverAllLabels(t *testing.T) {
	e := newTestEngine(t)
	miner := "Jabababababababababababababababababababababababababababababababab"
	genesis := mineBlock(t, e, 0, nil, miner, 1000)
	if err := e.AddBlock(genesis, false); err != nil {
		t.Fatalf("AddBlock(genesis): %v", err)
	}
	volume, err := e.Volume()
	if err != nil {
		t.Fatalf("Volume: %v", err)
	}
	if len(volume) != len(volumeWindows) {
		t.Fatalf("Volume() returned %d windows, want %d", len(volume), len(volumeWindows))
	}
	for _, w := range volumeWindows {
		got, ok := volume[w.Label]
		if !ok {
			t.Errorf("Volume() missing window %q", w.Label)
			continue
		}
		if got < 1000 {
			t.Errorf("Volume()[%q] = %d, want >= 1000 (genesis credit within window)", w.Label, got)
		}
	}
	if volume["24h"] != volume["1d"] {
		t.Error("24h and 1d are documented duplicate-valued windows")
	}
	if volume["12m"] != volume["1y"] {
		t.Error("12m and 1y are documented duplicate-valued windows")
	}
}
