package main

import "testing"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCredit(t *testing.T, addr string, amount int64) *Transaction {
	t.Helper()
	tx, err := NewCreditTransaction(addr, amount, "")
	if err != nil {
		t.Fatalf("NewCreditTransaction: %v", err)
	}
	return tx
}

func TestStoreInsertBlockAndAggregates(t *testing.T) {
	s := openTestStore(t)
	miner := "Jminer000000000000000000000000000000000000000000000000000000000"

	genesis := &Block{
		Version:      blockVersion,
		Height:       0,
		ID:           mustRandomID(t),
		Time:         nowISO(),
		Transactions: []*Transaction{mustCredit(t, miner, 500)},
		Difficulty:   easyPolicy(),
	}
	if err := s.InsertBlock(genesis, nil); err != nil {
		t.Fatalf("InsertBlock: %v", err)
	}

	credit, err := s.ConfirmedCreditSum(miner)
	if err != nil {
		t.Fatalf("ConfirmedCreditSum: %v", err)
	}
	if credit != 500 {
		t.Errorf("ConfirmedCreditSum = %d, want 500", credit)
	}

	total, err := s.TotalSupply()
	if err != nil {
		t.Fatalf("TotalSupply: %v", err)
	}
	if total != 500 {
		t.Errorf("TotalSupply = %d, want 500", total)
	}

	last, err := s.GetLastBlock()
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if last == nil || last.ID != genesis.ID {
		t.Error("GetLastBlock did not return the inserted genesis block")
	}

	count, err := s.CountBlocks()
	if err != nil {
		t.Fatalf("CountBlocks: %v", err)
	}
	if count != 1 {
		t.Errorf("CountBlocks = %d, want 1", count)
	}
}

func TestStoreUnconfirmedTxLifecycle(t *testing.T) {
	s := openTestStore(t)
	tx := mustCredit(t, "Jrecipient0000000000000000000000000000000000000000000000000000", 10)

	exists, err := s.ExistsUnconfirmedTx(tx.ID)
	if err != nil {
		t.Fatalf("ExistsUnconfirmedTx: %v", err)
	}
	if exists {
		t.Fatal("transaction should not exist before insertion")
	}

	if err := s.InsertUnconfirmedTx(tx); err != nil {
		t.Fatalf("InsertUnconfirmedTx: %v", err)
	}

	exists, err = s.ExistsUnconfirmedTx(tx.ID)
	if err != nil {
		t.Fatalf("ExistsUnconfirmedTx: %v", err)
	}
	if !exists {
		t.Error("transaction should exist after insertion")
	}

	got, err := s.GetUnconfirmedTx(tx.ID)
	if err != nil {
		t.Fatalf("GetUnconfirmedTx: %v", err)
	}
	if got == nil || got.ID != tx.ID {
		t.Error("GetUnconfirmedTx did not return the inserted transaction")
	}
}

func TestStoreUnconfirmedTxsForAddressFindsInserted(t *testing.T) {
	s := openTestStore(t)
	addr := "Jsender00000000000000000000000000000000000000000000000000000000"
	good := mustCredit(t, addr, 10)
	if err := s.InsertUnconfirmedTx(good); err != nil {
		t.Fatalf("InsertUnconfirmedTx: %v", err)
	}

	txs, err := s.UnconfirmedTxsForAddress(addr)
	if err != nil {
		t.Fatalf("UnconfirmedTxsForAddress: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("UnconfirmedTxsForAddress returned %d transactions, want 1", len(txs))
	}
}

func mustRandomID(t *testing.T) string {
	t.Helper()
	id, err := randomID()
	if err != nil {
		t.Fatalf("randomID: %v", err)
	}
	return id
}
