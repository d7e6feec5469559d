package main

import "testing"

func TestNewCreditTransactionVerifies(t *testing.T) {
	tx, err := NewCreditTransaction("Jrecipient", 100, "")
	if err != nil {
		t.Fatalf("NewCreditTransaction: %v", err)
	}
	if !tx.isCreditShape() {
		t.Error("credit transaction should be credit-shaped")
	}
	if !tx.Verify() {
		t.Error("freshly built credit transaction should verify")
	}
}

func TestTransferTransactionSignAndVerify(t *testing.T) {
	priv, pub, addr, err := keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	tx, err := NewTransferTransaction(addr, pub, "Jrecipient0000000000000000000000000000000000000000000000000000", 500, 10)
	if err != nil {
		t.Fatalf("NewTransferTransaction: %v", err)
	}
	if !tx.isTransferShape() {
		t.Error("transfer transaction should be transfer-shaped")
	}
	if tx.Verify() {
		t.Error("unsigned transfer transaction should not verify")
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !tx.Verify() {
		t.Error("signed transfer transaction should verify")
	}

	tx.Amount = tx.Amount + 1
	if tx.Verify() {
		t.Error("tampering with amount after signing should break verification")
	}
}

func TestParseTransactionStrictRejectsBadSignature(t *testing.T) {
	priv, pub, addr, err := keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	tx, err := NewTransferTransaction(addr, pub, "Jrecipient0000000000000000000000000000000000000000000000000000", 500, 10)
	if err != nil {
		t.Fatalf("NewTransferTransaction: %v", err)
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw := tx.CanonicalJSON()

	if _, err := ParseTransaction(raw, true); err != nil {
		t.Fatalf("ParseTransaction(strict) on a valid tx: %v", err)
	}

	tx.Amount++
	tx.Hash = tx.calcHash()
	tampered := tx.CanonicalJSON()
	if _, err := ParseTransaction(tampered, true); err == nil {
		t.Error("ParseTransaction(strict) should reject a hash-consistent but unsigned-tamper")
	}
}

func TestParseTransactionRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseTransaction([]byte("not json"), false); err == nil {
		t.Error("ParseTransaction should reject malformed json")
	}
}

func TestParseTransactionRejectsWrongVersion(t *testing.T) {
	tx, err := NewCreditTransaction("Jrecipient", 1, "")
	if err != nil {
		t.Fatalf("NewCreditTransaction: %v", err)
	}
	tx.Version = "0.9"
	raw := tx.CanonicalJSON()
	if _, err := ParseTransaction(raw, false); err == nil {
		t.Error("ParseTransaction should reject an unexpected version")
	}
}
