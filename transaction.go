package main

import (
	"encoding/json"
	"time"
)

// Transaction is the account-model value transfer record described in
// spec.md §3. Wire (de)serialisation uses plain encoding/json via the
// struct tags below — transport bytes need not be canonical, only the
// hash/signature input does, which is built separately by canonicalBytes.
type Transaction struct {
	Version          string  `json:"version"`
	ID               string  `json:"id"`
	Time             string  `json:"time"`
	SenderAddress    *string `json:"sender_address"`
	RecipientAddress string  `json:"recipient_address"`
	SenderPublicKey  *string `json:"sender_public_key"`
	Amount           int64   `json:"amount"`
	Fee              int64   `json:"fee"`
	Signature        *string `json:"signature"`
	Hash             string  `json:"hash"`
}

const txVersion = "1.0"

// txTimeLayout mirrors the original's ISO-8601 UTC timestamp without a
// timezone suffix, microsecond precision (original_source/jollycoin
// uses Python's datetime.isoformat() on a naive UTC datetime).
const txTimeLayout = "2006-01-02T15:04:05.000000"

func nowISO() string {
	return time.Now().UTC().Format(txTimeLayout)
}

// canonicalBytes builds the fixed-order JSON object spec.md §3 requires as
// hash/signature input. includeSignature and includeHash control whether
// those two trailing keys are present at all (elided, not nulled, when
// false) — sign() needs both false, calcHash() needs signature but not
// hash, and the fully-stored record needs both true.
func (tx *Transaction) canonicalBytes(includeSignature, includeHash bool) []byte {
	w := newCanonicalWriter()
	w.Str("version", tx.Version)
	w.Str("id", tx.ID)
	w.Str("time", tx.Time)
	w.StrPtrOrNull("sender_address", tx.SenderAddress)
	w.Str("recipient_address", tx.RecipientAddress)
	w.StrPtrOrNull("sender_public_key", tx.SenderPublicKey)
	w.Int64("amount", tx.Amount)
	w.Int64("fee", tx.Fee)
	if includeSignature {
		w.StrPtrOrNull("signature", tx.Signature)
	}
	if includeHash {
		w.Str("hash", tx.Hash)
	}
	return w.Bytes()
}

// CanonicalJSON is the full canonical record, the bytes stored as the
// Store's "message" blob and the bytes nested into a Block's transactions
// array.
func (tx *Transaction) CanonicalJSON() []byte {
	return tx.canonicalBytes(true, true)
}

func (tx *Transaction) calcHash() string {
	return sha256Hex(tx.canonicalBytes(true, false))
}

// isCreditShape reports whether tx has no sender/pubkey/signature — the
// shape shared by genesis credits and block reward transactions.
func (tx *Transaction) isCreditShape() bool {
	return tx.SenderAddress == nil && tx.SenderPublicKey == nil && tx.Signature == nil
}

// isTransferShape reports whether all four identity fields are present.
func (tx *Transaction) isTransferShape() bool {
	return tx.SenderAddress != nil && tx.SenderPublicKey != nil && tx.Signature != nil
}

// Verify reports whether tx.Hash matches the recompute and, for transfer
// shape, the signature verifies and the sender address matches the
// sender's public key. Never panics; any structural inconsistency (a
// partially-filled identity) reports false rather than guessing a shape.
func (tx *Transaction) Verify() bool {
	if tx.calcHash() != tx.Hash {
		return false
	}
	if tx.isCreditShape() {
		return true
	}
	if !tx.isTransferShape() {
		return false
	}
	if addressOf(*tx.SenderPublicKey) != *tx.SenderAddress {
		return false
	}
	return verifyMessage(*tx.SenderPublicKey, *tx.Signature, tx.canonicalBytes(false, false))
}

// Sign computes the signature over the tx's canonical bytes without
// signature and hash, then recomputes Hash over the tx without hash (now
// including the freshly-set signature), per spec.md §4.3.
func (tx *Transaction) Sign(privHex string) error {
	data := tx.canonicalBytes(false, false)
	sig, err := signMessage(privHex, data)
	if err != nil {
		return err
	}
	tx.Signature = &sig
	tx.Hash = tx.calcHash()
	return nil
}

// NewTransferTransaction builds, but does not sign, a transfer-shape
// transaction ready for Sign().
func NewTransferTransaction(senderAddress, senderPubKeyHex, recipientAddress string, amount, fee int64) (*Transaction, error) {
	id, err := randomID()
	if err != nil {
		return nil, err
	}
	return &Transaction{
		Version:          txVersion,
		ID:               id,
		Time:             nowISO(),
		SenderAddress:    &senderAddress,
		RecipientAddress: recipientAddress,
		SenderPublicKey:  &senderPubKeyHex,
		Amount:           amount,
		Fee:              fee,
	}, nil
}

// NewCreditTransaction builds a credit-shape (genesis or reward)
// transaction and fills its hash immediately — credits are never signed.
func NewCreditTransaction(recipientAddress string, amount int64, at string) (*Transaction, error) {
	id, err := randomID()
	if err != nil {
		return nil, err
	}
	if at == "" {
		at = nowISO()
	}
	tx := &Transaction{
		Version:          txVersion,
		ID:               id,
		Time:             at,
		RecipientAddress: recipientAddress,
		Amount:           amount,
		Fee:              0,
	}
	tx.Hash = tx.calcHash()
	return tx, nil
}

// ParseTransaction decodes wire JSON into a Transaction. When strict is
// true, construction additionally fails unless the decoded transaction's
// hash (and, for transfer shape, signature) verify — per spec.md §4.3.
// Non-strict parsing is used when ingesting a tx for validation by the
// engine, which performs its own ordered checks (spec.md §4.6.1) and wants
// distinct error kinds rather than one construction-time failure.
func ParseTransaction(raw []byte, strict bool) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, newErr(KindBadTxFields, "malformed transaction json: %v", err)
	}
	if tx.Version != txVersion {
		return nil, newErr(KindBadTxFields, "unexpected version %q", tx.Version)
	}
	if len(tx.ID) != 64 {
		return nil, newErr(KindBadTxFields, "id must be 64 hex characters")
	}
	if _, err := time.Parse(txTimeLayout, tx.Time); err != nil {
		return nil, newErr(KindBadTxFields, "unparseable time: %v", err)
	}
	if strict && !tx.Verify() {
		return nil, newErr(KindInvalidSignature, "transaction %s failed verification", tx.ID)
	}
	return &tx, nil
}
