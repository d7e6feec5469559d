package main

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math/big"
)

// Block is the header+body record described in spec.md §3. Wire
// (de)serialisation uses encoding/json; hash/PoW input bytes are built
// separately by canonicalBytes, matching the teacher's and
// original_source's separation of "storage shape" from "hash shape".
type Block struct {
	Version      string         `json:"version"`
	Height       uint64         `json:"height"`
	ID           string         `json:"id"`
	PrevHash     *string        `json:"prev_hash"`
	Time         string         `json:"time"`
	Transactions []*Transaction `json:"transactions"`
	MerkleRoot   string         `json:"merkle_root"`
	Difficulty   *big.Int       `json:"difficulty"`
	Nonce        uint64         `json:"nonce"`
	Hash         string         `json:"hash"`
}

const blockVersion = "1.0"

// miningBatchSize bounds a single uninterrupted nonce search, per spec.md
// §5 and original_source/jollycoin/block.py's iter_calc_nonce(100_000).
const miningBatchSize = 100_000

// canonicalBytes builds the fixed-order JSON object spec.md §3 requires.
// includeNonce/includeHash control whether those two trailing keys are
// present at all (elided, not nulled): calcHash() wants nonce but not
// hash; the PoW input wants neither (the nonce is appended separately as
// raw minimal-big-endian bytes, not as a JSON field).
func (b *Block) canonicalBytes(includeNonce, includeHash bool) []byte {
	w := newCanonicalWriter()
	w.Str("version", b.Version)
	w.Int64("height", int64(b.Height))
	w.Str("id", b.ID)
	w.StrPtrOrNull("prev_hash", b.PrevHash)
	w.Str("time", b.Time)

	items := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		items[i] = tx.CanonicalJSON()
	}
	w.Raw("transactions", canonicalArray(items))

	w.Str("merkle_root", b.MerkleRoot)
	w.BigInt("difficulty", b.Difficulty)
	if includeNonce {
		w.Int64("nonce", int64(b.Nonce))
	}
	if includeHash {
		w.Str("hash", b.Hash)
	}
	return w.Bytes()
}

// CanonicalJSON is the full canonical record, stored as the Store's
// "message" blob for blocks.
func (b *Block) CanonicalJSON() []byte {
	return b.canonicalBytes(true, true)
}

func (b *Block) calcHash() string {
	return sha256Hex(b.canonicalBytes(true, false))
}

// calcMerkleRootHex delegates to the Merkle builder (C2) over the block's
// transaction hashes, per spec.md §4.4.
func (b *Block) calcMerkleRootHex() (string, error) {
	leaves := make([][32]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		raw, err := hex.DecodeString(tx.Hash)
		if err != nil || len(raw) != 32 {
			return "", newErr(KindWrongMerkleRoot, "transaction %d has malformed hash", i)
		}
		copy(leaves[i][:], raw)
	}
	root := merkleRoot(leaves)
	return hex.EncodeToString(root[:]), nil
}

// minimalBigEndian returns the shortest big-endian byte representation of
// n: ceil(bit_length(n)/8) bytes, zero bytes for n == 0. Consensus-
// critical; see spec.md §9.
func minimalBigEndian(n uint64) []byte {
	if n == 0 {
		return []byte{}
	}
	full := make([]byte, 8)
	binary.BigEndian.PutUint64(full, n)
	i := 0
	for i < len(full)-1 && full[i] == 0 {
		i++
	}
	return full[i:]
}

// powValue computes int(SHA256(canonical_bytes(block without nonce and
// hash) || minimal_be(nonce))) as described in spec.md §4.4/§8 (P2).
func (b *Block) powValue() *big.Int {
	header := b.canonicalBytes(false, false)
	full := append(append([]byte{}, header...), minimalBigEndian(b.Nonce)...)
	sum := sha256.Sum256(full)
	return new(big.Int).SetBytes(sum[:])
}

func (b *Block) checkPoW() bool {
	return b.powValue().Cmp(b.Difficulty) < 0
}

// VerifyStrict checks hash, Merkle root and PoW, returning the specific
// error kind spec.md §4.4 names for block construction. Callers that need
// the coarser "BlockInvalid" kind (the chain engine's admission rule,
// spec.md §4.6.2 step 2) wrap this call themselves.
func (b *Block) VerifyStrict() error {
	wantRoot, err := b.calcMerkleRootHex()
	if err != nil {
		return err
	}
	if wantRoot != b.MerkleRoot {
		return newErr(KindWrongMerkleRoot, "merkle root mismatch for block %s", b.ID)
	}
	if b.calcHash() != b.Hash {
		return newErr(KindWrongHash, "hash mismatch for block %s", b.ID)
	}
	if !b.checkPoW() {
		return newErr(KindWrongNonce, "proof of work does not satisfy difficulty for block %s", b.ID)
	}
	return nil
}

// Mine fills MerkleRoot if missing, then scans nonce = 0, 1, … in bounded
// batches (miningBatchSize attempts) for the first nonce satisfying the
// PoW check, yielding to ctx cancellation between batches so the mining
// loop (C8) can observe and cancel without holding the engine lock or
// blocking the event loop. On success it fills Hash and returns nil.
func (b *Block) Mine(ctx context.Context) error {
	if b.MerkleRoot == "" {
		root, err := b.calcMerkleRootHex()
		if err != nil {
			return err
		}
		b.MerkleRoot = root
	}

	var nonce uint64
	for {
		for i := uint64(0); i < miningBatchSize; i++ {
			b.Nonce = nonce
			if b.checkPoW() {
				b.Hash = b.calcHash()
				return nil
			}
			nonce++
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// ParseBlock decodes wire JSON into a Block. When strict is true,
// construction additionally fails with the specific VerifyStrict error
// kind unless hash, Merkle root and PoW all hold.
func ParseBlock(raw []byte, strict bool) (*Block, error) {
	var b Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, newErr(KindBlockInvalid, "malformed block json: %v", err)
	}
	if b.Version != blockVersion {
		return nil, newErr(KindBlockInvalid, "unexpected version %q", b.Version)
	}
	if len(b.ID) != 64 {
		return nil, newErr(KindBlockInvalid, "id must be 64 hex characters")
	}
	if b.Difficulty == nil {
		return nil, newErr(KindBlockInvalid, "missing difficulty")
	}
	if strict {
		if err := b.VerifyStrict(); err != nil {
			return nil, err
		}
	}
	return &b, nil
}
