package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// Store is the badger-backed persistence layer (C5). It provides the
// typed operations the chain engine (C6) depends on — spec.md §4.5. The
// engine serialises all access through its own mutex (§5), so Store
// methods do not need to coordinate with each other beyond what a single
// badger transaction per call already guarantees.
//
// Key families (spec.md §6 "persisted state"), grounded on
// nicolocarcagni-sole/blockchain.go's getBadgerOptions/"lh" pointer
// pattern and utxo_set.go's prefix-scan pattern:
//
//	lastblock                         -> height (8-byte BE) of the tip
//	block:<id>                        -> canonical block JSON
//	block-height:<height 8-byte BE>   -> id
//	tx-confirmed:<id>                 -> storedTx JSON (confirmed)
//	tx-unconfirmed:<id>               -> storedTx JSON (unconfirmed)
//	txc-seq:<8-byte BE seq>           -> confirmed tx id   (insertion order)
//	txu-seq:<8-byte BE seq>           -> unconfirmed tx id (insertion order)
//	addr-credit:<address>             -> int64 BE running sum (confirmed)
//	addr-debit:<address>              -> int64 BE running sum (confirmed)
//	addr-fee:<address>                -> int64 BE running sum (confirmed)
//	credit-time:<nanos BE><id>        -> int64 BE amount (confirmed, no-sender txs only)
//	meta:total-supply                 -> int64 BE running sum
//	meta:seq-confirmed                -> uint64 BE counter
//	meta:seq-unconfirmed              -> uint64 BE counter
type Store struct {
	db *badger.DB
}

func storeOptions(path string) badger.Options {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.ValueLogFileSize = 16 << 20
	opts.MemTableSize = 8 << 20
	opts.BlockCacheSize = 1 << 20
	opts.NumVersionsToKeep = 1
	opts.VerifyValueChecksum = true
	opts.DetectConflicts = true
	if runtime.GOOS == "windows" {
		// badger manages mmap internally; nothing extra needed here.
	}
	return opts
}

// OpenStore opens (creating if absent) the badger database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := badger.Open(storeOptions(path))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// storedTx wraps a Transaction with the confirmation metadata the Store
// tracks alongside it.
type storedTx struct {
	Tx        *Transaction `json:"tx"`
	Confirmed bool         `json:"confirmed"`
	BlockID   string       `json:"block_id,omitempty"`
}

func be64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func beInt64(n int64) []byte {
	return be64(uint64(n))
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func keyBlock(id string) []byte       { return []byte("block:" + id) }
func keyBlockHeight(h uint64) []byte  { k := []byte("block-height:"); return append(k, be64(h)...) }
func keyTxConfirmed(id string) []byte { return []byte("tx-confirmed:" + id) }
func keyTxUnconf(id string) []byte    { return []byte("tx-unconfirmed:" + id) }
func keyTxcSeq(seq uint64) []byte     { k := []byte("txc-seq:"); return append(k, be64(seq)...) }
func keyTxuSeq(seq uint64) []byte     { k := []byte("txu-seq:"); return append(k, be64(seq)...) }
func keyAddrCredit(a string) []byte   { return []byte("addr-credit:" + a) }
func keyAddrDebit(a string) []byte    { return []byte("addr-debit:" + a) }
func keyAddrFee(a string) []byte      { return []byte("addr-fee:" + a) }

func keyCreditTime(t time.Time, id string) []byte {
	k := []byte("credit-time:")
	k = append(k, be64(uint64(t.UnixNano()))...)
	return append(k, []byte(id)...)
}

const (
	metaLastBlockHeight = "lastblock"
	metaTotalSupply     = "meta:total-supply"
	metaSeqConfirmed    = "meta:seq-confirmed"
	metaSeqUnconfirmed  = "meta:seq-unconfirmed"
)

func getInt64(txn *badger.Txn, key string) (int64, bool, error) {
	item, err := txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var v int64
	err = item.Value(func(val []byte) error {
		v = decodeInt64(val)
		return nil
	})
	return v, true, err
}

func incrInt64(txn *badger.Txn, key string, delta int64) error {
	v, _, err := getInt64(txn, key)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), beInt64(v+delta))
}

func nextSeq(txn *badger.Txn, metaKey string) (uint64, error) {
	v, _, err := getInt64(txn, metaKey)
	if err != nil {
		return 0, err
	}
	next := uint64(v) + 1
	if err := txn.Set([]byte(metaKey), beInt64(int64(next))); err != nil {
		return 0, err
	}
	return next, nil
}

// GetLastBlock returns the highest-height block, or nil if the store is
// empty.
func (s *Store) GetLastBlock() (*Block, error) {
	var block *Block
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaLastBlockHeight))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var height uint64
		if err := item.Value(func(v []byte) error { height = binary.BigEndian.Uint64(v); return nil }); err != nil {
			return err
		}
		b, err := s.getBlockAtHeightTxn(txn, height)
		if err != nil {
			return err
		}
		block = b
		return nil
	})
	return block, err
}

func (s *Store) getBlockAtHeightTxn(txn *badger.Txn, height uint64) (*Block, error) {
	item, err := txn.Get(keyBlockHeight(height))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var id string
	if err := item.Value(func(v []byte) error { id = string(v); return nil }); err != nil {
		return nil, err
	}
	return s.getBlockByIDTxn(txn, id)
}

func (s *Store) getBlockByIDTxn(txn *badger.Txn, id string) (*Block, error) {
	item, err := txn.Get(keyBlock(id))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := item.Value(func(v []byte) error { raw = append([]byte{}, v...); return nil }); err != nil {
		return nil, err
	}
	var b Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBlockByID returns the block with the given id, or nil.
func (s *Store) GetBlockByID(id string) (*Block, error) {
	var block *Block
	err := s.db.View(func(txn *badger.Txn) error {
		b, err := s.getBlockByIDTxn(txn, id)
		block = b
		return err
	})
	return block, err
}

// GetBlockAtHeight returns the block at the given height, or nil.
func (s *Store) GetBlockAtHeight(height uint64) (*Block, error) {
	var block *Block
	err := s.db.View(func(txn *badger.Txn) error {
		b, err := s.getBlockAtHeightTxn(txn, height)
		block = b
		return err
	})
	return block, err
}

// CountBlocks returns the number of blocks in the store. Heights are a
// contiguous 0..N-1 run (P4), so this is lastHeight+1 with no separate
// counter.
func (s *Store) CountBlocks() (uint64, error) {
	last, err := s.GetLastBlock()
	if err != nil || last == nil {
		return 0, err
	}
	return last.Height + 1, nil
}

const maxBlockRange = 15_000

// GetBlocksRange returns up to limit blocks starting at offset (by
// height), in height order or reverse.
func (s *Store) GetBlocksRange(offset, limit uint64, reversed bool) ([]*Block, error) {
	if limit == 0 || limit > maxBlockRange {
		limit = maxBlockRange
	}
	count, err := s.CountBlocks()
	if err != nil || count == 0 {
		return nil, err
	}
	var heights []uint64
	if reversed {
		start := int64(count) - 1 - int64(offset)
		for h := start; h >= 0 && uint64(len(heights)) < limit; h-- {
			heights = append(heights, uint64(h))
		}
	} else {
		for h := offset; h < count && uint64(len(heights)) < limit; h++ {
			heights = append(heights, h)
		}
	}
	blocks := make([]*Block, 0, len(heights))
	err = s.db.View(func(txn *badger.Txn) error {
		for _, h := range heights {
			b, err := s.getBlockAtHeightTxn(txn, h)
			if err != nil {
				return err
			}
			if b != nil {
				blocks = append(blocks, b)
			}
		}
		return nil
	})
	return blocks, err
}

// InsertBlock persists a block and, atomically in the same transaction,
// promotes the confirmed-subset of its transactions from unconfirmed and
// inserts the rest as newly confirmed, per spec.md §4.6.2 step 9.
// promoteIDs holds the ids of the block's transactions that were already
// present as unconfirmed.
func (s *Store) InsertBlock(block *Block, promoteIDs map[string]bool) error {
	return s.db.Update(func(txn *badger.Txn) error {
		raw := block.CanonicalJSON()
		if err := txn.Set(keyBlock(block.ID), raw); err != nil {
			return err
		}
		if err := txn.Set(keyBlockHeight(block.Height), []byte(block.ID)); err != nil {
			return err
		}
		if err := txn.Set([]byte(metaLastBlockHeight), be64(block.Height)); err != nil {
			return err
		}

		for _, tx := range block.Transactions {
			if promoteIDs[tx.ID] {
				if err := txn.Delete(keyTxUnconf(tx.ID)); err != nil && err != badger.ErrKeyNotFound {
					return err
				}
			}
			st := storedTx{Tx: tx, Confirmed: true, BlockID: block.ID}
			raw, err := json.Marshal(st)
			if err != nil {
				return err
			}
			if err := txn.Set(keyTxConfirmed(tx.ID), raw); err != nil {
				return err
			}
			seq, err := nextSeq(txn, metaSeqConfirmed)
			if err != nil {
				return err
			}
			if err := txn.Set(keyTxcSeq(seq), []byte(tx.ID)); err != nil {
				return err
			}

			if tx.SenderAddress != nil {
				if err := incrInt64(txn, string(keyAddrDebit(*tx.SenderAddress)), tx.Amount); err != nil {
					return err
				}
				if err := incrInt64(txn, string(keyAddrFee(*tx.SenderAddress)), tx.Fee); err != nil {
					return err
				}
			} else {
				if err := incrInt64(txn, metaTotalSupply, tx.Amount); err != nil {
					return err
				}
				t, perr := time.Parse(txTimeLayout, tx.Time)
				if perr == nil {
					if err := txn.Set(keyCreditTime(t, tx.ID), beInt64(tx.Amount)); err != nil {
						return err
					}
				}
			}
			if err := incrInt64(txn, string(keyAddrCredit(tx.RecipientAddress)), tx.Amount); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConfirmedTx returns a confirmed transaction by id, or nil.
func (s *Store) GetConfirmedTx(id string) (*Transaction, error) {
	var tx *Transaction
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyTxConfirmed(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			var st storedTx
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			tx = st.Tx
			return nil
		})
	})
	return tx, err
}

// GetUnconfirmedTx returns an unconfirmed transaction by id, or nil.
func (s *Store) GetUnconfirmedTx(id string) (*Transaction, error) {
	var tx *Transaction
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyTxUnconf(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			var st storedTx
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			tx = st.Tx
			return nil
		})
	})
	return tx, err
}

func (s *Store) ExistsConfirmedTx(id string) (bool, error) {
	tx, err := s.GetConfirmedTx(id)
	return tx != nil, err
}

func (s *Store) ExistsUnconfirmedTx(id string) (bool, error) {
	tx, err := s.GetUnconfirmedTx(id)
	return tx != nil, err
}

// IDsOfConfirmedTxsIn returns the subset of ids that already exist as
// confirmed transactions.
func (s *Store) IDsOfConfirmedTxsIn(ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			_, err := txn.Get(keyTxConfirmed(id))
			if err == nil {
				out[id] = true
			} else if err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
	return out, err
}

// InsertUnconfirmedTx inserts tx into the unconfirmed set.
func (s *Store) InsertUnconfirmedTx(tx *Transaction) error {
	return s.db.Update(func(txn *badger.Txn) error {
		st := storedTx{Tx: tx, Confirmed: false}
		raw, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if err := txn.Set(keyTxUnconf(tx.ID), raw); err != nil {
			return err
		}
		seq, err := nextSeq(txn, metaSeqUnconfirmed)
		if err != nil {
			return err
		}
		return txn.Set(keyTxuSeq(seq), []byte(tx.ID))
	})
}

const maxUnconfirmedRange = 10_000

func (s *Store) seqRange(prefix func(uint64) []byte, metaSeqKey string, offset, limit uint64, reversed bool, cap uint64) ([]string, error) {
	if limit == 0 || limit > cap {
		limit = cap
	}
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		total, _, err := getInt64(txn, metaSeqKey)
		if err != nil {
			return err
		}
		n := uint64(total)
		if n == 0 {
			return nil
		}
		var seqs []uint64
		if reversed {
			if offset >= n {
				return nil
			}
			start := int64(n) - int64(offset)
			for seq := start; seq >= 1 && uint64(len(seqs)) < limit; seq-- {
				seqs = append(seqs, uint64(seq))
			}
		} else {
			for seq := offset + 1; seq <= n && uint64(len(seqs)) < limit; seq++ {
				seqs = append(seqs, seq)
			}
		}
		for _, seq := range seqs {
			item, err := txn.Get(prefix(seq))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, string(id))
		}
		return nil
	})
	return ids, err
}

// GetTxsRange returns up to limit confirmed transactions in insertion
// order (or reverse), capped at 15,000.
func (s *Store) GetTxsRange(offset, limit uint64, reversed bool) ([]*Transaction, error) {
	ids, err := s.seqRange(keyTxcSeq, metaSeqConfirmed, offset, limit, reversed, maxBlockRange)
	if err != nil {
		return nil, err
	}
	return s.hydrateConfirmed(ids)
}

func (s *Store) CountTxs() (uint64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		v, _, err := getInt64(txn, metaSeqConfirmed)
		n = v
		return err
	})
	return uint64(n), err
}

// GetUnconfirmedTxsRange returns up to limit unconfirmed transactions,
// capped at 10,000. Rows whose sender or recipient address fails the
// shape check are silently skipped (logged), matching
// original_source/jollycoin/blockchain.py's get_unconfirmed_transactions_range.
func (s *Store) GetUnconfirmedTxsRange(offset, limit uint64, reversed bool) ([]*Transaction, error) {
	ids, err := s.seqRange(keyTxuSeq, metaSeqUnconfirmed, offset, limit, reversed, maxUnconfirmedRange)
	if err != nil {
		return nil, err
	}
	txs := make([]*Transaction, 0, len(ids))
	skipped := 0
	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(keyTxUnconf(id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var st storedTx
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &st) }); err != nil {
				return err
			}
			if st.Tx.RecipientAddress != "" && !isValidAddressShape(st.Tx.RecipientAddress) {
				skipped++
				continue
			}
			if st.Tx.SenderAddress != nil && !isValidAddressShape(*st.Tx.SenderAddress) {
				skipped++
				continue
			}
			txs = append(txs, st.Tx)
		}
		return nil
	})
	if skipped > 0 {
		Debug("skipped %d unconfirmed transactions with malformed addresses", skipped)
	}
	return txs, err
}

func (s *Store) CountUnconfirmedTxs() (uint64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		v, _, err := getInt64(txn, metaSeqUnconfirmed)
		n = v
		return err
	})
	return uint64(n), err
}

func (s *Store) hydrateConfirmed(ids []string) ([]*Transaction, error) {
	txs := make([]*Transaction, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(keyTxConfirmed(id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var st storedTx
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &st) }); err != nil {
				return err
			}
			txs = append(txs, st.Tx)
		}
		return nil
	})
	return txs, err
}

// ConfirmedCreditSum, ConfirmedDebitSum, ConfirmedFeeSum return the
// running aggregate for address, 0 if none recorded.
func (s *Store) ConfirmedCreditSum(address string) (int64, error) {
	return s.readInt64(string(keyAddrCredit(address)))
}

func (s *Store) ConfirmedDebitSum(address string) (int64, error) {
	return s.readInt64(string(keyAddrDebit(address)))
}

func (s *Store) ConfirmedFeeSum(address string) (int64, error) {
	return s.readInt64(string(keyAddrFee(address)))
}

func (s *Store) readInt64(key string) (int64, error) {
	var v int64
	err := s.db.View(func(txn *badger.Txn) error {
		val, _, err := getInt64(txn, key)
		v = val
		return err
	})
	return v, err
}

// TotalSupply sums the amount of every confirmed transaction with no
// sender (genesis credits and block rewards alike).
func (s *Store) TotalSupply() (int64, error) {
	return s.readInt64(metaTotalSupply)
}

// SumCreditsSince sums confirmed no-sender transaction amounts with
// time >= since, used for both the named volume windows and the
// hourly/daily/monthly cumulative buckets (spec.md §4.6.3, SPEC_FULL.md §4).
func (s *Store) SumCreditsSince(since time.Time) (int64, error) {
	var sum int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("credit-time:")
		it := txn.NewIterator(opts)
		defer it.Close()

		lowKey := keyCreditTime(since, "")
		for it.Seek(lowKey); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			if err := item.Value(func(v []byte) error {
				sum += decodeInt64(v)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return sum, err
}

// ConfirmedTxsForAddress scans all confirmed transactions and returns
// those where address is sender or recipient, in key (transaction id)
// order. GetAddressInfo calls it on every request, for the count and, when
// asked, the list; bounded implicitly by the size of the confirmed set a
// demo node holds.
func (s *Store) ConfirmedTxsForAddress(address string) ([]*Transaction, error) {
	var all []*Transaction
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("tx-confirmed:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			var st storedTx
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &st) }); err != nil {
				return err
			}
			if st.Tx.RecipientAddress == address || (st.Tx.SenderAddress != nil && *st.Tx.SenderAddress == address) {
				all = append(all, st.Tx)
			}
		}
		return nil
	})
	return all, err
}

// UnconfirmedTxsForAddress mirrors ConfirmedTxsForAddress over the
// unconfirmed set.
func (s *Store) UnconfirmedTxsForAddress(address string) ([]*Transaction, error) {
	var all []*Transaction
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("tx-unconfirmed:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			var st storedTx
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &st) }); err != nil {
				return err
			}
			if st.Tx.RecipientAddress == address || (st.Tx.SenderAddress != nil && *st.Tx.SenderAddress == address) {
				all = append(all, st.Tx)
			}
		}
		return nil
	})
	return all, err
}
