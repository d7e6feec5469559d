package main

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"
)

// Policy holds the process-wide constants the engine enforces. Difficulty
// is the only field mutated after start (by the sync loop's difficulty
// poller, spec.md §4.6.4); the whole struct is swapped atomically rather
// than mutated in place, per spec.md §9 "shared mutable state".
type Policy struct {
	Difficulty   *big.Int
	RewardAmount int64
	MinFee       int64
	MaxSupply    int64
}

func defaultPolicy() *Policy {
	// 256-bit target with the top byte zeroed gives a find-a-block-every-
	// few-seconds difficulty on a single CPU core, suitable for a demo
	// node; the sync loop overwrites this from the coordinator at start.
	target := new(big.Int).Lsh(big.NewInt(1), 248)
	return &Policy{
		Difficulty:   target,
		RewardAmount: 50_00000000,
		MinFee:       100,
		MaxSupply:    16_000_000_000_000,
	}
}

// Engine is the chain engine (C6): it owns the single serialised critical
// section (spec.md §5) over the Store (C5) and the mutable Policy cell,
// and implements add_unconfirmed_transaction / add_block / the aggregate
// queries. Grounded on nicolocarcagni-sole/blockchain.go's
// `Blockchain{ Mux sync.Mutex }` shape.
type Engine struct {
	store  *Store
	mu     sync.Mutex
	policy atomic.Pointer[Policy]
}

func NewEngine(store *Store) *Engine {
	e := &Engine{store: store}
	e.policy.Store(defaultPolicy())
	return e
}

// Policy returns the current policy snapshot. Safe for concurrent use
// without holding the engine lock (spec.md §4.6.4: readers observe a
// consistent value per operation).
func (e *Engine) Policy() *Policy {
	return e.policy.Load()
}

// SetDifficulty installs a new difficulty, copy-on-write, called by the
// sync loop's difficulty poller (C7).
func (e *Engine) SetDifficulty(d *big.Int) {
	cur := e.policy.Load()
	next := &Policy{Difficulty: d, RewardAmount: cur.RewardAmount, MinFee: cur.MinFee, MaxSupply: cur.MaxSupply}
	e.policy.Store(next)
}

// AddUnconfirmedTransaction implements spec.md §4.6.1, evaluated in
// order, each failure a distinct error kind.
func (e *Engine) AddUnconfirmedTransaction(tx *Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if tx.Amount < 0 {
		return newErr(KindNegativeAmount, "amount %d is negative", tx.Amount)
	}
	if tx.Fee < e.Policy().MinFee {
		return newErr(KindFeeTooLow, "fee %d below minimum %d", tx.Fee, e.Policy().MinFee)
	}
	if !tx.Verify() {
		return newErr(KindInvalidSignature, "transaction %s failed verification", tx.ID)
	}
	confirmed, err := e.store.ExistsConfirmedTx(tx.ID)
	if err != nil {
		return newErr(KindSystemError, "%v", err)
	}
	if confirmed {
		return newErr(KindAlreadyConfirmed, "transaction %s already confirmed", tx.ID)
	}
	pending, err := e.store.ExistsUnconfirmedTx(tx.ID)
	if err != nil {
		return newErr(KindSystemError, "%v", err)
	}
	if pending {
		return newErr(KindAlreadyPending, "transaction %s already pending", tx.ID)
	}
	if err := e.store.InsertUnconfirmedTx(tx); err != nil {
		return newErr(KindSystemError, "%v", err)
	}
	metricTxAdmitted.Inc()
	return nil
}

// AddBlock implements spec.md §4.6.2. checkDifficulty is false for blocks
// arriving through the sync loop (C7) and for the locally generated genesis
// block, and true for blocks from the standalone mining loop or submitted
// through the API.
func (e *Engine) AddBlock(block *Block, checkDifficulty bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addBlockLocked(block, checkDifficulty)
}

func (e *Engine) addBlockLocked(block *Block, checkDifficulty bool) error {
	policy := e.Policy()

	// 1. difficulty gate
	if checkDifficulty && block.Difficulty.Cmp(policy.Difficulty) != 0 {
		metricTxRejected.WithLabelValues(string(KindDifficultyMismatch)).Inc()
		return newErr(KindDifficultyMismatch, "block difficulty %s != policy difficulty %s", block.Difficulty, policy.Difficulty)
	}

	// 2. structural self-verification (hash, merkle, PoW)
	if err := block.VerifyStrict(); err != nil {
		metricTxRejected.WithLabelValues(string(KindBlockInvalid)).Inc()
		return newErr(KindBlockInvalid, "%v", err)
	}

	isGenesis := block.Height == 0

	if !isGenesis {
		// 3. reward tx structural check
		if len(block.Transactions) == 0 {
			return newErr(KindBadRewardTx, "block has no transactions")
		}
		reward := block.Transactions[0]
		var otherFees int64
		for _, tx := range block.Transactions[1:] {
			otherFees += tx.Fee
		}
		if err := checkRewardTxShape(reward, policy.RewardAmount, otherFees); err != nil {
			return err
		}

		// 4. structural checks on transfer txs
		for _, tx := range block.Transactions[1:] {
			if err := checkTransferTxShape(tx, policy.MinFee); err != nil {
				return err
			}
		}
	}

	// 5. uniqueness of id/height
	if existing, err := e.store.GetBlockByID(block.ID); err != nil {
		return newErr(KindSystemError, "%v", err)
	} else if existing != nil {
		return newErr(KindBlockExists, "block id %s already exists", block.ID)
	}
	if existing, err := e.store.GetBlockAtHeight(block.Height); err != nil {
		return newErr(KindSystemError, "%v", err)
	} else if existing != nil {
		return newErr(KindBlockExists, "block height %d already exists", block.Height)
	}

	var prevBlock *Block
	if !isGenesis {
		// 6. parent existence + hash link
		p, err := e.store.GetBlockAtHeight(block.Height - 1)
		if err != nil {
			return newErr(KindSystemError, "%v", err)
		}
		if p == nil {
			return newErr(KindMissingParent, "no block at height %d", block.Height-1)
		}
		if block.PrevHash == nil || *block.PrevHash != p.Hash {
			return newErr(KindPrevHashMismatch, "prev_hash does not match block at height %d", block.Height-1)
		}
		prevBlock = p
	}

	// 7. double-spend: no tx id (including reward/genesis) already confirmed
	ids := make([]string, len(block.Transactions))
	for i, tx := range block.Transactions {
		ids[i] = tx.ID
	}
	alreadyConfirmed, err := e.store.IDsOfConfirmedTxsIn(ids)
	if err != nil {
		return newErr(KindSystemError, "%v", err)
	}
	if len(alreadyConfirmed) > 0 {
		return newErr(KindDoubleSpend, "transaction already confirmed in this chain")
	}

	if !isGenesis {
		// 8. solvency: aggregate amount+fee per sender over txs[1:]
		needed := make(map[string]int64)
		for _, tx := range block.Transactions[1:] {
			needed[*tx.SenderAddress] += tx.Amount + tx.Fee
		}
		for addr, amount := range needed {
			balance, err := e.confirmedBalanceLocked(addr)
			if err != nil {
				return newErr(KindSystemError, "%v", err)
			}
			if balance < amount {
				return newErr(KindInsufficientFunds, "address %s needs %d, has %d", addr, amount, balance)
			}
		}
	}
	_ = prevBlock

	// 9. persist: insert block; promote matching unconfirmed; insert the rest
	promoteIDs := make(map[string]bool)
	for _, tx := range block.Transactions {
		pending, err := e.store.ExistsUnconfirmedTx(tx.ID)
		if err != nil {
			return newErr(KindSystemError, "%v", err)
		}
		if pending {
			promoteIDs[tx.ID] = true
		}
	}
	if err := e.store.InsertBlock(block, promoteIDs); err != nil {
		return newErr(KindSystemError, "%v", err)
	}
	metricBlocksAdded.Inc()
	metricChainHeight.Set(float64(block.Height))
	return nil
}

func checkRewardTxShape(tx *Transaction, rewardAmount, otherFees int64) error {
	if tx.Version != txVersion {
		return newErr(KindBadRewardTx, "unexpected version")
	}
	if len(tx.ID) != 64 {
		return newErr(KindBadRewardTx, "id must be 64 hex characters")
	}
	if _, err := time.Parse(txTimeLayout, tx.Time); err != nil {
		return newErr(KindBadRewardTx, "unparseable time")
	}
	if !tx.isCreditShape() {
		return newErr(KindBadRewardTx, "reward transaction must have no sender/pubkey/signature")
	}
	if !isValidAddressShape(tx.RecipientAddress) {
		return newErr(KindBadRewardTx, "recipient address malformed")
	}
	if tx.Fee != 0 {
		return newErr(KindBadRewardTx, "reward transaction fee must be zero")
	}
	if tx.Amount < 0 || tx.Amount > rewardAmount+otherFees {
		return newErr(KindBadRewardTx, "reward amount %d exceeds ceiling %d", tx.Amount, rewardAmount+otherFees)
	}
	return nil
}

func checkTransferTxShape(tx *Transaction, minFee int64) error {
	if tx.Version != txVersion {
		return newErr(KindBadTxFields, "unexpected version")
	}
	if len(tx.ID) != 64 {
		return newErr(KindBadTxFields, "id must be 64 hex characters")
	}
	if _, err := time.Parse(txTimeLayout, tx.Time); err != nil {
		return newErr(KindBadTxFields, "unparseable time")
	}
	if tx.SenderAddress == nil || !isValidAddressShape(*tx.SenderAddress) {
		return newErr(KindBadAddress, "sender address malformed")
	}
	if !isValidAddressShape(tx.RecipientAddress) {
		return newErr(KindBadAddress, "recipient address malformed")
	}
	if tx.Amount < 0 {
		return newErr(KindNegativeAmount, "amount %d is negative", tx.Amount)
	}
	if tx.Fee < minFee {
		return newErr(KindFeeTooLow, "fee %d below minimum %d", tx.Fee, minFee)
	}
	return nil
}

// confirmedBalanceLocked computes credits-debits-fees for addr. Caller
// must already hold e.mu.
func (e *Engine) confirmedBalanceLocked(addr string) (int64, error) {
	credit, err := e.store.ConfirmedCreditSum(addr)
	if err != nil {
		return 0, err
	}
	debit, err := e.store.ConfirmedDebitSum(addr)
	if err != nil {
		return 0, err
	}
	fee, err := e.store.ConfirmedFeeSum(addr)
	if err != nil {
		return 0, err
	}
	return credit - debit - fee, nil
}

// ConfirmedBalance is the public, lock-acquiring counterpart, used by the
// mining loop (C8) to check a prospective sender's funds.
func (e *Engine) ConfirmedBalance(addr string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.confirmedBalanceLocked(addr)
}

// AddressInfo is the full shape returned by get_address_info (spec.md
// §4.6.3, SPEC_FULL.md §4.8 — matching original_source/jollycoin's
// combined confirmed+unconfirmed+total response).
type AddressInfo struct {
	Address                  string         `json:"address"`
	ConfirmedTotalReceived   int64          `json:"confirmed_total_received"`
	ConfirmedTotalSent       int64          `json:"confirmed_total_sent"`
	ConfirmedTotalFee        int64          `json:"confirmed_total_fee"`
	ConfirmedBalance         int64          `json:"confirmed_balance"`
	UnconfirmedTotalReceived int64          `json:"unconfirmed_total_received"`
	UnconfirmedTotalSent     int64          `json:"unconfirmed_total_sent"`
	UnconfirmedTotalFee      int64          `json:"unconfirmed_total_fee"`
	UnconfirmedBalance       int64          `json:"unconfirmed_balance"`
	TotalReceived            int64          `json:"total_received"`
	TotalSent                int64          `json:"total_sent"`
	TotalFee                 int64          `json:"total_fee"`
	Balance                  int64          `json:"balance"`
	NConfirmedTransactions   int            `json:"n_confirmed_transactions"`
	NUnconfirmedTransactions int            `json:"n_unconfirmed_transactions"`
	ConfirmedTransactions    []*Transaction `json:"confirmed_transactions,omitempty"`
	UnconfirmedTransactions  []*Transaction `json:"unconfirmed_transactions,omitempty"`
}

// unconfirmedWindow is the lookback spec.md §9 directs be kept as a
// query-only filter, never a purge.
const unconfirmedWindow = 24 * time.Hour

// GetAddressInfo implements spec.md §4.6.3. withTransactions controls
// whether the (potentially large) tx lists are populated, letting the API
// layer request just the counts.
func (e *Engine) GetAddressInfo(address string, withTransactions bool) (*AddressInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := &AddressInfo{Address: address}

	credit, err := e.store.ConfirmedCreditSum(address)
	if err != nil {
		return nil, err
	}
	debit, err := e.store.ConfirmedDebitSum(address)
	if err != nil {
		return nil, err
	}
	fee, err := e.store.ConfirmedFeeSum(address)
	if err != nil {
		return nil, err
	}
	info.ConfirmedTotalReceived = credit
	info.ConfirmedTotalSent = debit
	info.ConfirmedTotalFee = fee
	info.ConfirmedBalance = credit - debit - fee

	unconfirmed, err := e.store.UnconfirmedTxsForAddress(address)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-unconfirmedWindow)
	for _, tx := range unconfirmed {
		if tx.Amount < 0 || tx.Fee < 0 {
			continue
		}
		t, perr := time.Parse(txTimeLayout, tx.Time)
		if perr != nil || t.Before(cutoff) {
			continue
		}
		if tx.RecipientAddress == address {
			info.UnconfirmedTotalReceived += tx.Amount
		}
		if tx.SenderAddress != nil && *tx.SenderAddress == address {
			info.UnconfirmedTotalSent += tx.Amount
			info.UnconfirmedTotalFee += tx.Fee
		}
	}
	info.UnconfirmedBalance = info.UnconfirmedTotalReceived - info.UnconfirmedTotalSent - info.UnconfirmedTotalFee

	info.TotalReceived = info.ConfirmedTotalReceived + info.UnconfirmedTotalReceived
	info.TotalSent = info.ConfirmedTotalSent + info.UnconfirmedTotalSent
	info.TotalFee = info.ConfirmedTotalFee + info.UnconfirmedTotalFee
	info.Balance = info.ConfirmedBalance + info.UnconfirmedBalance

	confirmed, err := e.store.ConfirmedTxsForAddress(address)
	if err != nil {
		return nil, err
	}
	info.NConfirmedTransactions = len(confirmed)
	info.NUnconfirmedTransactions = len(unconfirmed)
	if withTransactions {
		info.ConfirmedTransactions = confirmed
		info.UnconfirmedTransactions = unconfirmed
	}

	return info, nil
}

func (e *Engine) GetTransaction(id string) (*Transaction, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.store.GetConfirmedTx(id)
	if err != nil {
		return nil, false, err
	}
	return tx, tx != nil, nil
}

func (e *Engine) GetTransactionsRange(start, end uint64, reversed bool) ([]*Transaction, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	limit := uint64(0)
	if end > start {
		limit = end - start
	}
	txs, err := e.store.GetTxsRange(start, limit, reversed)
	if err != nil {
		return nil, 0, err
	}
	n, err := e.store.CountTxs()
	return txs, n, err
}

func (e *Engine) GetUnconfirmedTransaction(id string) (*Transaction, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.store.GetUnconfirmedTx(id)
	if err != nil {
		return nil, false, err
	}
	return tx, tx != nil, nil
}

func (e *Engine) GetUnconfirmedTransactionsRange(start, end uint64, reversed bool) ([]*Transaction, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	limit := uint64(0)
	if end > start {
		limit = end - start
	}
	txs, err := e.store.GetUnconfirmedTxsRange(start, limit, reversed)
	if err != nil {
		return nil, 0, err
	}
	n, err := e.store.CountUnconfirmedTxs()
	return txs, n, err
}

func (e *Engine) GetBlock(id string) (*Block, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.store.GetBlockByID(id)
	if err != nil {
		return nil, false, err
	}
	assertBlockTransfersVerify(b)
	return b, b != nil, nil
}

func (e *Engine) GetLastBlock() (*Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.store.GetLastBlock()
	assertBlockTransfersVerify(b)
	return b, err
}

func (e *Engine) GetBlocksRange(start, end uint64, reversed bool) ([]*Block, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	limit := uint64(0)
	if end > start {
		limit = end - start
	}
	blocks, err := e.store.GetBlocksRange(start, limit, reversed)
	if err != nil {
		return nil, 0, err
	}
	for _, b := range blocks {
		assertBlockTransfersVerify(b)
	}
	n, err := e.store.CountBlocks()
	return blocks, n, err
}

// assertBlockTransfersVerify re-verifies the signature of every ordinary
// transfer transaction in an already-admitted block. Genesis credits
// (height 0) and a block's reward transaction (index 0 of height>0) have
// no signature by construction and are skipped. This never rejects a
// read: the chain is already admitted, so a mismatch only gets logged.
func assertBlockTransfersVerify(b *Block) {
	if b == nil {
		return
	}
	for i, tx := range b.Transactions {
		if b.Height == 0 || i == 0 {
			continue
		}
		if tx.SenderAddress == nil {
			continue
		}
		if !tx.Verify() {
			Warn("read-time re-verify failed for tx %s in block %s (height %d)", tx.ID, b.ID, b.Height)
		}
	}
}

// TotalSupply sums confirmed no-sender transaction amounts (genesis
// credits and block rewards).
func (e *Engine) TotalSupply() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.TotalSupply()
}

// volumeWindow is a single named window reported by /v1/stats.
type volumeWindow struct {
	Label string
	Since time.Duration
}

// volumeWindows is the exact 20-entry set confirmed against
// original_source/jollycoin/blockchain.py::get_volume.
var volumeWindows = []volumeWindow{
	{"1h", time.Hour}, {"8h", 8 * time.Hour}, {"12h", 12 * time.Hour},
	{"24h", 24 * time.Hour}, {"1d", 24 * time.Hour}, {"2d", 48 * time.Hour},
	{"3d", 72 * time.Hour}, {"5d", 5 * 24 * time.Hour}, {"7d", 7 * 24 * time.Hour},
	{"10d", 10 * 24 * time.Hour}, {"15d", 15 * 24 * time.Hour}, {"30d", 30 * 24 * time.Hour},
	{"1m", 30 * 24 * time.Hour}, {"2m", 60 * 24 * time.Hour}, {"3m", 90 * 24 * time.Hour},
	{"6m", 180 * 24 * time.Hour}, {"12m", 365 * 24 * time.Hour}, {"1y", 365 * 24 * time.Hour},
	{"2y", 2 * 365 * 24 * time.Hour}, {"3y", 3 * 365 * 24 * time.Hour},
}

// Volume returns the named-window volume map for /v1/stats.
func (e *Engine) Volume() (map[string]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now().UTC()
	out := make(map[string]int64, len(volumeWindows))
	for _, w := range volumeWindows {
		sum, err := e.store.SumCreditsSince(now.Add(-w.Since))
		if err != nil {
			return nil, err
		}
		out[w.Label] = sum
	}
	return out, nil
}

// bucketSeries returns n cumulative buckets, bucket i = sum of credits in
// the last (i+1)*unit, per SPEC_FULL.md §4's "cumulative-from-bucket"
// clarification of original_source/jollycoin/blockchain.py.
func (e *Engine) bucketSeries(unit time.Duration, n int) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now().UTC()
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		since := now.Add(-time.Duration(i+1) * unit)
		sum, err := e.store.SumCreditsSince(since)
		if err != nil {
			return nil, err
		}
		out[i] = sum
	}
	return out, nil
}

func (e *Engine) HourlyVolume() ([]int64, error) { return e.bucketSeries(time.Hour, 24) }
func (e *Engine) DailyVolume() ([]int64, error)  { return e.bucketSeries(24*time.Hour, 32) }
func (e *Engine) MonthlyVolume() ([]int64, error) {
	return e.bucketSeries(30*24*time.Hour, 36)
}
