package main

import "context"

// genesisTime is the fixed timestamp node.py stamps every genesis credit
// with (original_source/jollycoin/node.py::create_genesis_block).
const genesisTime = "2018-06-01T12:00:00.000000"

// genesisCredit is one [address, amount] row of the genesis allocation
// table.
type genesisCredit struct {
	Address string
	Amount  int64
}

// genesisAllocations mirrors node.py's hardcoded 20-address genesis table,
// re-addressed to this node's J+hex scheme; the sum is the same
// 16,000,000,000,000 total supply asserted by the original.
var genesisAllocations = []genesisCredit{
	{"J0000000000000000000000000000000000000000000000000000000000000001", 2_000_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000002", 2_000_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000003", 1_000_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000004", 1_000_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000005", 1_000_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000006", 1_000_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000007", 1_000_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000008", 1_000_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000009", 500_000_000_000},
	{"J000000000000000000000000000000000000000000000000000000000000000a", 500_000_000_000},
	{"J000000000000000000000000000000000000000000000000000000000000000b", 500_000_000_000},
	{"J000000000000000000000000000000000000000000000000000000000000000c", 500_000_000_000},
	{"J000000000000000000000000000000000000000000000000000000000000000d", 500_000_000_000},
	{"J000000000000000000000000000000000000000000000000000000000000000e", 500_000_000_000},
	{"J000000000000000000000000000000000000000000000000000000000000000f", 500_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000010", 500_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000011", 500_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000012", 500_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000013", 500_000_000_000},
	{"J0000000000000000000000000000000000000000000000000000000000000014", 500_000_000_000},
}

// genesisTotalSupply is the sum BuildGenesisBlock requires of
// genesisAllocations; it has the same value as defaultPolicy().MaxSupply.
const genesisTotalSupply = 16_000_000_000_000

// BuildGenesisBlock constructs the unmined height-0 block from
// genesisAllocations, mirroring node.py::create_genesis_block. Each
// allocation becomes a credit-shape transaction stamped with genesisTime;
// spec.md §9 decides genesis addresses ARE shape-checked like any other
// address, so malformed rows fail loudly here rather than silently
// minting to an unspendable address.
func BuildGenesisBlock(difficulty *Policy) (*Block, error) {
	var total int64
	txs := make([]*Transaction, 0, len(genesisAllocations))
	for _, c := range genesisAllocations {
		if !isValidAddressShape(c.Address) {
			return nil, newErr(KindBadAddress, "genesis allocation address %q is malformed", c.Address)
		}
		tx, err := NewCreditTransaction(c.Address, c.Amount, genesisTime)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
		total += c.Amount
	}
	if total != genesisTotalSupply {
		return nil, newErr(KindSystemError, "genesis allocation sums to %d, want %d", total, genesisTotalSupply)
	}

	id, err := randomID()
	if err != nil {
		return nil, err
	}
	block := &Block{
		Version:      blockVersion,
		Height:       0,
		ID:           id,
		PrevHash:     nil,
		Time:         genesisTime,
		Transactions: txs,
		Difficulty:   difficulty.Difficulty,
	}
	return block, nil
}

// GenerateGenesisBlock builds and mines the genesis block, then submits it
// to the engine directly (the genesis block is never fetched from a
// coordinator).
func GenerateGenesisBlock(ctx context.Context, engine *Engine) error {
	block, err := BuildGenesisBlock(engine.Policy())
	if err != nil {
		return err
	}
	if err := block.Mine(ctx); err != nil {
		return err
	}
	if err := engine.AddBlock(block, false); err != nil {
		return err
	}
	PrintSuccess("genesis block created: %s", block.Hash)
	return nil
}
