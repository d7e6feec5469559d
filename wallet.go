package main

import (
	"encoding/json"
	"os"
)

// MinerKey is the single on-disk identity a node mines under, replacing
// the teacher's P-256/base58 multi-wallet scheme: spec.md's Non-goals
// exclude general wallet key management, leaving only the one miner
// keypair original_source/jollycoin/node.py persists to miner_key.json.
type MinerKey struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
	Address    string `json:"address"`
}

// LoadOrGenerateMinerKey reads path if present, else generates a fresh
// secp256k1 keypair and writes it there, mirroring node.py's bootstrap:
// "if Config.MINER_ADDRESS is unset, load-or-generate miner_key.json".
func LoadOrGenerateMinerKey(path string) (*MinerKey, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		var k MinerKey
		if err := json.Unmarshal(raw, &k); err != nil {
			return nil, newErr(KindSystemError, "malformed miner key file %s: %v", path, err)
		}
		return &k, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	priv, pub, addr, err := keygen()
	if err != nil {
		return nil, err
	}
	k := &MinerKey{PrivateKey: priv, PublicKey: pub, Address: addr}
	raw, err = json.MarshalIndent(k, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return nil, err
	}
	PrintSuccess("generated new miner key at %s (address %s)", path, addr)
	return k, nil
}
