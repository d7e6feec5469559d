package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrGenerateMinerKeyGeneratesThenReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miner_key.json")

	generated, err := LoadOrGenerateMinerKey(path)
	if err != nil {
		t.Fatalf("LoadOrGenerateMinerKey (generate): %v", err)
	}
	if generated.PrivateKey == "" || generated.PublicKey == "" || !isValidAddressShape(generated.Address) {
		t.Fatalf("generated key looks malformed: %+v", generated)
	}

	reloaded, err := LoadOrGenerateMinerKey(path)
	if err != nil {
		t.Fatalf("LoadOrGenerateMinerKey (reload): %v", err)
	}
	if reloaded.PrivateKey != generated.PrivateKey || reloaded.Address != generated.Address {
		t.Error("reloading miner_key.json produced a different identity than the one generated")
	}
}

func TestLoadOrGenerateMinerKeyRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miner_key.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
	if _, err := LoadOrGenerateMinerKey(path); err == nil {
		t.Error("LoadOrGenerateMinerKey should reject a malformed key file")
	}
}
