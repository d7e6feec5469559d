package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestBindConfigFlagsDefaults(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	getConfig := bindConfigFlags(cmd)

	cfg := getConfig()
	def := defaultConfig()
	if cfg != def {
		t.Errorf("config with no flags set = %+v, want defaults %+v", cfg, def)
	}
}

func TestBindConfigFlagsOverride(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	getConfig := bindConfigFlags(cmd)

	if err := cmd.Flags().Set("port", "9999"); err != nil {
		t.Fatalf("Set port: %v", err)
	}
	if err := cmd.Flags().Set("miner-key-path", "/tmp/custom_key.json"); err != nil {
		t.Fatalf("Set miner-key-path: %v", err)
	}
	if err := cmd.Flags().Set("no-mine", "true"); err != nil {
		t.Fatalf("Set no-mine: %v", err)
	}

	cfg := getConfig()
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.MinerKeyPath != "/tmp/custom_key.json" {
		t.Errorf("MinerKeyPath = %q, want /tmp/custom_key.json", cfg.MinerKeyPath)
	}
	if !cfg.NoMine {
		t.Error("NoMine = false, want true")
	}
}
