package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// ANSI Colors
const (
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
)

var rootCmd = &cobra.Command{
	Use:   "sole-cli",
	Short: "Sole node CLI",
	Long:  `Command line interface for the Sole full node.`,
}

var (
	fromFlag   string
	toFlag     string
	amountFlag int64
	feeFlag    int64
	dryRunFlag bool
)

func Execute() {
	rootCmd.SetHelpFunc(printUsage)
	rootCmd.SetUsageFunc(func(cmd *cobra.Command) error {
		printUsage(cmd, nil)
		return nil
	})

	if len(os.Args) < 2 {
		rootCmd.Help()
		os.Exit(0)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printUsage(cmd *cobra.Command, args []string) {
	fmt.Println(ColorGreen + `
   _____  ____  _      ______
  / ____|/ __ \| |    |  ____|
 | (___ | |  | | |    | |__
  \___ \| |  | | |    |  __|
  ____) | |__| | |____| |____
 |_____/ \____/|______|______|
` + ColorReset)
	fmt.Println(ColorBold + "   Sole Node CLI" + ColorReset)
	fmt.Println("   (c) 2026 Università del Salento")
	fmt.Println()

	fmt.Println(ColorBold + "USAGE:" + ColorReset)
	fmt.Println("  ./sole-cli <resource> <action> [flags]")
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)

	fmt.Fprintln(w, ColorYellow+"1. WALLET (wallet)"+ColorReset)
	fmt.Fprintln(w, "  "+ColorGreen+"create"+ColorReset+"\tGenerates the miner keypair (--miner-key-path for the key file).")
	fmt.Fprintln(w, "  "+ColorGreen+"info"+ColorReset+"\tPrints the miner address and confirmed balance.")
	fmt.Fprintln(w, "")

	fmt.Fprintln(w, ColorYellow+"2. CHAIN (chain)"+ColorReset)
	fmt.Fprintln(w, "  "+ColorGreen+"init"+ColorReset+"\tGenerates and mines the genesis block into an empty store.")
	fmt.Fprintln(w, "  "+ColorGreen+"print"+ColorReset+"\tPrints every block in the local store.")
	fmt.Fprintln(w, "  "+ColorGreen+"reset"+ColorReset+"\t"+ColorRed+"DELETES"+ColorReset+" the local store directory.")
	fmt.Fprintln(w, "")

	fmt.Fprintln(w, ColorYellow+"3. NODE (node)"+ColorReset)
	fmt.Fprintln(w, "  "+ColorGreen+"start"+ColorReset+"\tRuns the API server plus sync and mining loops.")
	fmt.Fprintln(w, "\t"+ColorCyan+"Flags:"+ColorReset+" --host, --port, --store, --coordinator, --no-sync, --no-mine, --miner-address")
	fmt.Fprintln(w, "")

	fmt.Fprintln(w, ColorYellow+"4. TRANSACTIONS (tx)"+ColorReset)
	fmt.Fprintln(w, "  "+ColorGreen+"send"+ColorReset+"\tSigns and submits a transfer to the coordinator.")
	fmt.Fprintln(w, "\t"+ColorCyan+"Flags:"+ColorReset+" --from, --to, --amount, --fee, --coordinator, --dry-run")
	fmt.Fprintln(w, "")

	w.Flush()
	fmt.Println()
}

func init() {
	var walletCmd = &cobra.Command{Use: "wallet", Short: "Manage the miner identity"}
	rootCmd.AddCommand(walletCmd)

	var walletCreateCmd = &cobra.Command{Use: "create", Short: "Generate the miner keypair", Run: runWalletCreate}
	getConfigFn := bindConfigFlags(walletCreateCmd)
	walletCmd.AddCommand(walletCreateCmd)
	walletCreateConfig = getConfigFn

	var walletInfoCmd = &cobra.Command{Use: "info", Short: "Print the miner address and balance", Run: runWalletInfo}
	walletInfoConfig = bindConfigFlags(walletInfoCmd)
	walletCmd.AddCommand(walletInfoCmd)

	var chainCmd = &cobra.Command{Use: "chain", Short: "Manage the local store"}
	rootCmd.AddCommand(chainCmd)

	var chainInitCmd = &cobra.Command{Use: "init", Short: "Generate the genesis block", Run: runChainInit}
	chainInitConfig = bindConfigFlags(chainInitCmd)
	chainCmd.AddCommand(chainInitCmd)

	var chainPrintCmd = &cobra.Command{Use: "print", Short: "Print all blocks", Run: runChainPrint}
	chainPrintConfig = bindConfigFlags(chainPrintCmd)
	chainCmd.AddCommand(chainPrintCmd)

	var chainResetCmd = &cobra.Command{Use: "reset", Short: "Delete the local store", Run: runChainReset}
	chainResetConfig = bindConfigFlags(chainResetCmd)
	chainCmd.AddCommand(chainResetCmd)

	var nodeCmd = &cobra.Command{Use: "node", Short: "Run the node"}
	rootCmd.AddCommand(nodeCmd)

	var nodeStartCmd = &cobra.Command{Use: "start", Short: "Start the API server and background loops", Run: runNodeStart}
	nodeStartConfig = bindConfigFlags(nodeStartCmd)
	nodeCmd.AddCommand(nodeStartCmd)

	var txCmd = &cobra.Command{Use: "tx", Short: "Manage transactions"}
	rootCmd.AddCommand(txCmd)

	var txSendCmd = &cobra.Command{Use: "send", Short: "Sign and submit a transfer", Run: runTxSend}
	txSendConfig = bindConfigFlags(txSendCmd)
	txSendCmd.Flags().StringVar(&fromFlag, "from", "", "sender address (must match the miner key)")
	txSendCmd.Flags().StringVar(&toFlag, "to", "", "recipient address")
	txSendCmd.Flags().Int64Var(&amountFlag, "amount", 0, "amount to send")
	txSendCmd.Flags().Int64Var(&feeFlag, "fee", 0, "fee offered")
	txSendCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "print the signed transaction without submitting it")
	txSendCmd.MarkFlagRequired("to")
	txSendCmd.MarkFlagRequired("amount")
	txCmd.AddCommand(txSendCmd)
}

// Each subcommand owns its own bound Config getter, set by init() above;
// cobra.Command.Run callbacks take no context of their own.
var (
	walletCreateConfig func() Config
	walletInfoConfig   func() Config
	chainInitConfig    func() Config
	chainPrintConfig   func() Config
	chainResetConfig   func() Config
	nodeStartConfig    func() Config
	txSendConfig       func() Config
)

func runWalletCreate(cmd *cobra.Command, args []string) {
	cfg := walletCreateConfig()
	key, err := LoadOrGenerateMinerKey(cfg.MinerKeyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Printf("miner address: %s\n", key.Address)
}

func runWalletInfo(cmd *cobra.Command, args []string) {
	cfg := walletInfoConfig()
	key, err := LoadOrGenerateMinerKey(cfg.MinerKeyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	store, err := OpenStore(cfg.Store)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error opening store:", err)
		os.Exit(1)
	}
	defer store.Close()
	engine := NewEngine(store)
	balance, err := engine.ConfirmedBalance(key.Address)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Printf("address: %s\nconfirmed balance: %d\n", key.Address, balance)
}

func runChainInit(cmd *cobra.Command, args []string) {
	cfg := chainInitConfig()
	store, err := OpenStore(cfg.Store)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error opening store:", err)
		os.Exit(1)
	}
	defer store.Close()
	engine := NewEngine(store)

	if last, _ := engine.GetLastBlock(); last != nil {
		fmt.Println("store already has a chain; refusing to overwrite the genesis block.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := GenerateGenesisBlock(ctx, engine); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runChainPrint(cmd *cobra.Command, args []string) {
	cfg := chainPrintConfig()
	store, err := OpenStore(cfg.Store)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error opening store:", err)
		os.Exit(1)
	}
	defer store.Close()
	engine := NewEngine(store)

	last, err := engine.GetLastBlock()
	if err != nil || last == nil {
		fmt.Println("store is empty.")
		return
	}
	for h := int64(last.Height); h >= 0; h-- {
		blocks, _, err := engine.GetBlocksRange(uint64(h), uint64(h)+1, false)
		if err != nil || len(blocks) == 0 {
			break
		}
		block := blocks[0]
		fmt.Printf("=== Block %d ===\n", block.Height)
		fmt.Printf("Hash: %s\n", block.Hash)
		if block.PrevHash != nil {
			fmt.Printf("Prev: %s\n", *block.PrevHash)
		}
		fmt.Printf("Transactions: %d\n", len(block.Transactions))
		for _, tx := range block.Transactions {
			fmt.Printf("  %s -> %s : %d (fee %d)\n", senderLabel(tx), tx.RecipientAddress, tx.Amount, tx.Fee)
		}
		fmt.Println()
	}
}

func senderLabel(tx *Transaction) string {
	if tx.SenderAddress == nil {
		return "<coinbase>"
	}
	return *tx.SenderAddress
}

func runChainReset(cmd *cobra.Command, args []string) {
	cfg := chainResetConfig()
	fmt.Printf("Are you sure you want to delete %s? [y/N]: ", cfg.Store)
	var response string
	fmt.Scanln(&response)
	if response != "y" && response != "Y" && response != "yes" {
		fmt.Println("cancelled.")
		return
	}
	if err := os.RemoveAll(cfg.Store); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println("store deleted.")
}

func runNodeStart(cmd *cobra.Command, args []string) {
	cfg := nodeStartConfig()

	store, err := OpenStore(cfg.Store)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error opening store:", err)
		os.Exit(1)
	}
	engine := NewEngine(store)

	minerAddress := cfg.MinerAddress
	if minerAddress == "" {
		key, err := LoadOrGenerateMinerKey(cfg.MinerKeyPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error loading miner key:", err)
			os.Exit(1)
		}
		minerAddress = key.Address
	}

	if cfg.GenerateGenesis {
		if last, _ := engine.GetLastBlock(); last == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if err := GenerateGenesisBlock(ctx, engine); err != nil {
				Error("node: could not generate genesis block: %v", err)
			}
			cancel()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	if !cfg.NoSync {
		go SyncDifficulty(ctx, engine, cfg.Coordinator)
		go SyncBlockchain(ctx, engine, cfg.Coordinator)
	}
	if !cfg.NoMine {
		go MineBlocks(ctx, engine, cfg.Coordinator, minerAddress)
	}

	srv := StartRestServer(engine, cfg.Host, cfg.Port)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	Info("node: shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = store.Close()
	PrintSuccess("node shut down cleanly")
}

func runTxSend(cmd *cobra.Command, args []string) {
	cfg := txSendConfig()

	key, err := LoadOrGenerateMinerKey(cfg.MinerKeyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error loading key:", err)
		os.Exit(1)
	}
	sender := fromFlag
	if sender == "" {
		sender = key.Address
	}
	if sender != key.Address {
		fmt.Fprintln(os.Stderr, "error: --from must match the local miner key's address ("+key.Address+")")
		os.Exit(1)
	}

	tx, err := NewTransferTransaction(sender, key.PublicKey, toFlag, amountFlag, feeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		fmt.Fprintln(os.Stderr, "error signing transaction:", err)
		os.Exit(1)
	}

	if dryRunFlag {
		fmt.Printf("%s\n", tx.CanonicalJSON())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client := &http.Client{Timeout: 15 * time.Second}
	var resp httpStatusEnvelope
	err = postJSON(ctx, client, cfg.Coordinator+"/v1/unconfirmed-transaction/add", map[string]interface{}{"transaction": tx}, &resp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error submitting transaction:", err)
		os.Exit(1)
	}
	if resp.Status != "success" {
		fmt.Fprintln(os.Stderr, "coordinator rejected transaction:", resp.Message)
		os.Exit(1)
	}
	fmt.Printf("submitted transaction %s\n", tx.ID)
}
