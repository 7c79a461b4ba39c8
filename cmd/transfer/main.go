// Package main is a command-line front end for one wallet session.
//
// Usage:
//
//	transfer [flags] holdings
//	transfer [flags] send --asset <id> [--from <account>] --to <address> --amount <n> [--create-account]
//	transfer [flags] history [--limit n]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"solana-transfer-desk/internal/discovery"
	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/metadata"
	"solana-transfer-desk/internal/registry"
	"solana-transfer-desk/internal/solana"
	"solana-transfer-desk/internal/storage"
	"solana-transfer-desk/internal/storage/memory"
	"solana-transfer-desk/internal/storage/migrations"
	pgstore "solana-transfer-desk/internal/storage/postgres"
	"solana-transfer-desk/internal/transfer"
	"solana-transfer-desk/internal/wallet"
)

func main() {
	clusterName := flag.String("cluster", envOr("SOLANA_CLUSTER", string(domain.DefaultCluster)), "Solana cluster (mainnet-beta, testnet, devnet)")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint (default: public cluster endpoint)")
	privateKey := flag.String("private-key", os.Getenv("WALLET_PRIVATE_KEY"), "Wallet key: base58 string or solana-keygen JSON file")
	tokenList := flag.String("token-list", envOr("TOKEN_LIST_SOURCE", registry.DefaultSource), "Token list file path or URL")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for the attempt journal and metadata (default: in-memory)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall command timeout")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	logOut := io.Discard
	if *verbose {
		logOut = os.Stderr
	}

	cluster, err := domain.ParseCluster(*clusterName)
	if err != nil {
		fatalf("--cluster: %v", err)
	}
	if *privateKey == "" {
		fatalf("--private-key is required")
	}
	if *rpcEndpoint == "" {
		*rpcEndpoint = cluster.RPCEndpoint()
	}

	key, err := wallet.LoadPrivateKey(*privateKey)
	if err != nil {
		fatalf("load wallet key: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	attempts, tokenMeta, cleanup, err := createStores(ctx, *postgresDSN)
	if err != nil {
		fatalf("create stores: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	w := wallet.NewKeypair(key, rpc,
		wallet.WithConfirmer(solana.NewPollingConfirmer(rpc, 0)),
		wallet.WithLogger(log.New(logOut, "[wallet] ", log.LstdFlags)),
	)

	tokens := registry.New(cluster)
	if err := tokens.Load(ctx, *tokenList); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: token list unavailable: %v\n", err)
	}
	onchain, err := metadata.NewSource(rpc, 0, metadata.WithStore(tokenMeta))
	if err != nil {
		fatalf("create metadata source: %v", err)
	}

	tracker := discovery.NewTracker(
		discovery.NewDiscoverer(rpc, onchain, tokens, log.New(logOut, "[discovery] ", log.LstdFlags)),
		discovery.NewBook(),
	)
	session := transfer.NewSession(w, tracker,
		transfer.NewBuilder(rpc, w, cluster, log.New(logOut, "[builder] ", log.LstdFlags)),
		transfer.WithAttemptStore(attempts),
		transfer.WithLogger(log.New(logOut, "[transfer] ", log.LstdFlags)),
	)

	args := flag.Args()
	switch args[0] {
	case "holdings":
		err = runHoldings(ctx, session)
	case "send":
		err = runSend(ctx, session, args[1:])
	case "history":
		err = runHistory(ctx, session, args[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatalf("%s: %v", args[0], err)
	}
}

func runHoldings(ctx context.Context, session *transfer.Session) error {
	if err := waitForHoldings(ctx, session); err != nil {
		return err
	}

	fmt.Printf("Wallet %s\n\n", session.Identity())
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tACCOUNT\tBALANCE\tLABEL")
	for _, h := range session.Holdings() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.AssetID, h.OwnerAccountAddress, h.Balance.String(), h.Label())
	}
	return tw.Flush()
}

func runSend(ctx context.Context, session *transfer.Session, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	asset := fs.String("asset", domain.NativeAssetID, "Asset id: a mint address, or "+domain.NativeAssetID+" for SOL")
	from := fs.String("from", "", "Holding account (default: the only holding of --asset)")
	to := fs.String("to", "", "Recipient wallet address")
	amount := fs.String("amount", "", "Amount in whole units")
	createAccount := fs.Bool("create-account", false, "Create the recipient token account when it is missing")
	fs.Parse(args)

	if *to == "" || *amount == "" {
		return errors.New("--to and --amount are required")
	}
	if err := waitForHoldings(ctx, session); err != nil {
		return err
	}

	key, err := holdingKey(session, *asset, *from)
	if err != nil {
		return err
	}

	receipt, err := session.Submit(ctx, key, *to, *amount)
	if err != nil {
		return err
	}
	if !receipt.Validation.OK() {
		return fmt.Errorf("invalid transfer: address valid=%t, amount valid=%t", receipt.Validation.AddressValid, receipt.Validation.AmountValid)
	}
	if receipt.Result != nil {
		printResult("Transfer", receipt.Result.Reference, receipt.Result.ExplorerLink)
		return nil
	}

	initialized, ok := receipt.State.(transfer.Initialized)
	if !ok {
		return fmt.Errorf("unexpected state %s", receipt.State.Phase())
	}
	if !*createAccount {
		session.Close()
		return fmt.Errorf("recipient has no token account %s; rerun with --create-account", initialized.RecipientAccount)
	}

	fmt.Printf("Creating recipient account %s\n", initialized.RecipientAccount)
	receipt, err = session.ConfirmCreate(ctx)
	if err != nil {
		return err
	}
	if st, ok := receipt.State.(transfer.Success); ok {
		printResult("Account creation", st.CreationRef, st.ExplorerLink)
	}

	receipt, err = session.CompleteTransfer(ctx)
	if err != nil {
		return err
	}
	if st, ok := receipt.State.(transfer.Completed); ok {
		printResult("Transfer", st.TransferRef, st.ExplorerLink)
	}
	session.Close()
	return nil
}

func runHistory(ctx context.Context, session *transfer.Session, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of entries")
	fs.Parse(args)

	records, err := session.Attempts(ctx, *limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No attempts recorded")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTEP\tOUTCOME\tSUMMARY")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", time.UnixMilli(r.CreatedAt).Format(time.RFC3339), r.Step, r.Outcome, r.Summary())
	}
	return tw.Flush()
}

// waitForHoldings waits for the first discovery of the wallet's holdings.
func waitForHoldings(ctx context.Context, session *transfer.Session) error {
	select {
	case <-session.SyncIdentity(ctx):
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func holdingKey(session *transfer.Session, asset, from string) (domain.HoldingKey, error) {
	var matches []domain.Holding
	for _, h := range session.Holdings() {
		if h.AssetID != asset {
			continue
		}
		if from == "" || h.OwnerAccountAddress == from {
			matches = append(matches, h)
		}
	}

	switch len(matches) {
	case 0:
		return domain.HoldingKey{}, fmt.Errorf("no holding of %s", asset)
	case 1:
		return matches[0].Key(), nil
	default:
		return domain.HoldingKey{}, fmt.Errorf("%d accounts hold %s; choose one with --from", len(matches), asset)
	}
}

// createStores returns the attempt journal and metadata stores, in-memory without a DSN.
func createStores(ctx context.Context, postgresDSN string) (storage.AttemptStore, storage.TokenMetadataStore, func(), error) {
	if postgresDSN == "" {
		return memory.NewAttemptStore(), memory.NewTokenMetadataStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	return pgstore.NewAttemptStore(pool), pgstore.NewTokenMetadataStore(pool), pool.Close, nil
}

func printResult(what, signature, link string) {
	fmt.Printf("%s submitted: %s\n", what, signature)
	if link != "" {
		fmt.Printf("  %s\n", link)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <holdings|send|history> [command flags]\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
