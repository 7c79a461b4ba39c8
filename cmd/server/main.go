// Package main runs the transfer desk HTTP service:
// - Holdings discovery for the configured wallet
// - Transfer validation, submission and the account creation flow
// - Attempt journal and holdings history, health and Prometheus metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"solana-transfer-desk/internal/api"
	"solana-transfer-desk/internal/discovery"
	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/metadata"
	"solana-transfer-desk/internal/observability"
	"solana-transfer-desk/internal/registry"
	"solana-transfer-desk/internal/solana"
	"solana-transfer-desk/internal/storage"
	"solana-transfer-desk/internal/storage/memory"
	"solana-transfer-desk/internal/storage/migrations"
	chstore "solana-transfer-desk/internal/storage/clickhouse"
	pgstore "solana-transfer-desk/internal/storage/postgres"
	"solana-transfer-desk/internal/transfer"
	"solana-transfer-desk/internal/wallet"
)

// stores holds the journal and history stores.
type stores struct {
	attempts  storage.AttemptStore
	snapshots storage.HoldingSnapshotStore
	metadata  storage.TokenMetadataStore

	// checks are reported by /health; empty for in-memory storage
	checks map[string]func(context.Context) error
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	clusterName := flag.String("cluster", envOr("SOLANA_CLUSTER", string(domain.DefaultCluster)), "Solana cluster (mainnet-beta, testnet, devnet)")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint (default: public cluster endpoint)")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint for confirmations (default: poll over RPC)")
	privateKey := flag.String("private-key", os.Getenv("WALLET_PRIVATE_KEY"), "Wallet key: base58 string or solana-keygen JSON file")
	tokenList := flag.String("token-list", envOr("TOKEN_LIST_SOURCE", registry.DefaultSource), "Token list file path or URL")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	httpAddr := flag.String("http-addr", envOr("HTTP_ADDR", ":8080"), "HTTP listen address (API, /health, /metrics)")
	closeDelay := flag.Duration("close-delay", transfer.DefaultCloseDelay, "Delay before a closed attempt resets")
	metadataCache := flag.Int("metadata-cache", metadata.DefaultCacheSize, "On-chain metadata cache size")
	confirm := flag.Bool("confirm", true, "Wait for confirmation before reporting a submission")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	cluster, err := domain.ParseCluster(*clusterName)
	if err != nil {
		logger.Fatalf("--cluster: %v", err)
	}
	if *privateKey == "" {
		logger.Fatal("--private-key is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}
	if *rpcEndpoint == "" {
		*rpcEndpoint = cluster.RPCEndpoint()
	}

	key, err := wallet.LoadPrivateKey(*privateKey)
	if err != nil {
		logger.Fatalf("Failed to load wallet key: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(*rpcEndpoint)

	walletOpts := []wallet.Option{wallet.WithLogger(prefixed("[wallet] "))}
	if *confirm {
		confirmer, closeWS := createConfirmer(ctx, rpc, *wsEndpoint, logger)
		defer closeWS()
		walletOpts = append(walletOpts, wallet.WithConfirmer(confirmer))
	}
	w := wallet.NewKeypair(key, rpc, walletOpts...)

	tokens := registry.New(cluster)
	tokens.LoadAsync(ctx, *tokenList)

	onchain, err := metadata.NewSource(rpc, *metadataCache,
		metadata.WithStore(st.metadata),
		metadata.WithLogger(prefixed("[metadata] ")),
	)
	if err != nil {
		logger.Fatalf("Failed to create metadata source: %v", err)
	}

	tracker := discovery.NewTracker(
		discovery.NewDiscoverer(rpc, onchain, tokens, prefixed("[discovery] ")),
		discovery.NewBook(),
		discovery.WithSnapshotStore(st.snapshots),
		discovery.WithLogger(prefixed("[discovery] ")),
	)

	session := transfer.NewSession(w, tracker,
		transfer.NewBuilder(rpc, w, cluster, prefixed("[builder] ")),
		transfer.WithAttemptStore(st.attempts),
		transfer.WithCloseDelay(*closeDelay),
		transfer.WithLogger(prefixed("[transfer] ")),
	)

	identity, _ := w.Identity()
	logger.Printf("Wallet %s on %s via %s", identity, cluster, *rpcEndpoint)

	// Discovery starts without the token list; holdings are renamed once it loads.
	session.SyncIdentity(ctx)
	go func() {
		select {
		case <-tokens.Ready():
		case <-ctx.Done():
			return
		}
		if err := tokens.Err(); err != nil {
			logger.Printf("Token list unavailable, names come from on-chain metadata only: %v", err)
			return
		}
		logger.Printf("Token list loaded: %d tokens, refreshing holdings", tokens.Len())
		session.Refresh(ctx)
	}()

	srv := &http.Server{
		Addr:              *httpAddr,
		Handler:           newRouter(ctx, session, st.checks, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}
	}()

	logger.Printf("Starting HTTP server on %s", *httpAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// newRouter mounts the API next to health and metrics.
func newRouter(ctx context.Context, session *transfer.Session, checks map[string]func(context.Context) error, logger *log.Logger) http.Handler {
	r := api.NewHandler(ctx, session, prefixed("[api] ")).Router()

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		checkCtx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(checkCtx); err != nil {
				logger.Printf("Health check %s failed: %v", name, err)
				http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")

	// Prometheus metrics
	r.Handle("/metrics", observability.Handler())

	logger.Println("Routes: /api/*, /health, /metrics")
	return r
}

// createStores creates the attempt journal, holdings history and metadata stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (*stores, func(), error) {
	if useMemory {
		return &stores{
			attempts:  memory.NewAttemptStore(),
			snapshots: memory.NewHoldingSnapshotStore(),
			metadata:  memory.NewTokenMetadataStore(),
		}, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Printf("PostgreSQL migrations applied: %v", applied)

	// ClickHouse
	chConn, applied, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	logger.Printf("ClickHouse migrations applied: %v", applied)

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return &stores{
		attempts:  pgstore.NewAttemptStore(pool),
		snapshots: chstore.NewHoldingSnapshotStore(chConn),
		metadata:  pgstore.NewTokenMetadataStore(pool),
		checks: map[string]func(context.Context) error{
			"postgres":   pool.Health,
			"clickhouse": chConn.Health,
		},
	}, cleanup, nil
}

// createConfirmer prefers signature subscriptions and falls back to polling.
func createConfirmer(ctx context.Context, rpc solana.RPCClient, wsEndpoint string, logger *log.Logger) (solana.Confirmer, func()) {
	if wsEndpoint == "" {
		return solana.NewPollingConfirmer(rpc, 0), func() {}
	}

	cfg := solana.DefaultWSConfig()
	cfg.Logger = prefixed("[ws] ")
	ws, err := solana.NewWSClient(ctx, wsEndpoint, &cfg)
	if err != nil {
		logger.Printf("WebSocket %s unavailable, polling for confirmations: %v", wsEndpoint, err)
		return solana.NewPollingConfirmer(rpc, 0), func() {}
	}
	return solana.NewSubscriptionConfirmer(ws), func() { ws.Close() }
}

func prefixed(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
