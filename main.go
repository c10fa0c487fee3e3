// Copyright 2025 Alephnode Protocol
//
// Entry point for the message-processing pipeline core: ingests P2P,
// API, and chain-sync submissions into the pending queue, verifies and
// routes them through the type handlers, commits them to the canonical
// log, and runs the background garbage collector alongside a minimal
// health/metrics surface.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alephnode/ccn/pkg/adminserver"
	"github.com/alephnode/ccn/pkg/balances"
	"github.com/alephnode/ccn/pkg/commit"
	"github.com/alephnode/ccn/pkg/config"
	"github.com/alephnode/ccn/pkg/cost"
	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/fetch"
	"github.com/alephnode/ccn/pkg/gc"
	"github.com/alephnode/ccn/pkg/handlers"
	"github.com/alephnode/ccn/pkg/ingest"
	"github.com/alephnode/ccn/pkg/metrics"
	"github.com/alephnode/ccn/pkg/signing"
	"github.com/alephnode/ccn/pkg/storage"
	"github.com/alephnode/ccn/pkg/worker"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file; falls back to environment variables when unset")
		help       = flag.Bool("help", false, "show this help message")
	)
	flag.Parse()

	if *help {
		printHelp()
		return
	}

	cmd := "serve"
	if args := flag.Args(); len(args) > 0 {
		cmd = args[0]
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := log.New(os.Stdout, "[ccn] ", log.LstdFlags)

	switch cmd {
	case "serve":
		runServe(cfg, logger)
	case "migrate":
		runMigrate(cfg, logger)
	case "ingest-once":
		runIngestOnce(cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printHelp()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv(), nil
	}
	return config.Load(path)
}

// runMigrate connects to the database and runs pending migrations, then
// exits. Intended for a release's pre-deploy step, separate from serve
// so a migration failure never races against live traffic.
func runMigrate(cfg *config.Config, logger *log.Logger) {
	ctx := context.Background()

	dbClient, err := database.NewClient(cfg, database.WithLogger(logger))
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer dbClient.Close()

	if err := dbClient.MigrateUp(ctx); err != nil {
		log.Fatalf("migrate up: %v", err)
	}
	logger.Println("migrations applied")
}

// runIngestOnce runs a single poll pass over every configured chain
// reader and exits, useful for a cron-driven deployment or for
// exercising the ingest path without standing up the full worker pool.
func runIngestOnce(cfg *config.Config, logger *log.Logger) {
	ctx := context.Background()

	dbClient, err := database.NewClient(cfg, database.WithLogger(logger))
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer dbClient.Close()

	repos := database.NewRepositories(dbClient)
	storageSvc, err := buildStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("build storage: %v", err)
	}

	readers, err := buildChainReaders(cfg, logger)
	if err != nil {
		log.Fatalf("build chain readers: %v", err)
	}

	ig := ingest.New(readers, repos.ChainTx, repos.Pending, storageSvc, logger)
	ig.PollOnce(ctx)
	logger.Println("ingest pass complete")
}

// runServe is the long-running node: worker pool, chain ingestors, the
// GC sweep, and the admin HTTP surface, all running until a SIGINT or
// SIGTERM arrives.
func runServe(cfg *config.Config, logger *log.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbClient, err := database.NewClient(cfg, database.WithLogger(logger))
	if err != nil {
		if cfg.Database.Required {
			log.Fatalf("connect to database: %v", err)
		}
		logger.Printf("database unavailable, continuing degraded: %v", err)
	}
	if dbClient != nil {
		defer dbClient.Close()

		if cfg.Database.AutoMigrate {
			if err := dbClient.MigrateUp(ctx); err != nil {
				log.Fatalf("migrate up: %v", err)
			}
		}
	}

	repos := database.NewRepositories(dbClient)

	storageSvc, err := buildStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("build storage: %v", err)
	}
	fetcher := fetch.NewFetcher(storageSvc)

	var mirror *balances.Mirror
	if cfg.Balances.FirestoreEnabled {
		mirror, err = balances.New(ctx, balances.Config{
			Enabled:         true,
			ProjectID:       cfg.Balances.FirebaseProjectID,
			CredentialsFile: cfg.Balances.FirebaseCredentialsFile,
			Logger:          log.New(os.Stdout, "[BalanceMirror] ", log.LstdFlags),
		})
		if err != nil {
			log.Fatalf("build balance mirror: %v", err)
		}
		defer mirror.Close()
	}

	buildDeps := func(r *database.Repositories) handlers.Deps {
		deps := handlers.Deps{
			Repos:               r,
			Storage:             storageSvc,
			PostOracleType:      cfg.Balances.PostType,
			PostOracleAddresses: cfg.Balances.OracleAddresses,
		}
		if mirror != nil {
			deps.Mirror = mirror
		}
		return deps
	}

	coordinator := commit.New(dbClient, buildDeps)

	verifiers := signing.GlobalRegistry()

	var costGate worker.CostGate
	if cfg.Cost.Enabled {
		pricing := cost.FixedPricingModel{Schedule: cost.StaticSchedule{BaseCost: 0.0001, PerByteHold: 0.000001, PerByteStream: 0.0000001}}
		costGate = cost.NewGate(repos.Balances, pricing, cfg.Cost.CacheTTL.Duration(), logger)
	}

	reg := metrics.New()
	pool := worker.New(repos.Pending, fetcher, verifiers, costGate, coordinator, cfg.Worker, logger).WithMetrics(reg)
	pool.Start(ctx)
	defer pool.Stop()

	readers, err := buildChainReaders(cfg, logger)
	if err != nil {
		log.Fatalf("build chain readers: %v", err)
	}
	ig := ingest.New(readers, repos.ChainTx, repos.Pending, storageSvc, logger).WithMetrics(reg)
	go ig.Run(ctx, cfg.Worker.PollInterval.Duration())

	if cfg.GC.Enabled {
		aggregateHandler := handlers.NewAggregateHandler(repos)
		sweeper := gc.New(repos, storageSvc, aggregateHandler, logger)
		go sweeper.Run(ctx, cfg.GC.SweepInterval.Duration())
	}

	admin := adminserver.New(cfg.Admin, dbClient, repos.Pending, reg, logger)
	admin.Start()

	logger.Printf("node %s serving admin surface on %s", cfg.Node.ID, cfg.Admin.ListenAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := admin.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		logger.Printf("admin server shutdown error: %v", err)
	}

	logger.Println("stopped")
}

func buildStorage(ctx context.Context, cfg *config.Config) (*storage.Service, error) {
	local, err := storage.NewLocalBackend(cfg.Storage.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("build local storage backend: %w", err)
	}

	var remote storage.Backend
	if cfg.Storage.Backend == "remote" {
		r, err := storage.NewRemoteBackend(ctx, cfg.Storage.RemoteBucket, cfg.Storage.RemoteCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("build remote storage backend: %w", err)
		}
		remote = r
	}

	return storage.NewService(local, remote), nil
}

// buildChainReaders constructs one ChainReader per configured chain,
// keyed by ChainSettings.Kind. A chain with an empty RPCURL is skipped
// rather than failed, so a partial deployment (e.g. Ethereum-only) does
// not need Accumulate-shaped config entries removed.
func buildChainReaders(cfg *config.Config, logger *log.Logger) ([]ingest.ChainReader, error) {
	var readers []ingest.ChainReader
	for _, cs := range cfg.Chains {
		if cs.RPCURL == "" {
			logger.Printf("skipping chain %s: no rpc url configured", cs.Name)
			continue
		}

		switch cs.Kind {
		case "ethereum":
			r, err := ingest.NewEthereumReader(ingest.EthereumReaderConfig{
				Chain:           cs.Name,
				RPCURL:          cs.RPCURL,
				ContractAddress: common.HexToAddress(cs.ContractAddress),
				MaxBlockRange:   uint64(cs.BlockLookback),
			})
			if err != nil {
				return nil, fmt.Errorf("build ethereum reader %s: %w", cs.Name, err)
			}
			readers = append(readers, r)
		case "accumulate":
			r, err := ingest.NewAccumulateReader(ingest.AccumulateReaderConfig{
				Chain:  cs.Name,
				RPCURL: cs.RPCURL,
			})
			if err != nil {
				return nil, fmt.Errorf("build accumulate reader %s: %w", cs.Name, err)
			}
			readers = append(readers, r)
		default:
			logger.Printf("skipping chain %s: unknown kind %q", cs.Name, cs.Kind)
		}
	}
	return readers, nil
}

func printHelp() {
	fmt.Println("Alephnode message-processing pipeline core")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ccn [OPTIONS] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve         run the node: worker pool, ingestors, GC sweep, admin surface (default)")
	fmt.Println("  migrate       apply pending database migrations and exit")
	fmt.Println("  ingest-once   run a single chain-reader poll pass and exit")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config=PATH  path to a YAML config file (defaults to environment variables)")
	fmt.Println("  -help         show this help message")
}
