package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/analyzers"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/crawler"
	"github.com/ternarybob/recap/internal/metrics"
	"github.com/ternarybob/recap/internal/ranking"
	"github.com/ternarybob/recap/internal/handlers"
	"github.com/ternarybob/recap/internal/rollup"
	"github.com/ternarybob/recap/internal/server"
	"github.com/ternarybob/recap/internal/service"
	storage "github.com/ternarybob/recap/internal/storage/badger"
	"github.com/ternarybob/recap/internal/timeline"
	"github.com/ternarybob/recap/internal/worker"
	"github.com/ternarybob/recap/internal/wordsplit"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	workers      = flag.Int("workers", 0, "Worker concurrency (overrides config)")
	badgerPath   = flag.String("data", "", "Database directory (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Recap version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence:
	// 1. Load config (defaults -> files -> env)
	// 2. Apply CLI overrides
	// 3. Initialize logger, print banner
	// 4. Open storage, wire services, recover, start workers

	if len(configFiles) == 0 {
		if _, err := os.Stat("recap.toml"); err == nil {
			configFiles = append(configFiles, "recap.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *workers, *badgerPath)

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("badger_path", config.Storage.Badger.Path).
		Int("workers", config.Queue.Concurrency).
		Str("log_level", config.Logging.Level).
		Msg("Application configuration loaded")

	manager, err := storage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
		os.Exit(1)
	}
	defer manager.Close()

	requestTimeout := common.MustDuration(config.Fetcher.RequestTimeout)
	source := timeline.NewHTMLAdapter(&config.Platform, requestTimeout, logger)
	splitter := wordsplit.NewClient(&config.WordSplit, logger)
	feed := ranking.NewClient(&config.Ranking, logger)

	fetcher, err := crawler.NewFetcher(config, source, manager.JobStorage(), manager.EventStorage(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize fetcher")
		os.Exit(1)
	}

	registry := analyzers.NewRegistry(config, manager.EventStorage(), manager.ArtifactStorage(), splitter, feed, logger)
	pool := worker.NewPool(&config.Queue, manager.JobStorage(), fetcher, registry, logger)

	rollupService, err := rollup.NewService(config, manager.JobStorage(), manager.ArtifactStorage(), manager.RollupStorage(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize rollup service")
		os.Exit(1)
	}

	jobsService, err := service.NewJobsService(config.Platform.BaseURL, manager.JobStorage(), manager.ArtifactStorage(), manager.RollupStorage(), source, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize jobs service")
		os.Exit(1)
	}
	httpServer := server.New(&config.Server, handlers.NewJobsHandler(jobsService, logger), logger)

	// Jobs stranded mid-fetch by an unclean shutdown rejoin the queue
	// before any worker polls
	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pool.Recover(recoverCtx); err != nil {
		cancelRecover()
		logger.Fatal().Err(err).Msg("Failed to recover stranded jobs")
		os.Exit(1)
	}
	cancelRecover()

	if config.Metrics.Addr != "" {
		metrics.StartServer(config.Metrics.Addr)
		logger.Info().Str("addr", config.Metrics.Addr).Msg("Metrics endpoint started")
	}

	pool.Start()
	if err := rollupService.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start rollup schedule")
		os.Exit(1)
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP server failed")
			os.Exit(1)
		}
	}()

	logger.Info().Msg("Recap started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server did not stop cleanly")
	}
	rollupService.Stop()
	pool.Stop()
}
