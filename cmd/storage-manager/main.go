package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/objectfs/storagemgr/internal/config"
	"github.com/objectfs/storagemgr/internal/facility"
	"github.com/objectfs/storagemgr/pkg/utils"
)

func main() {
	configFile := flag.String("config", "", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	if err := run(*configFile, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "storage-manager: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, logLevel string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		if _, err := utils.ParseLogLevel(logLevel); err != nil {
			return err
		}
		cfg.Global.Log.Level = logLevel
	}

	logger, closer, err := utils.NewLogger(cfg.Global.Log)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	fac, err := facility.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start storage manager", "error", err)
		return err
	}
	defer fac.Close()

	if err := fac.Metrics.Start(ctx, logger); err != nil {
		return err
	}

	logger.Info("storage manager ready",
		"default_storage", cfg.Storage.DefaultStorageType,
		"cache_path", fac.Provider.CachePath(),
		"cache_entries", fac.Cache.Len(),
		"startup", time.Since(start))

	<-ctx.Done()
	logger.Info("shutdown signal received")
	if n := fac.Lock.Len(); n > 0 {
		logger.Warn("shutting down with downloads in flight", "downloads", n)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fac.Metrics.Stop(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}

	if summary := fac.Metrics.Latency().Summary(); summary != "" {
		logger.Info("operation latency (ms)\n" + summary)
	}
	logger.Info("storage manager stopped")
	return nil
}
