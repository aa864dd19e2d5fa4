package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/bankops/internal/bank"
	"github.com/example/bankops/internal/config"
	"github.com/example/bankops/internal/journal"
	"github.com/example/bankops/internal/ledger"
)

// The reconciler shares the intent journal with the orchestrator and
// re-submits ledger records for mutations whose record never made it.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite3", cfg.JournalPath)
	if err != nil {
		logger.Error("failed to open intent journal", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	intents, err := journal.NewStore(db)
	if err != nil {
		logger.Error("failed to prepare intent journal", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: time.Duration(getenvInt("UPSTREAM_TIMEOUT_SEC", 10)) * time.Second}
	recorder := ledger.NewClient(cfg.LedgerServiceURL, httpClient)

	grace := time.Duration(getenvInt("RECONCILE_GRACE_SEC", 60)) * time.Second
	interval := time.Duration(getenvInt("RECONCILE_INTERVAL_SEC", 30)) * time.Second

	r := bank.NewReconciler(intents, recorder, cfg.ReferenceCurrency, grace, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("reconciler running", "interval", interval, "grace", grace)
	if repaired, err := r.RunOnce(ctx); err != nil {
		logger.Error("initial reconciliation sweep failed", "error", err)
	} else if repaired > 0 {
		logger.Info("initial sweep repaired records", "count", repaired)
	}
	r.Run(ctx, interval)
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
