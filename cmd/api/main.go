package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/example/bankops/internal/accounts"
	"github.com/example/bankops/internal/api"
	"github.com/example/bankops/internal/bank"
	"github.com/example/bankops/internal/config"
	"github.com/example/bankops/internal/journal"
	"github.com/example/bankops/internal/ledger"
	"github.com/example/bankops/internal/rates"
	"github.com/example/bankops/internal/web"
	"github.com/example/bankops/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	addr := getenv("API_ADDR", ":8080")
	maxBody := int64(getenvInt("API_MAX_BODY_BYTES", 1<<20))

	allowCIDRs := strings.Split(getenv("API_IP_ALLOWLIST", ""), ",")
	allowlist, err := web.ParseCIDRAllowlist(allowCIDRs)
	if err != nil {
		logger.Error("invalid API_IP_ALLOWLIST", "error", err)
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

	svc := bank.NewService(
		rates.NewClient(cfg.RateProviderURL, cfg.RateProviderKey, cfg.ReferenceCurrency, httpClient),
		accounts.NewClient(cfg.AccountServiceURL, httpClient),
		ledger.NewClient(cfg.LedgerServiceURL, httpClient),
		intents,
		cfg.ReferenceCurrency,
		logger,
	)

	var rateLimiter *web.RedisTokenBucket
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer redisClient.Close()

		rateLimiter = &web.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "bank_api",
			Capacity:   getenvInt("API_RATE_LIMIT_CAPACITY", 20),
			RefillRate: float64(getenvInt("API_RATE_LIMIT_REFILL_PER_SEC", 10)),
		}
	}

	router, err := api.NewRouter(api.Dependencies{
		Logger:       logger,
		Bank:         svc,
		Auditor:      audit.NewChainLogger(),
		RateLimiter:  rateLimiter,
		IPAllowlist:  allowlist,
		MaxBodyBytes: maxBody,
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen", "error", err)
		os.Exit(1)
	}

	certFile := os.Getenv("API_TLS_CERT")
	keyFile := os.Getenv("API_TLS_KEY")
	if certFile != "" && keyFile != "" {
		tlsCfg, err := web.LoadServerTLSConfig(web.TLSConfig{
			CertFile:          certFile,
			KeyFile:           keyFile,
			CAFile:            os.Getenv("API_TLS_CA"),
			RequireClientAuth: os.Getenv("API_TLS_CA") != "",
		})
		if err != nil {
			logger.Error("failed to load TLS config", "error", err)
			os.Exit(1)
		}
		srv.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("bank orchestrator listening", "addr", addr, "env", cfg.Environment)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
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
