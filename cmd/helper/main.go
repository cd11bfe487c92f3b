// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// mailverify helper service
//
// Privileged server side of the email-verification harness. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL (and Redis for the cleanup lock, if set)
//  3. Serves the test-helper function (waits, lookups, simulated inbound
//     email, submission cleanup) behind key verification
//  4. Serves the cascading test-data cleanup function
//  5. Exposes /health and /metrics
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/mailverify/internal/accounts"
	"github.com/bcem/mailverify/internal/cleanup"
	"github.com/bcem/mailverify/internal/config"
	"github.com/bcem/mailverify/internal/contact"
	"github.com/bcem/mailverify/internal/helper"
	"github.com/bcem/mailverify/internal/lock"
	"github.com/bcem/mailverify/internal/storage"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting mailverify helper service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Helper.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Helper.Port,
		"helper_function", cfg.Supabase.HelperFunction,
		"cleanup_function", cfg.Supabase.CleanupFunction,
		"storage_enabled", cfg.Storage.Enabled(),
		"redis_lock", cfg.Helper.RedisURL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.Helper.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	store, err := contact.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// The cleanup store builds dynamic IN/LIKE queries through sqlx over
	// the same pool.
	db := sqlx.NewDb(stdlib.OpenDBFromPool(pgPool), "pgx")
	defer db.Close()

	// --- Key verification ---
	keys := helper.NewKeyVerifier(cfg.Helper.JWTSecret, cfg.Supabase.PublishableKey, cfg.Helper.ServiceRoleKey)

	// --- Inbound email forwarder ---
	var inbound helper.InboundSender
	if cfg.Helper.WebhookSecret != "" && cfg.Helper.InboundWebhookURL != "" {
		fwd, err := helper.NewForwarder(cfg.Helper.InboundWebhookURL, cfg.Helper.WebhookSecret,
			&http.Client{Timeout: 30 * time.Second})
		if err != nil {
			slog.Error("invalid inbound webhook configuration", "error", err)
			os.Exit(1)
		}
		inbound = fwd
	} else {
		slog.Warn("inbound webhook not configured, simulateInboundEmail disabled")
	}

	// --- Cleanup runner ---
	runnerCfg := cleanup.RunnerConfig{
		Store:    cleanup.NewStore(db),
		Accounts: accounts.NewAdmin(ctx, cfg.Supabase.URL, cfg.Helper.ServiceRoleKey),
		Cleanup:  cfg.Cleanup,
	}

	var rdb *redis.Client
	if cfg.Helper.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Helper.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")
		runnerCfg.Locker = lock.NewLocker(rdb, lock.DefaultTTL)
	}

	if cfg.Storage.Enabled() {
		purger, err := storage.NewPurger(ctx, cfg.Storage)
		if err != nil {
			slog.Error("failed to configure avatar storage", "error", err)
			os.Exit(1)
		}
		runnerCfg.Purger = purger
	}

	runner := cleanup.NewRunner(runnerCfg)

	// --- Routes ---
	mux := http.NewServeMux()
	mux.Handle("/functions/v1/"+cfg.Supabase.HelperFunction, helper.NewHandler(store, keys, inbound))
	mux.Handle("/functions/v1/"+cfg.Supabase.CleanupFunction, keys.Middleware(cleanup.NewHandler(runner)))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	ready, stopped, err := helper.Serve(ctx, cfg.Helper.Port, mux)
	if err != nil {
		slog.Error("failed to start helper server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("helper service ready", "port", cfg.Helper.Port)

	<-ctx.Done()
	slog.Info("received shutdown signal")
	<-stopped
	slog.Info("helper service stopped")
}
