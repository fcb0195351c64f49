// Copyright 2026 The Clinicflow Authors
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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/clinicflow/clinicflow/internal/checkout"
	"github.com/clinicflow/clinicflow/internal/gateway"
	"github.com/clinicflow/clinicflow/internal/guard"
	"github.com/clinicflow/clinicflow/internal/observability/logger"
	"github.com/clinicflow/clinicflow/internal/observability/metrics"
	"github.com/clinicflow/clinicflow/internal/observability/tracing"
	"github.com/clinicflow/clinicflow/internal/reconcile"
	"github.com/clinicflow/clinicflow/internal/session"
	"github.com/clinicflow/clinicflow/internal/subscription"
	transportHTTP "github.com/clinicflow/clinicflow/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the billing API and the expiration sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("starting clinicflow billing", slog.String("version", Version))

	// Initialize tracer
	tracer, err := tracing.Setup(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var reconcileOpts []reconcile.Option
	if cfg.Redis.URL != "" {
		client, err := reconcile.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()
		reconcileOpts = append(reconcileOpts, reconcile.WithDeduper(reconcile.NewRedisDeduper(client, cfg.Redis.DedupTTL)))
		slog.Info("webhook deduplication enabled", slog.Duration("ttl", cfg.Redis.DedupTTL))
	}
	reconciler := reconcile.New(a.paymentRepo, a.subRepo, a.auditLogger, a.publisher, reconcileOpts...)

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout,
	})
	orchestrator := checkout.New(gatewayClient, a.plans, a.tenants, a.subRepo, a.paymentRepo, a.auditLogger,
		checkout.WithMeter(meter),
	)

	var remote guard.Remote = guard.NewLocalRemote(a.subscriptions)
	if cfg.Guard.RemoteURL != "" {
		remote = guard.NewHTTPRemote(cfg.Guard.RemoteURL, cfg.Guard.RemoteTimeout)
		slog.Info("guard resolves subscriptions remotely", slog.String("url", cfg.Guard.RemoteURL))
	}
	accessGuard := guard.New(a.tenants, a.subRepo, remote,
		guard.WithTimeout(cfg.Guard.RemoteTimeout),
		guard.WithMeter(meter),
	)

	handler := transportHTTP.NewHandler(transportHTTP.Deps{
		Reconciler:    reconciler,
		Checkout:      orchestrator,
		Subscriptions: a.subscriptions,
		Guard:         accessGuard,
		Tenants:       a.tenants,
		Verifier:      session.NewVerifier(cfg.Session.JWTSecret, cfg.Session.Audience),
		DB:            a.db,
	}, transportHTTP.Config{
		WebhookToken:   cfg.Webhook.Token,
		CookieName:     cfg.Session.CookieName,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	if cfg.Webhook.Token == "" {
		slog.Warn("WEBHOOK_TOKEN is not set; payment webhooks will be rejected")
	}

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Sweeper.Enabled {
		sweeper := subscription.NewSweeper(a.subRepo, a.subscriptions)
		g.Go(func() error {
			return sweeper.Run(gctx, cfg.Sweeper.Schedule)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("server stopped with error", logger.Error(err))
		return err
	}
	slog.Info("server stopped")
	return nil
}
