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
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicflow/clinicflow/internal/audit"
	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/events"
	"github.com/clinicflow/clinicflow/internal/observability/logger"
	"github.com/clinicflow/clinicflow/internal/store/postgres"
	"github.com/clinicflow/clinicflow/internal/subscription"
	"github.com/clinicflow/clinicflow/internal/tenant"
)

const (
	planCacheSize = 32
	planCacheTTL  = 5 * time.Minute
)

// app holds the components shared by every command.
type app struct {
	cfg         *config.Config
	db          *postgres.DB
	auditLogger audit.Logger
	publisher   events.Publisher

	tenantRepo  *postgres.TenantRepository
	subRepo     *postgres.SubscriptionRepository
	planRepo    *postgres.PlanRepository
	switchRepo  *postgres.SwitchRepository
	paymentRepo *postgres.PaymentRepository

	plans         *subscription.Catalog
	tenants       *tenant.Service
	subscriptions *subscription.Service

	closers []func()
}

// loadConfig reads configuration and initializes the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	return cfg, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newApp connects to the database and the optional event bus and builds the services.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database")

	a := &app{
		cfg:         cfg,
		db:          db,
		auditLogger: audit.NewSlogLogger(),
		publisher:   events.Nop{},
		tenantRepo:  postgres.NewTenantRepository(db),
		subRepo:     postgres.NewSubscriptionRepository(db),
		planRepo:    postgres.NewPlanRepository(db),
		switchRepo:  postgres.NewSwitchRepository(db),
		paymentRepo: postgres.NewPaymentRepository(db),
	}
	a.closers = append(a.closers, db.Close)

	if cfg.NATS.URL != "" {
		publisher, conn, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = publisher
		a.closers = append(a.closers, func() { _ = conn.Drain() })
		slog.Info("publishing billing events", slog.String("subject_prefix", cfg.NATS.SubjectPrefix))
	}

	a.plans = subscription.NewCatalog(a.planRepo, planCacheSize, planCacheTTL)
	a.tenants = tenant.NewService(a.tenantRepo, a.auditLogger)
	a.subscriptions = subscription.NewService(a.subRepo, a.switchRepo, a.plans, a.tenants, a.auditLogger, a.publisher)
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// withApp runs fn with a fully built app.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
