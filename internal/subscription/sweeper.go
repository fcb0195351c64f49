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

package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clinicflow/clinicflow/internal/audit"
	"github.com/clinicflow/clinicflow/internal/observability/logger"
	"github.com/clinicflow/clinicflow/internal/observability/metrics"
)

// SweepReport summarizes one sweep.
type SweepReport struct {
	Expired            int
	AssistantsDisabled int
	Failures           int
}

// Sweeper periodically expires overdue subscriptions so tenants that never
// open the app still lose access and the assistant on time.
type Sweeper struct {
	subs    Repository
	service *Service
	now     func() time.Time
}

// NewSweeper creates a sweeper over the service's store.
func NewSweeper(subs Repository, service *Service) *Sweeper {
	return &Sweeper{
		subs:    subs,
		service: service,
		now:     service.now,
	}
}

// RunOnce expires every overdue subscription and disables the assistant of
// tenants canceled past their grace day.
func (w *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := w.now()

	overdue, err := w.subs.ListOverdue(ctx, now)
	if err != nil {
		return report, fmt.Errorf("failed to list overdue subscriptions: %w", err)
	}
	for _, sub := range overdue {
		res, err := w.service.CheckExpiration(ctx, sub.TenantID)
		if err != nil {
			report.Failures++
			slog.ErrorContext(ctx, "sweep: expiration check failed",
				logger.TenantID(sub.TenantID),
				logger.SubscriptionID(sub.ID),
				logger.Error(err),
			)
			continue
		}
		if res.Status == ExpirationExpired {
			report.Expired++
			metrics.SweepExpiredTotal.Inc()
		}
	}

	// Grace lasts through the calendar day of period_end.
	cutoff := startOfDay(now)
	tenants, err := w.subs.ListCanceledPastGrace(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("failed to list canceled tenants: %w", err)
	}
	for _, tenantID := range tenants {
		if err := w.service.DisableAssistantForTenant(ctx, tenantID, audit.ActorSweeper); err != nil {
			report.Failures++
			slog.ErrorContext(ctx, "sweep: failed to disable assistant",
				logger.TenantID(tenantID),
				logger.Error(err),
			)
			continue
		}
		report.AssistantsDisabled++
	}

	slog.InfoContext(ctx, "subscription sweep finished",
		logger.Component("sweeper"),
		slog.Int("expired", report.Expired),
		slog.Int("assistants_disabled", report.AssistantsDisabled),
		slog.Int("failures", report.Failures),
	)
	return report, nil
}

// Run schedules RunOnce on the cron spec until ctx is canceled.
func (w *Sweeper) Run(ctx context.Context, spec string) error {
	c := cron.New(cron.WithLocation(time.UTC))

	_, err := c.AddFunc(spec, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			slog.ErrorContext(ctx, "subscription sweep failed", logger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	c.Start()
	slog.InfoContext(ctx, "subscription sweeper started", slog.String("schedule", spec))

	<-ctx.Done()
	// Wait for a running sweep to finish
	<-c.Stop().Done()
	return nil
}

// startOfDay truncates t to midnight UTC.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
