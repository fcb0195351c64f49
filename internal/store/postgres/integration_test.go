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

//go:build integration
// +build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/clinicflow/clinicflow/internal/payment"
	"github.com/clinicflow/clinicflow/internal/subscription"
	"github.com/clinicflow/clinicflow/internal/tenant"
)

func setupDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("clinicflow_test"),
		tcpostgres.WithUsername("clinicflow"),
		tcpostgres.WithPassword("clinicflow_test_password"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Skipping integration test: failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := NewFromURL(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx, InitialSchema))
	return db
}

// TestPurpose: Validates the billing tables end to end: authoritative subscription, conditional activation and monotonic payments.
// Scope: Database Integration Test
// Expected: Re-applying an activation is idempotent, a shorter activation is refused, and a settled payment cannot transition again.
// Test Case ID: STO-INT-01
func TestRepositories_BillingLifecycle(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	tenants := NewTenantRepository(db)
	plans := NewPlanRepository(db)
	subs := NewSubscriptionRepository(db)
	payments := NewPaymentRepository(db)

	clinic := &tenant.Tenant{ID: "clinic-1", Name: "Clínica Vida", Email: "a@vida.com", AssistantEnabled: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, tenants.Create(ctx, clinic))
	require.NoError(t, tenants.BindUser(ctx, "user-1", clinic.ID))

	bound, err := tenants.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, clinic.ID, bound.ID)

	trial := &subscription.Plan{Name: subscription.PlanTrial, DisplayName: "Teste grátis"}
	premium := &subscription.Plan{Name: "premium", DisplayName: "Premium", MonthlyPrice: 29700, AnnualPrice: 297000, Features: []string{"agenda"}}
	require.NoError(t, plans.Upsert(ctx, trial))
	require.NoError(t, plans.Upsert(ctx, premium))

	got, err := plans.GetByName(ctx, "premium")
	require.NoError(t, err)
	assert.Equal(t, int64(29700), got.MonthlyPrice)

	trialEnd := now.Add(-time.Hour)
	require.NoError(t, subs.Create(ctx, &subscription.Subscription{
		ID: "sub-1", TenantID: clinic.ID, PlanID: trial.ID, Status: subscription.StatusTrial,
		Cycle: subscription.CycleMonthly, PeriodStart: now.AddDate(0, 0, -7), PeriodEnd: trialEnd, TrialEndsAt: &trialEnd,
	}))

	overdue, err := subs.ListOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "sub-1", overdue[0].ID)

	a := subscription.Activation{SubscriptionID: "sub-1", PlanID: premium.ID, Cycle: subscription.CycleAnnual, PeriodStart: now, PeriodEnd: now.AddDate(1, 0, 0)}
	ok, err := subs.Activate(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = subs.Activate(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	shorter := a
	shorter.PeriodEnd = now.AddDate(0, 1, 0)
	ok, err = subs.Activate(ctx, shorter)
	require.NoError(t, err)
	assert.False(t, ok)

	current, err := subs.GetAuthoritative(ctx, clinic.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, current.Status)
	assert.Equal(t, "premium", current.PlanName)
	assert.Nil(t, current.TrialEndsAt)
	assert.True(t, current.PeriodEnd.Equal(a.PeriodEnd))

	p := &payment.Payment{
		ID: "p-1", TenantID: clinic.ID, SubscriptionID: "sub-1", PlanID: premium.ID, Cycle: subscription.CycleAnnual,
		Method: payment.MethodPix, ValueCents: 297000, Status: payment.StatusPending, ExternalID: "pay_1", DueDate: now.AddDate(0, 0, 7),
	}
	require.NoError(t, payments.Create(ctx, p))

	ok, err = payments.Transition(ctx, "p-1", payment.StatusPaid, &now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = payments.Transition(ctx, "p-1", payment.StatusRefunded, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	settled, err := payments.GetByExternalID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, settled.Status)
	require.NotNil(t, settled.PaidAt)
}

func TestSwitchRepository_ClaimIsExclusive(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, NewTenantRepository(db).Create(ctx, &tenant.Tenant{ID: "clinic-1", Name: "C", Email: "c@c.com", CreatedAt: now, UpdatedAt: now}))
	plan := &subscription.Plan{Name: "enterprise", MonthlyPrice: 99700, AnnualPrice: 897000}
	require.NoError(t, NewPlanRepository(db).Upsert(ctx, plan))

	switches := NewSwitchRepository(db)
	require.NoError(t, switches.Schedule(ctx, &subscription.PlanSwitch{ID: "sw-1", TenantID: "clinic-1", PlanID: plan.ID, Cycle: subscription.CycleMonthly}))
	require.NoError(t, switches.Schedule(ctx, &subscription.PlanSwitch{ID: "sw-2", TenantID: "clinic-1", PlanID: plan.ID, Cycle: subscription.CycleAnnual}))

	pending, err := switches.GetPending(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, "sw-2", pending.ID)

	won, err := switches.Claim(ctx, "sw-1")
	require.NoError(t, err)
	assert.False(t, won, "earlier switch was canceled by the second schedule")

	won, err = switches.Claim(ctx, "sw-2")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = switches.Claim(ctx, "sw-2")
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, switches.Complete(ctx, "sw-2"))
	_, err = switches.GetPending(ctx, "clinic-1")
	assert.ErrorIs(t, err, subscription.ErrSwitchNotFound)
}
