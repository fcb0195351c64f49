package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/internal/audit"
	"github.com/clinicflow/clinicflow/internal/tenant"
)

func TestSweeper_RunOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sweeper := NewSweeper(f.subs, f.service)

	overdue := &Subscription{ID: "sub-1", TenantID: "clinic-1", Status: StatusActive, PeriodEnd: f.now.Add(-time.Hour)}
	broken := &Subscription{ID: "sub-2", TenantID: "clinic-2", Status: StatusActive, PeriodEnd: f.now.Add(-time.Hour)}
	f.subs.On("ListOverdue", ctx, f.now).Return([]*Subscription{overdue, broken}, nil)
	f.subs.On("GetAuthoritative", ctx, "clinic-1").Return(overdue, nil)
	f.subs.On("GetAuthoritative", ctx, "clinic-2").Return(nil, errors.New("timeout"))
	f.subs.On("SetStatus", ctx, "sub-1", mock.Anything, StatusInactive).Return(true, nil)

	clinic1 := &tenant.Tenant{ID: "clinic-1", AssistantEnabled: false}
	f.tenants.On("GetTenant", ctx, "clinic-1").Return(clinic1, nil)
	f.tenants.On("DisableAssistant", ctx, clinic1, audit.ActorSystem).Return(nil)

	cutoff := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	f.subs.On("ListCanceledPastGrace", ctx, cutoff).Return([]string{"clinic-3"}, nil)
	clinic3 := &tenant.Tenant{ID: "clinic-3", AssistantEnabled: true}
	f.tenants.On("GetTenant", ctx, "clinic-3").Return(clinic3, nil)
	f.tenants.On("DisableAssistant", ctx, clinic3, audit.ActorSweeper).Return(nil)

	report, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Expired: 1, AssistantsDisabled: 1, Failures: 1}, report)
	f.tenants.AssertExpectations(t)
}

func TestSweeper_Run_InvalidSchedule(t *testing.T) {
	f := newFixture()
	err := NewSweeper(f.subs, f.service).Run(context.Background(), "every now and then")
	assert.ErrorContains(t, err, "invalid sweep schedule")
}
