package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/internal/apperr"
	"github.com/clinicflow/clinicflow/internal/audit"
	"github.com/clinicflow/clinicflow/internal/tenant"
)

func TestService_StartTrial(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.plans.On("GetByName", ctx, PlanTrial).Return(trialPlan, nil)
	f.subs.On("Create", ctx, mock.MatchedBy(func(s *Subscription) bool {
		uid, err := uuid.Parse(s.ID)
		return err == nil && uid.Version() == 7 &&
			s.Status == StatusTrial &&
			s.PeriodEnd.Equal(f.now.AddDate(0, 0, TrialDays)) &&
			s.TrialEndsAt != nil
	})).Return(nil)

	sub, err := f.service.StartTrial(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, "clinic-1", sub.TenantID)
	f.subs.AssertExpectations(t)
}

func TestService_ScheduleSwitch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.plans.On("GetByName", ctx, "premium").Return(premiumPlan, nil)
	f.switches.On("Schedule", ctx, mock.MatchedBy(func(sw *PlanSwitch) bool {
		return sw.TenantID == "clinic-1" && sw.PlanID == premiumPlan.ID && sw.Status == SwitchScheduled
	})).Return(nil)

	sw, err := f.service.ScheduleSwitch(ctx, "clinic-1", "premium", CycleAnnual)
	require.NoError(t, err)
	assert.Equal(t, CycleAnnual, sw.Cycle)

	_, err = f.service.ScheduleSwitch(ctx, "clinic-1", "premium", Cycle("weekly"))
	assert.True(t, apperr.IsValidation(err))

	f.plans.On("GetByName", ctx, "platinum").Return(nil, ErrPlanNotFound)
	_, err = f.service.ScheduleSwitch(ctx, "clinic-1", "platinum", CycleMonthly)
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_Sync_NoPendingSwitch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.switches.On("GetPending", ctx, "clinic-1").Return(nil, ErrSwitchNotFound)

	res, err := f.service.Sync(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, SyncNoop, res.Status)
}

func TestService_Sync_WaitsForPeriodEnd(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	end := f.now.Add(72 * time.Hour)

	f.switches.On("GetPending", ctx, "clinic-1").Return(&PlanSwitch{ID: "sw-1", PlanID: premiumPlan.ID, Cycle: CycleMonthly, Status: SwitchScheduled}, nil)
	f.plans.On("GetByID", ctx, premiumPlan.ID).Return(premiumPlan, nil)
	f.subs.On("GetAuthoritative", ctx, "clinic-1").Return(&Subscription{ID: "sub-1", PlanID: trialPlan.ID, Status: StatusActive, PeriodEnd: end}, nil)

	res, err := f.service.Sync(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, SyncNoop, res.Status)
	assert.Equal(t, "premium", res.NewPlan)
	require.NotNil(t, res.SwitchDate)
	assert.True(t, res.SwitchDate.Equal(end))
	f.switches.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything)
}

// TestPurpose: Validates that a scheduled switch is applied with continuity from the previous period.
// Scope: Unit Test
// Expected: The switch is claimed, the subscription is activated from the old period end for one cycle, and the switch completed.
// Test Case ID: SUB-SYNC-01
func TestService_Sync_AppliesSwitch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	oldEnd := f.now.Add(-2 * time.Hour)

	f.switches.On("GetPending", ctx, "clinic-1").Return(&PlanSwitch{ID: "sw-1", PlanID: premiumPlan.ID, Cycle: CycleMonthly, Status: SwitchScheduled}, nil)
	f.plans.On("GetByID", ctx, premiumPlan.ID).Return(premiumPlan, nil)
	f.subs.On("GetAuthoritative", ctx, "clinic-1").Return(&Subscription{ID: "sub-1", PlanID: trialPlan.ID, Status: StatusActive, PeriodEnd: oldEnd}, nil)
	f.switches.On("Claim", ctx, "sw-1").Return(true, nil)
	f.subs.On("Activate", ctx, Activation{
		SubscriptionID: "sub-1",
		PlanID:         premiumPlan.ID,
		Cycle:          CycleMonthly,
		PeriodStart:    oldEnd,
		PeriodEnd:      oldEnd.AddDate(0, 1, 0),
	}).Return(true, nil)
	f.switches.On("Complete", ctx, "sw-1").Return(nil)

	res, err := f.service.Sync(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, SyncSwitched, res.Status)
	assert.Equal(t, "premium", res.NewPlan)

	f.subs.AssertExpectations(t)
	f.switches.AssertExpectations(t)
}

func TestService_Sync_LostClaim(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.switches.On("GetPending", ctx, "clinic-1").Return(&PlanSwitch{ID: "sw-1", PlanID: premiumPlan.ID, Cycle: CycleMonthly, Status: SwitchScheduled}, nil)
	f.plans.On("GetByID", ctx, premiumPlan.ID).Return(premiumPlan, nil)
	f.subs.On("GetAuthoritative", ctx, "clinic-1").Return(nil, ErrSubscriptionNotFound)
	f.switches.On("Claim", ctx, "sw-1").Return(false, nil)

	res, err := f.service.Sync(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, SyncNoop, res.Status)
	f.subs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_Sync_ResumesAppliedSwitch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.switches.On("GetPending", ctx, "clinic-1").Return(&PlanSwitch{ID: "sw-1", PlanID: premiumPlan.ID, Cycle: CycleMonthly, Status: SwitchProcessing}, nil)
	f.plans.On("GetByID", ctx, premiumPlan.ID).Return(premiumPlan, nil)
	f.subs.On("GetAuthoritative", ctx, "clinic-1").Return(&Subscription{
		ID: "sub-1", PlanID: premiumPlan.ID, Status: StatusActive,
		PeriodStart: f.now.Add(-time.Hour), PeriodEnd: f.now.AddDate(0, 1, 0),
	}, nil)
	f.switches.On("Complete", ctx, "sw-1").Return(nil)

	res, err := f.service.Sync(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, SyncSwitched, res.Status)
	f.subs.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything)
	f.switches.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything)
}

func TestService_Sync_CreatesWhenNoSubscription(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.switches.On("GetPending", ctx, "clinic-1").Return(&PlanSwitch{ID: "sw-1", PlanID: premiumPlan.ID, Cycle: CycleAnnual, Status: SwitchScheduled}, nil)
	f.plans.On("GetByID", ctx, premiumPlan.ID).Return(premiumPlan, nil)
	f.subs.On("GetAuthoritative", ctx, "clinic-1").Return(nil, ErrSubscriptionNotFound)
	f.switches.On("Claim", ctx, "sw-1").Return(true, nil)
	f.subs.On("Create", ctx, mock.MatchedBy(func(s *Subscription) bool {
		return s.Status == StatusActive && s.PeriodStart.Equal(f.now) && s.PeriodEnd.Equal(f.now.AddDate(1, 0, 0))
	})).Return(nil)
	f.switches.On("Complete", ctx, "sw-1").Return(nil)

	res, err := f.service.Sync(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, SyncSwitched, res.Status)
	f.subs.AssertExpectations(t)
}

// TestPurpose: Validates that an overdue active subscription is persisted as inactive and the assistant disabled.
// Scope: Unit Test
// Expected: Status "expired", a conditional active/trial -> inactive write, and the assistant flag turned off.
// Test Case ID: SUB-EXP-01
func TestService_CheckExpiration_ExpiresOverdue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	clinic := &tenant.Tenant{ID: "clinic-1", AssistantEnabled: true}

	f.subs.On("GetAuthoritative", ctx, "clinic-1").Return(&Subscription{
		ID: "sub-1", TenantID: "clinic-1", PlanName: "premium", Status: StatusActive, PeriodEnd: f.now.Add(-time.Minute),
	}, nil)
	f.subs.On("SetStatus", ctx, "sub-1", []Status{StatusActive, StatusTrial}, StatusInactive).Return(true, nil)
	f.tenants.On("GetTenant", ctx, "clinic-1").Return(clinic, nil)
	f.tenants.On("DisableAssistant", ctx, clinic, audit.ActorSystem).Return(nil)

	res, err := f.service.CheckExpiration(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, ExpirationExpired, res.Status)
	assert.Equal(t, "premium", res.Plan)

	f.subs.AssertExpectations(t)
	f.tenants.AssertExpectations(t)
}

func TestService_CheckExpiration_AssistantFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.subs.On("GetAuthoritative", ctx, "clinic-1").Return(&Subscription{
		ID: "sub-1", Status: StatusTrial, PlanName: PlanTrial, PeriodEnd: f.now.Add(-time.Hour),
	}, nil)
	f.subs.On("SetStatus", ctx, "sub-1", []Status{StatusActive, StatusTrial}, StatusInactive).Return(true, nil)
	f.tenants.On("GetTenant", ctx, "clinic-1").Return(nil, errors.New("connection reset"))

	res, err := f.service.CheckExpiration(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, ExpirationExpired, res.Status)
}

func TestService_CheckExpiration_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		offset time.Duration
		want   string
	}{
		{"active within period", StatusActive, time.Hour, ExpirationActive},
		{"pending", StatusPending, time.Hour, ExpirationExpired},
		{"past due", StatusPastDue, time.Hour, ExpirationExpired},
		{"canceled in grace", StatusCanceled, time.Hour, ExpirationActive},
		{"canceled past end", StatusCanceled, -time.Hour, ExpirationExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			f.subs.On("GetAuthoritative", ctx, "clinic-1").Return(&Subscription{ID: "sub-1", Status: tt.status, PeriodEnd: f.now.Add(tt.offset)}, nil)

			res, err := f.service.CheckExpiration(ctx, "clinic-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			f.subs.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestService_CheckExpiration_NoSubscription(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.subs.On("GetAuthoritative", ctx, "clinic-1").Return(nil, ErrSubscriptionNotFound)

	res, err := f.service.CheckExpiration(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, ExpirationActive, res.Status)
}

func TestService_Trial(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.subs.On("GetAuthoritative", ctx, "clinic-1").Return(&Subscription{Status: StatusTrial, PeriodEnd: f.now.Add(48 * time.Hour)}, nil)
	f.subs.On("GetAuthoritative", ctx, "clinic-2").Return(nil, ErrSubscriptionNotFound)

	status, err := f.service.Trial(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, TrialStatus{ShowWarning: true, DaysRemaining: 2}, status)

	status, err = f.service.Trial(ctx, "clinic-2")
	require.NoError(t, err)
	assert.Equal(t, TrialStatus{}, status)
}
