package subscription

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/clinicflow/clinicflow/internal/audit"
	"github.com/clinicflow/clinicflow/internal/events"
	"github.com/clinicflow/clinicflow/internal/tenant"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, sub *Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *mockRepo) GetAuthoritative(ctx context.Context, tenantID string) (*Subscription, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Subscription), args.Error(1)
}

func (m *mockRepo) Activate(ctx context.Context, a Activation) (bool, error) {
	args := m.Called(ctx, a)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) SetStatus(ctx context.Context, id string, from []Status, to Status) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) ListOverdue(ctx context.Context, now time.Time) ([]*Subscription, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]*Subscription), args.Error(1)
}

func (m *mockRepo) ListCanceledPastGrace(ctx context.Context, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]string), args.Error(1)
}

type mockPlanRepo struct {
	mock.Mock
}

func (m *mockPlanRepo) GetByName(ctx context.Context, name string) (*Plan, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Plan), args.Error(1)
}

func (m *mockPlanRepo) GetByID(ctx context.Context, id string) (*Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Plan), args.Error(1)
}

func (m *mockPlanRepo) List(ctx context.Context) ([]*Plan, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*Plan), args.Error(1)
}

func (m *mockPlanRepo) Upsert(ctx context.Context, plan *Plan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

type mockSwitchRepo struct {
	mock.Mock
}

func (m *mockSwitchRepo) Schedule(ctx context.Context, sw *PlanSwitch) error {
	args := m.Called(ctx, sw)
	return args.Error(0)
}

func (m *mockSwitchRepo) GetPending(ctx context.Context, tenantID string) (*PlanSwitch, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PlanSwitch), args.Error(1)
}

func (m *mockSwitchRepo) Claim(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockSwitchRepo) Complete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockTenants struct {
	mock.Mock
}

func (m *mockTenants) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.Tenant), args.Error(1)
}

func (m *mockTenants) DisableAssistant(ctx context.Context, t *tenant.Tenant, actorID string) error {
	args := m.Called(ctx, t, actorID)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishPayment(ctx context.Context, msg events.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockPublisher) PublishSubscription(ctx context.Context, msg events.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type fixture struct {
	subs      *mockRepo
	plans     *mockPlanRepo
	switches  *mockSwitchRepo
	tenants   *mockTenants
	publisher *mockPublisher
	service   *Service
	now       time.Time
}

var (
	trialPlan   = &Plan{ID: "plan-trial", Name: PlanTrial}
	premiumPlan = &Plan{ID: "plan-premium", Name: "premium", DisplayName: "Premium", MonthlyPrice: 29700, AnnualPrice: 297000}
)

func newFixture() *fixture {
	f := &fixture{
		subs:      new(mockRepo),
		plans:     new(mockPlanRepo),
		switches:  new(mockSwitchRepo),
		tenants:   new(mockTenants),
		publisher: new(mockPublisher),
		now:       time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC),
	}
	f.publisher.On("PublishSubscription", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.service = NewService(f.subs, f.switches, NewCatalog(f.plans, 8, time.Minute), f.tenants,
		audit.Nop{}, f.publisher, WithClock(func() time.Time { return f.now }))
	return f
}
