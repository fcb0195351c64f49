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

// Package guard decides, for every protected navigation, whether a tenant may
// use the product or must be sent to a payment flow.
//
// States are derived on each evaluation and never stored. The guard never
// fails: store and remote errors degrade to a conservative redirect.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/internal/apperr"
	"github.com/clinicflow/clinicflow/internal/audit"
	"github.com/clinicflow/clinicflow/internal/observability/logger"
	"github.com/clinicflow/clinicflow/internal/observability/metrics"
	"github.com/clinicflow/clinicflow/internal/session"
	"github.com/clinicflow/clinicflow/internal/subscription"
	"github.com/clinicflow/clinicflow/internal/tenant"
)

// State is the derived access state of a tenant.
type State string

const (
	StateNoIdentity              State = "no_identity"
	StateNoTenant                State = "no_tenant"
	StateNoSubscription          State = "no_subscription"
	StateActiveExpiredUnresolved State = "active_expired_unresolved"
	StateActiveValid             State = "active_valid"
	StateTrialValid              State = "trial_valid"
	StateTrialExpired            State = "trial_expired"
	StateCanceledWithinGrace     State = "canceled_within_grace"
	StateCanceledExpiredGrace    State = "canceled_expired_grace"
	StatePending                 State = "pending"
	StateInactive                State = "inactive"
	// StateUnresolved is reported when the tenant's state could not be loaded.
	StateUnresolved State = "unresolved"
)

// Action tells the caller what to do with the navigation.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionRedirect Action = "redirect"
)

// Redirect targets
const (
	RoutePublicEntry    = "/"
	RoutePlanSelection  = "/dashboard/planos"
	RoutePaymentPending = "/pagamento-pendente"
	RouteRenewal        = "/renovar-assinatura"
)

// resolutionRoutes are the pages a blocked tenant is sent to. Rendering them
// is always allowed.
var resolutionRoutes = []string{RouteRenewal, RoutePaymentPending, RoutePlanSelection, "/planos"}

// DefaultTimeout bounds every remote call and side effect.
const DefaultTimeout = 3 * time.Second

// Decision is the outcome of one evaluation.
type Decision struct {
	Action Action `json:"action"`
	Target string `json:"target,omitempty"`
	State  State  `json:"state"`
}

// Tenants resolves the tenant bound to a user and flips its assistant flag.
type Tenants interface {
	TenantForUser(ctx context.Context, userID string) (*tenant.Tenant, error)
	DisableAssistant(ctx context.Context, t *tenant.Tenant, actorID string) error
}

// Subscriptions loads the authoritative subscription.
type Subscriptions interface {
	GetAuthoritative(ctx context.Context, tenantID string) (*subscription.Subscription, error)
}

// Remote resolves a stale subscription. Implementations may be in-process or
// a separately deployed subscription API.
type Remote interface {
	Sync(ctx context.Context, tenantID string) (*subscription.SyncResult, error)
	CheckExpiration(ctx context.Context, tenantID string) (*subscription.ExpirationResult, error)
}

// Guard evaluates access.
type Guard struct {
	tenants Tenants
	subs    Subscriptions
	remote  Remote
	meter   *metrics.Meter
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithTimeout sets the bound on remote calls and side effects.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMeter records decisions and remote call latency.
func WithMeter(m *metrics.Meter) Option {
	return func(g *Guard) { g.meter = m }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New creates a guard.
func New(tenants Tenants, subs Subscriptions, remote Remote, opts ...Option) *Guard {
	g := &Guard{
		tenants: tenants,
		subs:    subs,
		remote:  remote,
		timeout: DefaultTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate decides access for a navigation to route.
func (g *Guard) Evaluate(ctx context.Context, id *session.Identity, route string) Decision {
	d := g.evaluate(ctx, id, route)
	g.meter.RecordGuardDecision(ctx, string(d.State), string(d.Action))
	if d.Action == ActionRedirect {
		slog.DebugContext(ctx, "access redirected",
			logger.Route(route),
			logger.AccessState(string(d.State)),
			slog.String("target", d.Target),
		)
	}
	return d
}

func (g *Guard) evaluate(ctx context.Context, id *session.Identity, route string) Decision {
	if id == nil || id.UserID == "" || id.IsExpired(g.now()) {
		return Decision{Action: ActionRedirect, Target: RoutePublicEntry, State: StateNoIdentity}
	}

	t, err := g.tenants.TenantForUser(ctx, id.UserID)
	if errors.Is(err, tenant.ErrTenantNotFound) || apperr.IsNotFound(err) {
		return allow(StateNoTenant)
	}
	if err != nil {
		slog.ErrorContext(ctx, "guard failed to resolve tenant", logger.UserID(id.UserID), logger.Error(err))
		return redirect(route, RouteRenewal, StateUnresolved)
	}

	return g.decide(ctx, t, route, false)
}

// decide runs the decision procedure from the subscription load onwards.
// reentered is set after a plan switch so the procedure runs at most twice.
func (g *Guard) decide(ctx context.Context, t *tenant.Tenant, route string, reentered bool) Decision {
	sub, err := g.subs.GetAuthoritative(ctx, t.ID)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return allow(StateNoSubscription)
	}
	if err != nil {
		slog.ErrorContext(ctx, "guard failed to load subscription", logger.TenantID(t.ID), logger.Error(err))
		return redirect(route, RouteRenewal, StateUnresolved)
	}

	now := g.now()
	switch sub.Status {
	case subscription.StatusActive:
		if sub.Expired(now) {
			return g.resolve(ctx, t, sub, route, StateActiveExpiredUnresolved, reentered)
		}
		return allow(StateActiveValid)
	case subscription.StatusTrial:
		if sub.Expired(now) {
			return g.resolve(ctx, t, sub, route, StateTrialExpired, reentered)
		}
		return allow(StateTrialValid)
	case subscription.StatusCanceled:
		if withinGrace(now, sub.PeriodEnd) {
			return allow(StateCanceledWithinGrace)
		}
		g.disableAssistant(ctx, t)
		return redirect(route, RoutePlanSelection, StateCanceledExpiredGrace)
	case subscription.StatusPending:
		return redirect(route, blockedTarget(sub), StatePending)
	case subscription.StatusInactive, subscription.StatusPastDue:
		return redirect(route, blockedTarget(sub), StateInactive)
	}
	return allow(StateActiveValid)
}

// resolve handles a subscription whose stored status lags the wall clock.
// Only a confirmed expiration picks a specific page; anything else falls back
// to renewal.
func (g *Guard) resolve(ctx context.Context, t *tenant.Tenant, sub *subscription.Subscription, route string, state State, reentered bool) Decision {
	if !reentered {
		res, err := bounded(ctx, g.timeout, func(ctx context.Context) (*subscription.SyncResult, error) {
			return g.remote.Sync(ctx, t.ID)
		}, g.observe("sync"))
		switch {
		case err != nil:
			slog.WarnContext(ctx, "subscription sync failed", logger.TenantID(t.ID), logger.Error(err))
		case res != nil && res.Status == subscription.SyncSwitched:
			slog.InfoContext(ctx, "plan switched, re-evaluating access",
				logger.TenantID(t.ID),
				logger.Plan(res.NewPlan),
			)
			return g.decide(ctx, t, route, true)
		}
	}

	res, err := bounded(ctx, g.timeout, func(ctx context.Context) (*subscription.ExpirationResult, error) {
		return g.remote.CheckExpiration(ctx, t.ID)
	}, g.observe("check_expiration"))
	if err != nil {
		slog.WarnContext(ctx, "expiration check failed", logger.TenantID(t.ID), logger.Error(err))
		return redirect(route, RouteRenewal, state)
	}
	if res != nil && res.Status == subscription.ExpirationExpired {
		if sub.IsTrialPlan() {
			return redirect(route, RouteRenewal, state)
		}
		return redirect(route, RoutePaymentPending, state)
	}
	return redirect(route, RouteRenewal, state)
}

func (g *Guard) disableAssistant(ctx context.Context, t *tenant.Tenant) {
	if !t.AssistantEnabled {
		return
	}
	_, err := bounded(ctx, g.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.tenants.DisableAssistant(ctx, t, audit.ActorGuard)
	}, g.observe("disable_assistant"))
	if err != nil {
		slog.WarnContext(ctx, "failed to disable assistant past grace", logger.TenantID(t.ID), logger.Error(err))
	}
}

func (g *Guard) observe(op string) func(time.Duration, bool) {
	return func(elapsed time.Duration, timedOut bool) {
		g.meter.RecordRemoteCall(context.Background(), op, elapsed.Seconds(), timedOut)
	}
}

// blockedTarget picks the resolution page for a blocking subscription.
func blockedTarget(sub *subscription.Subscription) string {
	switch {
	case sub.Status == subscription.StatusCanceled:
		return RoutePlanSelection
	case sub.IsTrialPlan():
		return RouteRenewal
	default:
		return RoutePaymentPending
	}
}

// withinGrace compares calendar days in UTC: access lasts until the end of
// the day the period ends.
func withinGrace(now, periodEnd time.Time) bool {
	return !startOfDay(now).After(startOfDay(periodEnd))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsResolutionRoute reports whether route is one of the payment flow pages.
func IsResolutionRoute(route string) bool {
	for _, r := range resolutionRoutes {
		if strings.Contains(route, r) {
			return true
		}
	}
	return false
}

func allow(state State) Decision {
	return Decision{Action: ActionAllow, State: state}
}

// redirect sends the user to target unless they are already on a resolution page.
func redirect(route, target string, state State) Decision {
	if IsResolutionRoute(route) {
		return allow(state)
	}
	return Decision{Action: ActionRedirect, Target: target, State: state}
}
