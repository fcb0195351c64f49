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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/apperr"
	"github.com/clinicflow/clinicflow/internal/audit"
	"github.com/clinicflow/clinicflow/internal/events"
	"github.com/clinicflow/clinicflow/internal/observability/logger"
	"github.com/clinicflow/clinicflow/internal/tenant"
)

// TrialDays is the length of the free trial granted at registration.
const TrialDays = 7

// Sync outcomes
const (
	SyncSwitched = "switched"
	SyncNoop     = "noop"
)

// Expiration outcomes
const (
	ExpirationExpired = "expired"
	ExpirationActive  = "active"
)

// SyncResult reports whether a scheduled plan switch was applied.
type SyncResult struct {
	Status string `json:"status"`
	// NewPlan is the target plan name of a pending or applied switch.
	NewPlan    string     `json:"new_plan,omitempty"`
	SwitchDate *time.Time `json:"switch_date,omitempty"`
}

// ExpirationResult reports whether the tenant's subscription has lapsed.
type ExpirationResult struct {
	Status    string     `json:"status"`
	Plan      string     `json:"plan,omitempty"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
}

// TenantDirectory is the tenant surface used for assistant-flag side effects.
type TenantDirectory interface {
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	DisableAssistant(ctx context.Context, t *tenant.Tenant, actorID string) error
}

// Service maintains subscriptions outside the payment webhook: scheduled plan
// switches, expiration and trials.
type Service struct {
	subs        Repository
	switches    SwitchRepository
	plans       *Catalog
	tenants     TenantDirectory
	auditLogger audit.Logger
	publisher   events.Publisher
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new subscription service
func NewService(subs Repository, switches SwitchRepository, plans *Catalog, tenants TenantDirectory, auditLogger audit.Logger, publisher events.Publisher, opts ...Option) *Service {
	s := &Service{
		subs:        subs,
		switches:    switches,
		plans:       plans,
		tenants:     tenants,
		auditLogger: auditLogger,
		publisher:   publisher,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trial evaluates the tenant's current period. A tenant without a
// subscription gets the zero status.
func (s *Service) Trial(ctx context.Context, tenantID string) (TrialStatus, error) {
	sub, err := s.subs.GetAuthoritative(ctx, tenantID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return TrialStatus{}, nil
	}
	if err != nil {
		return TrialStatus{}, err
	}
	return EvaluateTrial(sub, s.now()), nil
}

// StartTrial gives a newly registered tenant the trial plan for TrialDays.
func (s *Service) StartTrial(ctx context.Context, tenantID string) (*Subscription, error) {
	plan, err := s.plans.Get(ctx, PlanTrial)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate subscription id: %w", err)
	}

	now := s.now()
	end := now.AddDate(0, 0, TrialDays)
	sub := &Subscription{
		ID:          id.String(),
		TenantID:    tenantID,
		PlanID:      plan.ID,
		PlanName:    plan.Name,
		Status:      StatusTrial,
		Cycle:       CycleMonthly,
		PeriodStart: now,
		PeriodEnd:   end,
		TrialEndsAt: &end,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create trial subscription: %w", err)
	}
	return sub, nil
}

// ScheduleSwitch records a plan change that applies when the current period ends.
func (s *Service) ScheduleSwitch(ctx context.Context, tenantID, planName string, cycle Cycle) (*PlanSwitch, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant_id", "is required")
	}
	if _, err := ParseCycle(string(cycle)); err != nil {
		return nil, err
	}
	plan, err := s.plans.Get(ctx, planName)
	if err != nil {
		return nil, err
	}
	if plan.Name == PlanTrial {
		return nil, apperr.Validation("plan", "cannot switch to the trial plan")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate switch id: %w", err)
	}
	now := s.now()
	sw := &PlanSwitch{
		ID:        id.String(),
		TenantID:  tenantID,
		PlanID:    plan.ID,
		Cycle:     cycle,
		Status:    SwitchScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.switches.Schedule(ctx, sw); err != nil {
		return nil, fmt.Errorf("failed to schedule plan switch: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePlanSwitchScheduled,
		TenantID: tenantID,
		Resource: sw.ID,
		Metadata: map[string]any{"plan": plan.Name, "cycle": string(cycle)},
	})
	return sw, nil
}

// Sync applies the tenant's scheduled plan switch once the current period has
// ended. Concurrent callers race on a conditional claim; the loser gets noop.
func (s *Service) Sync(ctx context.Context, tenantID string) (*SyncResult, error) {
	sw, err := s.switches.GetPending(ctx, tenantID)
	if errors.Is(err, ErrSwitchNotFound) {
		return &SyncResult{Status: SyncNoop}, nil
	}
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.GetByID(ctx, sw.PlanID)
	if err != nil {
		return nil, err
	}

	current, err := s.subs.GetAuthoritative(ctx, tenantID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		current = nil
	} else if err != nil {
		return nil, err
	}

	now := s.now()
	if sw.Status == SwitchProcessing && current != nil && current.PlanID == sw.PlanID &&
		current.Status == StatusActive && !current.Expired(now) {
		// The subscription write landed before an interruption; only the
		// switch row is left to finish.
		if err := s.switches.Complete(ctx, sw.ID); err != nil {
			return nil, fmt.Errorf("failed to complete plan switch: %w", err)
		}
		start := current.PeriodStart
		return &SyncResult{Status: SyncSwitched, NewPlan: plan.Name, SwitchDate: &start}, nil
	}
	if current != nil && !current.Expired(now) {
		end := current.PeriodEnd
		return &SyncResult{Status: SyncNoop, NewPlan: plan.Name, SwitchDate: &end}, nil
	}

	if sw.Status == SwitchScheduled {
		claimed, err := s.switches.Claim(ctx, sw.ID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			slog.InfoContext(ctx, "plan switch claimed by another worker",
				logger.TenantID(tenantID),
				logger.String("switch_id", sw.ID),
			)
			return &SyncResult{Status: SyncNoop, NewPlan: plan.Name}, nil
		}
	} else {
		slog.InfoContext(ctx, "resuming interrupted plan switch",
			logger.TenantID(tenantID),
			logger.String("switch_id", sw.ID),
		)
	}

	// The new period continues from the old one; if that would already be
	// over, it starts now instead.
	start := now
	if current != nil {
		start = current.PeriodEnd
	}
	end := sw.Cycle.AddTo(start)
	if !end.After(now) {
		start = now
		end = sw.Cycle.AddTo(now)
	}

	if current != nil {
		if _, err := s.subs.Activate(ctx, Activation{
			SubscriptionID: current.ID,
			PlanID:         sw.PlanID,
			Cycle:          sw.Cycle,
			PeriodStart:    start,
			PeriodEnd:      end,
		}); err != nil {
			return nil, fmt.Errorf("failed to apply plan switch: %w", err)
		}
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate subscription id: %w", err)
		}
		if err := s.subs.Create(ctx, &Subscription{
			ID:          id.String(),
			TenantID:    tenantID,
			PlanID:      sw.PlanID,
			Status:      StatusActive,
			Cycle:       sw.Cycle,
			PeriodStart: start,
			PeriodEnd:   end,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return nil, fmt.Errorf("failed to create switched subscription: %w", err)
		}
	}

	if err := s.switches.Complete(ctx, sw.ID); err != nil {
		return nil, fmt.Errorf("failed to complete plan switch: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePlanSwitched,
		TenantID: tenantID,
		Resource: sw.ID,
		Metadata: map[string]any{"plan": plan.Name, "period_end": end.Format(time.RFC3339)},
	})
	s.publish(ctx, events.Message{TenantID: tenantID, Status: string(StatusActive), Plan: plan.Name})

	return &SyncResult{Status: SyncSwitched, NewPlan: plan.Name, SwitchDate: &start}, nil
}

// CheckExpiration persists the lapse of an overdue active or trial
// subscription and reports whether the tenant is expired.
func (s *Service) CheckExpiration(ctx context.Context, tenantID string) (*ExpirationResult, error) {
	sub, err := s.subs.GetAuthoritative(ctx, tenantID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return &ExpirationResult{Status: ExpirationActive}, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	end := sub.PeriodEnd
	result := &ExpirationResult{Status: ExpirationActive, Plan: sub.PlanName, PeriodEnd: &end}

	switch {
	case (sub.Status == StatusActive || sub.Status == StatusTrial) && sub.Expired(now):
		applied, err := s.subs.SetStatus(ctx, sub.ID, []Status{StatusActive, StatusTrial}, StatusInactive)
		if err != nil {
			return nil, fmt.Errorf("failed to expire subscription: %w", err)
		}
		if applied {
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeSubscriptionExpired,
				TenantID: tenantID,
				Resource: sub.ID,
				Metadata: map[string]any{"plan": sub.PlanName, "previous_status": string(sub.Status)},
			})
			s.publish(ctx, events.Message{TenantID: tenantID, SubscriptionID: sub.ID, Status: string(StatusInactive), Plan: sub.PlanName})
		}
		s.disableAssistant(ctx, tenantID)
		result.Status = ExpirationExpired
	case sub.Status.IsBlocking():
		result.Status = ExpirationExpired
	case sub.Status == StatusCanceled && sub.Expired(now):
		result.Status = ExpirationExpired
	}

	return result, nil
}

// DisableAssistantForTenant turns off the assistant for a lapsed tenant.
func (s *Service) DisableAssistantForTenant(ctx context.Context, tenantID, actorID string) error {
	t, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.tenants.DisableAssistant(ctx, t, actorID)
}

func (s *Service) disableAssistant(ctx context.Context, tenantID string) {
	if err := s.DisableAssistantForTenant(ctx, tenantID, audit.ActorSystem); err != nil {
		slog.WarnContext(ctx, "failed to disable assistant",
			logger.TenantID(tenantID),
			logger.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, msg events.Message) {
	if err := s.publisher.PublishSubscription(ctx, msg); err != nil {
		slog.WarnContext(ctx, "failed to publish subscription event",
			logger.TenantID(msg.TenantID),
			logger.Error(err),
		)
	}
}
