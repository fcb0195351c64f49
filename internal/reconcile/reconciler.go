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

// Package reconcile turns billing provider payment events into payment and
// subscription state. Processing is idempotent rather than transactional:
// every write is absolute, so a re-delivered event repairs a partial failure.
package reconcile

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
	"github.com/clinicflow/clinicflow/internal/observability/metrics"
	"github.com/clinicflow/clinicflow/internal/observability/tracing"
	"github.com/clinicflow/clinicflow/internal/payment"
	"github.com/clinicflow/clinicflow/internal/subscription"
)

// EventKind is the provider's event name.
type EventKind string

const (
	PaymentReceived  EventKind = "PAYMENT_RECEIVED"
	PaymentConfirmed EventKind = "PAYMENT_CONFIRMED"
	PaymentOverdue   EventKind = "PAYMENT_OVERDUE"
	PaymentDeleted   EventKind = "PAYMENT_DELETED"
	PaymentRefunded  EventKind = "PAYMENT_REFUNDED"
)

// Kinds lists every event kind with a handler.
var Kinds = []EventKind{PaymentReceived, PaymentConfirmed, PaymentOverdue, PaymentDeleted, PaymentRefunded}

// Event is the webhook payload.
type Event struct {
	Event   EventKind    `json:"event"`
	Payment EventPayment `json:"payment"`
}

// EventPayment is the charge snapshot carried by an event. Only ID is trusted;
// everything else is read back from the store.
type EventPayment struct {
	ID                string  `json:"id"`
	Status            string  `json:"status,omitempty"`
	Value             float64 `json:"value,omitempty"`
	BillingType       string  `json:"billingType,omitempty"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

// Validate checks the fields processing depends on.
func (e *Event) Validate() error {
	if e.Event == "" {
		return apperr.Validation("event", "is required")
	}
	if e.Payment.ID == "" {
		return apperr.Validation("payment.id", "is required")
	}
	return nil
}

// Outcome describes how an event was handled. Every outcome is acknowledged.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeRepaired  Outcome = "repaired"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnhandled Outcome = "unhandled"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomePartial   Outcome = "partial"
)

// Deduper remembers fully processed deliveries.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// handler is the effect of one event kind: the payment status it settles to
// and the subscription side effect.
type handler struct {
	target payment.Status
	apply  func(ctx context.Context, p *payment.Payment) (*subscriptionChange, error)
}

type subscriptionChange struct {
	id     string
	status subscription.Status
}

// Reconciler applies payment events.
type Reconciler struct {
	payments    payment.Repository
	subs        subscription.Repository
	auditLogger audit.Logger
	publisher   events.Publisher
	dedupe      Deduper
	now         func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDeduper short-circuits re-delivered events that were already fully processed.
func WithDeduper(d Deduper) Option {
	return func(r *Reconciler) { r.dedupe = d }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a reconciler.
func New(payments payment.Repository, subs subscription.Repository, auditLogger audit.Logger, publisher events.Publisher, opts ...Option) *Reconciler {
	r := &Reconciler{
		payments:    payments,
		subs:        subs,
		auditLogger: auditLogger,
		publisher:   publisher,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// handlerFor maps an event kind to its handler. Kinds without one are acknowledged untouched.
func (r *Reconciler) handlerFor(kind EventKind) (handler, bool) {
	switch kind {
	case PaymentReceived, PaymentConfirmed:
		return handler{target: payment.StatusPaid, apply: r.activate}, true
	case PaymentOverdue:
		return handler{target: payment.StatusFailed, apply: r.markPastDue}, true
	case PaymentDeleted:
		return handler{target: payment.StatusFailed, apply: noSideEffect}, true
	case PaymentRefunded:
		return handler{target: payment.StatusRefunded, apply: r.cancel}, true
	}
	return handler{}, false
}

// Handle processes one event. Errors are only returned for malformed events,
// unknown payments and failures before any write was committed.
func (r *Reconciler) Handle(ctx context.Context, ev Event) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	ctx, span := tracing.Start(ctx, "reconcile.Handle", "")
	outcome, err := r.handle(ctx, ev)
	tracing.End(span, err)
	return outcome, err
}

func (r *Reconciler) handle(ctx context.Context, ev Event) (Outcome, error) {
	p, err := r.payments.GetByExternalID(ctx, ev.Payment.ID)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		return "", apperr.NotFound("payment", ev.Payment.ID)
	}
	if err != nil {
		return "", apperr.Store("get payment", err)
	}

	h, ok := r.handlerFor(ev.Event)
	if !ok {
		slog.InfoContext(ctx, "payment event acknowledged without handler",
			logger.EventKind(string(ev.Event)),
			logger.ChargeID(ev.Payment.ID),
			logger.TenantID(p.TenantID),
		)
		return OutcomeUnhandled, nil
	}

	key := dedupeKey(ev)
	if r.dedupe != nil {
		seen, err := r.dedupe.Seen(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "dedupe lookup failed, processing anyway", logger.Error(err))
		} else if seen {
			return OutcomeDuplicate, nil
		}
	}

	outcome := OutcomeApplied
	switch {
	case p.Status == h.target:
		// Already settled here; re-apply side effects in case a previous delivery failed midway.
		outcome = OutcomeRepaired
	case p.Status.IsTerminal():
		r.ignore(ctx, ev, p)
		return OutcomeIgnored, nil
	default:
		var paidAt *time.Time
		if h.target == payment.StatusPaid {
			now := r.now()
			paidAt = &now
		}
		changed, err := r.payments.Transition(ctx, p.ID, h.target, paidAt)
		if err != nil {
			return "", apperr.Store("transition payment", err)
		}
		if !changed {
			// Lost a race with a concurrent delivery; decide on what it wrote.
			if p, err = r.payments.GetByExternalID(ctx, ev.Payment.ID); err != nil {
				return "", apperr.Store("reload payment", err)
			}
			if p.Status != h.target {
				r.ignore(ctx, ev, p)
				return OutcomeIgnored, nil
			}
			outcome = OutcomeRepaired
		} else {
			p.Status = h.target
			if p.PaidAt == nil {
				p.PaidAt = paidAt
			}
			r.publishPayment(ctx, p)
			r.auditPayment(ctx, ev, p)
		}
	}

	change, err := h.apply(ctx, p)
	if err != nil {
		// The payment write is committed; leave the rest for a re-delivery or support.
		metrics.ManualReconciliationTotal.WithLabelValues(string(ev.Event)).Inc()
		slog.ErrorContext(ctx, "payment settled but subscription update failed",
			logger.ManualReconciliation(),
			logger.EventKind(string(ev.Event)),
			logger.PaymentID(p.ID),
			logger.ChargeID(p.ExternalID),
			logger.TenantID(p.TenantID),
			logger.Error(err),
		)
		r.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeReconciliationRequired,
			TenantID: p.TenantID,
			ActorID:  audit.ActorWebhook,
			Resource: p.ExternalID,
			Metadata: map[string]any{"event": string(ev.Event), "error": err.Error()},
		})
		return OutcomePartial, nil
	}

	if change != nil {
		if err := r.publisher.PublishSubscription(ctx, events.Message{
			TenantID:       p.TenantID,
			PaymentID:      p.ExternalID,
			SubscriptionID: change.id,
			Status:         string(change.status),
		}); err != nil {
			slog.WarnContext(ctx, "failed to publish subscription event", logger.SubscriptionID(change.id), logger.Error(err))
		}
	}

	if r.dedupe != nil {
		if err := r.dedupe.Mark(ctx, key); err != nil {
			slog.WarnContext(ctx, "failed to record processed event", logger.Error(err))
		}
	}
	return outcome, nil
}

// activate starts the paid period. The period is anchored on paid_at so a
// re-delivery computes identical bounds.
func (r *Reconciler) activate(ctx context.Context, p *payment.Payment) (*subscriptionChange, error) {
	anchor := r.now()
	if p.PaidAt != nil {
		anchor = *p.PaidAt
	}
	start := anchor
	end := p.Cycle.AddTo(anchor)

	sub, err := r.subs.GetAuthoritative(ctx, p.TenantID)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate subscription id: %w", err)
		}
		sub = &subscription.Subscription{
			ID:          id.String(),
			TenantID:    p.TenantID,
			PlanID:      p.PlanID,
			Status:      subscription.StatusActive,
			Cycle:       p.Cycle,
			PeriodStart: start,
			PeriodEnd:   end,
			CreatedAt:   anchor,
			UpdatedAt:   anchor,
		}
		if err := r.subs.Create(ctx, sub); err != nil {
			return nil, fmt.Errorf("failed to create subscription: %w", err)
		}
		r.auditActivated(ctx, p, sub.ID, end)
		return &subscriptionChange{id: sub.ID, status: subscription.StatusActive}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	applied, err := r.subs.Activate(ctx, subscription.Activation{
		SubscriptionID: sub.ID,
		PlanID:         p.PlanID,
		Cycle:          p.Cycle,
		PeriodStart:    start,
		PeriodEnd:      end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate subscription: %w", err)
	}
	if !applied {
		slog.InfoContext(ctx, "activation skipped, a later active period is in place",
			logger.TenantID(p.TenantID),
			logger.SubscriptionID(sub.ID),
		)
		return nil, nil
	}
	r.auditActivated(ctx, p, sub.ID, end)
	return &subscriptionChange{id: sub.ID, status: subscription.StatusActive}, nil
}

// markPastDue downgrades the payment tenant's active subscription.
func (r *Reconciler) markPastDue(ctx context.Context, p *payment.Payment) (*subscriptionChange, error) {
	return r.setStatus(ctx, p, []subscription.Status{subscription.StatusActive}, subscription.StatusPastDue, audit.TypeSubscriptionPastDue)
}

// cancel ends the subscription of a refunded purchase.
func (r *Reconciler) cancel(ctx context.Context, p *payment.Payment) (*subscriptionChange, error) {
	return r.setStatus(ctx, p, subscription.SourcesOf(subscription.StatusCanceled), subscription.StatusCanceled, audit.TypeSubscriptionCanceled)
}

func (r *Reconciler) setStatus(ctx context.Context, p *payment.Payment, from []subscription.Status, to subscription.Status, auditType string) (*subscriptionChange, error) {
	sub, err := r.subs.GetAuthoritative(ctx, p.TenantID)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if superseded(sub, p) {
		slog.InfoContext(ctx, "subscription renewed after this payment, status left unchanged",
			logger.TenantID(p.TenantID),
			logger.SubscriptionID(sub.ID),
			logger.ChargeID(p.ExternalID),
			slog.String("skipped_status", string(to)),
		)
		return nil, nil
	}

	applied, err := r.subs.SetStatus(ctx, sub.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to set subscription %s: %w", to, err)
	}
	if !applied {
		return nil, nil
	}

	r.auditLogger.Log(ctx, audit.Event{
		Type:     auditType,
		TenantID: p.TenantID,
		ActorID:  audit.ActorWebhook,
		Resource: sub.ID,
		Metadata: map[string]any{"charge_id": p.ExternalID, "previous_status": string(sub.Status)},
	})
	return &subscriptionChange{id: sub.ID, status: to}, nil
}

// superseded reports whether sub's current period began after p was settled
// (or, if never paid, created). A newer purchase then owns the subscription and
// p's downgrades no longer apply to it.
func superseded(sub *subscription.Subscription, p *payment.Payment) bool {
	ref := p.CreatedAt
	if p.PaidAt != nil {
		ref = *p.PaidAt
	}
	return !ref.IsZero() && sub.PeriodStart.After(ref)
}

func noSideEffect(context.Context, *payment.Payment) (*subscriptionChange, error) {
	return nil, nil
}

func (r *Reconciler) ignore(ctx context.Context, ev Event, p *payment.Payment) {
	slog.WarnContext(ctx, "payment event ignored, payment already settled",
		logger.EventKind(string(ev.Event)),
		logger.PaymentID(p.ID),
		logger.ChargeID(p.ExternalID),
		logger.TenantID(p.TenantID),
		slog.String("payment_status", string(p.Status)),
	)
	r.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePaymentEventIgnored,
		TenantID: p.TenantID,
		ActorID:  audit.ActorWebhook,
		Resource: p.ExternalID,
		Metadata: map[string]any{"event": string(ev.Event), "payment_status": string(p.Status)},
	})
}

func (r *Reconciler) auditPayment(ctx context.Context, ev Event, p *payment.Payment) {
	var t string
	switch p.Status {
	case payment.StatusPaid:
		t = audit.TypePaymentSettled
	case payment.StatusRefunded:
		t = audit.TypePaymentRefunded
	default:
		t = audit.TypePaymentFailed
	}
	r.auditLogger.Log(ctx, audit.Event{
		Type:     t,
		TenantID: p.TenantID,
		ActorID:  audit.ActorWebhook,
		Resource: p.ExternalID,
		Metadata: map[string]any{"event": string(ev.Event), "value_cents": p.ValueCents},
	})
}

func (r *Reconciler) auditActivated(ctx context.Context, p *payment.Payment, subID string, end time.Time) {
	r.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSubscriptionActivated,
		TenantID: p.TenantID,
		ActorID:  audit.ActorWebhook,
		Resource: subID,
		Metadata: map[string]any{"charge_id": p.ExternalID, "period_end": end.Format(time.RFC3339)},
	})
}

func (r *Reconciler) publishPayment(ctx context.Context, p *payment.Payment) {
	if err := r.publisher.PublishPayment(ctx, events.Message{
		TenantID:       p.TenantID,
		PaymentID:      p.ExternalID,
		SubscriptionID: p.SubscriptionID,
		Status:         string(p.Status),
	}); err != nil {
		slog.WarnContext(ctx, "failed to publish payment event", logger.PaymentID(p.ID), logger.Error(err))
	}
}

func dedupeKey(ev Event) string {
	return string(ev.Event) + ":" + ev.Payment.ID
}
