package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/clinicflow/clinicflow/internal/events"
	"github.com/clinicflow/clinicflow/internal/payment"
	"github.com/clinicflow/clinicflow/internal/subscription"
)

// memPayments is an in-memory payment store with the same conditional
// semantics as the SQL repository.
type memPayments struct {
	mu   sync.Mutex
	rows map[string]*payment.Payment
}

func newMemPayments(ps ...*payment.Payment) *memPayments {
	m := &memPayments{rows: map[string]*payment.Payment{}}
	for _, p := range ps {
		m.rows[p.ExternalID] = p
	}
	return m
}

func (m *memPayments) Create(ctx context.Context, p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.ExternalID] = p
	return nil
}

func (m *memPayments) GetByExternalID(ctx context.Context, externalID string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[externalID]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) GetLatestForTenant(ctx context.Context, tenantID string) (*payment.Payment, error) {
	return nil, payment.ErrPaymentNotFound
}

func (m *memPayments) Transition(ctx context.Context, id string, to payment.Status, paidAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.ID != id {
			continue
		}
		if p.Status != payment.StatusPending {
			return false, nil
		}
		p.Status = to
		if p.PaidAt == nil && paidAt != nil {
			at := *paidAt
			p.PaidAt = &at
		}
		return true, nil
	}
	return false, nil
}

type memSubs struct {
	mu        sync.Mutex
	rows      map[string]*subscription.Subscription
	failWrite error
}

func newMemSubs(subs ...*subscription.Subscription) *memSubs {
	m := &memSubs{rows: map[string]*subscription.Subscription{}}
	for _, s := range subs {
		m.rows[s.ID] = s
	}
	return m
}

func (m *memSubs) Create(ctx context.Context, sub *subscription.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	cp := *sub
	m.rows[sub.ID] = &cp
	return nil
}

func (m *memSubs) GetAuthoritative(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *subscription.Subscription
	for _, s := range m.rows {
		if s.TenantID == tenantID && (best == nil || s.PeriodEnd.After(best.PeriodEnd)) {
			best = s
		}
	}
	if best == nil {
		return nil, subscription.ErrSubscriptionNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memSubs) Activate(ctx context.Context, a subscription.Activation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return false, m.failWrite
	}
	s, ok := m.rows[a.SubscriptionID]
	if !ok {
		return false, nil
	}
	if s.Status == subscription.StatusActive && s.PeriodEnd.After(a.PeriodEnd) {
		return false, nil
	}
	s.Status = subscription.StatusActive
	s.PlanID = a.PlanID
	s.Cycle = a.Cycle
	s.PeriodStart = a.PeriodStart
	s.PeriodEnd = a.PeriodEnd
	s.TrialEndsAt = nil
	return true, nil
}

func (m *memSubs) SetStatus(ctx context.Context, id string, from []subscription.Status, to subscription.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return false, m.failWrite
	}
	s, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if s.Status == f {
			s.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memSubs) ListOverdue(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (m *memSubs) ListCanceledPastGrace(ctx context.Context, cutoff time.Time) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (m *memSubs) get(id string) subscription.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

type recordingPublisher struct {
	mu            sync.Mutex
	payments      []events.Message
	subscriptions []events.Message
}

func (p *recordingPublisher) PublishPayment(ctx context.Context, msg events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, msg)
	return nil
}

func (p *recordingPublisher) PublishSubscription(ctx context.Context, msg events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions = append(p.subscriptions, msg)
	return nil
}

type memDeduper struct {
	keys map[string]bool
}

func (d *memDeduper) Seen(ctx context.Context, key string) (bool, error) { return d.keys[key], nil }

func (d *memDeduper) Mark(ctx context.Context, key string) error {
	d.keys[key] = true
	return nil
}
