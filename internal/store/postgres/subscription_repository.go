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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clinicflow/clinicflow/internal/apperr"
	"github.com/clinicflow/clinicflow/internal/subscription"
)

// SubscriptionRepository implements subscription.Repository.
// Every write is an absolute, conditional UPDATE so the webhook and the
// guard's sync converge when they race on the same row.
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `s.id, s.tenant_id, s.plan_id, p.name, s.status, s.cycle,
	s.period_start, s.period_end, s.trial_ends_at, s.created_at, s.updated_at`

// authoritativeSubscriptions selects each tenant's row with the latest period end.
const authoritativeSubscriptions = `
	SELECT DISTINCT ON (s.tenant_id) ` + subscriptionColumns + `
	FROM subscriptions s
	JOIN plans p ON p.id = s.plan_id
	ORDER BY s.tenant_id, s.period_end DESC, s.updated_at DESC`

// Create creates a new subscription
func (r *SubscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	_, err := r.db.sql.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, tenant_id, plan_id, status, cycle, period_start, period_end, trial_ends_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		sub.ID, sub.TenantID, sub.PlanID, string(sub.Status), string(sub.Cycle),
		sub.PeriodStart, sub.PeriodEnd, nullTime(sub.TrialEndsAt), sub.CreatedAt, sub.UpdatedAt,
	)
	return apperr.Store("insert subscription", err)
}

// GetAuthoritative returns the tenant's subscription with the latest period end
func (r *SubscriptionRepository) GetAuthoritative(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	row := r.db.sql.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions s
		JOIN plans p ON p.id = s.plan_id
		WHERE s.tenant_id = $1
		ORDER BY s.period_end DESC, s.updated_at DESC
		LIMIT 1
	`, tenantID)

	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, apperr.Store("get subscription", err)
	}
	return sub, nil
}

// Activate writes the purchased period. A row that is active with a later
// period end is left untouched.
func (r *SubscriptionRepository) Activate(ctx context.Context, a subscription.Activation) (bool, error) {
	res, err := r.db.sql.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = 'active', plan_id = $2, cycle = $3,
			period_start = $4, period_end = $5, trial_ends_at = NULL, updated_at = $6
		WHERE id = $1
			AND NOT (status = 'active' AND period_end > $5)
	`, a.SubscriptionID, a.PlanID, string(a.Cycle), a.PeriodStart, a.PeriodEnd, time.Now().UTC())
	if err != nil {
		return false, apperr.Store("activate subscription", err)
	}
	ok, err := affected(res)
	return ok, apperr.Store("activate subscription", err)
}

// SetStatus moves the row to `to` only from one of the `from` statuses
func (r *SubscriptionRepository) SetStatus(ctx context.Context, id string, from []subscription.Status, to subscription.Status) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := []any{id, string(to), time.Now().UTC()}
	for _, s := range from {
		args = append(args, string(s))
	}
	query := fmt.Sprintf(`
		UPDATE subscriptions SET status = $2, updated_at = $3
		WHERE id = $1 AND status IN (%s)
	`, placeholders(4, len(from)))

	res, err := r.db.sql.ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperr.Store("set subscription status", err)
	}
	ok, err := affected(res)
	return ok, apperr.Store("set subscription status", err)
}

// ListOverdue returns authoritative active or trial subscriptions that ended before now
func (r *SubscriptionRepository) ListOverdue(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT a.* FROM (`+authoritativeSubscriptions+`) a
		WHERE a.status IN ('active', 'trial') AND a.period_end < $1
	`, now)
	if err != nil {
		return nil, apperr.Store("list overdue subscriptions", err)
	}
	defer rows.Close()

	var subs []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, apperr.Store("scan subscription", err)
		}
		subs = append(subs, sub)
	}
	return subs, apperr.Store("list overdue subscriptions", rows.Err())
}

// ListCanceledPastGrace returns tenants whose authoritative subscription is
// canceled and ended before cutoff while their assistant is still on
func (r *SubscriptionRepository) ListCanceledPastGrace(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT a.tenant_id FROM (`+authoritativeSubscriptions+`) a
		JOIN clinics c ON c.id = a.tenant_id
		WHERE a.status = 'canceled' AND a.period_end < $1 AND c.assistant_enabled
	`, cutoff)
	if err != nil {
		return nil, apperr.Store("list canceled subscriptions", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Store("scan tenant id", err)
		}
		ids = append(ids, id)
	}
	return ids, apperr.Store("list canceled subscriptions", rows.Err())
}

func scanSubscription(row scanner) (*subscription.Subscription, error) {
	var (
		sub         subscription.Subscription
		status      string
		cycle       string
		trialEndsAt sql.NullTime
	)
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.PlanID, &sub.PlanName, &status, &cycle,
		&sub.PeriodStart, &sub.PeriodEnd, &trialEndsAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = subscription.Status(status)
	sub.Cycle = subscription.Cycle(cycle)
	sub.PeriodStart = sub.PeriodStart.UTC()
	sub.PeriodEnd = sub.PeriodEnd.UTC()
	sub.TrialEndsAt = timePtr(trialEndsAt)
	return &sub, nil
}
