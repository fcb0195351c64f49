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
	"time"

	"github.com/clinicflow/clinicflow/internal/apperr"
	"github.com/clinicflow/clinicflow/internal/payment"
	"github.com/clinicflow/clinicflow/internal/subscription"
)

// PaymentRepository implements payment.Repository
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, tenant_id, COALESCE(subscription_id, ''), plan_id, cycle, method, value_cents,
	status, external_id, due_date, invoice_url, bank_slip_url, pix_payload, paid_at, created_at, updated_at`

// Create creates a new payment
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	_, err := r.db.sql.ExecContext(ctx, `
		INSERT INTO payments (
			id, tenant_id, subscription_id, plan_id, cycle, method, value_cents, status, external_id,
			due_date, invoice_url, bank_slip_url, pix_payload, paid_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		p.ID, p.TenantID, nullString(p.SubscriptionID), p.PlanID, string(p.Cycle), string(p.Method),
		p.ValueCents, string(p.Status), p.ExternalID, p.DueDate, p.InvoiceURL, p.BankSlipURL,
		p.PixPayload, nullTime(p.PaidAt), p.CreatedAt, p.UpdatedAt,
	)
	return apperr.Store("insert payment", err)
}

// GetByExternalID retrieves a payment by its gateway charge id
func (r *PaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*payment.Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE external_id = $1`, externalID)
}

// GetLatestForTenant retrieves the tenant's most recent payment
func (r *PaymentRepository) GetLatestForTenant(ctx context.Context, tenantID string) (*payment.Payment, error) {
	return r.get(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID)
}

// Transition settles a pending payment. paid_at is only written once.
func (r *PaymentRepository) Transition(ctx context.Context, id string, to payment.Status, paidAt *time.Time) (bool, error) {
	res, err := r.db.sql.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, paid_at = COALESCE(paid_at, $3), updated_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, string(to), nullTime(paidAt), time.Now().UTC())
	if err != nil {
		return false, apperr.Store("transition payment", err)
	}
	ok, err := affected(res)
	return ok, apperr.Store("transition payment", err)
}

func (r *PaymentRepository) get(ctx context.Context, query, arg string) (*payment.Payment, error) {
	var (
		p      payment.Payment
		cycle  string
		method string
		status string
		paidAt sql.NullTime
	)
	err := r.db.sql.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.TenantID, &p.SubscriptionID, &p.PlanID, &cycle, &method, &p.ValueCents,
		&status, &p.ExternalID, &p.DueDate, &p.InvoiceURL, &p.BankSlipURL, &p.PixPayload,
		&paidAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrPaymentNotFound
	}
	if err != nil {
		return nil, apperr.Store("get payment", err)
	}
	p.Cycle = subscription.Cycle(cycle)
	p.Method = payment.Method(method)
	p.Status = payment.Status(status)
	p.PaidAt = timePtr(paidAt)
	return &p, nil
}
