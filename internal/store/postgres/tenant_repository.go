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
	"github.com/clinicflow/clinicflow/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `c.id, c.name, c.email, c.phone, c.document,
	COALESCE(c.billing_customer_id, ''), c.assistant_enabled, c.created_at, c.updated_at`

// Create creates a new clinic
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	_, err := r.db.sql.ExecContext(ctx, `
		INSERT INTO clinics (
			id, name, email, phone, document, billing_customer_id, assistant_enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		t.ID, t.Name, t.Email, t.Phone, t.Document, nullString(t.BillingCustomerID),
		t.AssistantEnabled, t.CreatedAt, t.UpdatedAt,
	)
	return apperr.Store("insert clinic", err)
}

// GetByID retrieves a clinic by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	row := r.db.sql.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM clinics c WHERE c.id = $1`, id)
	return scanTenant(row)
}

// GetByUserID retrieves the clinic bound to a user profile
func (r *TenantRepository) GetByUserID(ctx context.Context, userID string) (*tenant.Tenant, error) {
	row := r.db.sql.QueryRowContext(ctx, `
		SELECT `+tenantColumns+`
		FROM clinics c
		JOIN profiles p ON p.clinic_id = c.id
		WHERE p.user_id = $1
	`, userID)
	return scanTenant(row)
}

// BindUser binds a user profile to a clinic
func (r *TenantRepository) BindUser(ctx context.Context, userID, tenantID string) error {
	_, err := r.db.sql.ExecContext(ctx, `
		INSERT INTO profiles (user_id, clinic_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET clinic_id = EXCLUDED.clinic_id
	`, userID, tenantID, time.Now().UTC())
	return apperr.Store("bind profile", err)
}

// SetAssistantEnabled sets the clinic's assistant flag
func (r *TenantRepository) SetAssistantEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.sql.ExecContext(ctx, `
		UPDATE clinics SET assistant_enabled = $2, updated_at = $3 WHERE id = $1
	`, id, enabled, time.Now().UTC())
	return r.checkUpdated(res, err, "update assistant flag")
}

// SetBillingCustomerID stores the gateway customer id
func (r *TenantRepository) SetBillingCustomerID(ctx context.Context, id, customerID string) error {
	res, err := r.db.sql.ExecContext(ctx, `
		UPDATE clinics SET billing_customer_id = $2, updated_at = $3 WHERE id = $1
	`, id, nullString(customerID), time.Now().UTC())
	return r.checkUpdated(res, err, "update billing customer")
}

func (r *TenantRepository) checkUpdated(res sql.Result, err error, op string) error {
	if err != nil {
		return apperr.Store(op, err)
	}
	ok, err := affected(res)
	if err != nil {
		return apperr.Store(op, err)
	}
	if !ok {
		return tenant.ErrTenantNotFound
	}
	return nil
}

func scanTenant(row scanner) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.Email, &t.Phone, &t.Document,
		&t.BillingCustomerID, &t.AssistantEnabled, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrTenantNotFound
	}
	if err != nil {
		return nil, apperr.Store("get clinic", err)
	}
	return &t, nil
}
