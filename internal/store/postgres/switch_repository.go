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
	"github.com/clinicflow/clinicflow/internal/subscription"
)

// SwitchRepository implements subscription.SwitchRepository
type SwitchRepository struct {
	db *DB
}

// NewSwitchRepository creates a new plan switch repository
func NewSwitchRepository(db *DB) *SwitchRepository {
	return &SwitchRepository{db: db}
}

// Schedule records a switch and cancels the tenant's earlier scheduled ones
func (r *SwitchRepository) Schedule(ctx context.Context, sw *subscription.PlanSwitch) error {
	tx, err := r.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Store("begin schedule switch", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE plan_switches SET status = 'canceled', updated_at = $2
		WHERE tenant_id = $1 AND status = 'scheduled'
	`, sw.TenantID, now); err != nil {
		return apperr.Store("cancel scheduled switches", err)
	}

	sw.Status = subscription.SwitchScheduled
	sw.CreatedAt = now
	sw.UpdatedAt = now
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO plan_switches (id, tenant_id, plan_id, cycle, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sw.ID, sw.TenantID, sw.PlanID, string(sw.Cycle), string(sw.Status), sw.CreatedAt, sw.UpdatedAt); err != nil {
		return apperr.Store("insert plan switch", err)
	}

	return apperr.Store("commit schedule switch", tx.Commit())
}

// GetPending returns the newest scheduled or processing switch
func (r *SwitchRepository) GetPending(ctx context.Context, tenantID string) (*subscription.PlanSwitch, error) {
	var (
		sw     subscription.PlanSwitch
		cycle  string
		status string
	)
	err := r.db.sql.QueryRowContext(ctx, `
		SELECT id, tenant_id, plan_id, cycle, status, created_at, updated_at
		FROM plan_switches
		WHERE tenant_id = $1 AND status IN ('scheduled', 'processing')
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID).Scan(&sw.ID, &sw.TenantID, &sw.PlanID, &cycle, &status, &sw.CreatedAt, &sw.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subscription.ErrSwitchNotFound
	}
	if err != nil {
		return nil, apperr.Store("get plan switch", err)
	}
	sw.Cycle = subscription.Cycle(cycle)
	sw.Status = subscription.SwitchStatus(status)
	return &sw, nil
}

// Claim moves a switch from scheduled to processing. Only one caller wins.
func (r *SwitchRepository) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.db.sql.ExecContext(ctx, `
		UPDATE plan_switches SET status = 'processing', updated_at = $2
		WHERE id = $1 AND status = 'scheduled'
	`, id, time.Now().UTC())
	if err != nil {
		return false, apperr.Store("claim plan switch", err)
	}
	ok, err := affected(res)
	return ok, apperr.Store("claim plan switch", err)
}

// Complete marks a switch completed
func (r *SwitchRepository) Complete(ctx context.Context, id string) error {
	res, err := r.db.sql.ExecContext(ctx, `
		UPDATE plan_switches SET status = 'completed', updated_at = $2
		WHERE id = $1 AND status IN ('scheduled', 'processing', 'completed')
	`, id, time.Now().UTC())
	if err != nil {
		return apperr.Store("complete plan switch", err)
	}
	ok, err := affected(res)
	if err != nil {
		return apperr.Store("complete plan switch", err)
	}
	if !ok {
		return subscription.ErrSwitchNotFound
	}
	return nil
}
