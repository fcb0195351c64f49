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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/apperr"
	"github.com/clinicflow/clinicflow/internal/subscription"
)

// PlanRepository implements subscription.PlanRepository.
// Prices are stored as NUMERIC(10,2) and carried as cents.
type PlanRepository struct {
	db *DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, name, display_name,
	(monthly_price * 100)::bigint, (annual_price * 100)::bigint, features, max_professionals`

// GetByName retrieves a plan by name
func (r *PlanRepository) GetByName(ctx context.Context, name string) (*subscription.Plan, error) {
	return r.get(ctx, `SELECT `+planColumns+` FROM plans WHERE name = $1`, name)
}

// GetByID retrieves a plan by ID
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*subscription.Plan, error) {
	return r.get(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
}

func (r *PlanRepository) get(ctx context.Context, query, arg string) (*subscription.Plan, error) {
	p, err := scanPlan(r.db.sql.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subscription.ErrPlanNotFound
	}
	if err != nil {
		return nil, apperr.Store("get plan", err)
	}
	return p, nil
}

// List returns every plan, cheapest first
func (r *PlanRepository) List(ctx context.Context) ([]*subscription.Plan, error) {
	rows, err := r.db.sql.QueryContext(ctx, `SELECT `+planColumns+` FROM plans ORDER BY monthly_price, name`)
	if err != nil {
		return nil, apperr.Store("list plans", err)
	}
	defer rows.Close()

	var plans []*subscription.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, apperr.Store("scan plan", err)
		}
		plans = append(plans, p)
	}
	return plans, apperr.Store("list plans", rows.Err())
}

// Upsert creates or updates a plan by name. An existing plan keeps its id.
func (r *PlanRepository) Upsert(ctx context.Context, p *subscription.Plan) error {
	if p.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate plan id: %w", err)
		}
		p.ID = id.String()
	}
	features, err := json.Marshal(nonNil(p.Features))
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	var maxProfessionals sql.NullInt64
	if p.MaxProfessionals != nil {
		maxProfessionals = sql.NullInt64{Int64: int64(*p.MaxProfessionals), Valid: true}
	}

	err = r.db.sql.QueryRowContext(ctx, `
		INSERT INTO plans (id, name, display_name, monthly_price, annual_price, features, max_professionals)
		VALUES ($1, $2, $3, $4::numeric / 100, $5::numeric / 100, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			monthly_price = EXCLUDED.monthly_price,
			annual_price = EXCLUDED.annual_price,
			features = EXCLUDED.features,
			max_professionals = EXCLUDED.max_professionals
		RETURNING id
	`, p.ID, p.Name, p.DisplayName, p.MonthlyPrice, p.AnnualPrice, string(features), maxProfessionals).Scan(&p.ID)
	return apperr.Store("upsert plan", err)
}

func scanPlan(row scanner) (*subscription.Plan, error) {
	var (
		p                subscription.Plan
		features         []byte
		maxProfessionals sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.MonthlyPrice, &p.AnnualPrice, &features, &maxProfessionals); err != nil {
		return nil, err
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &p.Features); err != nil {
			return nil, fmt.Errorf("failed to decode features: %w", err)
		}
	}
	if maxProfessionals.Valid {
		n := int(maxProfessionals.Int64)
		p.MaxProfessionals = &n
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
