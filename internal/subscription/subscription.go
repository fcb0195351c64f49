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

// Package subscription holds the subscription lifecycle: plans, the status
// transition table, trial evaluation and scheduled plan switches.
package subscription

import (
	"fmt"
	"time"

	"github.com/clinicflow/clinicflow/internal/apperr"
)

// Status is the durable subscription state.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrial    Status = "trial"
	StatusPending  Status = "pending"
	StatusInactive Status = "inactive"
	StatusCanceled Status = "canceled"
	StatusPastDue  Status = "past_due"
)

// Cycle is the billing period length.
type Cycle string

const (
	CycleMonthly Cycle = "monthly"
	CycleAnnual  Cycle = "annual"
)

// ParseCycle validates a billing cycle name.
func ParseCycle(s string) (Cycle, error) {
	switch Cycle(s) {
	case CycleMonthly, CycleAnnual:
		return Cycle(s), nil
	}
	return "", apperr.Validation("cycle", fmt.Sprintf("must be %q or %q", CycleMonthly, CycleAnnual))
}

// AddTo returns t advanced by one cycle. Anything other than monthly is a year.
func (c Cycle) AddTo(t time.Time) time.Time {
	if c == CycleMonthly {
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(1, 0, 0)
}

// Subscription is a tenant's plan assignment with a validity window.
// The row with the latest PeriodEnd is the tenant's authoritative one.
type Subscription struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	PlanID   string `json:"plan_id"`
	// PlanName is joined from plans on read.
	PlanName    string     `json:"plan_name"`
	Status      Status     `json:"status"`
	Cycle       Cycle      `json:"cycle"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsTrialPlan reports whether the subscription is on the trial plan.
func (s *Subscription) IsTrialPlan() bool {
	return s.PlanName == PlanTrial
}

// Expired reports whether now is past the period end.
func (s *Subscription) Expired(now time.Time) bool {
	return now.After(s.PeriodEnd)
}

// Validate checks the period bounds for statuses that grant access.
func (s *Subscription) Validate() error {
	if s.TenantID == "" {
		return apperr.Validation("tenant_id", "is required")
	}
	if s.Status == StatusActive || s.Status == StatusTrial {
		if !s.PeriodEnd.After(s.PeriodStart) {
			return apperr.Validation("period_end", "must be after period_start")
		}
	}
	return nil
}

// Activation is the absolute-value write applied when a purchase settles.
type Activation struct {
	SubscriptionID string
	PlanID         string
	Cycle          Cycle
	PeriodStart    time.Time
	PeriodEnd      time.Time
}
