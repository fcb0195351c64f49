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

package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/internal/apperr"
	"github.com/clinicflow/clinicflow/internal/audit"
	"github.com/google/uuid"
)

// Service provides tenant business logic
type Service struct {
	repo        Repository
	auditLogger audit.Logger
}

// NewService creates a new tenant service
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
	}
}

// CreateTenant registers a clinic and binds its owner to it.
func (s *Service) CreateTenant(ctx context.Context, t *Tenant, ownerUserID string) (*Tenant, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, apperr.Validation("name", "is required")
	}
	if strings.TrimSpace(t.Email) == "" {
		return nil, apperr.Validation("email", "is required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tenant id: %w", err)
	}

	now := time.Now().UTC()
	t.ID = id.String()
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	if ownerUserID != "" {
		if err := s.repo.BindUser(ctx, ownerUserID, t.ID); err != nil {
			return nil, fmt.Errorf("failed to bind owner: %w", err)
		}
	}

	return t, nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	t, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrTenantNotFound) {
		return nil, apperr.NotFound("tenant", id)
	}
	return t, err
}

// TenantForUser resolves the tenant bound to a user.
// Returns ErrTenantNotFound when the user has not registered a clinic yet.
func (s *Service) TenantForUser(ctx context.Context, userID string) (*Tenant, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// SetBillingCustomer records the gateway customer id on the tenant.
func (s *Service) SetBillingCustomer(ctx context.Context, t *Tenant, customerID string) error {
	if t.BillingCustomerID == customerID {
		return nil
	}
	if err := s.repo.SetBillingCustomerID(ctx, t.ID, customerID); err != nil {
		return fmt.Errorf("failed to set billing customer: %w", err)
	}
	t.BillingCustomerID = customerID
	return nil
}

// DisableAssistant turns the assistant flag off if it is on.
// It is a no-op for tenants whose flag is already off.
func (s *Service) DisableAssistant(ctx context.Context, t *Tenant, actorID string) error {
	if !t.AssistantEnabled {
		return nil
	}
	if err := s.repo.SetAssistantEnabled(ctx, t.ID, false); err != nil {
		return fmt.Errorf("failed to disable assistant: %w", err)
	}
	t.AssistantEnabled = false

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeAssistantDisabled,
		TenantID: t.ID,
		ActorID:  actorID,
		Resource: "tenant",
	})
	return nil
}
