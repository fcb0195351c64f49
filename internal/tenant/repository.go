package tenant

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
)

// Repository defines the interface for tenant storage
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	// GetByUserID resolves the tenant bound to a user profile.
	// Returns ErrTenantNotFound when the user has no tenant yet.
	GetByUserID(ctx context.Context, userID string) (*Tenant, error)
	BindUser(ctx context.Context, userID, tenantID string) error
	SetAssistantEnabled(ctx context.Context, id string, enabled bool) error
	SetBillingCustomerID(ctx context.Context, id, customerID string) error
}
