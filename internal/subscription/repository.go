package subscription

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSwitchNotFound       = errors.New("plan switch not found")
)

// Repository defines the interface for subscription storage.
// Writes are absolute and conditional so concurrent writers converge.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	// GetAuthoritative returns the tenant's subscription with the latest period end.
	GetAuthoritative(ctx context.Context, tenantID string) (*Subscription, error)
	// Activate writes the activation unless it would shorten a later active period.
	// It reports whether the row was written.
	Activate(ctx context.Context, a Activation) (bool, error)
	// SetStatus moves the row to `to` only if its current status is one of `from`.
	SetStatus(ctx context.Context, id string, from []Status, to Status) (bool, error)
	// ListOverdue returns authoritative active or trial subscriptions whose period ended before now.
	ListOverdue(ctx context.Context, now time.Time) ([]*Subscription, error)
	// ListCanceledPastGrace returns ids of tenants whose authoritative subscription is
	// canceled, ended before cutoff, and whose assistant is still enabled.
	ListCanceledPastGrace(ctx context.Context, cutoff time.Time) ([]string, error)
}

// PlanRepository defines the interface for plan reference data
type PlanRepository interface {
	GetByName(ctx context.Context, name string) (*Plan, error)
	GetByID(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context) ([]*Plan, error)
	Upsert(ctx context.Context, plan *Plan) error
}

// SwitchRepository defines the interface for scheduled plan switches
type SwitchRepository interface {
	// Schedule records a new switch and cancels earlier scheduled ones for the tenant.
	Schedule(ctx context.Context, sw *PlanSwitch) error
	// GetPending returns the newest scheduled or processing switch for the tenant.
	GetPending(ctx context.Context, tenantID string) (*PlanSwitch, error)
	// Claim moves a switch from scheduled to processing and reports whether this caller won.
	Claim(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, id string) error
}
