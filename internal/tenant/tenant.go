package tenant

import (
	"time"
)

// Tenant represents a clinic account, the billing and access unit
type Tenant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"` // CPF or CNPJ

	// BillingCustomerID is the gateway's customer id, empty until the first checkout.
	BillingCustomerID string `json:"billing_customer_id,omitempty"`
	AssistantEnabled  bool   `json:"assistant_enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
