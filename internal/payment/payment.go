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

package payment

import (
	"context"
	"errors"
	"time"

	"github.com/clinicflow/clinicflow/internal/apperr"
	"github.com/clinicflow/clinicflow/internal/subscription"
)

var ErrPaymentNotFound = errors.New("payment not found")

// Status is the payment state. pending is the only non-terminal status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Method is how the tenant pays a charge.
type Method string

const (
	MethodPix        Method = "PIX"
	MethodBoleto     Method = "BOLETO"
	MethodCreditCard Method = "CREDIT_CARD"
	MethodUndefined  Method = "UNDEFINED"
)

// ParseMethod validates a payment method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodPix, MethodBoleto, MethodCreditCard, MethodUndefined:
		return Method(s), nil
	}
	return "", apperr.Validation("paymentMethod", "must be one of PIX, BOLETO, CREDIT_CARD, UNDEFINED")
}

// Payment is one billing attempt against the gateway.
type Payment struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	// SubscriptionID is the authoritative subscription when the purchase started, if any.
	SubscriptionID string             `json:"subscription_id,omitempty"`
	PlanID         string             `json:"plan_id"`
	Cycle          subscription.Cycle `json:"cycle"`
	Method         Method             `json:"method"`
	ValueCents     int64              `json:"value_cents"`
	Status         Status             `json:"status"`
	// ExternalID is the gateway charge id.
	ExternalID  string     `json:"external_id"`
	DueDate     time.Time  `json:"due_date"`
	InvoiceURL  string     `json:"invoice_url,omitempty"`
	BankSlipURL string     `json:"bank_slip_url,omitempty"`
	PixPayload  string     `json:"pix_payload,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Repository defines the interface for payment storage
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByExternalID(ctx context.Context, externalID string) (*Payment, error)
	GetLatestForTenant(ctx context.Context, tenantID string) (*Payment, error)
	// Transition moves a pending payment to a terminal status and reports
	// whether this call made the change. paidAt is only recorded once.
	Transition(ctx context.Context, id string, to Status, paidAt *time.Time) (bool, error)
}
