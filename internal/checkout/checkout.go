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

// Package checkout starts a plan purchase: it registers the clinic with the
// billing provider, creates a charge and records it as a pending payment.
//
// No transaction spans the provider call and the store write. A charge whose
// payment row could not be written is logged with its id for manual recovery;
// the webhook cannot settle it until then.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/apperr"
	"github.com/clinicflow/clinicflow/internal/audit"
	"github.com/clinicflow/clinicflow/internal/gateway"
	"github.com/clinicflow/clinicflow/internal/observability/logger"
	"github.com/clinicflow/clinicflow/internal/observability/metrics"
	"github.com/clinicflow/clinicflow/internal/observability/tracing"
	"github.com/clinicflow/clinicflow/internal/payment"
	"github.com/clinicflow/clinicflow/internal/subscription"
	"github.com/clinicflow/clinicflow/internal/tenant"
)

// DueDays is how far out the charge falls due.
const DueDays = 7

// Checkout outcomes recorded in metrics
const (
	outcomeCreated      = "created"
	outcomeInvalid      = "invalid"
	outcomeGatewayError = "gateway_error"
	outcomeStoreError   = "store_error"
)

// Gateway is the billing provider surface used by checkout.
type Gateway interface {
	CreateOrUpdateCustomer(ctx context.Context, p gateway.Profile) (*gateway.Customer, error)
	CreateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Charge, error)
	GetCharge(ctx context.Context, id string) (*gateway.Charge, error)
}

// Plans resolves a plan by name.
type Plans interface {
	Get(ctx context.Context, name string) (*subscription.Plan, error)
}

// Tenants loads the clinic profile and stores its gateway customer id.
type Tenants interface {
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	SetBillingCustomer(ctx context.Context, t *tenant.Tenant, customerID string) error
}

// Request is a checkout request.
type Request struct {
	TenantID string `json:"clinicId"`
	Plan     string `json:"plan"`
	Cycle    string `json:"cycle"`
	Method   string `json:"paymentMethod"`
}

// Validate checks that every field is present and well formed.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return apperr.Validation("clinicId", "is required")
	}
	if strings.TrimSpace(r.Plan) == "" {
		return apperr.Validation("plan", "is required")
	}
	if r.Cycle == "" {
		return apperr.Validation("cycle", "is required")
	}
	if _, err := subscription.ParseCycle(r.Cycle); err != nil {
		return err
	}
	if r.Method == "" {
		return apperr.Validation("paymentMethod", "is required")
	}
	if _, err := payment.ParseMethod(r.Method); err != nil {
		return err
	}
	return nil
}

// Result is what the caller needs to present the charge.
type Result struct {
	PaymentID   string  `json:"paymentId"`
	Status      string  `json:"status"`
	DueDate     string  `json:"dueDate"`
	Value       float64 `json:"value"`
	InvoiceURL  string  `json:"invoiceUrl,omitempty"`
	BankSlipURL string  `json:"bankSlipUrl,omitempty"`
	PixQRCode   string  `json:"pixQrCode,omitempty"`
}

// StatusResult reports the latest purchase of a tenant for polling.
type StatusResult struct {
	Status    string `json:"status"`
	PaymentID string `json:"paymentId,omitempty"`
}

// Orchestrator runs checkouts.
type Orchestrator struct {
	gateway     Gateway
	plans       Plans
	tenants     Tenants
	subs        subscription.Repository
	payments    payment.Repository
	auditLogger audit.Logger
	meter       *metrics.Meter
	now         func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMeter records checkout outcomes.
func WithMeter(m *metrics.Meter) Option {
	return func(o *Orchestrator) { o.meter = m }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(gw Gateway, plans Plans, tenants Tenants, subs subscription.Repository, payments payment.Repository, auditLogger audit.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:     gw,
		plans:       plans,
		tenants:     tenants,
		subs:        subs,
		payments:    payments,
		auditLogger: auditLogger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create runs a checkout. A gateway failure returns *gateway.Error and leaves
// no payment row behind.
func (o *Orchestrator) Create(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracing.Start(ctx, "checkout.Create", req.TenantID)
	res, outcome, err := o.create(ctx, req)
	tracing.End(span, err)
	o.meter.RecordCheckout(ctx, req.Plan, outcome)
	return res, err
}

func (o *Orchestrator) create(ctx context.Context, req Request) (*Result, string, error) {
	if err := req.Validate(); err != nil {
		return nil, outcomeInvalid, err
	}
	cycle, _ := subscription.ParseCycle(req.Cycle)
	method, _ := payment.ParseMethod(req.Method)

	plan, err := o.plans.Get(ctx, req.Plan)
	if err != nil {
		return nil, outcomeInvalid, err
	}
	if plan.Name == subscription.PlanTrial {
		return nil, outcomeInvalid, apperr.Validation("plan", "trial cannot be purchased")
	}
	price := plan.Price(cycle)
	if price <= 0 {
		return nil, outcomeInvalid, apperr.Validation("plan", "has no price for "+string(cycle))
	}

	t, err := o.tenants.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, outcomeInvalid, err
	}

	customer, err := o.gateway.CreateOrUpdateCustomer(ctx, gateway.Profile{
		CustomerID: t.BillingCustomerID,
		Name:       t.Name,
		Email:      t.Email,
		Document:   t.Document,
		Phone:      t.Phone,
		Reference:  t.ID,
	})
	if err != nil {
		return nil, outcomeGatewayError, err
	}
	if err := o.tenants.SetBillingCustomer(ctx, t, customer.ID); err != nil {
		// The next checkout recovers the customer through the duplicate lookup.
		slog.WarnContext(ctx, "failed to persist billing customer id",
			logger.TenantID(t.ID),
			logger.Error(err),
		)
	}

	now := o.now()
	due := startOfDay(now).AddDate(0, 0, DueDays)
	charge, err := o.gateway.CreateCharge(ctx, gateway.ChargeRequest{
		CustomerID:        customer.ID,
		BillingType:       string(method),
		ValueCents:        price,
		DueDate:           due,
		ExternalReference: t.ID,
		Description:       Description(plan, cycle),
	})
	if err != nil {
		return nil, outcomeGatewayError, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, outcomeStoreError, fmt.Errorf("failed to generate payment id: %w", err)
	}
	p := &payment.Payment{
		ID:          id.String(),
		TenantID:    t.ID,
		PlanID:      plan.ID,
		Cycle:       cycle,
		Method:      method,
		ValueCents:  price,
		Status:      payment.StatusPending,
		ExternalID:  charge.ID,
		DueDate:     due,
		InvoiceURL:  charge.InvoiceURL,
		BankSlipURL: charge.BankSlipURL,
		PixPayload:  charge.PixCode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sub, err := o.subs.GetAuthoritative(ctx, t.ID); err == nil {
		p.SubscriptionID = sub.ID
	} else if !errors.Is(err, subscription.ErrSubscriptionNotFound) {
		slog.WarnContext(ctx, "checkout without subscription link", logger.TenantID(t.ID), logger.Error(err))
	}

	if err := o.payments.Create(ctx, p); err != nil {
		slog.ErrorContext(ctx, "charge created but payment row not written",
			logger.ManualReconciliation(),
			logger.TenantID(t.ID),
			logger.ChargeID(charge.ID),
			logger.Error(err),
		)
		return nil, outcomeStoreError, apperr.Store("create payment", err)
	}

	o.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCheckoutCreated,
		TenantID: t.ID,
		Resource: charge.ID,
		Metadata: map[string]any{
			"plan":        plan.Name,
			"cycle":       string(cycle),
			"method":      string(method),
			"value_cents": price,
		},
	})
	slog.InfoContext(ctx, "checkout created",
		logger.TenantID(t.ID),
		logger.ChargeID(charge.ID),
		logger.Plan(plan.Name),
	)

	dueDate := charge.DueDate
	if dueDate == "" {
		dueDate = due.Format(gateway.DateLayout)
	}
	value := charge.ValueCents
	if value == 0 {
		value = price
	}
	return &Result{
		PaymentID:   charge.ID,
		Status:      string(p.Status),
		DueDate:     dueDate,
		Value:       float64(value) / 100,
		InvoiceURL:  charge.InvoiceURL,
		BankSlipURL: charge.BankSlipURL,
		PixQRCode:   charge.PixCode,
	}, outcomeCreated, nil
}

// Status reports the tenant's latest purchase. A paid purchase is reported as
// "active" so pollers can stop.
func (o *Orchestrator) Status(ctx context.Context, tenantID string) (*StatusResult, error) {
	p, err := o.payments.GetLatestForTenant(ctx, tenantID)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		return &StatusResult{Status: "not_found"}, nil
	}
	if err != nil {
		return nil, apperr.Store("get latest payment", err)
	}

	status := string(p.Status)
	if p.Status == payment.StatusPaid {
		status = "active"
	}
	return &StatusResult{Status: status, PaymentID: p.ExternalID}, nil
}

// ChargeStatus fetches a charge from the provider, provided it belongs to tenantID.
func (o *Orchestrator) ChargeStatus(ctx context.Context, tenantID, chargeID string) (*gateway.Charge, error) {
	p, err := o.payments.GetByExternalID(ctx, chargeID)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		return nil, apperr.NotFound("payment", chargeID)
	}
	if err != nil {
		return nil, apperr.Store("get payment", err)
	}
	if p.TenantID != tenantID {
		return nil, apperr.NotFound("payment", chargeID)
	}
	return o.gateway.GetCharge(ctx, chargeID)
}

// Description is the charge description shown on the invoice.
func Description(plan *subscription.Plan, cycle subscription.Cycle) string {
	period := "Mensal"
	if cycle == subscription.CycleAnnual {
		period = "Anual"
	}
	return "Plano " + plan.Label() + " - " + period
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
