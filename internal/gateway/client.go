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

// Package gateway is a thin client for the billing provider's REST API
// (Asaas dialect). It never retries; callers own retries and always send an
// ExternalReference so duplicates can be correlated.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DateLayout is the provider's calendar date format.
const DateLayout = "2006-01-02"

// Error is returned for every failed gateway call. StatusCode is 0 when the
// request never got a response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return "gateway: " + e.Message
	}
	return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Message)
}

// Profile is the contact data sent when creating or updating a customer.
type Profile struct {
	// CustomerID, when set, updates that customer instead of creating one.
	CustomerID string
	Name       string
	Email      string
	Document   string
	Phone      string
	// Reference is our tenant id, stored as the customer's external reference.
	Reference string
}

// Customer is a provider customer record.
type Customer struct {
	ID string `json:"id"`
}

// ChargeRequest describes a one-off charge.
type ChargeRequest struct {
	CustomerID        string
	BillingType       string
	ValueCents        int64
	DueDate           time.Time
	ExternalReference string
	Description       string
}

// Charge is a provider payment record.
type Charge struct {
	ID          string
	Status      string
	DueDate     string
	ValueCents  int64
	InvoiceURL  string
	BankSlipURL string
	PixCode     string
}

// Config holds client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the billing provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client with a traced HTTP transport.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type customerBody struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	CpfCnpj              string `json:"cpfCnpj,omitempty"`
	MobilePhone          string `json:"mobilePhone,omitempty"`
	ExternalReference    string `json:"externalReference,omitempty"`
	NotificationDisabled bool   `json:"notificationDisabled"`
}

// CreateOrUpdateCustomer creates the customer, or updates it when the profile
// carries an id. A create rejected as a probable duplicate resolves to the
// existing customer with the same e-mail.
func (c *Client) CreateOrUpdateCustomer(ctx context.Context, p Profile) (*Customer, error) {
	body := customerBody{
		Name:              p.Name,
		Email:             p.Email,
		CpfCnpj:           digitsOnly(p.Document),
		MobilePhone:       digitsOnly(p.Phone),
		ExternalReference: p.Reference,
	}

	path := "/customers"
	if p.CustomerID != "" {
		path = "/customers/" + url.PathEscape(p.CustomerID)
	}

	var out Customer
	err := c.do(ctx, http.MethodPost, path, body, &out)
	if err == nil {
		return &out, nil
	}

	var gwErr *Error
	if !errors.As(err, &gwErr) || p.CustomerID != "" || gwErr.StatusCode != http.StatusBadRequest || !isDuplicate(gwErr.Message) {
		return nil, err
	}

	existing, findErr := c.findCustomerByEmail(ctx, p.Email)
	if findErr != nil {
		return nil, findErr
	}
	if existing == nil {
		return nil, err
	}
	return existing, nil
}

func (c *Client) findCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("limit", "1")

	var page struct {
		Data []Customer `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/customers?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	if len(page.Data) == 0 {
		return nil, nil
	}
	return &page.Data[0], nil
}

type chargeBody struct {
	Customer          string  `json:"customer"`
	BillingType       string  `json:"billingType"`
	Value             float64 `json:"value"`
	DueDate           string  `json:"dueDate"`
	ExternalReference string  `json:"externalReference"`
	Description       string  `json:"description,omitempty"`
}

type chargeResponse struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	DueDate     string  `json:"dueDate"`
	Value       float64 `json:"value"`
	BillingType string  `json:"billingType"`
	InvoiceURL  string  `json:"invoiceUrl"`
	BankSlipURL string  `json:"bankSlipUrl"`
}

func (r *chargeResponse) toCharge() *Charge {
	return &Charge{
		ID:          r.ID,
		Status:      r.Status,
		DueDate:     r.DueDate,
		ValueCents:  int64(math.Round(r.Value * 100)),
		InvoiceURL:  r.InvoiceURL,
		BankSlipURL: r.BankSlipURL,
	}
}

// CreateCharge creates a charge. PIX charges get their copy-and-paste code attached.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if req.ExternalReference == "" {
		return nil, &Error{Message: "external reference is required"}
	}

	body := chargeBody{
		Customer:          req.CustomerID,
		BillingType:       req.BillingType,
		Value:             float64(req.ValueCents) / 100,
		DueDate:           req.DueDate.Format(DateLayout),
		ExternalReference: req.ExternalReference,
		Description:       req.Description,
	}

	var out chargeResponse
	if err := c.do(ctx, http.MethodPost, "/payments", body, &out); err != nil {
		return nil, err
	}
	charge := out.toCharge()

	if req.BillingType == "PIX" {
		code, err := c.pixCode(ctx, charge.ID)
		if err != nil {
			return nil, err
		}
		charge.PixCode = code
	}
	return charge, nil
}

// GetCharge fetches the current state of a charge.
func (c *Client) GetCharge(ctx context.Context, id string) (*Charge, error) {
	var out chargeResponse
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.toCharge(), nil
}

func (c *Client) pixCode(ctx context.Context, chargeID string) (string, error) {
	var out struct {
		Payload string `json:"payload"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(chargeID)+"/pixQrCode", nil, &out); err != nil {
		return "", err
	}
	return out.Payload, nil
}

type errorResponse struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Message: fmt.Sprintf("failed to encode request: %v", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Message: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("access_token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Message: providerMessage(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}

func providerMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && len(er.Errors) > 0 {
		parts := make([]string, 0, len(er.Errors))
		for _, e := range er.Errors {
			if e.Code != "" {
				parts = append(parts, e.Code+": "+e.Description)
			} else {
				parts = append(parts, e.Description)
			}
		}
		return strings.Join(parts, "; ")
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty error response"
	}
	return msg
}

func isDuplicate(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "probably_duplicate") || strings.Contains(m, "já existe") || strings.Contains(m, "duplicate")
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
