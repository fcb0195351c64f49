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

// Package events publishes billing domain events for downstream consumers
// such as notification delivery.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Message is the payload of every billing event.
type Message struct {
	TenantID       string    `json:"tenant_id"`
	PaymentID      string    `json:"payment_id,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Status         string    `json:"status"`
	Plan           string    `json:"plan,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher emits domain events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishPayment(ctx context.Context, msg Message) error
	PublishSubscription(ctx context.Context, msg Message) error
}

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher publishes events as JSON on <prefix>.payment.<status> and
// <prefix>.subscription.<status>.
type NATSPublisher struct {
	conn   Conn
	prefix string
}

// NewNATSPublisher creates a publisher on an established connection.
func NewNATSPublisher(conn Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "billing"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Connect dials the NATS server and returns a publisher plus the connection
// so the caller can drain it on shutdown.
func Connect(url, prefix string) (*NATSPublisher, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("clinicflow-billing"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSPublisher(nc, prefix), nc, nil
}

// PaymentSubject is the subject for a payment status event.
func (p *NATSPublisher) PaymentSubject(status string) string {
	return p.prefix + ".payment." + status
}

// SubscriptionSubject is the subject for a subscription status event.
func (p *NATSPublisher) SubscriptionSubject(status string) string {
	return p.prefix + ".subscription." + status
}

func (p *NATSPublisher) PublishPayment(ctx context.Context, msg Message) error {
	return p.publish(p.PaymentSubject(msg.Status), msg)
}

func (p *NATSPublisher) PublishSubscription(ctx context.Context, msg Message) error {
	return p.publish(p.SubscriptionSubject(msg.Status), msg)
}

func (p *NATSPublisher) publish(subject string, msg Message) error {
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Nop drops every event. Used when NATS is not configured.
type Nop struct{}

func (Nop) PublishPayment(context.Context, Message) error      { return nil }
func (Nop) PublishSubscription(context.Context, Message) error { return nil }
