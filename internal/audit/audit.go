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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypePaymentSettled         = "payment_settled"
	TypePaymentFailed          = "payment_failed"
	TypePaymentRefunded        = "payment_refunded"
	TypePaymentEventIgnored    = "payment_event_ignored"
	TypeSubscriptionActivated  = "subscription_activated"
	TypeSubscriptionPastDue    = "subscription_past_due"
	TypeSubscriptionCanceled   = "subscription_canceled"
	TypeSubscriptionExpired    = "subscription_expired"
	TypePlanSwitchScheduled    = "plan_switch_scheduled"
	TypePlanSwitched           = "plan_switched"
	TypeCheckoutCreated        = "checkout_created"
	TypeReconciliationRequired = "reconciliation_required"
	TypeAssistantDisabled      = "assistant_disabled"
)

// Actors that are not end users
const (
	ActorWebhook = "system:webhook"
	ActorSweeper = "system:sweeper"
	ActorGuard   = "system:guard"
	ActorSystem  = "system:billing"
)

// Event represents an auditable action
type Event struct {
	Type      string
	TenantID  string
	ActorID   string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
	IPAddress string
	UserAgent string
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a new audit logger writing through the default slog logger.
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// NewSlogLoggerWith creates an audit logger bound to a specific slog logger.
func NewSlogLoggerWith(log *slog.Logger) *SlogLogger {
	return &SlogLogger{log: log}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("tenant_id", event.TenantID),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	log := l.log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Log(context.Context, Event) {}

var secretMarkers = []string{"password", "secret", "token", "key", "authorization", "hash", "credential"}

// isSecret reports whether a metadata key likely carries a credential.
func isSecret(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretMarkers {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
