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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts payment webhook requests by event kind and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicflow",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total payment webhook requests by event kind and HTTP status.",
	}, []string{"event_kind", "status"})

	// WebhookDuration tracks payment webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clinicflow",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Payment webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_kind"})

	// ManualReconciliationTotal counts webhook deliveries that left state needing support action.
	ManualReconciliationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicflow",
		Subsystem: "billing",
		Name:      "manual_reconciliation_total",
		Help:      "Webhook deliveries that committed a partial update.",
	}, []string{"event_kind"})

	// SweepExpiredTotal counts subscriptions moved to inactive by the sweeper.
	SweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clinicflow",
		Subsystem: "billing",
		Name:      "sweep_expired_total",
		Help:      "Subscriptions expired by the periodic sweep.",
	})
)
