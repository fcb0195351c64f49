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
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps the OpenTelemetry meter and the billing instruments built on it.
type Meter struct {
	meter metric.Meter

	guardDecisions   metric.Int64Counter
	checkoutOutcomes metric.Int64Counter
	remoteLatency    metric.Float64Histogram
}

// New creates a meter and registers the billing instruments.
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	name := serviceName
	if !cfg.Enabled {
		name = "noop"
	}
	m := &Meter{meter: otel.Meter(name)}

	var err error
	if m.guardDecisions, err = m.CreateCounter("guard.decisions", "Access guard decisions by state and action"); err != nil {
		return nil, err
	}
	if m.checkoutOutcomes, err = m.CreateCounter("checkout.outcomes", "Checkout attempts by plan and outcome"); err != nil {
		return nil, err
	}
	if m.remoteLatency, err = m.CreateHistogram("guard.remote.duration", "Latency of guard sync and expiration calls", "s"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordGuardDecision counts one access decision.
func (m *Meter) RecordGuardDecision(ctx context.Context, state, action string) {
	if m == nil {
		return
	}
	m.guardDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state),
		attribute.String("action", action),
	))
}

// RecordCheckout counts one checkout attempt.
func (m *Meter) RecordCheckout(ctx context.Context, plan, outcome string) {
	if m == nil {
		return
	}
	m.checkoutOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("plan", plan),
		attribute.String("outcome", outcome),
	))
}

// RecordRemoteCall records how long a guard remote call took.
func (m *Meter) RecordRemoteCall(ctx context.Context, op string, seconds float64, timedOut bool) {
	if m == nil {
		return
	}
	m.remoteLatency.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("timed_out", timedOut),
	))
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}
