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

package http

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicflow/clinicflow/internal/observability/logger"
	"github.com/clinicflow/clinicflow/internal/observability/metrics"
	"github.com/clinicflow/clinicflow/internal/reconcile"
)

// WebhookTokenHeader carries the shared secret configured at the billing provider.
const WebhookTokenHeader = "asaas-access-token"

const maxWebhookBody = 1 << 20

// PaymentWebhook receives billing provider payment events
// @Summary Payment webhook
// @Description Applies a payment event to payment and subscription state
// @Tags Billing
// @Accept json
// @Produce json
// @Param asaas-access-token header string true "Webhook token"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /webhooks/payments [post]
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	kind := "unparsed"
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(kind, strconv.Itoa(ww.Status())).Inc()
		metrics.WebhookDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	if h.config.WebhookToken == "" {
		slog.ErrorContext(r.Context(), "payment webhook received but no webhook token is configured")
		respondError(ww, http.StatusServiceUnavailable, "webhook not configured")
		return
	}
	got := r.Header.Get(WebhookTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.config.WebhookToken)) != 1 {
		slog.WarnContext(r.Context(), "payment webhook rejected: invalid token",
			logger.RemoteAddr(getClientIP(r)),
		)
		respondError(ww, http.StatusUnauthorized, "invalid webhook token")
		return
	}

	var ev reconcile.Event
	if err := json.NewDecoder(http.MaxBytesReader(ww, r.Body, maxWebhookBody)).Decode(&ev); err != nil {
		respondError(ww, http.StatusBadRequest, "invalid request body")
		return
	}
	kind = eventKindLabel(ev.Event)

	outcome, err := h.reconciler.Handle(r.Context(), ev)
	if err != nil {
		respondAppError(ww, r, err)
		return
	}

	slog.InfoContext(r.Context(), "payment event processed",
		logger.EventKind(string(ev.Event)),
		logger.ChargeID(ev.Payment.ID),
		logger.String("outcome", string(outcome)),
	)
	respondJSON(ww, http.StatusOK, map[string]bool{"success": true})
}

// eventKindLabel keeps the metric label set closed.
func eventKindLabel(kind reconcile.EventKind) string {
	for _, k := range reconcile.Kinds {
		if k == kind {
			return string(k)
		}
	}
	return "other"
}
