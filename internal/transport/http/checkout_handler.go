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
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinicflow/clinicflow/internal/checkout"
)

// CreateCheckout starts a purchase for the caller's clinic
// @Summary Create checkout
// @Description Creates a billing provider charge and a pending payment
// @Tags Billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body checkout.Request true "Checkout request"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /checkout/create [post]
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID != "" && req.TenantID != GetTenantID(r.Context()) {
		respondError(w, http.StatusForbidden, "access to this clinic is not allowed")
		return
	}

	result, err := h.checkout.Create(r.Context(), req)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    result,
	})
}

// CheckoutStatus reports the clinic's latest purchase
// @Summary Checkout status
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Clinic ID"
// @Success 200 {object} checkout.StatusResult
// @Router /checkout/status/{tenantID} [get]
func (h *Handler) CheckoutStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.checkout.Status(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// PaymentStatus reads a charge from the billing provider
// @Summary Charge status
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Param chargeID path string true "Billing provider charge ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /payments/{chargeID}/status [get]
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	charge, err := h.checkout.ChargeStatus(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "chargeID"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":      charge.ID,
		"status":  charge.Status,
		"value":   float64(charge.ValueCents) / 100,
		"dueDate": charge.DueDate,
	})
}
