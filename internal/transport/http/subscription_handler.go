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

	"github.com/clinicflow/clinicflow/internal/session"
	"github.com/clinicflow/clinicflow/internal/subscription"
)

// SwitchRequest schedules a plan change at the end of the current period
type SwitchRequest struct {
	Plan  string `json:"plan" example:"enterprise"`
	Cycle string `json:"cycle" example:"annual"`
}

// SyncSubscription applies a due plan switch
// @Summary Sync subscription
// @Description Applies the clinic's scheduled plan switch once the current period has ended
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Clinic ID"
// @Success 200 {object} subscription.SyncResult
// @Router /subscriptions/sync/{tenantID} [post]
func (h *Handler) SyncSubscription(w http.ResponseWriter, r *http.Request) {
	result, err := h.subscriptions.Sync(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// CheckExpiration reports whether the clinic's subscription has lapsed
// @Summary Check expiration
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Clinic ID"
// @Success 200 {object} subscription.ExpirationResult
// @Router /subscriptions/check-expiration/{tenantID} [post]
func (h *Handler) CheckExpiration(w http.ResponseWriter, r *http.Request) {
	result, err := h.subscriptions.CheckExpiration(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ScheduleSwitch records a plan change for the end of the period
// @Summary Schedule plan switch
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Clinic ID"
// @Param request body SwitchRequest true "Target plan"
// @Success 202 {object} subscription.PlanSwitch
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /subscriptions/{tenantID}/switch [post]
func (h *Handler) ScheduleSwitch(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cycle, err := subscription.ParseCycle(req.Cycle)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	sw, err := h.subscriptions.ScheduleSwitch(r.Context(), chi.URLParam(r, "tenantID"), req.Plan, cycle)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, sw)
}

// TrialStatus evaluates the clinic's current period for the trial banner
// @Summary Trial status
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Clinic ID"
// @Success 200 {object} subscription.TrialStatus
// @Router /subscriptions/{tenantID}/trial [get]
func (h *Handler) TrialStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.subscriptions.Trial(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Access decides whether the caller may open a front end route
// @Summary Access decision
// @Description Evaluates the caller's subscription and returns allow or a redirect target
// @Tags Access
// @Produce json
// @Security BearerAuth
// @Param route query string true "Route being opened"
// @Success 200 {object} guard.Decision
// @Failure 400 {object} map[string]string
// @Router /access [get]
func (h *Handler) Access(w http.ResponseWriter, r *http.Request) {
	route := r.URL.Query().Get("route")
	if route == "" {
		respondError(w, http.StatusBadRequest, "route is required")
		return
	}
	decision := h.guard.Evaluate(r.Context(), session.FromContext(r.Context()), route)
	respondJSON(w, http.StatusOK, decision)
}
