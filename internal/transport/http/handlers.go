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

// @title Clinicflow Billing API
// @version 1.0.0
// @description Subscription billing and access control for clinics

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicflow/clinicflow/internal/apperr"
	"github.com/clinicflow/clinicflow/internal/checkout"
	"github.com/clinicflow/clinicflow/internal/gateway"
	"github.com/clinicflow/clinicflow/internal/guard"
	"github.com/clinicflow/clinicflow/internal/observability/logger"
	"github.com/clinicflow/clinicflow/internal/reconcile"
	"github.com/clinicflow/clinicflow/internal/session"
	"github.com/clinicflow/clinicflow/internal/subscription"
	"github.com/clinicflow/clinicflow/internal/tenant"
)

// Reconciler applies payment webhook events.
type Reconciler interface {
	Handle(ctx context.Context, ev reconcile.Event) (reconcile.Outcome, error)
}

// Checkout starts and polls purchases.
type Checkout interface {
	Create(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	Status(ctx context.Context, tenantID string) (*checkout.StatusResult, error)
	ChargeStatus(ctx context.Context, tenantID, chargeID string) (*gateway.Charge, error)
}

// Subscriptions is the subscription maintenance surface.
type Subscriptions interface {
	Sync(ctx context.Context, tenantID string) (*subscription.SyncResult, error)
	CheckExpiration(ctx context.Context, tenantID string) (*subscription.ExpirationResult, error)
	ScheduleSwitch(ctx context.Context, tenantID, planName string, cycle subscription.Cycle) (*subscription.PlanSwitch, error)
	Trial(ctx context.Context, tenantID string) (subscription.TrialStatus, error)
}

// AccessGuard decides whether a route is reachable.
type AccessGuard interface {
	Evaluate(ctx context.Context, id *session.Identity, route string) guard.Decision
}

// Tenants resolves the clinic bound to a user.
type Tenants interface {
	TenantForUser(ctx context.Context, userID string) (*tenant.Tenant, error)
}

// SessionVerifier validates identity provider tokens.
type SessionVerifier interface {
	Verify(token string) (*session.Identity, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	reconciler    Reconciler
	checkout      Checkout
	subscriptions Subscriptions
	guard         AccessGuard
	tenants       Tenants
	verifier      SessionVerifier
	db            Pinger
	config        Config
}

// Config holds transport settings
type Config struct {
	// WebhookToken is the shared secret the billing provider sends. Empty
	// means webhooks are rejected until it is configured.
	WebhookToken   string
	CookieName     string
	AllowedOrigins []string
}

// Deps groups the services behind the handlers.
type Deps struct {
	Reconciler    Reconciler
	Checkout      Checkout
	Subscriptions Subscriptions
	Guard         AccessGuard
	Tenants       Tenants
	Verifier      SessionVerifier
	DB            Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps, cfg Config) *Handler {
	return &Handler{
		reconciler:    deps.Reconciler,
		checkout:      deps.Checkout,
		subscriptions: deps.Subscriptions,
		guard:         deps.Guard,
		tenants:       deps.Tenants,
		verifier:      deps.Verifier,
		db:            deps.DB,
		config:        cfg,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Billing provider callbacks authenticate with the shared token, not a session.
	r.Post("/webhooks/payments", h.PaymentWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		// The guard resolves the clinic itself, including the no-clinic case.
		r.Get("/access", h.Access)

		r.Group(func(r chi.Router) {
			r.Use(h.TenantMiddleware)

			r.Post("/checkout/create", h.CreateCheckout)
			r.Get("/payments/{chargeID}/status", h.PaymentStatus)

			r.Group(func(r chi.Router) {
				r.Use(RequireTenantParam)

				r.Get("/checkout/status/{tenantID}", h.CheckoutStatus)
				r.Post("/subscriptions/sync/{tenantID}", h.SyncSubscription)
				r.Post("/subscriptions/check-expiration/{tenantID}", h.CheckExpiration)
				r.Post("/subscriptions/{tenantID}/switch", h.ScheduleSwitch)
				r.Get("/subscriptions/{tenantID}/trial", h.TrialStatus)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service and its database are reachable
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			slog.ErrorContext(r.Context(), "health check database ping failed", logger.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "clinicflow",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "clinicflow",
	})
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondAppError maps the error taxonomy to a status code. Store and
// unexpected failures get a generic message; the cause is only logged.
func respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		ae *apperr.AuthError
		ge *gateway.Error
	)
	switch {
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &nf):
		respondError(w, http.StatusNotFound, nf.Error())
	case errors.As(err, &ae):
		respondError(w, http.StatusUnauthorized, "not authenticated")
	case errors.As(err, &ge):
		slog.ErrorContext(r.Context(), "billing provider call failed",
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		respondError(w, http.StatusBadGateway, ge.Message)
	default:
		slog.ErrorContext(r.Context(), "request failed",
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
