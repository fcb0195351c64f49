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
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicflow/clinicflow/internal/observability/logger"
	"github.com/clinicflow/clinicflow/internal/session"
	"github.com/clinicflow/clinicflow/internal/tenant"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware validates the session token and adds the identity to context.
// The token comes from the Authorization header or, for browser calls, the session cookie.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := session.FromAuthorizationHeader(r.Header.Get("Authorization"))
		if token == "" {
			token = h.getSessionFromCookie(r)
		}
		if token == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		id, err := h.verifier.Verify(token)
		if err != nil {
			if !errors.Is(err, session.ErrSessionExpired) {
				slog.WarnContext(r.Context(), "rejected session token",
					logger.Path(r.URL.Path),
					logger.Error(err),
				)
			}
			respondError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), id)))
	})
}

// TenantMiddleware resolves the caller's clinic. Tenant context is derived
// only from the session; headers and query parameters are never trusted.
func (h *Handler) TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := session.FromContext(r.Context())
		if id == nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		t, err := h.tenants.TenantForUser(r.Context(), id.UserID)
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusForbidden, "no clinic is bound to this account")
			return
		}
		if err != nil {
			respondAppError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), t)))
	})
}

// RequireTenantParam rejects requests whose {tenantID} is not the caller's clinic.
func RequireTenantParam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested := chi.URLParam(r, "tenantID")
		if requested == "" || requested != GetTenantID(r.Context()) {
			slog.WarnContext(r.Context(), "cross-tenant access rejected",
				logger.TenantID(requested),
				logger.Path(r.URL.Path),
			)
			respondError(w, http.StatusForbidden, "access to this clinic is not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	if h.config.CookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(h.config.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
