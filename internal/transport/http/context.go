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
	"context"

	"github.com/clinicflow/clinicflow/internal/tenant"
)

type contextKey string

const tenantKey contextKey = "tenant"

func withTenant(ctx context.Context, t *tenant.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// GetTenant retrieves the caller's clinic resolved by AuthMiddleware.
func GetTenant(ctx context.Context) *tenant.Tenant {
	if val, ok := ctx.Value(tenantKey).(*tenant.Tenant); ok {
		return val
	}
	return nil
}

// GetTenantID retrieves the caller's clinic ID from context.
func GetTenantID(ctx context.Context) string {
	if t := GetTenant(ctx); t != nil {
		return t.ID
	}
	return ""
}
