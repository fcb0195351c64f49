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

package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/clinicflow/clinicflow/internal/session"
	"github.com/clinicflow/clinicflow/internal/subscription"
)

// coalesce runs fn once per key among concurrent callers. Many tabs of the
// same clinic hitting a stale subscription share one sync.
func coalesce[T any](g *singleflight.Group, key string, fn func() (T, error)) (T, error) {
	v, err, _ := g.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// LocalRemote resolves subscriptions in-process.
type LocalRemote struct {
	svc   *subscription.Service
	group singleflight.Group
}

// NewLocalRemote creates a remote backed by the subscription service.
func NewLocalRemote(svc *subscription.Service) *LocalRemote {
	return &LocalRemote{svc: svc}
}

// Sync applies a due plan switch.
func (r *LocalRemote) Sync(ctx context.Context, tenantID string) (*subscription.SyncResult, error) {
	return coalesce(&r.group, "sync:"+tenantID, func() (*subscription.SyncResult, error) {
		return r.svc.Sync(ctx, tenantID)
	})
}

// CheckExpiration persists and reports a lapse.
func (r *LocalRemote) CheckExpiration(ctx context.Context, tenantID string) (*subscription.ExpirationResult, error) {
	return coalesce(&r.group, "expiration:"+tenantID, func() (*subscription.ExpirationResult, error) {
		return r.svc.CheckExpiration(ctx, tenantID)
	})
}

// HTTPRemote calls the sync and expiration-check endpoints of a separately
// deployed subscription API. The caller's session token is forwarded.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
	group   singleflight.Group
}

// NewHTTPRemote creates a remote for the API at baseURL.
func NewHTTPRemote(baseURL string, timeout time.Duration) *HTTPRemote {
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Sync calls POST /api/v1/subscriptions/sync/{tenantID}.
func (r *HTTPRemote) Sync(ctx context.Context, tenantID string) (*subscription.SyncResult, error) {
	return coalesce(&r.group, "sync:"+tenantID, func() (*subscription.SyncResult, error) {
		var res subscription.SyncResult
		if err := r.post(ctx, "/api/v1/subscriptions/sync/"+url.PathEscape(tenantID), &res); err != nil {
			return nil, err
		}
		return &res, nil
	})
}

// CheckExpiration calls POST /api/v1/subscriptions/check-expiration/{tenantID}.
func (r *HTTPRemote) CheckExpiration(ctx context.Context, tenantID string) (*subscription.ExpirationResult, error) {
	return coalesce(&r.group, "expiration:"+tenantID, func() (*subscription.ExpirationResult, error) {
		var res subscription.ExpirationResult
		if err := r.post(ctx, "/api/v1/subscriptions/check-expiration/"+url.PathEscape(tenantID), &res); err != nil {
			return nil, err
		}
		return &res, nil
	})
}

func (r *HTTPRemote) post(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if id := session.FromContext(ctx); id != nil && id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("subscription api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("subscription api %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode subscription api response: %w", err)
	}
	return nil
}
