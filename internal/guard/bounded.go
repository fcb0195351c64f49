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
	"time"
)

type outcome[T any] struct {
	value T
	err   error
}

// bounded runs fn with a deadline and returns when either fn finishes or the
// deadline passes, even if fn ignores its context. A late result is dropped.
// observe, when set, receives the elapsed time and whether the deadline hit.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error), observe func(time.Duration, bool)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case o := <-done:
		if observe != nil {
			observe(time.Since(start), false)
		}
		return o.value, o.err
	case <-ctx.Done():
		if observe != nil {
			observe(time.Since(start), true)
		}
		var zero T
		return zero, ctx.Err()
	}
}
