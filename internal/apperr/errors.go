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

// Package apperr defines the error taxonomy shared by the billing core.
//
// Validation and not-found errors are returned before any state is mutated.
// Store errors wrap persistence failures and are surfaced as generic failures.
// Auth errors never reach the user as an error page; the transport turns them
// into a 401 or a redirect.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NotFoundError reports an unknown tenant, plan or payment correlation.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// StoreError wraps a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// AuthError reports a missing or invalid session.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "unauthenticated: " + e.Reason
}

// Validation creates a ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFound creates a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Store wraps err as a StoreError. A nil err stays nil and an existing
// StoreError is returned unchanged.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Auth creates an AuthError.
func Auth(reason string) error {
	return &AuthError{Reason: reason}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
