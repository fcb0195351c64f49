package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	assert.True(t, IsValidation(fmt.Errorf("checkout: %w", Validation("plan", "is required"))))
	assert.True(t, IsNotFound(fmt.Errorf("webhook: %w", NotFound("payment", "pay_1"))))
	assert.False(t, IsNotFound(Validation("plan", "is required")))
}

func TestStore_WrapsOnce(t *testing.T) {
	cause := errors.New("connection refused")
	assert.Nil(t, Store("insert", nil))

	err := Store("insert payment", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "store insert payment: connection refused", err.Error())

	again := Store("create payment", fmt.Errorf("repo: %w", err))
	var se *StoreError
	assert.ErrorAs(t, again, &se)
	assert.Equal(t, "insert payment", se.Op)
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "validation failed: cycle: must be monthly or annual", Validation("cycle", "must be monthly or annual").Error())
	assert.Equal(t, "validation failed: bad body", Validation("", "bad body").Error())
	assert.Equal(t, "tenant not found: c-1", NotFound("tenant", "c-1").Error())
	assert.Equal(t, "unauthenticated: session expired", Auth("session expired").Error())
}
