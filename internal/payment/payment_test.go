package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicflow/clinicflow/internal/apperr"
)

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusPaid.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("PIX")
	assert.NoError(t, err)
	assert.Equal(t, MethodPix, m)

	_, err = ParseMethod("pix")
	assert.True(t, apperr.IsValidation(err))
}
