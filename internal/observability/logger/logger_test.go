package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_WritesJSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", ServiceName: "clinicflow-test", Output: &buf})

	log.InfoContext(context.Background(), "payment settled",
		TenantID("clinic-1"),
		PaymentID("pay_123"),
		Error(errors.New("boom")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "payment settled", entry["msg"])
	assert.Equal(t, "clinic-1", entry["tenant_id"])
	assert.Equal(t, "pay_123", entry["payment_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "clinicflow-test", entry["service"])
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "error", Format: "text", ServiceName: "svc", Output: &buf})

	log.Info("dropped")
	assert.Empty(t, buf.String())

	log.Error("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestError_NilIsEmpty(t *testing.T) {
	assert.Equal(t, "", Error(nil).Value.String())
}
