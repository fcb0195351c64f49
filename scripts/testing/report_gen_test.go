package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanMetadataAndMerge(t *testing.T) {
	root := t.TempDir()
	pkgDir := filepath.Join(root, "internal", "reconcile")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "x_test.go"), []byte(`package reconcile

import "testing"

// TestPurpose: Re-delivery does not extend the period.
// Scope: Unit Test
// Test Case ID: REC-01
func TestIdempotent(t *testing.T) {}

func TestPlain(t *testing.T) {}
`), 0o644))

	meta := scanMetadata(root)
	key := modulePath + "internal/reconcile.TestIdempotent"
	require.Contains(t, meta, key)
	assert.Equal(t, "REC-01", meta[key].TestCaseID)
	assert.Equal(t, "Reconciliation", meta[key].Category)

	events := `{"Action":"run","Package":"github.com/clinicflow/clinicflow/internal/reconcile","Test":"TestIdempotent"}
{"Action":"pass","Package":"github.com/clinicflow/clinicflow/internal/reconcile","Test":"TestIdempotent","Elapsed":0.01}
{"Action":"output","Package":"github.com/clinicflow/clinicflow/internal/reconcile","Test":"TestIdempotent/redelivery","Output":"boom\n"}
{"Action":"fail","Package":"github.com/clinicflow/clinicflow/internal/reconcile","Test":"TestIdempotent/redelivery","Elapsed":0.01}
`
	input := filepath.Join(root, "out.json")
	require.NoError(t, os.WriteFile(input, []byte(events), 0o644))

	results, err := parseTestOutput(input, meta)
	require.NoError(t, err)
	summary := generateSummary(results)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)

	var sub FinalTestResult
	for _, r := range results {
		if r.Name == "TestIdempotent/redelivery" {
			sub = r
		}
	}
	assert.Equal(t, "REC-01", sub.Annotations.TestCaseID)
	assert.Contains(t, sub.Failure, "boom")

	md := renderMarkdown(summary, "Unit Tests")
	assert.Contains(t, md, "## Reconciliation")
	assert.Contains(t, md, "## Failure Details")
}

func TestDetermineCategory(t *testing.T) {
	assert.Equal(t, "Access Guard", determineCategory(modulePath+"internal/guard"))
	assert.Equal(t, "API", determineCategory(modulePath+"internal/transport/http"))
	assert.Equal(t, "Platform", determineCategory(modulePath+"cmd/server"))
	assert.Equal(t, "Other", determineCategory("example.com/elsewhere"))
}
