package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPlanFile_Seed(t *testing.T) {
	plans, err := readPlanFile(filepath.Join("..", "..", "configs", "plans.yaml"))
	require.NoError(t, err)
	require.Len(t, plans, 3)

	premium := plans[1]
	assert.Equal(t, "premium", premium.Name)
	assert.Equal(t, int64(29700), premium.MonthlyPrice)
	assert.Equal(t, int64(297000), premium.AnnualPrice)
	require.NotNil(t, premium.MaxProfessionals)
	assert.Equal(t, 5, *premium.MaxProfessionals)
	assert.Nil(t, plans[2].MaxProfessionals)
}

func TestReadPlanFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "plans:\n  - monthly_price: 100\n    annual_price: 1000\n"},
		{"unpriced paid plan", "plans:\n  - name: gold\n    monthly_price: 0\n    annual_price: 1000\n"},
		{"not yaml", "plans: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "plans.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := readPlanFile(path)
			assert.Error(t, err)
		})
	}
}
