package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clinicflow/clinicflow/internal/apperr"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusTrial, StatusActive, true},
		{StatusActive, StatusPastDue, true},
		{StatusActive, StatusActive, true},
		{StatusPastDue, StatusActive, true},
		{StatusCanceled, StatusActive, true},
		{StatusCanceled, StatusTrial, false},
		{StatusInactive, StatusCanceled, false},
		{StatusPending, StatusPastDue, false},
		{StatusTrial, StatusPastDue, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestSourcesOf(t *testing.T) {
	assert.ElementsMatch(t,
		[]Status{StatusTrial, StatusPending, StatusActive, StatusPastDue},
		SourcesOf(StatusCanceled))
	assert.ElementsMatch(t, []Status{StatusActive}, SourcesOf(StatusPastDue))
	assert.ElementsMatch(t, AllStatuses, SourcesOf(StatusActive))
}

func TestSubscription_Validate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ok := &Subscription{TenantID: "clinic-1", Status: StatusActive, PeriodStart: start, PeriodEnd: start.AddDate(0, 1, 0)}
	assert.NoError(t, ok.Validate())

	inverted := &Subscription{TenantID: "clinic-1", Status: StatusTrial, PeriodStart: start, PeriodEnd: start}
	assert.True(t, apperr.IsValidation(inverted.Validate()))

	// Bounds are not checked for statuses that do not grant access
	canceled := &Subscription{TenantID: "clinic-1", Status: StatusCanceled, PeriodStart: start, PeriodEnd: start}
	assert.NoError(t, canceled.Validate())
}

func TestCycle_AddTo(t *testing.T) {
	start := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, start.AddDate(0, 1, 0), CycleMonthly.AddTo(start))
	assert.Equal(t, time.Date(2027, 1, 31, 10, 0, 0, 0, time.UTC), CycleAnnual.AddTo(start))
}

func TestParseCycle(t *testing.T) {
	c, err := ParseCycle("annual")
	assert.NoError(t, err)
	assert.Equal(t, CycleAnnual, c)

	_, err = ParseCycle("weekly")
	assert.True(t, apperr.IsValidation(err))
}
