package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/internal/apperr"
)

func TestCatalog_CachesByNameAndID(t *testing.T) {
	repo := new(mockPlanRepo)
	ctx := context.Background()
	repo.On("GetByName", ctx, "premium").Return(premiumPlan, nil).Once()

	c := NewCatalog(repo, 4, time.Minute)

	p, err := c.Get(ctx, "premium")
	require.NoError(t, err)
	assert.Equal(t, int64(29700), p.Price(CycleMonthly))

	_, err = c.Get(ctx, "premium")
	require.NoError(t, err)

	// Populated by the name lookup
	byID, err := c.GetByID(ctx, premiumPlan.ID)
	require.NoError(t, err)
	assert.Same(t, p, byID)

	repo.AssertNumberOfCalls(t, "GetByName", 1)
	repo.AssertNotCalled(t, "GetByID", ctx, premiumPlan.ID)
}

func TestCatalog_NotFound(t *testing.T) {
	repo := new(mockPlanRepo)
	ctx := context.Background()
	repo.On("GetByName", ctx, "gold").Return(nil, ErrPlanNotFound)

	_, err := NewCatalog(repo, 4, time.Minute).Get(ctx, "gold")
	assert.True(t, apperr.IsNotFound(err))
}
