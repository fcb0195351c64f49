package subscription

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clinicflow/clinicflow/internal/apperr"
)

// Catalog serves plan reference data from an expiring LRU in front of the store.
// Plans are immutable, so the TTL only bounds how long a reseeded price takes to show.
type Catalog struct {
	repo   PlanRepository
	byName *lru.LRU[string, *Plan]
	byID   *lru.LRU[string, *Plan]
}

// NewCatalog creates a plan catalog caching up to size plans per index.
func NewCatalog(repo PlanRepository, size int, ttl time.Duration) *Catalog {
	if size < 1 {
		size = 16
	}
	return &Catalog{
		repo:   repo,
		byName: lru.NewLRU[string, *Plan](size, nil, ttl),
		byID:   lru.NewLRU[string, *Plan](size, nil, ttl),
	}
}

// Get resolves a plan by its name.
func (c *Catalog) Get(ctx context.Context, name string) (*Plan, error) {
	if p, ok := c.byName.Get(name); ok {
		return p, nil
	}
	p, err := c.repo.GetByName(ctx, name)
	if errors.Is(err, ErrPlanNotFound) {
		return nil, apperr.NotFound("plan", name)
	}
	if err != nil {
		return nil, err
	}
	c.add(p)
	return p, nil
}

// GetByID resolves a plan by its id.
func (c *Catalog) GetByID(ctx context.Context, id string) (*Plan, error) {
	if p, ok := c.byID.Get(id); ok {
		return p, nil
	}
	p, err := c.repo.GetByID(ctx, id)
	if errors.Is(err, ErrPlanNotFound) {
		return nil, apperr.NotFound("plan", id)
	}
	if err != nil {
		return nil, err
	}
	c.add(p)
	return p, nil
}

// Purge drops every cached plan.
func (c *Catalog) Purge() {
	c.byName.Purge()
	c.byID.Purge()
}

func (c *Catalog) add(p *Plan) {
	c.byName.Add(p.Name, p)
	c.byID.Add(p.ID, p)
}
