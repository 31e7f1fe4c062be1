package persona

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

const cacheSize = 256

// Source is the read side of the persona catalog, implemented by the store.
type Source interface {
	// GetPersona fetches one persona by id.
	GetPersona(ctx context.Context, id uuid.UUID) (*Persona, error)
	// ListPersonaIDs returns the full catalog in stable rotation order.
	ListPersonaIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Catalog fronts the persona table with an LRU cache. Personas are
// immutable, so cached entries never go stale; the cache only exists to
// drop the per-turn lookup query.
type Catalog struct {
	source Source
	cache  *lru.Cache
}

func NewCatalog(source Source) *Catalog {
	cache, _ := lru.New(cacheSize)
	return &Catalog{source: source, cache: cache}
}

// Get returns the persona with the given id, from cache when possible.
func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (*Persona, error) {
	if v, ok := c.cache.Get(id); ok {
		return v.(*Persona), nil
	}
	p, err := c.source.GetPersona(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load persona %s: %w", id, err)
	}
	c.cache.Add(id, p)
	return p, nil
}

// ListIDs returns the rotation-ordered catalog ids. Not cached: it runs
// once per day from the scheduler, not on the turn path.
func (c *Catalog) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	return c.source.ListPersonaIDs(ctx)
}
