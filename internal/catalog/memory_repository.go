package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository keeps listings in process. It backs tests and the
// api-server when no database is wanted for local demos.
type MemoryRepository struct {
	mu       sync.RWMutex
	listings map[uuid.UUID]Listing
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{listings: make(map[uuid.UUID]Listing)}
}

func (r *MemoryRepository) Create(_ context.Context, l *Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[l.ID] = *l
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	return &l, nil
}

func (r *MemoryRepository) List(_ context.Context, f ListFilter) ([]Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Listing
	for _, l := range r.listings {
		if f.ProviderID != nil && l.ProviderID != *f.ProviderID {
			continue
		}
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.ActiveOnly && !l.Active {
			continue
		}
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	if f.Offset >= len(result) {
		return nil, nil
	}
	result = result[f.Offset:]
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (r *MemoryRepository) Update(_ context.Context, l *Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listings[l.ID]; !ok {
		return ErrListingNotFound
	}
	r.listings[l.ID] = *l
	return nil
}
