package memory

import (
	"context"
	"sync"

	"github.com/xerud2002/Dos/internal/catalog"
)

// CatalogStore keeps providers, reviews and claims in process memory, in
// insertion order.
type CatalogStore struct {
	mu        sync.RWMutex
	providers map[string]*catalog.Provider
	order     []string
	reviews   map[string][]catalog.Review
	claims    map[string]*catalog.Claim
	claimIDs  []string
}

var _ catalog.Repository = (*CatalogStore)(nil)

func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		providers: map[string]*catalog.Provider{},
		reviews:   map[string][]catalog.Review{},
		claims:    map[string]*catalog.Claim{},
	}
}

func (s *CatalogStore) CreateProvider(_ context.Context, p catalog.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.providers[p.ID] = &p
	return nil
}

func (s *CatalogStore) GetProvider(_ context.Context, id string) (catalog.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[id]
	if !ok {
		return catalog.Provider{}, catalog.ErrNotFound
	}
	return *p, nil
}

func (s *CatalogStore) ListProviders(_ context.Context) ([]catalog.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Provider, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.providers[id])
	}
	return out, nil
}

func (s *CatalogStore) SetProviderClaimed(_ context.Context, id string, claimed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[id]
	if !ok {
		return catalog.ErrNotFound
	}
	p.Claimed = claimed
	return nil
}

func (s *CatalogStore) AddReview(_ context.Context, r catalog.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[r.ProviderID]; !ok {
		return catalog.ErrNotFound
	}
	s.reviews[r.ProviderID] = append(s.reviews[r.ProviderID], r)
	return nil
}

func (s *CatalogStore) ListReviews(_ context.Context, providerID string) ([]catalog.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.reviews[providerID]
	out := make([]catalog.Review, len(src))
	copy(out, src)
	return out, nil
}

func (s *CatalogStore) AddClaim(_ context.Context, c catalog.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[c.ID]; !ok {
		s.claimIDs = append(s.claimIDs, c.ID)
	}
	c.Documents = append([]string{}, c.Documents...)
	s.claims[c.ID] = &c
	return nil
}

func (s *CatalogStore) GetClaim(_ context.Context, id string) (catalog.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.claims[id]
	if !ok {
		return catalog.Claim{}, catalog.ErrNotFound
	}
	return *c, nil
}

func (s *CatalogStore) ListClaims(_ context.Context) ([]catalog.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Claim, 0, len(s.claimIDs))
	for _, id := range s.claimIDs {
		out = append(out, *s.claims[id])
	}
	return out, nil
}

func (s *CatalogStore) SetClaimStatus(_ context.Context, id string, status catalog.ClaimStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[id]
	if !ok {
		return catalog.ErrNotFound
	}
	c.Status = status
	return nil
}

func (s *CatalogStore) Close() error {
	return nil
}
