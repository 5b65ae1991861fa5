package crm

import (
	"context"

	"meeting-intel/internal/models"
	"meeting-intel/internal/research/crmmatch"
	"meeting-intel/internal/research/ratelimit"
)

// RateLimitedStore takes one limiter slot per backend call.
type RateLimitedStore struct {
	next    crmmatch.ContactStore
	limiter ratelimit.Limiter
}

func NewRateLimitedStore(next crmmatch.ContactStore, limiter ratelimit.Limiter) *RateLimitedStore {
	return &RateLimitedStore{next: next, limiter: limiter}
}

func (s *RateLimitedStore) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return s.next.FindByEmail(ctx, email)
}

func (s *RateLimitedStore) FindByName(ctx context.Context, q crmmatch.NameQuery) ([]models.Contact, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return s.next.FindByName(ctx, q)
}
