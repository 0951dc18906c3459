package trips

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farewatch/farewatch/pkg/models"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	trips  map[string]*models.Trip
	quotes map[string][]*models.PriceQuote
}

// NewMemoryStore creates an empty in-memory trip store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips:  make(map[string]*models.Trip),
		quotes: make(map[string][]*models.PriceQuote),
	}
}

func (s *MemoryStore) Create(ctx context.Context, trip *models.Trip) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored := *trip
	stored.ID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.trips[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id, userID string) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, ok := s.trips[id]
	if !ok || trip.UserID != userID {
		return nil, ErrNotFound
	}
	out := *trip
	return &out, nil
}

func (s *MemoryStore) List(ctx context.Context, userID string) ([]*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Trip
	for _, trip := range s.trips {
		if trip.UserID == userID {
			clone := *trip
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, ok := s.trips[id]
	if !ok || trip.UserID != userID {
		return ErrNotFound
	}
	delete(s.trips, id)
	delete(s.quotes, id)
	return nil
}

func (s *MemoryStore) SetPaused(ctx context.Context, id, userID string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, ok := s.trips[id]
	if !ok || trip.UserID != userID {
		return ErrNotFound
	}
	trip.Paused = paused
	trip.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetNotification(ctx context.Context, id, userID string, threshold float64, direction string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, ok := s.trips[id]
	if !ok || trip.UserID != userID {
		return ErrNotFound
	}
	trip.NotifyThreshold = threshold
	trip.NotifyDirection = direction
	trip.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RecordQuote(ctx context.Context, quote *models.PriceQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *quote
	if stored.ObservedAt.IsZero() {
		stored.ObservedAt = time.Now().UTC()
	}
	s.quotes[stored.TripID] = append(s.quotes[stored.TripID], &stored)
	return nil
}

func (s *MemoryStore) LatestQuotes(ctx context.Context, tripID, userID string) ([]*models.PriceQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, ok := s.trips[tripID]
	if !ok || trip.UserID != userID {
		return nil, ErrNotFound
	}

	latest := make(map[string]*models.PriceQuote)
	for _, quote := range s.quotes[tripID] {
		current, ok := latest[quote.Kind]
		if !ok || quote.ObservedAt.After(current.ObservedAt) {
			latest[quote.Kind] = quote
		}
	}

	var out []*models.PriceQuote
	for _, quote := range latest {
		clone := *quote
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}
