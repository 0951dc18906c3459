// Package trips persists tracked vacations and exposes the provider
// contracts the tool handlers call into: price refresh triggering and
// flight/hotel search.
package trips

import (
	"context"
	"errors"

	"github.com/farewatch/farewatch/pkg/models"
)

// ErrNotFound is returned when a trip does not exist or is owned by a
// different user. The two cases are indistinguishable on purpose.
var ErrNotFound = errors.New("trip not found")

// Store is the persistence contract for trips. Every query is scoped by
// the owning user.
type Store interface {
	// Create persists a new trip, assigning id and timestamps.
	Create(ctx context.Context, trip *models.Trip) (*models.Trip, error)

	// Get returns the trip iff the owner matches.
	Get(ctx context.Context, id, userID string) (*models.Trip, error)

	// List returns the user's trips ordered by created_at ascending.
	List(ctx context.Context, userID string) ([]*models.Trip, error)

	// Delete removes the trip and its price quotes iff owned.
	Delete(ctx context.Context, id, userID string) error

	// SetPaused toggles tracking for an owned trip.
	SetPaused(ctx context.Context, id, userID string, paused bool) error

	// SetNotification configures the price alert for an owned trip.
	// direction is "below" or "above".
	SetNotification(ctx context.Context, id, userID string, threshold float64, direction string) error

	// RecordQuote stores an observed price for a trip.
	RecordQuote(ctx context.Context, quote *models.PriceQuote) error

	// LatestQuotes returns the newest quote per kind for an owned trip.
	LatestQuotes(ctx context.Context, tripID, userID string) ([]*models.PriceQuote, error)
}

// RefreshTrigger asks the workflow engine to refresh prices. The engine
// itself is external; this is only the trigger contract.
type RefreshTrigger interface {
	// TriggerTrip queues a refresh for one owned trip.
	TriggerTrip(ctx context.Context, userID, tripID string) error

	// TriggerAll queues a refresh for every trip the user tracks.
	TriggerAll(ctx context.Context, userID string) (int, error)
}

// FlightOffer is one flight search result.
type FlightOffer struct {
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	DepartDate  string  `json:"depart_date"`
	ReturnDate  string  `json:"return_date,omitempty"`
	Airline     string  `json:"airline"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Stops       int     `json:"stops"`
}

// HotelOffer is one hotel search result.
type HotelOffer struct {
	DestinationCode string  `json:"destination_code"`
	Name            string  `json:"name"`
	CheckIn         string  `json:"check_in"`
	CheckOut        string  `json:"check_out"`
	NightlyPrice    float64 `json:"nightly_price"`
	Currency        string  `json:"currency"`
	Rating          float64 `json:"rating"`
}

// FlightQuery parameterizes a flight search.
type FlightQuery struct {
	Origin      string
	Destination string
	DepartDate  string
	ReturnDate  string
	MaxPrice    float64
}

// HotelQuery parameterizes a hotel search.
type HotelQuery struct {
	DestinationCode string
	CheckIn         string
	CheckOut        string
	MaxPrice        float64
	Guests          int
}

// FlightSearcher finds flight offers. Provider adapters implement this
// behind the tool handlers.
type FlightSearcher interface {
	SearchFlights(ctx context.Context, query FlightQuery) ([]FlightOffer, error)
}

// HotelSearcher finds hotel offers.
type HotelSearcher interface {
	SearchHotels(ctx context.Context, query HotelQuery) ([]HotelOffer, error)
}
