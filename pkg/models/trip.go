package models

import "time"

// Trip is a tracked vacation: a flight route plus optional hotel stay
// whose prices are refreshed by the workflow engine.
type Trip struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	OriginAirport   string    `json:"origin_airport"`
	DestinationCode string    `json:"destination_code"`
	DepartDate      string    `json:"depart_date"`
	ReturnDate      string    `json:"return_date"`
	Paused          bool      `json:"paused"`
	NotifyThreshold float64   `json:"notify_threshold,omitempty"`
	NotifyDirection string    `json:"notify_direction,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PriceQuote is the most recent observed price for a trip component.
type PriceQuote struct {
	TripID     string    `json:"trip_id"`
	Kind       string    `json:"kind"` // flight or hotel
	Provider   string    `json:"provider"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	ObservedAt time.Time `json:"observed_at"`
}
