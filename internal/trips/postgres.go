package trips

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/farewatch/farewatch/pkg/models"
)

// PostgresStore implements Store on a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgresStoreFromDB(db), nil
}

// NewPostgresStoreFromDB wraps an existing database handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the trip tables when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trips (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			origin_airport TEXT NOT NULL,
			destination_code TEXT NOT NULL,
			depart_date TEXT NOT NULL,
			return_date TEXT NOT NULL,
			paused BOOLEAN NOT NULL DEFAULT FALSE,
			notify_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
			notify_direction TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_user ON trips (user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS price_quotes (
			trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			provider TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			currency TEXT NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_trip ON price_quotes (trip_id, kind, observed_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate trips: %w", err)
		}
	}
	return nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, trip *models.Trip) (*models.Trip, error) {
	if trip.UserID == "" {
		return nil, errors.New("user id is required")
	}
	now := time.Now()
	stored := *trip
	stored.ID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trips (id, user_id, name, origin_airport, destination_code, depart_date, return_date, paused, notify_threshold, notify_direction, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		stored.ID, stored.UserID, stored.Name, stored.OriginAirport, stored.DestinationCode,
		stored.DepartDate, stored.ReturnDate, stored.Paused, stored.NotifyThreshold,
		stored.NotifyDirection, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert trip: %w", err)
	}
	return &stored, nil
}

const tripColumns = `id, user_id, name, origin_airport, destination_code, depart_date, return_date, paused, notify_threshold, notify_direction, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, id, userID string) (*models.Trip, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = $1 AND user_id = $2`, id, userID)
	return scanTrip(row)
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]*models.Trip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var out []*models.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, trip)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM trips WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) SetPaused(ctx context.Context, id, userID string, paused bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trips SET paused = $1, updated_at = $2 WHERE id = $3 AND user_id = $4`,
		paused, time.Now(), id, userID)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) SetNotification(ctx context.Context, id, userID string, threshold float64, direction string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trips SET notify_threshold = $1, notify_direction = $2, updated_at = $3 WHERE id = $4 AND user_id = $5`,
		threshold, direction, time.Now(), id, userID)
	if err != nil {
		return fmt.Errorf("set notification: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) RecordQuote(ctx context.Context, quote *models.PriceQuote) error {
	observed := quote.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_quotes (trip_id, kind, provider, amount, currency, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		quote.TripID, quote.Kind, quote.Provider, quote.Amount, quote.Currency, observed)
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestQuotes(ctx context.Context, tripID, userID string) ([]*models.PriceQuote, error) {
	// Ownership check first so non-owned reads look like missing trips.
	if _, err := s.Get(ctx, tripID, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ON (kind) trip_id, kind, provider, amount, currency, observed_at
		 FROM price_quotes WHERE trip_id = $1 ORDER BY kind, observed_at DESC`, tripID)
	if err != nil {
		return nil, fmt.Errorf("latest quotes: %w", err)
	}
	defer rows.Close()

	var out []*models.PriceQuote
	for rows.Next() {
		var quote models.PriceQuote
		if err := rows.Scan(&quote.TripID, &quote.Kind, &quote.Provider, &quote.Amount, &quote.Currency, &quote.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		out = append(out, &quote)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*models.Trip, error) {
	var trip models.Trip
	err := row.Scan(&trip.ID, &trip.UserID, &trip.Name, &trip.OriginAirport, &trip.DestinationCode,
		&trip.DepartDate, &trip.ReturnDate, &trip.Paused, &trip.NotifyThreshold,
		&trip.NotifyDirection, &trip.CreatedAt, &trip.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan trip: %w", err)
	}
	return &trip, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
