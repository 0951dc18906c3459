package trips

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/farewatch/farewatch/pkg/models"
)

func newMockTripStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreFromDB(db), mock
}

func TestPostgresCreateAssignsID(t *testing.T) {
	store, mock := newMockTripStore(t)

	mock.ExpectExec(`INSERT INTO trips`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.Create(context.Background(), &models.Trip{
		UserID: "user-1", Name: "Hawaii spring",
		OriginAirport: "JFK", DestinationCode: "HNL",
		DepartDate: "2026-04-10", ReturnDate: "2026-04-20",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatal("expected id and created_at to be assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreateRequiresUser(t *testing.T) {
	store, _ := newMockTripStore(t)

	if _, err := store.Create(context.Background(), &models.Trip{Name: "orphan"}); err == nil {
		t.Fatal("Create() without user id must fail")
	}
}

func TestPostgresGetScopesByUser(t *testing.T) {
	store, mock := newMockTripStore(t)

	mock.ExpectQuery(`SELECT .+ FROM trips WHERE id = \$1 AND user_id = \$2`).
		WithArgs("trip-1", "intruder").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "name", "origin_airport", "destination_code",
			"depart_date", "return_date", "paused", "notify_threshold",
			"notify_direction", "created_at", "updated_at",
		}))

	if _, err := store.Get(context.Background(), "trip-1", "intruder"); err != ErrNotFound {
		t.Fatalf("Get() with no rows = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresDeleteNotOwned(t *testing.T) {
	store, mock := newMockTripStore(t)

	mock.ExpectExec(`DELETE FROM trips WHERE id = \$1 AND user_id = \$2`).
		WithArgs("trip-1", "intruder").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "trip-1", "intruder"); err != ErrNotFound {
		t.Fatalf("Delete() affecting 0 rows = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresLatestQuotesChecksOwnershipFirst(t *testing.T) {
	store, mock := newMockTripStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM trips WHERE id = \$1 AND user_id = \$2`).
		WithArgs("trip-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "name", "origin_airport", "destination_code",
			"depart_date", "return_date", "paused", "notify_threshold",
			"notify_direction", "created_at", "updated_at",
		}).AddRow("trip-1", "user-1", "Hawaii spring", "JFK", "HNL",
			"2026-04-10", "2026-04-20", false, 0.0, "", now, now))
	mock.ExpectQuery(`SELECT DISTINCT ON \(kind\)`).
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"trip_id", "kind", "provider", "amount", "currency", "observed_at"}).
			AddRow("trip-1", "flight", "demo", 420.50, "USD", now))

	quotes, err := store.LatestQuotes(context.Background(), "trip-1", "user-1")
	if err != nil {
		t.Fatalf("LatestQuotes() error = %v", err)
	}
	if len(quotes) != 1 || quotes[0].Kind != "flight" || quotes[0].Amount != 420.50 {
		t.Fatalf("quotes = %+v", quotes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSetPausedNotFound(t *testing.T) {
	store, mock := newMockTripStore(t)

	mock.ExpectExec(`UPDATE trips SET paused = \$1, updated_at = \$2 WHERE id = \$3 AND user_id = \$4`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.SetPaused(context.Background(), "missing", "user-1", true); err != ErrNotFound {
		t.Fatalf("SetPaused() = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
