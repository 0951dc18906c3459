package trips

import (
	"context"
	"log/slog"
)

// LogTrigger is a RefreshTrigger for local runs: it records the request
// and reports how many trips would have been refreshed.
type LogTrigger struct {
	store  Store
	logger *slog.Logger
}

// NewLogTrigger creates a trigger that only logs.
func NewLogTrigger(store Store, logger *slog.Logger) *LogTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTrigger{store: store, logger: logger.With("component", "refresh")}
}

func (t *LogTrigger) TriggerTrip(ctx context.Context, userID, tripID string) error {
	// Ownership check keeps the trigger from leaking trip existence.
	if _, err := t.store.Get(ctx, tripID, userID); err != nil {
		return err
	}
	t.logger.Info("price refresh requested", "user_id", userID, "trip_id", tripID)
	return nil
}

func (t *LogTrigger) TriggerAll(ctx context.Context, userID string) (int, error) {
	list, err := t.store.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, trip := range list {
		if !trip.Paused {
			count++
		}
	}
	t.logger.Info("bulk price refresh requested", "user_id", userID, "trips", count)
	return count, nil
}
