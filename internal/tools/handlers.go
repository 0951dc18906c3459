package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/farewatch/farewatch/internal/trips"
	"github.com/farewatch/farewatch/pkg/models"
)

// CreateTripComponent names the UI form the frontend renders when
// create_trip needs more fields.
const CreateTripComponent = "create-trip-form"

var createTripRequired = []string{"name", "origin_airport", "destination_code", "depart_date", "return_date"}

// TripHandlers implements the domain tool catalog against the trip
// store and the search/refresh collaborators.
type TripHandlers struct {
	store   trips.Store
	trigger trips.RefreshTrigger
	flights trips.FlightSearcher
	hotels  trips.HotelSearcher
	logger  *slog.Logger
}

// NewTripHandlers wires the handlers to their collaborators.
func NewTripHandlers(store trips.Store, trigger trips.RefreshTrigger, flights trips.FlightSearcher, hotels trips.HotelSearcher, logger *slog.Logger) *TripHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &TripHandlers{
		store:   store,
		trigger: trigger,
		flights: flights,
		hotels:  hotels,
		logger:  logger.With("component", "trip_tools"),
	}
}

// RegisterAll registers the full catalog on the registry.
func (h *TripHandlers) RegisterAll(registry *Registry) error {
	handlers := map[string]Handler{
		"create_trip":             HandlerFunc(h.createTrip),
		"delete_trip":             HandlerFunc(h.deleteTrip),
		"list_trips":              HandlerFunc(h.listTrips),
		"get_trip_details":        HandlerFunc(h.getTripDetails),
		"set_notification":        HandlerFunc(h.setNotification),
		"pause_trip":              HandlerFunc(h.pauseTrip),
		"resume_trip":             HandlerFunc(h.resumeTrip),
		"refresh_trip_prices":     HandlerFunc(h.refreshTrip),
		"refresh_all_trip_prices": HandlerFunc(h.refreshAll),
		"search_flights":          HandlerFunc(h.searchFlights),
		"search_hotels":           HandlerFunc(h.searchHotels),
	}

	for _, def := range Catalog() {
		handler, ok := handlers[def.Name]
		if !ok {
			return fmt.Errorf("no handler for catalog tool %s", def.Name)
		}
		if err := registry.Register(def, handler); err != nil {
			return err
		}
	}
	return nil
}

func (h *TripHandlers) createTrip(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	prefilled := map[string]any{}
	var missing []string
	for _, field := range createTripRequired {
		value, ok := stringArg(args, field)
		if !ok || value == "" {
			missing = append(missing, field)
			continue
		}
		prefilled[field] = value
	}

	if len(missing) > 0 {
		return &models.ToolResult{
			Success: true,
			Data: map[string]any{
				"needs_elicitation": true,
				"component":         CreateTripComponent,
				"prefilled":         prefilled,
				"missing_fields":    missing,
			},
		}
	}

	trip := &models.Trip{
		UserID:          userID,
		Name:            prefilled["name"].(string),
		OriginAirport:   prefilled["origin_airport"].(string),
		DestinationCode: prefilled["destination_code"].(string),
		DepartDate:      prefilled["depart_date"].(string),
		ReturnDate:      prefilled["return_date"].(string),
	}
	created, err := h.store.Create(ctx, trip)
	if err != nil {
		return failure("Could not create trip: %v", err)
	}

	return &models.ToolResult{
		Success: true,
		Data: map[string]any{
			"trip":    tripMap(created),
			"message": fmt.Sprintf("Now tracking %s (%s to %s)", created.Name, created.OriginAirport, created.DestinationCode),
		},
	}
}

func (h *TripHandlers) deleteTrip(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	tripID, _ := stringArg(args, "trip_id")
	if err := h.store.Delete(ctx, tripID, userID); err != nil {
		if errors.Is(err, trips.ErrNotFound) {
			return failure("Trip not found")
		}
		return failure("Could not delete trip: %v", err)
	}
	return &models.ToolResult{
		Success: true,
		Data:    map[string]any{"deleted": true, "trip_id": tripID},
	}
}

func (h *TripHandlers) listTrips(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	list, err := h.store.List(ctx, userID)
	if err != nil {
		return failure("Could not list trips: %v", err)
	}

	out := make([]any, 0, len(list))
	for _, trip := range list {
		out = append(out, tripMap(trip))
	}
	return &models.ToolResult{
		Success: true,
		Data:    map[string]any{"trips": out, "count": len(out)},
	}
}

func (h *TripHandlers) getTripDetails(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	tripID, _ := stringArg(args, "trip_id")
	trip, err := h.store.Get(ctx, tripID, userID)
	if err != nil {
		if errors.Is(err, trips.ErrNotFound) {
			return failure("Trip not found")
		}
		return failure("Could not load trip: %v", err)
	}

	quotes, err := h.store.LatestQuotes(ctx, tripID, userID)
	if err != nil && !errors.Is(err, trips.ErrNotFound) {
		return failure("Could not load prices: %v", err)
	}

	prices := make([]any, 0, len(quotes))
	for _, quote := range quotes {
		prices = append(prices, map[string]any{
			"kind":        quote.Kind,
			"provider":    quote.Provider,
			"amount":      quote.Amount,
			"currency":    quote.Currency,
			"observed_at": quote.ObservedAt,
		})
	}
	return &models.ToolResult{
		Success: true,
		Data:    map[string]any{"trip": tripMap(trip), "prices": prices},
	}
}

func (h *TripHandlers) setNotification(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	tripID, _ := stringArg(args, "trip_id")
	threshold, _ := numberArg(args, "threshold")
	direction, ok := stringArg(args, "direction")
	if !ok || direction == "" {
		direction = "below"
	}

	if err := h.store.SetNotification(ctx, tripID, userID, threshold, direction); err != nil {
		if errors.Is(err, trips.ErrNotFound) {
			return failure("Trip not found")
		}
		return failure("Could not set notification: %v", err)
	}
	return &models.ToolResult{
		Success: true,
		Data: map[string]any{
			"trip_id":   tripID,
			"threshold": threshold,
			"direction": direction,
			"message":   fmt.Sprintf("Alert set: notify when price goes %s %.2f", direction, threshold),
		},
	}
}

func (h *TripHandlers) pauseTrip(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	return h.setPaused(ctx, args, userID, true)
}

func (h *TripHandlers) resumeTrip(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	return h.setPaused(ctx, args, userID, false)
}

func (h *TripHandlers) setPaused(ctx context.Context, args map[string]any, userID string, paused bool) *models.ToolResult {
	tripID, _ := stringArg(args, "trip_id")
	if err := h.store.SetPaused(ctx, tripID, userID, paused); err != nil {
		if errors.Is(err, trips.ErrNotFound) {
			return failure("Trip not found")
		}
		return failure("Could not update trip: %v", err)
	}
	return &models.ToolResult{
		Success: true,
		Data:    map[string]any{"trip_id": tripID, "paused": paused},
	}
}

func (h *TripHandlers) refreshTrip(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	tripID, _ := stringArg(args, "trip_id")
	if err := h.trigger.TriggerTrip(ctx, userID, tripID); err != nil {
		if errors.Is(err, trips.ErrNotFound) {
			return failure("Trip not found")
		}
		return failure("Could not queue refresh: %v", err)
	}
	return &models.ToolResult{
		Success: true,
		Data:    map[string]any{"status": "refresh_queued", "trip_id": tripID},
	}
}

func (h *TripHandlers) refreshAll(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	count, err := h.trigger.TriggerAll(ctx, userID)
	if err != nil {
		return failure("Could not queue refresh: %v", err)
	}
	return &models.ToolResult{
		Success: true,
		Data:    map[string]any{"status": "refresh_queued", "trips_queued": count},
	}
}

func (h *TripHandlers) searchFlights(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	query := trips.FlightQuery{}
	query.Origin, _ = stringArg(args, "origin")
	query.Destination, _ = stringArg(args, "destination")
	query.DepartDate, _ = stringArg(args, "depart_date")
	query.ReturnDate, _ = stringArg(args, "return_date")
	query.MaxPrice, _ = numberArg(args, "max_price")

	offers, err := h.flights.SearchFlights(ctx, query)
	if err != nil {
		return failure("Flight search failed: %v", err)
	}

	out := make([]any, 0, len(offers))
	for _, offer := range offers {
		out = append(out, offer)
	}
	return &models.ToolResult{
		Success: true,
		Data:    map[string]any{"offers": out, "count": len(out)},
	}
}

func (h *TripHandlers) searchHotels(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	query := trips.HotelQuery{}
	query.DestinationCode, _ = stringArg(args, "destination_code")
	query.CheckIn, _ = stringArg(args, "check_in")
	query.CheckOut, _ = stringArg(args, "check_out")
	query.MaxPrice, _ = numberArg(args, "max_price")
	if guests, ok := numberArg(args, "guests"); ok {
		query.Guests = int(guests)
	}

	offers, err := h.hotels.SearchHotels(ctx, query)
	if err != nil {
		return failure("Hotel search failed: %v", err)
	}

	out := make([]any, 0, len(offers))
	for _, offer := range offers {
		out = append(out, offer)
	}
	return &models.ToolResult{
		Success: true,
		Data:    map[string]any{"offers": out, "count": len(out)},
	}
}

func tripMap(trip *models.Trip) map[string]any {
	return map[string]any{
		"id":               trip.ID,
		"name":             trip.Name,
		"origin_airport":   trip.OriginAirport,
		"destination_code": trip.DestinationCode,
		"depart_date":      trip.DepartDate,
		"return_date":      trip.ReturnDate,
		"paused":           trip.Paused,
		"notify_threshold": trip.NotifyThreshold,
		"notify_direction": trip.NotifyDirection,
	}
}

func failure(format string, args ...any) *models.ToolResult {
	return &models.ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

func stringArg(args map[string]any, key string) (string, bool) {
	value, ok := args[key].(string)
	return value, ok
}

func numberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
