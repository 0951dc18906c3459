package tools

// The tool catalog is part of the external surface: LLM-generated calls
// must match these schemas. create_trip publishes no required list so
// partially-filled calls reach the handler, which answers with an
// elicitation naming the missing fields.

func schemaObject(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var airportProperty = map[string]any{
	"type":    "string",
	"pattern": "^[A-Z]{3}$",
}

var dateProperty = map[string]any{
	"type":   "string",
	"format": "date",
}

var tripIDProperty = map[string]any{
	"type":   "string",
	"format": "uuid",
}

// Catalog returns the published definitions for every domain tool.
func Catalog() []Definition {
	return []Definition{
		{
			Name:        "create_trip",
			Description: "Create a new tracked trip. Needs a name, origin airport, destination, and travel dates; missing fields trigger a form for the user.",
			Parameters: schemaObject(map[string]any{
				"name":             map[string]any{"type": "string", "minLength": 1, "maxLength": 100},
				"origin_airport":   airportProperty,
				"destination_code": airportProperty,
				"depart_date":      dateProperty,
				"return_date":      dateProperty,
			}),
		},
		{
			Name:        "delete_trip",
			Description: "Stop tracking a trip and delete its price history.",
			Parameters: schemaObject(map[string]any{
				"trip_id": tripIDProperty,
			}, "trip_id"),
		},
		{
			Name:        "list_trips",
			Description: "List all trips the user is tracking.",
			Parameters:  schemaObject(map[string]any{}),
		},
		{
			Name:        "get_trip_details",
			Description: "Get one trip with its latest observed prices.",
			Parameters: schemaObject(map[string]any{
				"trip_id": tripIDProperty,
			}, "trip_id"),
		},
		{
			Name:        "set_notification",
			Description: "Set a price alert threshold for a trip. Direction defaults to below.",
			Parameters: schemaObject(map[string]any{
				"trip_id":   tripIDProperty,
				"threshold": map[string]any{"type": "number", "minimum": 0},
				"direction": map[string]any{"type": "string", "enum": []any{"below", "above"}},
			}, "trip_id", "threshold"),
		},
		{
			Name:        "pause_trip",
			Description: "Pause price tracking for a trip.",
			Parameters: schemaObject(map[string]any{
				"trip_id": tripIDProperty,
			}, "trip_id"),
		},
		{
			Name:        "resume_trip",
			Description: "Resume price tracking for a paused trip.",
			Parameters: schemaObject(map[string]any{
				"trip_id": tripIDProperty,
			}, "trip_id"),
		},
		{
			Name:        "refresh_trip_prices",
			Description: "Queue an immediate price refresh for one trip.",
			Parameters: schemaObject(map[string]any{
				"trip_id": tripIDProperty,
			}, "trip_id"),
		},
		{
			Name:        "refresh_all_trip_prices",
			Description: "Queue an immediate price refresh for all active trips.",
			Parameters:  schemaObject(map[string]any{}),
		},
		{
			Name:        "search_flights",
			Description: "Search current flight prices for a route and dates.",
			Parameters: schemaObject(map[string]any{
				"origin":      airportProperty,
				"destination": airportProperty,
				"depart_date": dateProperty,
				"return_date": dateProperty,
				"max_price":   map[string]any{"type": "number", "minimum": 0},
			}, "origin", "destination", "depart_date"),
		},
		{
			Name:        "search_hotels",
			Description: "Search current hotel prices for a destination and stay.",
			Parameters: schemaObject(map[string]any{
				"destination_code": airportProperty,
				"check_in":         dateProperty,
				"check_out":        dateProperty,
				"max_price":        map[string]any{"type": "number", "minimum": 0},
				"guests":           map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
			}, "destination_code", "check_in", "check_out"),
		},
	}
}
