package trips

import (
	"context"
	"hash/fnv"
)

// StaticSearcher serves deterministic canned offers for local runs and
// tests. Prices derive from a hash of the query so repeated searches
// are stable without looking constant.
type StaticSearcher struct{}

// NewStaticSearcher creates the canned provider.
func NewStaticSearcher() *StaticSearcher {
	return &StaticSearcher{}
}

var staticAirlines = []string{"Pacific Blue", "Transatlantic", "Skyline Air"}

var staticHotels = []string{"Harborview Hotel", "Old Town Suites", "Seaside Resort"}

func (s *StaticSearcher) SearchFlights(ctx context.Context, query FlightQuery) ([]FlightOffer, error) {
	base := 180 + float64(hashOf(query.Origin+query.Destination+query.DepartDate)%420)

	var out []FlightOffer
	for i, airline := range staticAirlines {
		price := base + float64(i)*47
		if query.MaxPrice > 0 && price > query.MaxPrice {
			continue
		}
		out = append(out, FlightOffer{
			Origin:      query.Origin,
			Destination: query.Destination,
			DepartDate:  query.DepartDate,
			ReturnDate:  query.ReturnDate,
			Airline:     airline,
			Price:       price,
			Currency:    "USD",
			Stops:       i,
		})
	}
	return out, nil
}

func (s *StaticSearcher) SearchHotels(ctx context.Context, query HotelQuery) ([]HotelOffer, error) {
	base := 90 + float64(hashOf(query.DestinationCode+query.CheckIn)%240)

	var out []HotelOffer
	for i, name := range staticHotels {
		price := base + float64(i)*35
		if query.MaxPrice > 0 && price > query.MaxPrice {
			continue
		}
		out = append(out, HotelOffer{
			DestinationCode: query.DestinationCode,
			Name:            name,
			CheckIn:         query.CheckIn,
			CheckOut:        query.CheckOut,
			NightlyPrice:    price,
			Currency:        "USD",
			Rating:          4.5 - float64(i)*0.4,
		})
	}
	return out, nil
}

func hashOf(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
