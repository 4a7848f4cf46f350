// Package geo resolves addresses to coordinates and picks the store that
// fulfills an order.
package geo

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"pizzabot/internal/models"
)

var (
	// ErrAddressNotFound means the geocoder had no match; it is a normal outcome
	ErrAddressNotFound = errors.New("address not found")

	// ErrNoStores is returned by NearestStore for an empty store list
	ErrNoStores = errors.New("no stores")
)

// Geocoder turns a free-text address into coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Coordinates, error)
}

// Distance returns the great-circle distance in kilometres
func Distance(a, b models.Coordinates) float64 {
	return orbgeo.DistanceHaversine(orb.Point{a.Lon, a.Lat}, orb.Point{b.Lon, b.Lat}) / 1000
}

// NearestStore returns the store closest to from and its distance in km.
// Ties go to the store listed first.
func NearestStore(from models.Coordinates, stores []models.Store) (models.Store, float64, error) {
	if len(stores) == 0 {
		return models.Store{}, 0, ErrNoStores
	}

	best := 0
	bestKm := Distance(from, stores[0].Location)
	for i := 1; i < len(stores); i++ {
		km := Distance(from, stores[i].Location)
		if km < bestKm {
			best, bestKm = i, km
		}
	}
	return stores[best], bestKm, nil
}
