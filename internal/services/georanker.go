package services

import (
	"math"
	"sort"

	"baladi-api/internal/models"
)

const earthRadiusKm = 6371.0

// Distance returns the great-circle distance between two coordinates in
// kilometers, computed with the haversine formula.
func Distance(a, b models.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Rank annotates items with their distance from origin and orders them
// nearest-first. Items without a coordinate sort last, keeping their input
// order; ties between equal distances also keep input order (stable sort).
// With a nil origin the input order is preserved and no distances are set.
// A positive limit truncates the result after sorting.
func Rank(items []models.RankedListing, origin *models.Coordinate, limit int) []models.RankedListing {
	ranked := make([]models.RankedListing, len(items))
	copy(ranked, items)

	if origin != nil {
		for i := range ranked {
			if c := ranked[i].Listing.Coordinate; c != nil {
				d := Distance(*c, *origin)
				ranked[i].DistanceKm = &d
			} else {
				ranked[i].DistanceKm = nil
			}
		}

		sort.SliceStable(ranked, func(i, j int) bool {
			di, dj := ranked[i].DistanceKm, ranked[j].DistanceKm
			if di == nil {
				return false
			}
			if dj == nil {
				return true
			}
			return *di < *dj
		})
	}

	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}

	return ranked
}
