package services

import (
	"math"
	"testing"

	"baladi-api/internal/models"
)

var (
	riyadhCenter = models.Coordinate{Lat: 24.7136, Lng: 46.6753}
	riyadhNorth  = models.Coordinate{Lat: 24.7, Lng: 46.7}
	jeddah       = models.Coordinate{Lat: 21.4858, Lng: 39.1925}
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name      string
		a, b      models.Coordinate
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "Same point",
			a:         riyadhCenter,
			b:         riyadhCenter,
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Across Riyadh",
			a:         riyadhCenter,
			b:         riyadhNorth,
			wantKm:    2.9,
			tolerance: 0.5,
		},
		{
			name:      "Riyadh to Jeddah",
			a:         riyadhCenter,
			b:         jeddah,
			wantKm:    850,
			tolerance: 15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("Distance() = %.2f km, want %.2f km (±%.2f)", got, tt.wantKm, tt.tolerance)
			}

			reverse := Distance(tt.b, tt.a)
			if math.Abs(got-reverse) > 1e-9 {
				t.Errorf("Distance() not symmetric: %v vs %v", got, reverse)
			}
		})
	}
}

func rankedItem(id string, c *models.Coordinate) models.RankedListing {
	return models.RankedListing{Listing: models.Listing{ID: id, Coordinate: c}}
}

func offsetFrom(origin models.Coordinate, dLat float64) *models.Coordinate {
	return &models.Coordinate{Lat: origin.Lat + dLat, Lng: origin.Lng}
}

func TestRank(t *testing.T) {
	origin := riyadhCenter

	items := []models.RankedListing{
		rankedItem("a", nil),
		rankedItem("b", offsetFrom(origin, 0.05)),
		rankedItem("c", offsetFrom(origin, 0.03)),
		rankedItem("d", nil),
	}

	tests := []struct {
		name      string
		origin    *models.Coordinate
		limit     int
		wantOrder []string
	}{
		{
			name:      "Nearest first, no coordinate last",
			origin:    &origin,
			limit:     0,
			wantOrder: []string{"c", "b", "a", "d"},
		},
		{
			name:      "Limit truncates after sorting",
			origin:    &origin,
			limit:     2,
			wantOrder: []string{"c", "b"},
		},
		{
			name:      "No origin preserves input order",
			origin:    nil,
			limit:     0,
			wantOrder: []string{"a", "b", "c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rank(items, tt.origin, tt.limit)

			if len(got) != len(tt.wantOrder) {
				t.Fatalf("Rank() returned %d items, want %d", len(got), len(tt.wantOrder))
			}
			for i, id := range tt.wantOrder {
				if got[i].Listing.ID != id {
					t.Errorf("Rank()[%d] = %s, want %s", i, got[i].Listing.ID, id)
				}
			}
		})
	}

	t.Run("Input slice untouched", func(t *testing.T) {
		Rank(items, &origin, 0)
		if items[0].Listing.ID != "a" || items[3].Listing.ID != "d" {
			t.Error("Rank() reordered its input slice")
		}
	})

	t.Run("Distances annotated", func(t *testing.T) {
		got := Rank(items, &origin, 0)
		if got[0].DistanceKm == nil || *got[0].DistanceKm <= 0 {
			t.Error("expected positive distance on nearest item")
		}
		if got[3].DistanceKm != nil {
			t.Error("expected nil distance on item without coordinate")
		}
	})
}
