package models

// Coordinate is an immutable WGS 84 point.
// Latitude is in [-90, 90], longitude in [-180, 180].
type Coordinate struct {
	Lat float64 `firestore:"lat" json:"lat"`
	Lng float64 `firestore:"lng" json:"lng"`
}

// RankedListing is a listing prepared for a discovery view: media resolved
// to fetchable URLs and, when a reference point was supplied, annotated with
// the great-circle distance to it. DistanceKm is nil when either the listing
// or the reference point has no coordinate.
type RankedListing struct {
	Listing    Listing         `json:"listing"`
	Media      []ResolvedMedia `json:"media"`
	DistanceKm *float64        `json:"distanceKm,omitempty"`
}
