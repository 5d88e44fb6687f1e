package models

import "time"

type ListingKind string

const (
	KindStore   ListingKind = "store"
	KindProduct ListingKind = "product"
)

// Listing is a store or product record surfaced in discovery views.
type Listing struct {
	ID          string      `firestore:"id,omitempty" json:"id"`
	Kind        ListingKind `firestore:"kind" json:"kind"`
	Title       string      `firestore:"title" json:"title"`
	Description string      `firestore:"description,omitempty" json:"description,omitempty"`
	OwnerID     string      `firestore:"ownerId" json:"ownerId"`
	City        string      `firestore:"city,omitempty" json:"city,omitempty"`
	Categories  []string    `firestore:"categories,omitempty" json:"categories,omitempty"`
	Coordinate  *Coordinate `firestore:"coordinate,omitempty" json:"coordinate,omitempty"`
	// Media order is significant: index 0 is the primary/display image.
	Media     []MediaRef `firestore:"media,omitempty" json:"media,omitempty"`
	Active    bool       `firestore:"active" json:"active"`
	CreatedAt time.Time  `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt time.Time  `firestore:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// ListingFilter narrows a listing query. Zero values mean "no constraint".
// ViewerID identifies the requesting actor: inactive listings are only
// returned to their owner, never to the public.
type ListingFilter struct {
	Kind       ListingKind
	City       string
	Categories []string
	OwnerID    string
	ViewerID   string
}
