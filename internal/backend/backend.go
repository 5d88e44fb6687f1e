package backend

import (
	"context"
	"time"

	"baladi-api/internal/models"
)

// The directory delegates persistence, object storage, change notification
// and identity to a managed backend. Components receive these collaborators
// as explicit interfaces so tests can substitute fakes.

type MutationKind int

const (
	MutationInsert MutationKind = iota
	MutationUpdate
	MutationDelete
)

func (k MutationKind) String() string {
	switch k {
	case MutationInsert:
		return "insert"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// MutationEvent reports a row mutation on a backend table. It carries no row
// payload: consumers must treat it as a hint to re-fetch, never as
// authoritative data.
type MutationEvent struct {
	Table string
	Kind  MutationKind
	RowID string
}

// RowStore is the relational-table collaborator.
type RowStore interface {
	QueryListings(ctx context.Context, table string, filter models.ListingFilter) ([]models.Listing, error)
	GetListing(ctx context.Context, table, id string) (*models.Listing, error)
	CreateListing(ctx context.Context, table string, listing *models.Listing) (string, error)
	UpdateListing(ctx context.Context, table, id string, listing *models.Listing) error
	DeleteListing(ctx context.Context, table, id string) error
}

// SignedURL is a time-limited URL granting temporary read access to a
// private object.
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// ObjectStore is the object-storage collaborator.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (SignedURL, error)
	Remove(ctx context.Context, bucket string, paths []string) error
	PublicURL(bucket, path string) string
}

// FeedHandle owns one live change-feed stream. Close is idempotent.
type FeedHandle interface {
	Close() error
}

// ChangeFeed delivers row-mutation events for one table/filter scope,
// at-least-once, with no cross-row ordering guarantee. A terminal stream
// error is reported through onError exactly once; the stream is dead
// afterwards and must be re-subscribed.
type ChangeFeed interface {
	Subscribe(ctx context.Context, table string, filter models.ListingFilter, onEvent func(MutationEvent), onError func(error)) (FeedHandle, error)
}

// User is the authenticated actor, used only to compute the ownership half
// of the listing visibility rule.
type User struct {
	ID string
}

// Auth resolves the current actor, if any.
type Auth interface {
	CurrentUser(ctx context.Context) (User, bool)
}
