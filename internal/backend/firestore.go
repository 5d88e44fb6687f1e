package backend

import (
	"context"
	"fmt"
	"log"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"baladi-api/internal/errors"
	"baladi-api/internal/models"
)

// FirestoreStore implements RowStore and ChangeFeed on Cloud Firestore.
// Tables map to collections; the change feed rides on snapshot listeners.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// buildQuery translates a ListingFilter into a Firestore query, including
// the visibility rule: the public sees active rows only, a signed-in viewer
// additionally sees their own inactive rows.
func (s *FirestoreStore) buildQuery(table string, filter models.ListingFilter) firestore.Query {
	q := s.client.Collection(table).Query

	if filter.Kind != "" {
		q = q.Where("kind", "==", string(filter.Kind))
	}
	if filter.City != "" {
		q = q.Where("city", "==", filter.City)
	}
	if len(filter.Categories) > 0 {
		q = q.Where("categories", "array-contains-any", filter.Categories)
	}
	if filter.OwnerID != "" {
		q = q.Where("ownerId", "==", filter.OwnerID)
	}

	if filter.ViewerID != "" {
		q = q.WhereEntity(firestore.OrFilter{
			Filters: []firestore.EntityFilter{
				firestore.PropertyFilter{Path: "active", Operator: "==", Value: true},
				firestore.PropertyFilter{Path: "ownerId", Operator: "==", Value: filter.ViewerID},
			},
		})
	} else {
		q = q.Where("active", "==", true)
	}

	return q
}

func (s *FirestoreStore) QueryListings(ctx context.Context, table string, filter models.ListingFilter) ([]models.Listing, error) {
	iter := s.buildQuery(table, filter).Documents(ctx)
	defer iter.Stop()

	var results []models.Listing
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate listings: %w", err)
		}

		var listing models.Listing
		if err := doc.DataTo(&listing); err != nil {
			// Log but don't fail on individual document parse errors
			log.Printf("[Firestore] Skipping malformed listing %s: %v", doc.Ref.ID, err)
			continue
		}
		listing.ID = doc.Ref.ID

		results = append(results, listing)
	}

	return results, nil
}

func (s *FirestoreStore) GetListing(ctx context.Context, table, id string) (*models.Listing, error) {
	doc, err := s.client.Collection(table).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	var listing models.Listing
	if err := doc.DataTo(&listing); err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}
	listing.ID = doc.Ref.ID

	return &listing, nil
}

func (s *FirestoreStore) CreateListing(ctx context.Context, table string, listing *models.Listing) (string, error) {
	docRef, _, err := s.client.Collection(table).Add(ctx, listing)
	if err != nil {
		return "", fmt.Errorf("failed to create listing: %w", err)
	}

	return docRef.ID, nil
}

func (s *FirestoreStore) UpdateListing(ctx context.Context, table, id string, listing *models.Listing) error {
	_, err := s.client.Collection(table).Doc(id).Set(ctx, listing)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}

	return nil
}

func (s *FirestoreStore) DeleteListing(ctx context.Context, table, id string) error {
	_, err := s.client.Collection(table).Doc(id).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}

	return nil
}

// Subscribe opens a snapshot listener scoped like a query and forwards
// document changes as mutation events. The initial snapshot describes
// existing rows, not mutations, so it is swallowed.
func (s *FirestoreStore) Subscribe(ctx context.Context, table string, filter models.ListingFilter, onEvent func(MutationEvent), onError func(error)) (FeedHandle, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	snaps := s.buildQuery(table, filter).Snapshots(streamCtx)

	go func() {
		defer snaps.Stop()

		first := true
		for {
			snap, err := snaps.Next()
			if err != nil {
				if status.Code(err) == codes.Canceled {
					return
				}
				onError(fmt.Errorf("snapshot stream: %w", err))
				return
			}

			if first {
				first = false
				continue
			}

			for _, change := range snap.Changes {
				event := MutationEvent{
					Table: table,
					RowID: change.Doc.Ref.ID,
				}
				switch change.Kind {
				case firestore.DocumentAdded:
					event.Kind = MutationInsert
				case firestore.DocumentModified:
					event.Kind = MutationUpdate
				case firestore.DocumentRemoved:
					event.Kind = MutationDelete
				default:
					continue
				}
				onEvent(event)
			}
		}
	}()

	return &firestoreFeedHandle{cancel: cancel}, nil
}

type firestoreFeedHandle struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (h *firestoreFeedHandle) Close() error {
	h.once.Do(h.cancel)
	return nil
}
