package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"baladi-api/internal/backend"
	apperrors "baladi-api/internal/errors"
	"baladi-api/internal/models"
)

// fakeRowStore serves canned listings, optionally failing the first N
// queries or blocking on a gate.
type fakeRowStore struct {
	mu         sync.Mutex
	listings   []models.Listing
	failures   int
	calls      int
	lastFilter models.ListingFilter
	gate       chan struct{}
	gated      int
}

func (f *fakeRowStore) QueryListings(ctx context.Context, table string, filter models.ListingFilter) ([]models.Listing, error) {
	f.mu.Lock()
	gate := f.gate
	if gate != nil {
		f.gated++
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastFilter = filter
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("backend down")
	}
	return f.listings, nil
}

func (f *fakeRowStore) GetListing(ctx context.Context, table, id string) (*models.Listing, error) {
	return nil, apperrors.ErrNotFound
}

func (f *fakeRowStore) CreateListing(ctx context.Context, table string, listing *models.Listing) (string, error) {
	return "new", nil
}

func (f *fakeRowStore) UpdateListing(ctx context.Context, table, id string, listing *models.Listing) error {
	return nil
}

func (f *fakeRowStore) DeleteListing(ctx context.Context, table, id string) error {
	return nil
}

func (f *fakeRowStore) queryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRowStore) setGate(gate chan struct{}) {
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
}

func (f *fakeRowStore) gatedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gated
}

type fakeAuth struct {
	user backend.User
	ok   bool
}

func (a fakeAuth) CurrentUser(ctx context.Context) (backend.User, bool) {
	return a.user, a.ok
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *snapshotRecorder) apply(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *snapshotRecorder) at(i int) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[i]
}

func newTestAssembler(rows *fakeRowStore, feed backend.ChangeFeed, auth backend.Auth) *Assembler {
	resolver := NewMediaResolver(&fakeObjectStore{}, testPlaceholder)
	return NewAssembler(rows, resolver, newTestSubscriber(feed), auth, AssemblerConfig{
		Table:        "listings",
		SignedURLTTL: time.Hour,
		FetchTimeout: time.Second,
	})
}

func TestLoadPipeline(t *testing.T) {
	rows := &fakeRowStore{
		listings: []models.Listing{
			{
				ID:         "far",
				Coordinate: &jeddah,
				Media:      []models.MediaRef{models.AbsoluteRef("https://cdn.example.com/far.png")},
			},
			{
				ID:         "near",
				Coordinate: &riyadhNorth,
				Media:      []models.MediaRef{models.PathRef("media", "near.jpg")},
			},
		},
	}
	a := newTestAssembler(rows, &fakeFeed{}, fakeAuth{})

	got, err := a.Load(context.Background(), models.ListingFilter{}, &riyadhCenter, 0)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("Load() returned %d items, want 2", len(got))
	}
	if got[0].Listing.ID != "near" || got[1].Listing.ID != "far" {
		t.Errorf("Load() order = [%s %s], want [near far]", got[0].Listing.ID, got[1].Listing.ID)
	}
	if got[0].DistanceKm == nil || got[1].DistanceKm == nil {
		t.Fatal("Load() left distances unset")
	}
	if *got[0].DistanceKm >= *got[1].DistanceKm {
		t.Error("Load() distances not ascending")
	}

	if !strings.HasPrefix(got[0].Media[0].URL, "https://signed.example.com/") {
		t.Errorf("path ref not resolved to a signed URL: %s", got[0].Media[0].URL)
	}
	if got[1].Media[0].URL != "https://cdn.example.com/far.png" {
		t.Errorf("absolute ref did not pass through: %s", got[1].Media[0].URL)
	}
}

func TestLoadFetchFailure(t *testing.T) {
	rows := &fakeRowStore{failures: 10}
	a := newTestAssembler(rows, &fakeFeed{}, fakeAuth{})

	_, err := a.Load(context.Background(), models.ListingFilter{}, nil, 0)
	if !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Fatalf("Load() error = %v, want ErrFetchFailed", err)
	}
	if got := rows.queryCalls(); got != 2 {
		t.Errorf("Load() made %d query attempts, want 2 (one retry)", got)
	}
}

func TestLoadRetryRecovers(t *testing.T) {
	rows := &fakeRowStore{failures: 1, listings: []models.Listing{{ID: "a"}}}
	a := newTestAssembler(rows, &fakeFeed{}, fakeAuth{})

	got, err := a.Load(context.Background(), models.ListingFilter{}, nil, 0)
	if err != nil {
		t.Fatalf("Load() unexpected error after transient failure: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Load() returned %d items, want 1", len(got))
	}
}

func TestLoadViewerScope(t *testing.T) {
	rows := &fakeRowStore{}
	a := newTestAssembler(rows, &fakeFeed{}, fakeAuth{user: backend.User{ID: "merchant-7"}, ok: true})

	if _, err := a.Load(context.Background(), models.ListingFilter{}, nil, 0); err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	rows.mu.Lock()
	viewer := rows.lastFilter.ViewerID
	rows.mu.Unlock()
	if viewer != "merchant-7" {
		t.Errorf("query filter ViewerID = %q, want merchant-7", viewer)
	}
}

func TestWatchRefreshesOnChange(t *testing.T) {
	rows := &fakeRowStore{listings: []models.Listing{{ID: "a"}}}
	feed := &fakeFeed{}
	a := newTestAssembler(rows, feed, fakeAuth{})
	defer a.Close()

	rec := &snapshotRecorder{}
	if err := a.Watch(context.Background(), models.ListingFilter{}, nil, 0, rec.apply); err != nil {
		t.Fatalf("Watch() unexpected error: %v", err)
	}

	if rec.count() != 1 {
		t.Fatalf("Watch() delivered %d initial snapshots, want 1", rec.count())
	}
	if rec.at(0).Stale {
		t.Error("initial snapshot marked stale")
	}

	feed.stream(0).onEvent(backend.MutationEvent{Table: "listings", Kind: backend.MutationUpdate})

	waitFor(t, "refresh after change event", func() bool { return rec.count() >= 2 })
}

func TestWatchDegradedAndRecovered(t *testing.T) {
	rows := &fakeRowStore{listings: []models.Listing{{ID: "a"}}}
	feed := &fakeFeed{}
	a := newTestAssembler(rows, feed, fakeAuth{})
	defer a.Close()

	rec := &snapshotRecorder{}
	if err := a.Watch(context.Background(), models.ListingFilter{}, nil, 0, rec.apply); err != nil {
		t.Fatalf("Watch() unexpected error: %v", err)
	}

	feed.setFailing(true)
	feed.stream(0).onError(fmt.Errorf("stream reset"))

	// Degraded mode redelivers the last snapshot flagged stale.
	waitFor(t, "stale snapshot", func() bool {
		return rec.count() >= 2 && rec.at(rec.count()-1).Stale
	})
	stale := rec.at(rec.count() - 1)
	if len(stale.Items) != 1 || stale.Items[0].Listing.ID != "a" {
		t.Error("stale snapshot lost the last known items")
	}

	feed.setFailing(false)

	// Recovery triggers a fresh, non-stale delivery.
	waitFor(t, "fresh snapshot after recovery", func() bool {
		n := rec.count()
		return n >= 3 && !rec.at(n-1).Stale
	})
}

func TestCloseDiscardsInFlight(t *testing.T) {
	rows := &fakeRowStore{listings: []models.Listing{{ID: "a"}}}
	feed := &fakeFeed{}
	a := newTestAssembler(rows, feed, fakeAuth{})

	rec := &snapshotRecorder{}
	if err := a.Watch(context.Background(), models.ListingFilter{}, nil, 0, rec.apply); err != nil {
		t.Fatalf("Watch() unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 initial snapshot, got %d", rec.count())
	}

	// Block the next fetch, trigger a refresh, close while it is pending,
	// then release. The late result must be discarded.
	gate := make(chan struct{})
	rows.setGate(gate)
	feed.stream(0).onEvent(backend.MutationEvent{Kind: backend.MutationUpdate})

	waitFor(t, "pending fetch", func() bool { return rows.gatedCalls() >= 1 })
	a.Close()
	close(gate)

	time.Sleep(20 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Errorf("snapshot delivered after Close: got %d deliveries, want 1", got)
	}

	a.Close() // idempotent
}
