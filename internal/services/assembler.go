package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"baladi-api/internal/backend"
	"baladi-api/internal/errors"
	"baladi-api/internal/models"
)

type AssemblerConfig struct {
	// Table is the backing listings table/collection.
	Table string
	// SignedURLTTL is the lifetime requested for resolved media URLs.
	SignedURLTTL time.Duration
	// FetchTimeout bounds one row-store query attempt.
	FetchTimeout time.Duration
}

// Snapshot is one delivery to a watching consumer. Stale flags a snapshot
// assembled while the change feed is degraded: the data may lag reality.
type Snapshot struct {
	Items []models.RankedListing
	Stale bool
}

// Assembler runs the discovery pipeline: fetch listing rows, resolve their
// media into fetchable URLs, rank by proximity, and optionally keep the
// result fresh from the change feed. One Assembler serves one consumer;
// Close discards anything still in flight.
type Assembler struct {
	rows     backend.RowStore
	resolver *MediaResolver
	feeds    *FeedSubscriber
	auth     backend.Auth
	cfg      AssemblerConfig

	mu     sync.Mutex
	closed bool
	sub    *Subscription
	stale  bool
	last   []models.RankedListing
}

func NewAssembler(rows backend.RowStore, resolver *MediaResolver, feeds *FeedSubscriber, auth backend.Auth, cfg AssemblerConfig) *Assembler {
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 15 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Assembler{
		rows:     rows,
		resolver: resolver,
		feeds:    feeds,
		auth:     auth,
		cfg:      cfg,
	}
}

// Load runs the pipeline once: fetch → resolve → rank. A fetch error
// surfaces as ErrFetchFailed with no partial data; per-item media failures
// degrade to placeholders inside the result instead.
func (a *Assembler) Load(ctx context.Context, filter models.ListingFilter, origin *models.Coordinate, limit int) ([]models.RankedListing, error) {
	if user, ok := a.auth.CurrentUser(ctx); ok {
		filter.ViewerID = user.ID
	}

	listings, err := a.fetch(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFetchFailed, err)
	}

	items := make([]models.RankedListing, len(listings))
	for i, listing := range listings {
		items[i] = models.RankedListing{
			Listing: listing,
			Media:   a.resolver.ResolveAll(ctx, listing.Media, a.cfg.SignedURLTTL),
		}
	}

	return Rank(items, origin, limit), nil
}

// fetch queries the row store with a bounded timeout and one retry.
func (a *Assembler) fetch(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		listings, err := a.rows.QueryListings(reqCtx, a.cfg.Table, filter)
		cancel()
		if err == nil {
			return listings, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// Watch loads once, then re-runs the whole pipeline on every change-feed
// hint, delivering each result through apply. Deliveries stop the moment
// the assembler is closed, even for loads already in flight. apply runs
// under the assembler lock: it must return quickly and must not call back
// into the assembler.
func (a *Assembler) Watch(ctx context.Context, filter models.ListingFilter, origin *models.Coordinate, limit int, apply func(Snapshot)) error {
	if user, ok := a.auth.CurrentUser(ctx); ok {
		filter.ViewerID = user.ID
	}

	refresh := func() {
		items, err := a.Load(ctx, filter, origin, limit)
		if err != nil {
			// Keep the last good snapshot rather than clearing the view.
			log.Printf("[Assembler] Refresh failed for %s: %v", a.cfg.Table, err)
			return
		}
		a.deliver(items, apply)
	}

	sub, err := a.feeds.Subscribe(ctx, a.cfg.Table, filter, func() { go refresh() }, &SubscriptionOptions{
		OnDegraded: func() {
			a.setStale(true, apply)
		},
		OnRecovered: func() {
			a.setStale(false, nil)
			go refresh()
		},
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		sub.Close()
		return nil
	}
	a.sub = sub
	a.mu.Unlock()

	refresh()
	return nil
}

// deliver applies a fresh result unless the consumer is already gone.
func (a *Assembler) deliver(items []models.RankedListing, apply func(Snapshot)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.last = items
	apply(Snapshot{Items: items, Stale: a.stale})
}

// setStale flips the staleness flag and, when apply is given, redelivers
// the last snapshot so the view can show its indicator immediately.
func (a *Assembler) setStale(stale bool, apply func(Snapshot)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stale = stale
	if a.closed || apply == nil || a.last == nil {
		return
	}
	apply(Snapshot{Items: a.last, Stale: a.stale})
}

// Close unsubscribes and discards in-flight results. Idempotent.
func (a *Assembler) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}
