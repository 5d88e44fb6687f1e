package services

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"baladi-api/internal/backend"
	"baladi-api/internal/models"
)

const (
	// signSafetyMargin keeps a cached URL from being handed out moments
	// before it expires mid-download.
	signSafetyMargin = 30 * time.Second

	signRequestTimeout = 5 * time.Second
	signRetries        = 2

	resolveConcurrency = 8
)

type cachedURL struct {
	url     string
	expires time.Time
}

// MediaResolver turns stored media refs into directly fetchable URLs.
// Path refs are resolved through the object store into time-limited signed
// URLs and cached process-wide keyed by (bucket, path); absolute refs pass
// through untouched. A failed resolution degrades to the placeholder URL
// instead of erroring, so one broken image never takes down its siblings.
type MediaResolver struct {
	store          backend.ObjectStore
	placeholderURL string

	mu    sync.RWMutex
	cache map[string]*cachedURL
}

func NewMediaResolver(store backend.ObjectStore, placeholderURL string) *MediaResolver {
	return &MediaResolver{
		store:          store,
		placeholderURL: placeholderURL,
		cache:          make(map[string]*cachedURL),
	}
}

// Resolve is idempotent for absolute refs and cache-coherent for path refs:
// two resolutions of the same path within the TTL window issue exactly one
// signing request.
func (r *MediaResolver) Resolve(ctx context.Context, ref models.MediaRef, ttl time.Duration) models.ResolvedMedia {
	if ref.Kind == models.RefAbsolute {
		return models.ResolvedMedia{Ref: ref, URL: ref.URL}
	}

	key := ref.CacheKey()

	// First check: read lock
	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expires.Add(-signSafetyMargin)) {
		expires := entry.expires
		return models.ResolvedMedia{Ref: ref, URL: entry.url, ExpiresAt: &expires}
	}

	signed, err := r.sign(ctx, ref, ttl)
	if err != nil {
		log.Printf("[Media] Resolution failed for %s: %v", key, err)
		return models.ResolvedMedia{Ref: ref, URL: r.placeholderURL, Unresolved: true}
	}

	// Double-check before writing (a concurrent resolution might have won)
	r.mu.Lock()
	if current, ok := r.cache[key]; ok && current.expires.After(signed.ExpiresAt) {
		signed = backend.SignedURL{URL: current.url, ExpiresAt: current.expires}
	} else {
		r.cache[key] = &cachedURL{url: signed.URL, expires: signed.ExpiresAt}
	}
	r.mu.Unlock()

	expires := signed.ExpiresAt
	return models.ResolvedMedia{Ref: ref, URL: signed.URL, ExpiresAt: &expires}
}

// sign requests a fresh signed URL with a bounded timeout and a short
// retry budget.
func (r *MediaResolver) sign(ctx context.Context, ref models.MediaRef, ttl time.Duration) (backend.SignedURL, error) {
	var lastErr error
	for attempt := 0; attempt < signRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, signRequestTimeout)
		signed, err := r.store.SignURL(reqCtx, ref.Bucket, ref.Path, ttl)
		cancel()
		if err == nil {
			return signed, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return backend.SignedURL{}, lastErr
}

// ResolveAll resolves refs concurrently and returns results in input
// order, so the primary-image-first convention survives resolution.
func (r *MediaResolver) ResolveAll(ctx context.Context, refs []models.MediaRef, ttl time.Duration) []models.ResolvedMedia {
	if len(refs) == 0 {
		return nil
	}

	resolved := make([]models.ResolvedMedia, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			resolved[i] = r.Resolve(gctx, ref, ttl)
			return nil
		})
	}
	g.Wait()

	return resolved
}

// PurgeExpired eagerly removes entries past their expiry. Lookup already
// ignores them, so this only trims memory.
func (r *MediaResolver) PurgeExpired() {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.cache {
		if entry.expires.Before(now) {
			delete(r.cache, key)
		}
	}
}

// StartCleanup purges expired entries on an interval until the context is
// cancelled. Optional; a short-lived process can rely on lazy eviction.
func (r *MediaResolver) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.PurgeExpired()
			}
		}
	}()
}
