package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"baladi-api/internal/models"
)

// GeocodingService turns listing coordinates into a "City, Country" label
// using the OpenStreetMap Nominatim API, with caching and the rate limit
// Nominatim requires.
type GeocodingService struct {
	cache       map[string]string
	cacheMutex  sync.RWMutex
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// Models the subset of Nominatim's response that we care about
// (city/town/village + country).
type nominatimResponse struct {
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Country string `json:"country"`
	} `json:"address"`
}

func NewGeocodingService() *GeocodingService {
	return &GeocodingService{
		cache:      make(map[string]string),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(
			rate.Limit(1), // Nominatim allows 1 request/sec
			1,
		),
	}
}

// CityFor resolves the city label for a coordinate, consulting the cache
// first. The cache key is rounded to avoid fragmentation from near-equal
// GPS fixes.
func (g *GeocodingService) CityFor(ctx context.Context, c models.Coordinate) (string, error) {
	key := fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lng)

	// First check: read lock
	g.cacheMutex.RLock()
	if cached := g.cache[key]; cached != "" {
		g.cacheMutex.RUnlock()
		return cached, nil
	}
	g.cacheMutex.RUnlock()

	if err := g.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := g.fetchLocation(ctx, c.Lat, c.Lng)
	if err != nil {
		return "", err
	}

	// Double-check cache before writing (another goroutine might have set it)
	g.cacheMutex.Lock()
	if cached := g.cache[key]; cached != "" {
		g.cacheMutex.Unlock()
		return cached, nil
	}
	g.cache[key] = result
	g.cacheMutex.Unlock()

	return result, nil
}

func (g *GeocodingService) fetchLocation(ctx context.Context, lat, lng float64) (string, error) {
	url := fmt.Sprintf(
		"https://nominatim.openstreetmap.org/reverse?format=json&lat=%f&lon=%f&zoom=14&addressdetails=1",
		lat, lng,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	req.Header.Set("User-Agent", "BaladiDirectory")
	req.Header.Set("Accept-Language", "en")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var data nominatimResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", err
	}

	return extractLocation(data), nil
}

// extractLocation chooses the most specific available locality.
func extractLocation(n nominatimResponse) string {
	city := firstNonEmpty(
		n.Address.City,
		n.Address.Town,
		n.Address.Village,
	)
	country := n.Address.Country

	switch {
	case city != "" && country != "":
		return city + ", " + country
	case city != "":
		return city
	default:
		return country
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
