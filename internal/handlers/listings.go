package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "baladi-api/internal/errors"
	"baladi-api/internal/models"
)

const maxDiscoveryLimit = 200

// HandleListings serves discovery queries and listing creation.
func (h *Handler) HandleListings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listListings(w, r)
	case http.MethodPost:
		h.createListing(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// listListings runs the discovery pipeline: fetch, resolve media, rank by
// proximity when an origin is given.
func (h *Handler) listListings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query()

	filter := models.ListingFilter{
		Kind: models.ListingKind(query.Get("kind")),
		City: strings.TrimSpace(query.Get("city")),
	}
	if filter.Kind != "" && filter.Kind != models.KindStore && filter.Kind != models.KindProduct {
		http.Error(w, "Invalid kind parameter", http.StatusBadRequest)
		return
	}
	for _, c := range query["category"] {
		if c = strings.TrimSpace(c); c != "" {
			filter.Categories = append(filter.Categories, c)
		}
	}
	if query.Get("mine") == "true" {
		user, ok := h.auth.CurrentUser(r.Context())
		if !ok {
			http.Error(w, "Unauthorized: API key required for mine=true", http.StatusUnauthorized)
			return
		}
		filter.OwnerID = user.ID
	}

	origin, err := parseOrigin(query.Get("lat"), query.Get("lng"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit == 0 || limit > maxDiscoveryLimit {
		limit = maxDiscoveryLimit
	}

	items, err := h.assembler.Load(r.Context(), filter, origin, limit)
	if err != nil {
		log.Printf("[Listings] Load failed: %v", err)
		if errors.Is(err, apperrors.ErrFetchFailed) {
			http.Error(w, "Failed to load listings", http.StatusBadGateway)
		} else {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	log.Printf("[Listings] Served %d listings in %v", len(items), time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if items == nil {
		items = []models.RankedListing{}
	}
	if err := json.NewEncoder(w).Encode(items); err != nil {
		log.Printf("[Listings] Failed to encode response: %v", err)
	}
}

type createListingRequest struct {
	Kind        models.ListingKind `json:"kind"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	City        string             `json:"city"`
	Categories  []string           `json:"categories"`
	Coordinate  *models.Coordinate `json:"coordinate"`
	Media       []models.MediaRef  `json:"media"`
	Active      *bool              `json:"active"`
}

func (h *Handler) createListing(w http.ResponseWriter, r *http.Request) {
	user, ok := h.auth.CurrentUser(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: merchant API key required", http.StatusUnauthorized)
		return
	}

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.Kind != models.KindStore && req.Kind != models.KindProduct {
		http.Error(w, "kind must be store or product", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	if c := req.Coordinate; c != nil {
		if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
			http.Error(w, "coordinate out of range", http.StatusBadRequest)
			return
		}
	}

	// Fill the city from the coordinate when the merchant left it blank.
	// Best effort: a geocoding failure never blocks creation.
	city := strings.TrimSpace(req.City)
	if city == "" && req.Coordinate != nil {
		if resolved, err := h.geocoder.CityFor(r.Context(), *req.Coordinate); err != nil {
			log.Printf("[Listings] Geocoding failed: %v", err)
		} else {
			city = resolved
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now()
	listing := &models.Listing{
		Kind:        req.Kind,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		OwnerID:     user.ID,
		City:        city,
		Categories:  req.Categories,
		Coordinate:  req.Coordinate,
		Media:       req.Media,
		Active:      active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	id, err := h.rows.CreateListing(r.Context(), h.cfg.ListingsCollection, listing)
	if err != nil {
		log.Printf("[Listings] Create failed: %v", err)
		http.Error(w, "Failed to create listing", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// HandleListing serves a single listing by ID.
func (h *Handler) HandleListing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Missing listing id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getListing(w, r, id)
	case http.MethodPut:
		h.updateListing(w, r, id)
	case http.MethodDelete:
		h.deleteListing(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getListing(w http.ResponseWriter, r *http.Request, id string) {
	listing, err := h.rows.GetListing(r.Context(), h.cfg.ListingsCollection, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "Listing not found", http.StatusNotFound)
		} else {
			log.Printf("[Listings] Get %s failed: %v", id, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	// Inactive listings are visible to their owner only.
	if !listing.Active {
		user, ok := h.auth.CurrentUser(r.Context())
		if !ok || user.ID != listing.OwnerID {
			http.Error(w, "Listing not found", http.StatusNotFound)
			return
		}
	}

	item := models.RankedListing{
		Listing: *listing,
		Media:   h.resolver.ResolveAll(r.Context(), listing.Media, h.cfg.SignedURLTTL),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(item); err != nil {
		log.Printf("[Listings] Failed to encode response: %v", err)
	}
}

func (h *Handler) updateListing(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := h.auth.CurrentUser(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: merchant API key required", http.StatusUnauthorized)
		return
	}

	existing, err := h.rows.GetListing(r.Context(), h.cfg.ListingsCollection, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "Listing not found", http.StatusNotFound)
		} else {
			log.Printf("[Listings] Get %s failed: %v", id, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	if existing.OwnerID != user.ID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Kind != models.KindStore && req.Kind != models.KindProduct {
		http.Error(w, "kind must be store or product", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	if c := req.Coordinate; c != nil {
		if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
			http.Error(w, "coordinate out of range", http.StatusBadRequest)
			return
		}
	}

	updated := *existing
	updated.Kind = req.Kind
	updated.Title = strings.TrimSpace(req.Title)
	updated.Description = req.Description
	updated.City = strings.TrimSpace(req.City)
	updated.Categories = req.Categories
	updated.Coordinate = req.Coordinate
	updated.Media = req.Media
	if req.Active != nil {
		updated.Active = *req.Active
	}
	updated.UpdatedAt = time.Now()

	if err := h.rows.UpdateListing(r.Context(), h.cfg.ListingsCollection, id, &updated); err != nil {
		log.Printf("[Listings] Update %s failed: %v", id, err)
		http.Error(w, "Failed to update listing", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteListing(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := h.auth.CurrentUser(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: merchant API key required", http.StatusUnauthorized)
		return
	}

	listing, err := h.rows.GetListing(r.Context(), h.cfg.ListingsCollection, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "Listing not found", http.StatusNotFound)
		} else {
			log.Printf("[Listings] Get %s failed: %v", id, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	if listing.OwnerID != user.ID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// Remove owned objects first; absolute refs point at external media
	// and are left alone.
	pathsByBucket := make(map[string][]string)
	for _, ref := range listing.Media {
		if ref.Kind == models.RefPath {
			pathsByBucket[ref.Bucket] = append(pathsByBucket[ref.Bucket], ref.Path)
		}
	}
	for bucket, paths := range pathsByBucket {
		if err := h.objects.Remove(r.Context(), bucket, paths); err != nil {
			log.Printf("[Listings] Failed to remove media for %s: %v", id, err)
		}
	}

	if err := h.rows.DeleteListing(r.Context(), h.cfg.ListingsCollection, id); err != nil {
		log.Printf("[Listings] Delete %s failed: %v", id, err)
		http.Error(w, "Failed to delete listing", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseOrigin validates the optional lat/lng query pair. Both must be
// present together, parse as floats, and sit inside WGS 84 bounds.
func parseOrigin(latStr, lngStr string) (*models.Coordinate, error) {
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, errors.New("lat and lng must be provided together")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, errors.New("invalid lat parameter")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, errors.New("invalid lng parameter")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, errors.New("lat/lng out of range")
	}

	return &models.Coordinate{Lat: lat, Lng: lng}, nil
}
