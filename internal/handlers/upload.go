package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	apperrors "baladi-api/internal/errors"
	"baladi-api/internal/models"
	"baladi-api/internal/services"
	"baladi-api/internal/utils"
)

const maxUploadFormMemory = 32 << 20

type uploadResponse struct {
	Media      []models.MediaRef  `json:"media"`
	Coordinate *models.Coordinate `json:"coordinate,omitempty"`
}

// HandleMedia ingests merchant photo uploads. Files arrive as a multipart
// form under "images"; primaryIndex picks which file leads the gallery and
// watermark overrides the default merchant stamp.
func (h *Handler) HandleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := h.auth.CurrentUser(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: merchant API key required", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadFormMemory); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		http.Error(w, "No images provided", http.StatusBadRequest)
		return
	}

	primaryIndex := 0
	if v := r.FormValue("primaryIndex"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 || parsed >= len(files) {
			http.Error(w, fmt.Sprintf("primaryIndex must be in [0,%d)", len(files)), http.StatusBadRequest)
			return
		}
		primaryIndex = parsed
	}

	watermark := r.FormValue("watermark")
	if watermark == "" {
		watermark = user.ID
	}

	raws := make([]models.RawImage, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			http.Error(w, "Failed to read uploaded file", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			http.Error(w, "Failed to read uploaded file", http.StatusBadRequest)
			return
		}

		raws = append(raws, models.RawImage{
			Data:     data,
			MimeType: header.Header.Get("Content-Type"),
			FileName: header.Filename,
		})
	}

	ordered := services.OrderForUpload(raws, primaryIndex)

	refs := make([]models.MediaRef, 0, len(ordered))
	var suggested *models.Coordinate
	for i, raw := range ordered {
		processed, err := h.ingestor.Process(raw, watermark)
		if err != nil {
			log.Printf("[Media] Processing %s failed: %v", raw.FileName, err)
			if errors.Is(err, apperrors.ErrUnsupportedMediaType) || errors.Is(err, apperrors.ErrCompressionBudgetExceeded) {
				http.Error(w, fmt.Sprintf("%s: %v", raw.FileName, err), http.StatusUnprocessableEntity)
			} else {
				http.Error(w, fmt.Sprintf("Failed to process %s", raw.FileName), http.StatusUnprocessableEntity)
			}
			return
		}

		path := fmt.Sprintf("listings/%s/%s", user.ID, processed.FileName)
		if err := h.objects.Upload(r.Context(), h.cfg.MediaBucket, path, processed.Data, processed.MimeType); err != nil {
			log.Printf("[Media] Upload of %s failed: %v", path, err)
			http.Error(w, "Failed to store image", http.StatusInternalServerError)
			return
		}

		refs = append(refs, models.PathRef(h.cfg.MediaBucket, path))

		// The primary photo's EXIF position seeds the listing coordinate.
		if i == 0 {
			suggested = utils.ExtractCoordinate(raw.Data)
		}
	}

	log.Printf("[Media] Stored %d images for merchant %s", len(refs), user.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(uploadResponse{Media: refs, Coordinate: suggested}); err != nil {
		log.Printf("[Media] Failed to encode response: %v", err)
	}
}
