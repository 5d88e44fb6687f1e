package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"log"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	// Register webp with image.Decode; jpeg/png/gif come with imaging.
	_ "golang.org/x/image/webp"

	"baladi-api/internal/errors"
	"baladi-api/internal/models"
	"baladi-api/internal/utils"
)

// allowedMimeTypes is the upload allow-list. HEIC/HEIF covers phone camera
// output.
var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

type IngestConfig struct {
	// MaxBytes is a hard ceiling on the processed output size. The pipeline
	// fails rather than emit a larger file.
	MaxBytes int
	// MaxDimensionPx bounds both output dimensions, preserving aspect ratio.
	MaxDimensionPx int
	// MinQuality is the JPEG quality floor for the compression search.
	MinQuality int
	// WatermarkOpacity is the overlay alpha in [0,1].
	WatermarkOpacity float64
}

// Ingestor turns raw merchant uploads into canonical listing images:
// decoded, upright, bounded in dimensions and byte size, watermarked, and
// re-encoded as JPEG under a collision-safe name.
type Ingestor struct {
	cfg IngestConfig
}

func NewIngestor(cfg IngestConfig) *Ingestor {
	if cfg.MinQuality <= 0 {
		cfg.MinQuality = 30
	}
	if cfg.WatermarkOpacity <= 0 {
		cfg.WatermarkOpacity = 0.45
	}
	return &Ingestor{cfg: cfg}
}

func (in *Ingestor) Process(raw models.RawImage, watermarkText string) (*models.ProcessedImage, error) {
	mime := strings.ToLower(strings.TrimSpace(raw.MimeType))
	if !allowedMimeTypes[mime] {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedMediaType, raw.MimeType)
	}

	var img image.Image
	var err error
	if utils.IsHeifLike(mime) {
		img, err = utils.DecodeHeif(raw.Data)
	} else {
		img, err = imaging.Decode(bytes.NewReader(raw.Data))
		if err == nil {
			img = utils.Orient(img, raw.Data)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", mime, err)
	}

	if b := img.Bounds(); b.Dx() > in.cfg.MaxDimensionPx || b.Dy() > in.cfg.MaxDimensionPx {
		img = imaging.Fit(img, in.cfg.MaxDimensionPx, in.cfg.MaxDimensionPx, imaging.Lanczos)
	}

	// Branding only: a failed watermark never fails the upload.
	if watermarkText != "" {
		if stamped, err := watermark(img, watermarkText, in.cfg.WatermarkOpacity); err != nil {
			log.Printf("[Ingest] Watermark skipped for %s: %v", raw.FileName, err)
		} else {
			img = stamped
		}
	}

	data, err := in.encodeUnderBudget(img)
	if err != nil {
		return nil, err
	}

	// Name by content hash, never by the user-supplied filename, to avoid
	// collisions and path traversal.
	sum := sha256.Sum256(data)
	bounds := img.Bounds()

	return &models.ProcessedImage{
		Data:     data,
		MimeType: "image/jpeg",
		FileName: hex.EncodeToString(sum[:12]) + ".jpg",
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}

// encodeUnderBudget encodes as JPEG at stepped-down quality until the
// result fits MaxBytes or the quality floor is hit.
func (in *Ingestor) encodeUnderBudget(img image.Image) ([]byte, error) {
	quality := 85
	for {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
		if buf.Len() <= in.cfg.MaxBytes {
			return buf.Bytes(), nil
		}
		if quality <= in.cfg.MinQuality {
			return nil, fmt.Errorf("%w: %d bytes at quality %d exceeds ceiling %d",
				errors.ErrCompressionBudgetExceeded, buf.Len(), quality, in.cfg.MaxBytes)
		}
		quality -= 10
		if quality < in.cfg.MinQuality {
			quality = in.cfg.MinQuality
		}
	}
}

// watermark renders text onto a transparent strip, scales it relative to
// the photo, and composites it near the bottom-right corner.
func watermark(img image.Image, text string, opacity float64) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("glyph rendering failed: %v", r)
		}
	}()

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Src:  image.NewUniform(color.White),
		Face: face,
	}

	textWidth := drawer.MeasureString(text).Ceil()
	if textWidth <= 0 {
		return nil, fmt.Errorf("no drawable glyphs in %q", text)
	}

	const pad = 4
	strip := image.NewNRGBA(image.Rect(0, 0, textWidth+2*pad, face.Height+2*pad))
	drawer.Dst = strip
	drawer.Dot = fixed.P(pad, pad+face.Ascent)
	drawer.DrawString(text)

	// Scale the strip to roughly a quarter of the photo width so the mark
	// stays legible at any resolution.
	bounds := img.Bounds()
	factor := bounds.Dx() / 4 / strip.Bounds().Dx()
	if factor < 1 {
		factor = 1
	}
	if factor > 6 {
		factor = 6
	}
	scaled := imaging.Resize(strip, strip.Bounds().Dx()*factor, 0, imaging.NearestNeighbor)

	margin := bounds.Dx()/50 + pad
	pos := image.Pt(
		bounds.Dx()-scaled.Bounds().Dx()-margin,
		bounds.Dy()-scaled.Bounds().Dy()-margin,
	)

	return imaging.Overlay(img, scaled, pos, opacity), nil
}

// OrderForUpload moves the primary image to position 0, preserving the
// relative order of the rest. primaryIndex must be a valid index into
// files; anything else is a caller bug.
func OrderForUpload(files []models.RawImage, primaryIndex int) []models.RawImage {
	if primaryIndex < 0 || primaryIndex >= len(files) {
		panic(fmt.Sprintf("primaryIndex %d out of range for %d files", primaryIndex, len(files)))
	}

	ordered := make([]models.RawImage, 0, len(files))
	ordered = append(ordered, files[primaryIndex])
	for i, f := range files {
		if i != primaryIndex {
			ordered = append(ordered, f)
		}
	}

	return ordered
}
