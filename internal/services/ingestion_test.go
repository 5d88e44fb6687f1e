package services

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	apperrors "baladi-api/internal/errors"
	"baladi-api/internal/models"
)

// testJPEG renders a gradient so the encoded bytes are not trivially
// compressible.
func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 7 % 256),
				G: uint8(y * 13 % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestProcess(t *testing.T) {
	ingestor := NewIngestor(IngestConfig{
		MaxBytes:       1_500_000,
		MaxDimensionPx: 400,
	})

	tests := []struct {
		name       string
		raw        models.RawImage
		watermark  string
		wantErr    error
		wantWidth  int
		wantHeight int
	}{
		{
			name: "Small JPEG passes through bounds",
			raw: models.RawImage{
				Data:     nil, // filled below
				MimeType: "image/jpeg",
				FileName: "store.jpg",
			},
			wantWidth:  300,
			wantHeight: 200,
		},
		{
			name: "Oversized JPEG downscaled preserving aspect",
			raw: models.RawImage{
				MimeType: "image/jpeg",
				FileName: "wide.jpg",
			},
			wantWidth:  400,
			wantHeight: 200,
		},
		{
			name: "Watermarked output keeps dimensions",
			raw: models.RawImage{
				MimeType: "image/jpeg",
				FileName: "branded.jpg",
			},
			watermark:  "Baladi Souq",
			wantWidth:  300,
			wantHeight: 200,
		},
		{
			name: "GIF rejected",
			raw: models.RawImage{
				Data:     []byte("GIF89a"),
				MimeType: "image/gif",
				FileName: "anim.gif",
			},
			wantErr: apperrors.ErrUnsupportedMediaType,
		},
		{
			name: "Video rejected",
			raw: models.RawImage{
				Data:     []byte{0, 0, 0, 1},
				MimeType: "video/mp4",
				FileName: "clip.mp4",
			},
			wantErr: apperrors.ErrUnsupportedMediaType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.raw
			if raw.Data == nil {
				if tt.wantWidth == 400 {
					raw.Data = testJPEG(t, 800, 400)
				} else {
					raw.Data = testJPEG(t, 300, 200)
				}
			}

			got, err := ingestor.Process(raw, tt.watermark)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Process() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Process() unexpected error: %v", err)
			}

			if got.Width != tt.wantWidth || got.Height != tt.wantHeight {
				t.Errorf("Process() dimensions = %dx%d, want %dx%d", got.Width, got.Height, tt.wantWidth, tt.wantHeight)
			}
			if got.MimeType != "image/jpeg" {
				t.Errorf("Process() mime = %s, want image/jpeg", got.MimeType)
			}
			if !strings.HasSuffix(got.FileName, ".jpg") {
				t.Errorf("Process() filename = %s, want .jpg suffix", got.FileName)
			}
			if got.FileName == raw.FileName {
				t.Error("Process() kept the user-supplied filename")
			}
			if len(got.Data) > 1_500_000 {
				t.Errorf("Process() output %d bytes exceeds ceiling", len(got.Data))
			}
		})
	}
}

func TestProcessNormalizesFormat(t *testing.T) {
	ingestor := NewIngestor(IngestConfig{
		MaxBytes:       1_500_000,
		MaxDimensionPx: 400,
	})

	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}

	got, err := ingestor.Process(models.RawImage{
		Data:     buf.Bytes(),
		MimeType: "image/png",
		FileName: "tiny.png",
	}, "")
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}

	// Even an input already under every budget comes out re-encoded.
	if got.MimeType != "image/jpeg" {
		t.Errorf("Process() mime = %s, want image/jpeg", got.MimeType)
	}
	if !bytes.HasPrefix(got.Data, []byte{0xff, 0xd8}) {
		t.Error("Process() output is not JPEG encoded")
	}
}

func TestProcessCompressionBudget(t *testing.T) {
	ingestor := NewIngestor(IngestConfig{
		MaxBytes:       200,
		MaxDimensionPx: 1600,
	})

	raw := models.RawImage{
		Data:     testJPEG(t, 600, 400),
		MimeType: "image/jpeg",
		FileName: "dense.jpg",
	}

	_, err := ingestor.Process(raw, "")
	if !errors.Is(err, apperrors.ErrCompressionBudgetExceeded) {
		t.Fatalf("Process() error = %v, want ErrCompressionBudgetExceeded", err)
	}
}

func TestProcessDeterministicName(t *testing.T) {
	ingestor := NewIngestor(IngestConfig{
		MaxBytes:       1_500_000,
		MaxDimensionPx: 400,
	})

	raw := models.RawImage{
		Data:     testJPEG(t, 300, 200),
		MimeType: "image/jpeg",
		FileName: "a.jpg",
	}

	first, err := ingestor.Process(raw, "")
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}
	second, err := ingestor.Process(raw, "")
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}

	if first.FileName != second.FileName {
		t.Errorf("same input produced different names: %s vs %s", first.FileName, second.FileName)
	}
}

func TestOrderForUpload(t *testing.T) {
	files := []models.RawImage{
		{FileName: "f0"},
		{FileName: "f1"},
		{FileName: "f2"},
	}

	tests := []struct {
		name         string
		primaryIndex int
		wantOrder    []string
	}{
		{
			name:         "Primary already first",
			primaryIndex: 0,
			wantOrder:    []string{"f0", "f1", "f2"},
		},
		{
			name:         "Last promoted, rest keep order",
			primaryIndex: 2,
			wantOrder:    []string{"f2", "f0", "f1"},
		},
		{
			name:         "Middle promoted",
			primaryIndex: 1,
			wantOrder:    []string{"f1", "f0", "f2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OrderForUpload(files, tt.primaryIndex)

			if len(got) != len(tt.wantOrder) {
				t.Fatalf("OrderForUpload() returned %d files, want %d", len(got), len(tt.wantOrder))
			}
			for i, name := range tt.wantOrder {
				if got[i].FileName != name {
					t.Errorf("OrderForUpload()[%d] = %s, want %s", i, got[i].FileName, name)
				}
			}
		})
	}

	t.Run("Out of range panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("OrderForUpload() with bad index did not panic")
			}
		}()
		OrderForUpload(files, 3)
	})
}
