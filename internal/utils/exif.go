package utils

import (
	"bytes"
	"image"
	"log"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"baladi-api/internal/models"
)

// ExtractCoordinate reads GPS EXIF data from image bytes. Returns nil when
// the image carries no usable GPS tags; merchants can still place the
// listing manually.
func ExtractCoordinate(imageData []byte) *models.Coordinate {
	x, err := exif.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil
	}

	lat, lng, err := x.LatLong()
	if err != nil {
		return nil
	}

	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil
	}

	return &models.Coordinate{Lat: lat, Lng: lng}
}

// Orient reads the EXIF orientation tag from the original bytes and applies
// the matching transform so the pixels are upright before any further
// processing. Images without EXIF pass through unchanged.
func Orient(img image.Image, raw []byte) image.Image {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return img
	}

	orientTag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}

	orient, err := orientTag.Int(0)
	if err != nil {
		return img
	}

	// EXIF orientation values: 1=normal, 2=flip-h, 3=180, 4=flip-v,
	// 5=transpose, 6=270, 7=transverse, 8=90
	switch orient {
	case 1:
		return img
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		log.Printf("[EXIF] Unknown orientation value: %d", orient)
		return img
	}
}
