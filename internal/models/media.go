package models

import "time"

type MediaRefKind string

const (
	// RefAbsolute is an already-public, permanent URL needing no resolution.
	RefAbsolute MediaRefKind = "absolute"
	// RefPath is a bucket-relative object path requiring a signed URL.
	RefPath MediaRefKind = "path"
)

// MediaRef is a stored pointer to an image: either an absolute URL or a
// bucket-relative storage path.
type MediaRef struct {
	Kind   MediaRefKind `firestore:"kind" json:"kind"`
	URL    string       `firestore:"url,omitempty" json:"url,omitempty"`
	Bucket string       `firestore:"bucket,omitempty" json:"bucket,omitempty"`
	Path   string       `firestore:"path,omitempty" json:"path,omitempty"`
}

func AbsoluteRef(url string) MediaRef {
	return MediaRef{Kind: RefAbsolute, URL: url}
}

func PathRef(bucket, path string) MediaRef {
	return MediaRef{Kind: RefPath, Bucket: bucket, Path: path}
}

// CacheKey identifies a path ref in the resolver cache. Only meaningful for
// RefPath refs.
func (r MediaRef) CacheKey() string {
	return r.Bucket + "/" + r.Path
}

// ResolvedMedia is a media ref turned into a directly fetchable URL.
// ExpiresAt is nil for permanent URLs. Unresolved marks a ref whose
// resolution failed; its URL is a placeholder the UI can render.
type ResolvedMedia struct {
	Ref        MediaRef   `json:"ref"`
	URL        string     `json:"url"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Unresolved bool       `json:"unresolved,omitempty"`
}

// RawImage is a user-supplied upload before processing.
type RawImage struct {
	Data     []byte
	MimeType string
	FileName string
}

// ProcessedImage is the ingestion pipeline output: re-encoded, bounded in
// dimensions and byte size, watermarked, with a collision-safe filename.
type ProcessedImage struct {
	Data     []byte
	MimeType string
	FileName string
	Width    int
	Height   int
}
