package session

import (
	"imgharvest/pkg/extract"
	"imgharvest/pkg/fingerprint"
	"imgharvest/pkg/metadata"
)

// CandidateExtractor finds candidates in page markup and prefilters them
type CandidateExtractor interface {
	Extract(markup string) ([]extract.Candidate, error)
	Accept(c extract.Candidate) bool
}

// Deduper decides novelty. CheckAndInsert must be atomic.
type Deduper interface {
	CheckAndInsert(fp fingerprint.Fingerprint) bool
}

// BlobStore persists retained images
type BlobStore interface {
	EnsureLayout() error
	SaveImage(fp string, data []byte) error
	SaveCaption(fp, caption string) error
	SaveMetadata(rec *metadata.ImageRecord) error
	MetadataEnabled() bool
}
