package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	_ "golang.org/x/image/webp"
)

// ImageRecord is the JSON sidecar written next to a retained image
type ImageRecord struct {
	Fingerprint string `json:"fingerprint"`
	SourceURL   string `json:"source_url"`
	Caption     string `json:"caption,omitempty"`
	Query       string `json:"query"`

	// Media properties
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	FileSize int64  `json:"file_size"`

	DownloadedAt time.Time `json:"downloaded_at"`
}

// NewRecord describes a downloaded image. Dimensions are read from the
// image header; an unreadable header leaves them zero.
func NewRecord(fp, sourceURL, caption, query string, data []byte) *ImageRecord {
	rec := &ImageRecord{
		Fingerprint:  fp,
		SourceURL:    sourceURL,
		Caption:      caption,
		Query:        query,
		FileSize:     int64(len(data)),
		DownloadedAt: time.Now().UTC(),
	}

	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		rec.Width = cfg.Width
		rec.Height = cfg.Height
		rec.Format = format
	}
	return rec
}

// Marshal encodes the record as indented JSON
func (r *ImageRecord) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return append(data, '\n'), nil
}

// Load reads a record from a JSON file
func Load(path string) (*ImageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var rec ImageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &rec, nil
}

// GetFormattedCaption returns a truncated caption for display
func (r *ImageRecord) GetFormattedCaption(maxLength int) string {
	runes := []rune(r.Caption)
	if len(runes) <= maxLength || maxLength < 4 {
		return r.Caption
	}
	return string(runes[:maxLength-3]) + "..."
}

// GetAspectRatio returns the aspect ratio as a string
func (r *ImageRecord) GetAspectRatio() string {
	if r.Height == 0 {
		return "unknown"
	}

	ratio := float64(r.Width) / float64(r.Height)

	switch {
	case ratio > 1.7 && ratio < 1.8:
		return "16:9"
	case ratio > 1.3 && ratio < 1.4:
		return "4:3"
	case ratio > 0.9 && ratio < 1.1:
		return "1:1"
	case ratio > 0.74 && ratio < 0.76:
		return "3:4"
	case ratio > 0.55 && ratio < 0.57:
		return "9:16"
	default:
		return fmt.Sprintf("%.2f:1", ratio)
	}
}
