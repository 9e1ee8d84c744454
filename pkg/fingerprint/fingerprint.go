// Package fingerprint computes average-hash fingerprints for raw image bytes.
//
// Two images are duplicates when their fingerprints are equal. There is no
// distance threshold: a re-encoded or cropped copy usually hashes differently
// and is kept.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"
	errs "imgharvest/pkg/errors"
)

// DefaultGridSize is the side of the sampling grid (8x8 = 64 bits)
const DefaultGridSize = 8

// Fingerprint is the lowercase hex form of the hash bits in raster order
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Hasher turns image bytes into fingerprints. It holds no mutable state.
type Hasher struct {
	gridSize int
}

// New returns a Hasher sampling a gridSize x gridSize grid.
// The grid must cover a multiple of 64 cells, otherwise the default is used.
func New(gridSize int) *Hasher {
	if gridSize <= 0 || (gridSize*gridSize)%64 != 0 {
		gridSize = DefaultGridSize
	}
	return &Hasher{gridSize: gridSize}
}

// GridSize returns the effective grid side
func (h *Hasher) GridSize() int {
	return h.gridSize
}

// Hash decodes data and fingerprints the resulting image.
// Data that is not a JPEG, PNG, GIF or WebP image yields a decode error.
func (h *Hasher) Hash(data []byte) (Fingerprint, error) {
	if len(data) == 0 {
		return "", errs.New(errs.TypeDecode, "empty image data")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", errs.Wrap(errs.TypeDecode, "failed to decode image", err)
	}
	return h.HashImage(img)
}

// HashImage fingerprints an already decoded image.
// Images without pixels are rejected with a decode error.
func (h *Hasher) HashImage(img image.Image) (fp Fingerprint, err error) {
	if img == nil || img.Bounds().Dx() < 1 || img.Bounds().Dy() < 1 {
		return "", errs.New(errs.TypeDecode, "image has no pixels")
	}
	defer func() {
		if r := recover(); r != nil {
			fp, err = "", errs.New(errs.TypeDecode, fmt.Sprintf("average hash failed: %v", r))
		}
	}()

	if h.gridSize == DefaultGridSize {
		hash, err := goimagehash.AverageHash(img)
		if err != nil {
			return "", errs.Wrap(errs.TypeDecode, "failed to compute average hash", err)
		}
		return Fingerprint(fmt.Sprintf("%016x", hash.GetHash())), nil
	}

	hash, err := goimagehash.ExtAverageHash(img, h.gridSize, h.gridSize)
	if err != nil {
		return "", errs.Wrap(errs.TypeDecode, "failed to compute average hash", err)
	}

	var sb strings.Builder
	for _, word := range hash.GetHash() {
		fmt.Fprintf(&sb, "%016x", word)
	}
	return Fingerprint(sb.String()), nil
}
