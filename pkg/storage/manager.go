package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/metadata"
)

// Manager writes retained images, captions and metadata sidecars.
// Every file is named by fingerprint, so identical content always maps to
// the same file name.
type Manager struct {
	imageDir     string
	captionDir   string
	metadataDir  string
	captionLabel string
}

// NewManager creates a manager for the output section of the config.
// It does not touch the filesystem; call EnsureLayout before writing.
func NewManager(cfg config.OutputConfig) *Manager {
	m := &Manager{
		imageDir:     cfg.ImageDir,
		captionDir:   cfg.CaptionDir,
		captionLabel: cfg.CaptionLabel,
	}
	if cfg.SaveMetadata {
		m.metadataDir = cfg.MetadataDir
	}
	return m
}

// EnsureLayout creates the output directories. It is idempotent.
func (m *Manager) EnsureLayout() error {
	for _, dir := range []string{m.imageDir, m.captionDir, m.metadataDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errs.Wrap(errs.TypeStoreIO, fmt.Sprintf("failed to create directory %s", dir), err)
		}
	}
	return nil
}

// ImageDir returns the image directory path
func (m *Manager) ImageDir() string {
	return m.imageDir
}

// MetadataEnabled reports whether sidecars are written
func (m *Manager) MetadataEnabled() bool {
	return m.metadataDir != ""
}

// ImagePath returns where the image with fingerprint fp is stored
func (m *Manager) ImagePath(fp string) string {
	return filepath.Join(m.imageDir, fmt.Sprintf("image_%s.jpg", fp))
}

// CaptionPath returns where the caption for fp is stored
func (m *Manager) CaptionPath(fp string) string {
	return filepath.Join(m.captionDir, fmt.Sprintf("title_%s.txt", fp))
}

// MetadataPath returns where the sidecar for fp is stored
func (m *Manager) MetadataPath(fp string) string {
	return filepath.Join(m.metadataDir, fmt.Sprintf("meta_%s.json", fp))
}

// SaveImage writes the raw fetched bytes
func (m *Manager) SaveImage(fp string, data []byte) error {
	return writeAtomic(m.ImagePath(fp), data)
}

// lineBreaks flattens any line ending style to a single space
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// SaveCaption writes the one-line caption file
func (m *Manager) SaveCaption(fp, caption string) error {
	line := m.captionLabel + lineBreaks.Replace(caption) + "\n"
	return writeAtomic(m.CaptionPath(fp), []byte(line))
}

// SaveMetadata writes the JSON sidecar. It is a no-op when sidecars are disabled.
func (m *Manager) SaveMetadata(rec *metadata.ImageRecord) error {
	if !m.MetadataEnabled() {
		return nil
	}
	data, err := rec.Marshal()
	if err != nil {
		return errs.Wrap(errs.TypeStoreIO, "failed to encode metadata", err)
	}
	return writeAtomic(m.MetadataPath(rec.Fingerprint), data)
}

// CountImages returns the number of files currently in the image directory.
// A missing directory counts as zero.
func (m *Manager) CountImages() (int, error) {
	entries, err := os.ReadDir(m.imageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errs.Wrap(errs.TypeStoreIO, "failed to list image directory", err)
	}

	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasSuffix(e.Name(), ".tmp") {
			n++
		}
	}
	return n, nil
}

// writeAtomic writes through a temporary file and renames it into place
func writeAtomic(path string, data []byte) error {
	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return errs.Wrap(errs.TypeStoreIO, "failed to create temporary file", err)
	}

	_, err = out.Write(data)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return errs.Wrap(errs.TypeStoreIO, fmt.Sprintf("failed to write %s", filepath.Base(path)), err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return errs.Wrap(errs.TypeStoreIO, "failed to close file", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return errs.Wrap(errs.TypeStoreIO, "failed to rename temporary file", err)
	}
	return nil
}
