package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/metadata"
)

func newTestManager(t *testing.T, withMeta bool) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	return NewManager(config.OutputConfig{
		ImageDir:     filepath.Join(root, "images"),
		CaptionDir:   filepath.Join(root, "titles"),
		MetadataDir:  filepath.Join(root, "metadata"),
		SaveMetadata: withMeta,
		CaptionLabel: "Title: ",
	}), root
}

func TestNewManagerDoesNotTouchDisk(t *testing.T) {
	m, root := newTestManager(t, true)

	_, err := os.Stat(m.ImageDir())
	assert.True(t, os.IsNotExist(err))

	n, err := m.CountImages()
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEnsureLayoutIsIdempotent(t *testing.T) {
	m, root := newTestManager(t, true)

	require.NoError(t, m.EnsureLayout())
	require.NoError(t, m.EnsureLayout())

	for _, dir := range []string{"images", "titles", "metadata"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestEnsureLayoutSkipsMetadataWhenDisabled(t *testing.T) {
	m, root := newTestManager(t, false)
	require.NoError(t, m.EnsureLayout())

	_, err := os.Stat(filepath.Join(root, "metadata"))
	assert.True(t, os.IsNotExist(err))
	assert.False(t, m.MetadataEnabled())
}

func TestSaveImageAndCaption(t *testing.T) {
	m, root := newTestManager(t, false)
	require.NoError(t, m.EnsureLayout())

	fp := "0f0f0f0f0f0f0f0f"
	require.NoError(t, m.SaveImage(fp, []byte("jpeg bytes")))
	require.NoError(t, m.SaveCaption(fp, "Red fox\nin snow"))

	data, err := os.ReadFile(filepath.Join(root, "images", "image_0f0f0f0f0f0f0f0f.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))

	caption, err := os.ReadFile(filepath.Join(root, "titles", "title_0f0f0f0f0f0f0f0f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Title: Red fox in snow\n", string(caption))

	// no temp files left behind
	_, err = os.Stat(m.ImagePath(fp) + ".tmp")
	assert.True(t, os.IsNotExist(err))

	n, err := m.CountImages()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveCaptionFlattensLineEndings(t *testing.T) {
	m, root := newTestManager(t, false)
	require.NoError(t, m.EnsureLayout())

	tests := map[string]string{
		"lf":    "Red fox\nin snow",
		"crlf":  "Red fox\r\nin snow",
		"cr":    "Red fox\rin snow",
		"plain": "Red fox in snow",
	}
	for name, caption := range tests {
		t.Run(name, func(t *testing.T) {
			fp := "caption_" + name
			require.NoError(t, m.SaveCaption(fp, caption))

			data, err := os.ReadFile(filepath.Join(root, "titles", "title_"+fp+".txt"))
			require.NoError(t, err)
			assert.Equal(t, "Title: Red fox in snow\n", string(data))
		})
	}
}

func TestSaveMetadata(t *testing.T) {
	m, _ := newTestManager(t, true)
	require.NoError(t, m.EnsureLayout())

	rec := metadata.NewRecord("abcdabcdabcdabcd", "https://x/y", "cap", "q", nil)
	require.NoError(t, m.SaveMetadata(rec))

	loaded, err := metadata.Load(m.MetadataPath("abcdabcdabcdabcd"))
	require.NoError(t, err)
	assert.Equal(t, "https://x/y", loaded.SourceURL)
}

func TestSaveWithoutLayoutIsStoreIOError(t *testing.T) {
	m, _ := newTestManager(t, false)

	err := m.SaveImage("00", []byte("x"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.TypeStoreIO))
}
