package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"imgharvest/pkg/config"
	"imgharvest/pkg/dedupe"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/extract"
	"imgharvest/pkg/fingerprint"
	"imgharvest/pkg/logger"
	"imgharvest/pkg/metadata"
	"imgharvest/pkg/scroll"
	"imgharvest/pkg/storage"
)

const thumbPrefix = "https://encrypted-tbn0.gstatic.com/images?q=tbn:ANd9GcQ"

func thumbURL(name string) string {
	return thumbPrefix + strings.Repeat("x", 20) + name
}

// fakeSurface serves fixed markup at a fixed height
type fakeSurface struct {
	markup  string
	openErr error
	opened  []string
}

func (f *fakeSurface) Open(_ context.Context, url string) error {
	f.opened = append(f.opened, url)
	return f.openErr
}
func (f *fakeSurface) ContentHeight(context.Context) (int, error) { return 4000, nil }
func (f *fakeSurface) SendExpandSignal(context.Context) error      { return nil }
func (f *fakeSurface) Content(context.Context) (string, error)     { return f.markup, nil }
func (f *fakeSurface) Release() error                              { return nil }

// fakeFetcher serves bodies by URL and records every call
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if body, ok := f.bodies[url]; ok {
		return body, nil
	}
	return nil, &errs.Error{Type: errs.TypeFetch, Message: "image not found", Code: 404}
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// splitPNG draws a black block of the given width on white
func splitPNG(t *testing.T, split int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := uint8(255)
			if x < split {
				v = 0
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func page(cands ...extract.Candidate) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for _, c := range cands {
		fmt.Fprintf(&sb, `<img src="%s" alt="%s">`, c.URL, c.Caption)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

type harness struct {
	cfg     *config.Config
	root    string
	surface *fakeSurface
	fetcher *fakeFetcher
	store   *dedupe.Store
	blobs   BlobStore
	log     *logger.TestLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Scroll.StepsPerRound = 2
	cfg.Scroll.SettleDelay = 0
	cfg.Fetch.Concurrency = 1
	cfg.Output.ImageDir = filepath.Join(root, "images")
	cfg.Output.CaptionDir = filepath.Join(root, "titles")
	cfg.Output.MetadataDir = filepath.Join(root, "metadata")

	return &harness{
		cfg:     cfg,
		root:    root,
		surface: &fakeSurface{},
		fetcher: &fakeFetcher{bodies: map[string][]byte{}, errs: map[string]error{}},
		store:   dedupe.New(),
		log:     logger.NewTestLogger(),
	}
}

func (h *harness) session() *Session {
	blobs := h.blobs
	if blobs == nil {
		blobs = storage.NewManager(h.cfg.Output)
	}
	noSleep := func(context.Context, time.Duration) error { return nil }
	return New(h.cfg, Deps{
		Surface:   h.surface,
		Extractor: extract.New(h.cfg.Extract),
		Fetcher:   h.fetcher,
		Hasher:    fingerprint.New(h.cfg.Hash.GridSize),
		Store:     h.store,
		Blobs:     blobs,
	}, h.log, WithScrollOptions(scroll.WithSleeper(noSleep)))
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestEmptyResultTouchesNoStorage(t *testing.T) {
	h := newHarness(t)
	h.surface.markup = "<html><body><p>nothing here</p></body></html>"

	report, err := h.session().Run(context.Background(), "empty query")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCandidates))
	assert.True(t, errs.Is(err, errs.TypeNoContent))
	assert.Equal(t, 0, report.Downloaded)
	assert.Equal(t, 0, report.Skipped)
	assert.Zero(t, h.fetcher.callCount())
	assert.Empty(t, listDir(t, h.root))
}

func TestIdenticalBytesSavedOnce(t *testing.T) {
	h := newHarness(t)
	data := splitPNG(t, 10)
	a, b := thumbURL("a"), thumbURL("b")
	h.fetcher.bodies[a] = data
	h.fetcher.bodies[b] = data
	h.surface.markup = page(extract.Candidate{URL: a, Caption: "first"}, extract.Candidate{URL: b, Caption: "second"})

	report, err := h.session().Run(context.Background(), "foxes")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Reasons[ReasonDuplicate])
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, report.Outcomes[0].Fingerprint, report.Outcomes[1].Fingerprint)

	fp := string(report.Outcomes[0].Fingerprint)
	assert.Equal(t, []string{"image_" + fp + ".jpg"}, listDir(t, h.cfg.Output.ImageDir))

	caption, err := os.ReadFile(filepath.Join(h.cfg.Output.CaptionDir, "title_"+fp+".txt"))
	require.NoError(t, err)
	assert.Equal(t, "Title: first\n", string(caption))

	saved, err := os.ReadFile(filepath.Join(h.cfg.Output.ImageDir, "image_"+fp+".jpg"))
	require.NoError(t, err)
	assert.Equal(t, data, saved)
}

func TestShortURLSkippedWithoutFetch(t *testing.T) {
	h := newHarness(t)
	short := "https://encrypted-tbn0.gstatic.com/s"
	long := thumbURL("ok")
	h.fetcher.bodies[long] = splitPNG(t, 8)
	h.surface.markup = page(extract.Candidate{URL: short}, extract.Candidate{URL: long})

	report, err := h.session().Run(context.Background(), "owls")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, ReasonFiltered, report.Outcomes[0].Reason)
	assert.Equal(t, []string{long}, h.fetcher.calls)
}

func TestFetchErrorDoesNotAbortSession(t *testing.T) {
	h := newHarness(t)
	bad, good1, good2 := thumbURL("bad"), thumbURL("g1"), thumbURL("g2")
	h.fetcher.errs[bad] = &errs.Error{Type: errs.TypeFetch, Message: "network error", Err: errors.New("reset")}
	h.fetcher.bodies[good1] = splitPNG(t, 6)
	h.fetcher.bodies[good2] = splitPNG(t, 26)
	h.surface.markup = page(extract.Candidate{URL: good1}, extract.Candidate{URL: bad}, extract.Candidate{URL: good2})

	report, err := h.session().Run(context.Background(), "cats")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Downloaded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, ReasonFetchFailed, report.Outcomes[1].Reason)
	assert.Error(t, report.Outcomes[1].Err)
	assert.Equal(t, 3, h.fetcher.callCount())
	assert.Len(t, h.log.GetMessagesByLevel("WARN"), 1)
}

func TestDecodeFailureSkipped(t *testing.T) {
	h := newHarness(t)
	u := thumbURL("html")
	h.fetcher.bodies[u] = []byte("<html>captcha</html>")
	h.surface.markup = page(extract.Candidate{URL: u})

	report, err := h.session().Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Downloaded)
	assert.Equal(t, 1, report.Reasons[ReasonDecodeFailed])
}

func TestImageWithoutPixelsDoesNotAbortSession(t *testing.T) {
	h := newHarness(t)
	frame := image.NewPaletted(image.Rect(0, 0, 0, 0), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, &gif.GIF{Image: []*image.Paletted{frame}, Delay: []int{0}}))

	empty, good := thumbURL("empty"), thumbURL("good")
	h.fetcher.bodies[empty] = buf.Bytes()
	h.fetcher.bodies[good] = splitPNG(t, 14)
	h.surface.markup = page(extract.Candidate{URL: empty}, extract.Candidate{URL: good})

	for _, workers := range []int{1, 4} {
		h.cfg.Fetch.Concurrency = workers
		h.store = dedupe.New()

		report, err := h.session().Run(context.Background(), "gifs")
		require.NoError(t, err)

		require.Len(t, report.Outcomes, 2)
		assert.Equal(t, ReasonDecodeFailed, report.Outcomes[0].Reason)
		assert.True(t, errs.Is(report.Outcomes[0].Err, errs.TypeDecode))
		assert.True(t, report.Outcomes[1].Downloaded())
	}
}

func TestOutcomesFollowExtractionOrder(t *testing.T) {
	h := newHarness(t)
	var cands []extract.Candidate
	for i := 0; i < 6; i++ {
		u := thumbURL(fmt.Sprintf("n%d", i))
		cands = append(cands, extract.Candidate{URL: u})
		h.fetcher.bodies[u] = splitPNG(t, 4+i*4)
	}
	cands = append(cands[:2], append([]extract.Candidate{{URL: "https://encrypted-tbn0.gstatic.com/favicon.ico?padpadpadpadpadpadpad"}}, cands[2:]...)...)
	h.surface.markup = page(cands...)
	h.cfg.Fetch.Concurrency = 4

	report, err := h.session().Run(context.Background(), "order")
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 7)
	for i, o := range report.Outcomes {
		assert.Equal(t, i, o.Index)
	}
	assert.Equal(t, ReasonFiltered, report.Outcomes[2].Reason)
	assert.Equal(t, 6, report.Downloaded+report.Reasons[ReasonDuplicate])
}

func TestParallelFetchKeepsFirstCopy(t *testing.T) {
	h := newHarness(t)
	data := splitPNG(t, 12)
	first, second := thumbURL("first"), thumbURL("second")
	h.fetcher.bodies[first] = data
	h.fetcher.bodies[second] = data
	h.surface.markup = page(extract.Candidate{URL: first, Caption: "winner"}, extract.Candidate{URL: second, Caption: "loser"})
	h.cfg.Fetch.Concurrency = 8

	report, err := h.session().Run(context.Background(), "race")
	require.NoError(t, err)

	assert.True(t, report.Outcomes[0].Downloaded())
	assert.Equal(t, ReasonDuplicate, report.Outcomes[1].Reason)
}

func TestStoreFailureKeepsFingerprint(t *testing.T) {
	h := newHarness(t)
	h.blobs = &failingBlobs{}
	u := thumbURL("x")
	h.fetcher.bodies[u] = splitPNG(t, 16)
	h.surface.markup = page(extract.Candidate{URL: u})

	report, err := h.session().Run(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	o := report.Outcomes[0]
	assert.Equal(t, ReasonStoreFailed, o.Reason)
	assert.True(t, errs.Is(o.Err, errs.TypeStoreIO))
	assert.True(t, h.store.Contains(o.Fingerprint))
}

func TestOpenFailureIsSessionNoOp(t *testing.T) {
	h := newHarness(t)
	h.surface.openErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	report, err := h.session().Run(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.TypeNoContent))
	assert.Equal(t, 0, report.Downloaded+report.Skipped)
	assert.Empty(t, listDir(t, h.root))
}

func TestSecondQueryDedupesAgainstFirst(t *testing.T) {
	h := newHarness(t)
	data := splitPNG(t, 20)
	a, b := thumbURL("q1"), thumbURL("q2")
	h.fetcher.bodies[a] = data
	h.fetcher.bodies[b] = data
	s := h.session()

	h.surface.markup = page(extract.Candidate{URL: a})
	r1, err := s.Run(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Downloaded)

	h.surface.markup = page(extract.Candidate{URL: b})
	r2, err := s.Run(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, 0, r2.Downloaded)
	assert.Equal(t, 1, r2.Reasons[ReasonDuplicate])
}

func TestMetadataSidecar(t *testing.T) {
	h := newHarness(t)
	h.cfg.Output.SaveMetadata = true
	u := thumbURL("meta")
	h.fetcher.bodies[u] = splitPNG(t, 9)
	h.surface.markup = page(extract.Candidate{URL: u, Caption: "with meta"})

	report, err := h.session().Run(context.Background(), "sidecars")
	require.NoError(t, err)
	fp := string(report.Outcomes[0].Fingerprint)

	rec, err := metadata.Load(filepath.Join(h.cfg.Output.MetadataDir, "meta_"+fp+".json"))
	require.NoError(t, err)
	assert.Equal(t, u, rec.SourceURL)
	assert.Equal(t, "sidecars", rec.Query)
	assert.Equal(t, 32, rec.Width)
}

func TestSearchURLEscapesQuery(t *testing.T) {
	h := newHarness(t)
	h.surface.markup = page()
	_, _ = h.session().Run(context.Background(), "red fox & snow")

	require.Len(t, h.surface.opened, 1)
	assert.Equal(t, "https://www.google.com/search?hl=en&tbm=isch&q=red+fox+%26+snow", h.surface.opened[0])
}

// failingBlobs creates directories fine but cannot write images
type failingBlobs struct{}

func (failingBlobs) EnsureLayout() error { return nil }
func (failingBlobs) SaveImage(string, []byte) error {
	return errs.Wrap(errs.TypeStoreIO, "failed to write image", errors.New("no space left on device"))
}
func (failingBlobs) SaveCaption(string, string) error          { return nil }
func (failingBlobs) SaveMetadata(*metadata.ImageRecord) error { return nil }
func (failingBlobs) MetadataEnabled() bool                    { return false }
