package browser

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/config"
	"imgharvest/pkg/logger"
	"imgharvest/pkg/scroll"
)

var _ scroll.Surface = (*Surface)(nil)

func TestReleaseIsIdempotent(t *testing.T) {
	tl := logger.NewTestLogger()
	s := &Surface{log: tl}

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())

	assert.Len(t, tl.GetMessages(), 1)
}

func TestReleasedSurfaceRejectsCalls(t *testing.T) {
	s := &Surface{log: logger.NewNopLogger()}
	require.NoError(t, s.Release())

	err := s.Open(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.TypeBrowser))

	_, err = s.ContentHeight(context.Background())
	assert.True(t, errs.Is(err, errs.TypeBrowser))

	assert.Error(t, s.SendExpandSignal(context.Background()))

	_, err = s.Content(context.Background())
	assert.Error(t, err)
}

// launchForTest starts a real browser. It needs Chrome, so it only runs when
// IMGHARVEST_BROWSER_TESTS is set.
func launchForTest(t *testing.T) *Surface {
	t.Helper()
	if os.Getenv("IMGHARVEST_BROWSER_TESTS") == "" {
		t.Skip("set IMGHARVEST_BROWSER_TESTS=1 to run browser tests")
	}
	cfg := config.DefaultConfig().Browser
	s, err := Launch(context.Background(), cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Release() })
	return s
}

func TestSendExpandSignalHonorsContext(t *testing.T) {
	s := launchForTest(t)
	require.NoError(t, s.Open(context.Background(), "about:blank"))

	require.NoError(t, s.SendExpandSignal(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := s.SendExpandSignal(ctx)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.TypeBrowser))
	assert.Less(t, time.Since(start), 5*time.Second)
}
