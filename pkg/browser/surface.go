// Package browser renders search result pages in Chrome through go-rod.
//
// A Surface owns one browser process (or one connection to a remote Chrome)
// and one tab. It is acquired once per process and released exactly once.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/logger"
)

const heightScript = `() => Math.max(
	document.body ? document.body.scrollHeight : 0,
	document.documentElement ? document.documentElement.scrollHeight : 0
)`

// Surface is a single Chrome tab driven by rod
type Surface struct {
	cfg     config.BrowserConfig
	log     logger.Logger
	browser *rod.Browser
	page    *rod.Page
	lnch    *launcher.Launcher

	mu       sync.Mutex
	released bool
	once     sync.Once
	relErr   error
}

// Launch starts a local Chrome, or connects to cfg.RemoteURL, and opens a blank tab
func Launch(ctx context.Context, cfg config.BrowserConfig, log logger.Logger) (*Surface, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &Surface{cfg: cfg, log: log.WithField("component", "browser")}

	wsURL := cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Context(ctx).Headless(cfg.Headless)
		if cfg.BinPath != "" {
			l = l.Bin(cfg.BinPath)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, errs.Wrap(errs.TypeBrowser, "failed to launch chrome", err)
		}
		wsURL = u
		s.lnch = l
		s.log.WithField("url", wsURL).Debug("Launched local chrome")
	} else {
		s.log.WithField("url", wsURL).Debug("Connecting to remote chrome")
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		s.cleanupLauncher()
		return nil, errs.Wrap(errs.TypeBrowser, "failed to connect to chrome", err)
	}
	s.browser = b

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		_ = s.Release()
		return nil, errs.Wrap(errs.TypeBrowser, "failed to open tab", err)
	}
	s.page = page

	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			s.log.WithError(err).Warn("Failed to override user agent")
		}
	}

	return s, nil
}

func (s *Surface) activePage() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || s.page == nil {
		return nil, errs.New(errs.TypeBrowser, "browser surface is not available")
	}
	return s.page, nil
}

// Open navigates the tab to url and waits for the load event
func (s *Surface) Open(ctx context.Context, url string) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}

	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return errs.Wrap(errs.TypeBrowser, fmt.Sprintf("failed to navigate to %s", url), err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.log.WithError(err).WithField("url", url).Warn("Page load did not complete in time")
	}
	return nil
}

// ContentHeight returns the scrollable height of the document
func (s *Surface) ContentHeight(ctx context.Context) (int, error) {
	page, err := s.activePage()
	if err != nil {
		return 0, err
	}
	res, err := page.Context(ctx).Eval(heightScript)
	if err != nil {
		return 0, errs.Wrap(errs.TypeBrowser, "failed to read content height", err)
	}
	return res.Value.Int(), nil
}

// SendExpandSignal presses End, which makes the results page load its next batch
func (s *Surface) SendExpandSignal(ctx context.Context) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}
	if err := page.Context(ctx).KeyActions().Type(input.End).Do(); err != nil {
		return errs.Wrap(errs.TypeBrowser, "failed to send End key", err)
	}
	return nil
}

// Content returns the serialised DOM of the tab
func (s *Surface) Content(ctx context.Context) (string, error) {
	page, err := s.activePage()
	if err != nil {
		return "", err
	}
	html, err := page.Context(ctx).HTML()
	if err != nil {
		return "", errs.Wrap(errs.TypeBrowser, "failed to read page content", err)
	}
	return html, nil
}

// Release closes the tab and the browser. Calls after the first are no-ops.
func (s *Surface) Release() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.released = true
		page, b := s.page, s.browser
		s.mu.Unlock()

		if page != nil {
			if err := page.Close(); err != nil {
				s.log.WithError(err).Debug("Closing tab failed")
			}
		}
		if b != nil {
			if err := b.Close(); err != nil {
				s.relErr = errs.Wrap(errs.TypeBrowser, "failed to close browser", err)
			}
		}
		s.cleanupLauncher()
		s.log.Debug("Browser released")
	})
	return s.relErr
}

func (s *Surface) cleanupLauncher() {
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}
