// Package browser owns the headless browser process used for scraping.
// It exposes a single shared page; the walker and the detail fetcher
// hand it off synchronously, never concurrently.
package browser

import (
	"context"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/time/rate"

	"velomarkt/catalogsync/logger"
	apperr "velomarkt/catalogsync/pkg/errors"
)

// Options configures the session.
type Options struct {
	UserAgent     string
	Bin           string  // optional browser binary override
	NavsPerMinute float64 // pacing across all navigations
}

// Session wraps one headless browser with one open page.
type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	limiter  *rate.Limiter
	log      *logger.Logger
}

// New launches the browser and opens a blank page with the configured
// user agent and a desktop viewport.
func New(opts Options) (*Session, error) {
	l := launcher.New().Headless(true).Logger(io.Discard)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, apperr.NewNavigation("", "launch browser", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, apperr.NewNavigation("", "connect browser", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		b.Close()
		l.Cleanup()
		return nil, apperr.NewNavigation("", "open page", err)
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			b.Close()
			l.Cleanup()
			return nil, apperr.NewNavigation("", "set user agent", err)
		}
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  1920,
		Height: 1080,
	}); err != nil {
		b.Close()
		l.Cleanup()
		return nil, apperr.NewNavigation("", "set viewport", err)
	}

	perMinute := opts.NavsPerMinute
	if perMinute <= 0 {
		perMinute = 20
	}

	return &Session{
		launcher: l,
		browser:  b,
		page:     page,
		limiter:  rate.NewLimiter(rate.Limit(perMinute/60.0), 1),
		log:      logger.ForComponent("browser"),
	}, nil
}

// Navigate loads url on the shared page and waits for the load event,
// bounded by timeout. Navigations are paced by the session limiter.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	s.log.Debug().Str("url", url).Msg("navigating")

	page := s.page.Context(ctx).Timeout(timeout)
	if err := page.Navigate(url); err != nil {
		return apperr.NewNavigation("", "navigate "+url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return apperr.NewNavigation("", "wait load "+url, err)
	}
	return nil
}

// WaitVisible blocks until an element matching selector appears, or the
// wait times out.
func (s *Session) WaitVisible(selector string, timeout time.Duration) error {
	if _, err := s.page.Timeout(timeout).Element(selector); err != nil {
		return apperr.NewNavigation("", "wait for "+selector, err)
	}
	return nil
}

// HTML returns the current page's rendered HTML.
func (s *Session) HTML() (string, error) {
	html, err := s.page.HTML()
	if err != nil {
		return "", apperr.NewNavigation("", "read page html", err)
	}
	return html, nil
}

// Close tears down the page, the browser and the launcher process.
func (s *Session) Close() {
	if s.page != nil {
		s.page.Close()
	}
	if s.browser != nil {
		s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
}
