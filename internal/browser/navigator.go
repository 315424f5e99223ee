package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/bedatse/cf-web-scrapper-worker/internal/scraper"
)

// Fixed viewport and device scale so screenshot dimensions are
// reproducible across runs of the same page.
const (
	viewportWidth  = 1280
	viewportHeight = 960
	deviceScale    = 1.0
)

// NavigatorConfig controls the chromedp navigation driver.
type NavigatorConfig struct {
	// NavigationTimeout bounds the whole fetch, navigation through
	// extraction.
	NavigationTimeout time.Duration
	// IdleCeiling is the hard upper bound on the network-idle wait.
	// Running into it is a failure, not "idle achieved".
	IdleCeiling time.Duration
	UserAgent   string
}

// Navigator implements scraper.Navigator with chromedp over a leased
// remote session. Each Fetch opens a fresh page context on the session
// and discards it afterwards; a failed page is never reused.
type Navigator struct {
	cfg    NavigatorConfig
	logger *zap.Logger
}

// NewNavigator constructs a Navigator.
func NewNavigator(cfg NavigatorConfig, logger *zap.Logger) *Navigator {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.IdleCeiling <= 0 {
		cfg.IdleCeiling = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{cfg: cfg, logger: logger}
}

// Fetch navigates the session to url, waits for network quiescence, and
// extracts content per mode (HTML first in ALL mode).
func (n *Navigator) Fetch(
	ctx context.Context,
	sess scraper.Session,
	url string,
	idleWindow time.Duration,
	mode scraper.Mode,
) (scraper.PageContent, error) {
	remote, ok := sess.(*Session)
	if !ok {
		return scraper.PageContent{}, fmt.Errorf("%w: session type %T is not a remote browser session", scraper.ErrNavigationFailed, sess)
	}

	pageCtx, cancelPage := chromedp.NewContext(remote.browserCtx)
	defer cancelPage()

	pageCtx, cancel := context.WithTimeout(pageCtx, n.cfg.NavigationTimeout)
	defer cancel()

	doc := newDocumentMeta()
	idle := newIdleTracker()
	chromedp.ListenTarget(pageCtx, func(ev any) {
		doc.capture(ev)
		idle.capture(ev)
	})

	if err := chromedp.Run(pageCtx, n.setupActions(), chromedp.Navigate(url)); err != nil {
		if remote.browserCtx.Err() != nil {
			return scraper.PageContent{}, fmt.Errorf("%w: %w", scraper.ErrSessionLost, err)
		}
		return scraper.PageContent{}, fmt.Errorf("%w: %w", scraper.ErrNavigationFailed, err)
	}

	status := doc.status()
	if status != http.StatusOK {
		return scraper.PageContent{}, fmt.Errorf("%w: document response status %d", scraper.ErrNavigationFailed, status)
	}

	if err := idle.Wait(pageCtx, idleWindow, n.cfg.IdleCeiling); err != nil {
		return scraper.PageContent{}, err
	}

	content := scraper.PageContent{StatusCode: status}
	if mode.WantsHTML() {
		var html string
		actions := []chromedp.Action{
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
			chromedp.Title(&content.Title),
		}
		if err := chromedp.Run(pageCtx, actions...); err != nil {
			return scraper.PageContent{}, fmt.Errorf("%w: serialize dom: %w", scraper.ErrExtractionFailed, err)
		}
		content.HTML = []byte(html)
	}
	if mode.WantsScreenshot() {
		var shot []byte
		actions := []chromedp.Action{
			chromedp.EmulateViewport(viewportWidth, viewportHeight, chromedp.EmulateScale(deviceScale)),
			chromedp.FullScreenshot(&shot, 100),
		}
		if err := chromedp.Run(pageCtx, actions...); err != nil {
			return scraper.PageContent{}, fmt.Errorf("%w: screenshot: %w", scraper.ErrExtractionFailed, err)
		}
		content.Screenshot = shot
	}

	n.logger.Debug("page extracted",
		zap.String("url", url),
		zap.String("session_id", sess.ID()),
		zap.Int("html_bytes", len(content.HTML)),
		zap.Int("screenshot_bytes", len(content.Screenshot)),
	)
	return content, nil
}

func (n *Navigator) setupActions() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if n.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(n.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// documentMeta captures the response status of the main document from
// CDP network events.
type documentMeta struct {
	mu         sync.Mutex
	statusCode int
}

func newDocumentMeta() *documentMeta {
	return &documentMeta{}
}

func (m *documentMeta) capture(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	if m.statusCode == 0 {
		m.statusCode = int(resp.Response.Status)
	}
	m.mu.Unlock()
}

// status returns the observed document status, or 0 when no document
// response was seen at all.
func (m *documentMeta) status() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCode
}

// idleTracker counts in-flight network requests from CDP events and
// reports quiescence once nothing has been in flight for the requested
// window.
type idleTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

func (t *idleTracker) capture(ev any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.inflight[e.RequestID] = struct{}{}
		t.lastActivity = time.Now()
	case *network.EventLoadingFinished:
		delete(t.inflight, e.RequestID)
		t.lastActivity = time.Now()
	case *network.EventLoadingFailed:
		delete(t.inflight, e.RequestID)
		t.lastActivity = time.Now()
	}
}

// quietFor reports whether no request has been in flight for the whole
// window.
func (t *idleTracker) quietFor(window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && time.Since(t.lastActivity) >= window
}

// Wait blocks until the network has been quiet for window, or fails
// once the ceiling elapses.
func (t *idleTracker) Wait(ctx context.Context, window, ceiling time.Duration) error {
	deadline := time.Now().Add(ceiling)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", scraper.ErrIdleTimeout, ctx.Err())
		case <-ticker.C:
			if t.quietFor(window) {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("%w: network never idle for %s within %s", scraper.ErrIdleTimeout, window, ceiling)
			}
		}
	}
}
