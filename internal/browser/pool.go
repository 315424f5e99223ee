// Package browser implements the remote browser capability: a session
// pool client over the pool service's HTTP API and a chromedp-backed
// navigation driver. Sessions are leased from a service with unknown
// size and unknown concurrent holders; everything here goes through the
// narrow list/attach/provision/release surface.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/bedatse/cf-web-scrapper-worker/internal/metrics"
	"github.com/bedatse/cf-web-scrapper-worker/internal/scraper"
)

// PoolConfig controls the connection to the remote browser pool service.
type PoolConfig struct {
	// Endpoint is the HTTP base URL of the pool service, e.g.
	// "http://browser-pool:3000". The service exposes GET /sessions for
	// listing and POST /sessions for provisioning; page control runs
	// over each session's WebSocket debugger URL.
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// Pool is the scraper.SessionPool implementation for the remote service.
type Pool struct {
	cfg    PoolConfig
	client *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	wsURLs map[string]string // session id -> websocket debugger url, refreshed on List
}

// NewPool validates the endpoint and constructs a Pool.
func NewPool(cfg PoolConfig, logger *zap.Logger) (*Pool, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("browser pool endpoint %q is not a valid http(s) URL", cfg.Endpoint)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		wsURLs: make(map[string]string),
	}, nil
}

type sessionEntry struct {
	ID                   string `json:"id"`
	Connected            bool   `json:"connected"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// List returns the sessions currently known to the pool service.
func (p *Pool) List(ctx context.Context) ([]scraper.SessionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.sessionsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list sessions: pool returned %d", resp.StatusCode)
	}

	var entries []sessionEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode session list: %w", err)
	}

	infos := make([]scraper.SessionInfo, 0, len(entries))
	p.mu.Lock()
	for _, e := range entries {
		p.wsURLs[e.ID] = e.WebSocketDebuggerURL
		infos = append(infos, scraper.SessionInfo{ID: e.ID, Connected: e.Connected})
	}
	p.mu.Unlock()
	return infos, nil
}

// Attach connects to an existing session. The CDP connection is
// established eagerly so that a race lost to another holder surfaces
// here, not mid-navigation.
func (p *Pool) Attach(ctx context.Context, info scraper.SessionInfo) (scraper.Session, error) {
	p.mu.Lock()
	wsURL := p.wsURLs[info.ID]
	p.mu.Unlock()
	if wsURL == "" {
		return nil, fmt.Errorf("no websocket url known for session %s", info.ID)
	}

	sess, err := p.connect(info.ID, wsURL)
	if err != nil {
		metrics.ObserveSessionAttachFailure()
		return nil, err
	}
	return sess, nil
}

// Provision asks the pool service for a brand-new session and connects
// to it.
func (p *Pool) Provision(ctx context.Context) (scraper.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sessionsURL(), strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("build provision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provision session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("provision session: pool returned %d", resp.StatusCode)
	}

	var entry sessionEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("decode provisioned session: %w", err)
	}
	if entry.ID == "" || entry.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("pool returned incomplete session %+v", entry)
	}

	p.mu.Lock()
	p.wsURLs[entry.ID] = entry.WebSocketDebuggerURL
	p.mu.Unlock()

	return p.connect(entry.ID, entry.WebSocketDebuggerURL)
}

func (p *Pool) connect(id, wsURL string) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), p.authWS(wsURL), chromedp.NoModifyURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run dials the websocket and attaches to the browser.
	connectCtx, cancel := context.WithTimeout(browserCtx, p.cfg.Timeout)
	defer cancel()
	if err := chromedp.Run(connectCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("connect to session %s: %w", id, err)
	}

	p.logger.Debug("connected to browser session", zap.String("session_id", id))
	return &Session{
		id:         id,
		browserCtx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}, nil
}

func (p *Pool) sessionsURL() string {
	u := strings.TrimRight(p.cfg.Endpoint, "/") + "/sessions"
	if p.cfg.Token != "" {
		u += "?token=" + url.QueryEscape(p.cfg.Token)
	}
	return u
}

func (p *Pool) authWS(wsURL string) string {
	if p.cfg.Token == "" {
		return wsURL
	}
	sep := "?"
	if strings.Contains(wsURL, "?") {
		sep = "&"
	}
	return wsURL + sep + "token=" + url.QueryEscape(p.cfg.Token)
}

// Session is one leased remote browser. The websocket connection is
// exclusively owned by this process until Release.
type Session struct {
	id         string
	browserCtx context.Context
	cancel     context.CancelFunc

	releaseOnce sync.Once
}

// ID returns the pool's identifier for this session.
func (s *Session) ID() string {
	return s.id
}

// Release disconnects from the remote browser. The browser itself keeps
// running in the pool service and becomes attachable again; its
// lifecycle belongs to the pool, not to us. Release is idempotent.
func (s *Session) Release(_ context.Context) error {
	s.releaseOnce.Do(s.cancel)
	return nil
}
