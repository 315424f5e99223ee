// Package scraper defines the core scrape pipeline: request shape,
// storage key derivation, session acquisition, and the orchestrator
// that ties navigation, artifact storage, and metadata recording together.
package scraper

import (
	"fmt"
	"time"
)

// Mode selects which artifacts a scrape extracts.
type Mode string

// Extraction modes accepted at the request boundary.
const (
	ModeHTML       Mode = "html"
	ModeScreenshot Mode = "screenshot"
	ModeAll        Mode = "all"
)

// ParseMode maps a request string onto a Mode. An empty string is the
// HTML default.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeHTML, nil
	case ModeHTML, ModeScreenshot, ModeAll:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// WantsHTML reports whether the mode extracts serialized DOM markup.
func (m Mode) WantsHTML() bool {
	return m == ModeHTML || m == ModeAll
}

// WantsScreenshot reports whether the mode captures a page raster.
func (m Mode) WantsScreenshot() bool {
	return m == ModeScreenshot || m == ModeAll
}

// Request is one scrape attempt as accepted at the boundary. Fields are
// optional on the wire; ApplyDefaults fills them before the request
// reaches the orchestrator. Re-delivered copies are treated as fresh
// requests, so re-running one is always safe.
type Request struct {
	URL          string `json:"url"`
	IdleWindowMs int    `json:"idle,omitempty"`
	Language     string `json:"lang,omitempty"`
	Mode         Mode   `json:"mode,omitempty"`
}

// ApplyDefaults fills absent or zero optional fields.
func (r *Request) ApplyDefaults() {
	if r.IdleWindowMs <= 0 {
		r.IdleWindowMs = 1000
	}
	if r.Language == "" {
		r.Language = "en"
	}
	if r.Mode == "" {
		r.Mode = ModeHTML
	}
}

// Validate rejects structurally invalid requests before any session is
// touched.
func (r Request) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	if _, _, err := CanonicalURL(r.URL); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if _, err := ParseMode(string(r.Mode)); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// IdleWindow returns the quiescence window as a duration.
func (r Request) IdleWindow() time.Duration {
	return time.Duration(r.IdleWindowMs) * time.Millisecond
}

// PageContent is what the navigation driver extracted from a rendered
// page. HTML and Screenshot are populated according to the request mode.
type PageContent struct {
	HTML       []byte
	Screenshot []byte
	Title      string
	StatusCode int
}

// Outcome is the result of one successful scrape attempt.
type Outcome struct {
	Key   StorageKey `json:"storage_key"`
	Title string     `json:"title,omitempty"`
}
