package scraper

import "errors"

// Stage sentinels. Every failure surfaced by the pipeline wraps exactly
// one of these, so the dispatch layer can classify with errors.Is
// without parsing messages.
var (
	// ErrValidation marks a structurally invalid request. It is raised
	// before any session is acquired.
	ErrValidation = errors.New("invalid request")

	// ErrSessionUnavailable means no browser session could be obtained:
	// provisioning a fresh session failed after reuse fell through.
	ErrSessionUnavailable = errors.New("session unavailable")

	// ErrNavigationFailed covers navigation errors and non-200 document
	// responses.
	ErrNavigationFailed = errors.New("navigation failed")

	// ErrSessionLost means the leased session's connection died mid
	// attempt. Unlike ErrNavigationFailed it is not scoped to one page;
	// the batch consumer reacts by provisioning a replacement session.
	ErrSessionLost = errors.New("session lost")

	// ErrIdleTimeout means network quiescence was never reached within
	// the ceiling timeout.
	ErrIdleTimeout = errors.New("network idle timeout")

	// ErrExtractionFailed covers DOM serialization and screenshot
	// capture errors after a successful navigation.
	ErrExtractionFailed = errors.New("content extraction failed")

	// ErrStorageFailed marks an artifact store write failure.
	ErrStorageFailed = errors.New("artifact store failed")

	// ErrMetadataFailed marks a metadata upsert failure.
	ErrMetadataFailed = errors.New("metadata store failed")
)

// Stage names one pipeline step for logs and metrics.
func Stage(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrSessionUnavailable):
		return "session"
	case errors.Is(err, ErrSessionLost):
		return "session_lost"
	case errors.Is(err, ErrIdleTimeout):
		return "idle_wait"
	case errors.Is(err, ErrNavigationFailed):
		return "navigation"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction"
	case errors.Is(err, ErrStorageFailed):
		return "storage"
	case errors.Is(err, ErrMetadataFailed):
		return "metadata"
	default:
		return "unknown"
	}
}
