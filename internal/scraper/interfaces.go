package scraper

import (
	"context"
	"time"
)

// SessionInfo describes one session as reported by the remote pool.
// Connected means another holder is already attached.
type SessionInfo struct {
	ID        string
	Connected bool
}

// Session is a leased remote browser instance. It is exclusively owned
// by its holder until Release, which must be called exactly once on
// every exit path.
type Session interface {
	ID() string
	Release(ctx context.Context) error
}

// SessionPool is the narrow capability over the remote browser service.
// The orchestrator never touches pool internals beyond these four
// operations (Release lives on the Session).
type SessionPool interface {
	// List returns the sessions currently known to the pool.
	List(ctx context.Context) ([]SessionInfo, error)

	// Attach connects to an existing unconnected session. Attach racing
	// with another holder is expected and reported as an error.
	Attach(ctx context.Context, info SessionInfo) (Session, error)

	// Provision starts a brand-new session.
	Provision(ctx context.Context) (Session, error)
}

// Navigator drives one page load on a leased session: navigate, wait
// for network quiescence, extract content per mode. The page context is
// scoped to the call and never reused.
type Navigator interface {
	Fetch(ctx context.Context, sess Session, url string, idleWindow time.Duration, mode Mode) (PageContent, error)
}

// BlobStore writes artifact bytes under an object name with a content
// type tag.
type BlobStore interface {
	Save(ctx context.Context, objectName string, contentType string, data []byte) error
}

// MetadataStore upserts the page record keyed by canonical URL. The
// upsert is the single linearization point that makes repeated scrapes
// of the same URL idempotent; callers never read before writing.
type MetadataStore interface {
	UpsertPage(ctx context.Context, url string, key StorageKey, language string, crawledAt time.Time) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
