package scraper

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/bedatse/cf-web-scrapper-worker/internal/hash/sha256"
)

// StorageKey addresses persisted artifacts. The two parts are digests
// computed independently so that all artifacts for a domain share a
// prefix and can be listed with a prefix query. The layout is part of
// the storage contract: existing artifact locations must stay
// re-derivable from (domain, url) alone.
type StorageKey struct {
	DomainPart string
	URLPart    string
}

// String renders the key in its canonical domain/url form.
func (k StorageKey) String() string {
	return k.DomainPart + "/" + k.URLPart
}

// MarshalJSON renders the key as its canonical string form.
func (k StorageKey) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(k.String())
	if err != nil {
		return nil, fmt.Errorf("marshal storage key: %w", err)
	}
	return b, nil
}

// DeriveKey computes the storage key for a page. It is pure and
// deterministic: identical inputs always yield the identical key.
func DeriveKey(domain, canonicalURL string) StorageKey {
	return StorageKey{
		DomainPart: sha256.Hex([]byte(domain)),
		URLPart:    sha256.Hex([]byte(canonicalURL)),
	}
}

// CanonicalURL parses a raw URL, normalizes it, and returns the
// canonical form plus the hostname. A URL with an empty path is given
// the root path so that "https://example.com" and
// "https://example.com/" derive the same key.
func CanonicalURL(raw string) (canonical string, host string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse url: %w", err)
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return "", "", fmt.Errorf("url %q is not absolute", raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), u.Hostname(), nil
}
