package scraper

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeSession struct {
	id string

	mu         sync.Mutex
	released   int
	releaseErr error
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Release(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
	return s.releaseErr
}

func (s *fakeSession) releaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type fakePool struct {
	infos   []SessionInfo
	listErr error

	attachErr   error
	attached    []string
	provisioned int

	provisionErr error

	// lastSession is the most recent session handed out, kept so tests
	// can assert on its release count.
	lastSession *fakeSession
}

func (p *fakePool) List(_ context.Context) ([]SessionInfo, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.infos, nil
}

func (p *fakePool) Attach(_ context.Context, info SessionInfo) (Session, error) {
	if p.attachErr != nil {
		return nil, p.attachErr
	}
	p.attached = append(p.attached, info.ID)
	p.lastSession = &fakeSession{id: info.ID}
	return p.lastSession, nil
}

func (p *fakePool) Provision(_ context.Context) (Session, error) {
	if p.provisionErr != nil {
		return nil, p.provisionErr
	}
	p.provisioned++
	p.lastSession = &fakeSession{id: "fresh"}
	return p.lastSession, nil
}

type fakeNavigator struct {
	content PageContent
	err     error

	fetched []string
}

func (n *fakeNavigator) Fetch(
	_ context.Context, _ Session, url string, _ time.Duration, _ Mode,
) (PageContent, error) {
	n.fetched = append(n.fetched, url)
	if n.err != nil {
		return PageContent{}, n.err
	}
	return n.content, nil
}

type savedBlob struct {
	contentType string
	data        []byte
}

type fakeBlobStore struct {
	objects map[string]savedBlob
	err     error
	// failOn fails the write for one specific object name only.
	failOn string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string]savedBlob)}
}

func (b *fakeBlobStore) Save(_ context.Context, objectName, contentType string, data []byte) error {
	if b.err != nil {
		return b.err
	}
	if b.failOn != "" && b.failOn == objectName {
		return errors.New("write refused")
	}
	b.objects[objectName] = savedBlob{contentType: contentType, data: data}
	return nil
}

type upsertCall struct {
	url       string
	key       StorageKey
	language  string
	crawledAt time.Time
}

type fakeMetaStore struct {
	err   error
	calls []upsertCall
}

func (m *fakeMetaStore) UpsertPage(
	_ context.Context, url string, key StorageKey, language string, crawledAt time.Time,
) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, upsertCall{url: url, key: key, language: language, crawledAt: crawledAt})
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Millisecond)
	return c.now
}
