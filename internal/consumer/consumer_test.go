package consumer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bedatse/cf-web-scrapper-worker/internal/queue"
	"github.com/bedatse/cf-web-scrapper-worker/internal/scraper"
)

type fakeSession struct {
	id       string
	released int
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Release(_ context.Context) error {
	s.released++
	return nil
}

type fakePool struct {
	provisionErr error
	// provisionErrAfter fails provisioning once the given number of
	// sessions has already been handed out.
	provisionErrAfter int
	sessions          []*fakeSession
}

func (p *fakePool) List(_ context.Context) ([]scraper.SessionInfo, error) { return nil, nil }

func (p *fakePool) Attach(_ context.Context, _ scraper.SessionInfo) (scraper.Session, error) {
	return nil, errors.New("unexpected attach")
}

func (p *fakePool) Provision(_ context.Context) (scraper.Session, error) {
	if p.provisionErr != nil {
		return nil, p.provisionErr
	}
	if p.provisionErrAfter > 0 && len(p.sessions) >= p.provisionErrAfter {
		return nil, errors.New("pool exhausted")
	}
	sess := &fakeSession{id: fmt.Sprintf("sess-%d", len(p.sessions)+1)}
	p.sessions = append(p.sessions, sess)
	return sess, nil
}

type scrapeCall struct {
	sessionID string
	url       string
}

type fakeRunner struct {
	// errsByURL maps a request URL to the error its scrape should fail
	// with. URLs not present succeed.
	errsByURL map[string]error
	calls     []scrapeCall
}

func (r *fakeRunner) ScrapeWithSession(
	_ context.Context, sess scraper.Session, req scraper.Request,
) (scraper.Outcome, error) {
	r.calls = append(r.calls, scrapeCall{sessionID: sess.ID(), url: req.URL})
	if err, ok := r.errsByURL[req.URL]; ok {
		return scraper.Outcome{}, err
	}
	return scraper.Outcome{}, nil
}

func (r *fakeRunner) ReleaseSession(ctx context.Context, sess scraper.Session) {
	_ = sess.Release(ctx)
}

type fakeMessage struct {
	data   []byte
	acked  int
	nacked int
}

func (m *fakeMessage) Data() []byte { return m.data }
func (m *fakeMessage) Ack()         { m.acked++ }
func (m *fakeMessage) Nack()        { m.nacked++ }

func reqPayload(url string) []byte {
	return []byte(fmt.Sprintf(`{"url":%q,"mode":"html"}`, url))
}

func asMessages(msgs ...*fakeMessage) []queue.Message {
	out := make([]queue.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	return out
}

func TestHandleBatchSharesOneSession(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	runner := &fakeRunner{errsByURL: map[string]error{
		"https://example.com/b": fmt.Errorf("%w: outerHTML", scraper.ErrExtractionFailed),
	}}
	c := New(pool, runner, Config{}, zap.NewNop())

	a := &fakeMessage{data: reqPayload("https://example.com/a")}
	b := &fakeMessage{data: reqPayload("https://example.com/b")}
	d := &fakeMessage{data: reqPayload("https://example.com/c")}

	c.HandleBatch(context.Background(), asMessages(a, b, d))

	require.Equal(t, 1, a.acked)
	require.Equal(t, 1, b.nacked)
	require.Zero(t, b.acked)
	require.Equal(t, 1, d.acked)

	// One session for the whole batch, released exactly once.
	require.Len(t, pool.sessions, 1)
	require.Equal(t, 1, pool.sessions[0].released)
	for _, call := range runner.calls {
		require.Equal(t, "sess-1", call.sessionID)
	}
}

func TestHandleBatchNacksAllWhenNoSession(t *testing.T) {
	t.Parallel()

	pool := &fakePool{provisionErr: errors.New("no capacity")}
	runner := &fakeRunner{}
	c := New(pool, runner, Config{}, zap.NewNop())

	a := &fakeMessage{data: reqPayload("https://example.com/a")}
	b := &fakeMessage{data: reqPayload("https://example.com/b")}

	c.HandleBatch(context.Background(), asMessages(a, b))

	require.Equal(t, 1, a.nacked)
	require.Equal(t, 1, b.nacked)
	require.Empty(t, runner.calls)
}

func TestHandleBatchDropsMalformedMessages(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	runner := &fakeRunner{}
	c := New(pool, runner, Config{}, zap.NewNop())

	bad := &fakeMessage{data: []byte("{not json")}
	missing := &fakeMessage{data: []byte(`{"mode":"html"}`)}
	good := &fakeMessage{data: reqPayload("https://example.com/ok")}

	c.HandleBatch(context.Background(), asMessages(bad, missing, good))

	// Malformed payloads are acked so they do not loop forever.
	require.Equal(t, 1, bad.acked)
	require.Equal(t, 1, missing.acked)
	require.Equal(t, 1, good.acked)
	require.Len(t, runner.calls, 1)
	require.Equal(t, "https://example.com/ok", runner.calls[0].url)
}

func TestHandleBatchReacquiresAfterSessionLoss(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	runner := &fakeRunner{errsByURL: map[string]error{
		"https://example.com/a": fmt.Errorf("%w: ws closed", scraper.ErrSessionLost),
	}}
	c := New(pool, runner, Config{ReacquireOnSessionLoss: true}, zap.NewNop())

	a := &fakeMessage{data: reqPayload("https://example.com/a")}
	b := &fakeMessage{data: reqPayload("https://example.com/b")}

	c.HandleBatch(context.Background(), asMessages(a, b))

	require.Equal(t, 1, a.nacked)
	require.Equal(t, 1, b.acked)

	require.Len(t, pool.sessions, 2)
	require.Equal(t, 1, pool.sessions[0].released)
	require.Equal(t, 1, pool.sessions[1].released)

	require.Equal(t, "sess-1", runner.calls[0].sessionID)
	require.Equal(t, "sess-2", runner.calls[1].sessionID)
}

func TestHandleBatchNoReacquireOnLastMessage(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	runner := &fakeRunner{errsByURL: map[string]error{
		"https://example.com/last": fmt.Errorf("%w: ws closed", scraper.ErrSessionLost),
	}}
	c := New(pool, runner, Config{ReacquireOnSessionLoss: true}, zap.NewNop())

	last := &fakeMessage{data: reqPayload("https://example.com/last")}
	c.HandleBatch(context.Background(), asMessages(last))

	require.Equal(t, 1, last.nacked)
	require.Len(t, pool.sessions, 1)
	require.Equal(t, 1, pool.sessions[0].released)
}

func TestHandleBatchReacquireFailureRedeliversRest(t *testing.T) {
	t.Parallel()

	pool := &fakePool{provisionErrAfter: 1}
	runner := &fakeRunner{errsByURL: map[string]error{
		"https://example.com/a": fmt.Errorf("%w: ws closed", scraper.ErrSessionLost),
	}}
	c := New(pool, runner, Config{ReacquireOnSessionLoss: true}, zap.NewNop())

	a := &fakeMessage{data: reqPayload("https://example.com/a")}
	b := &fakeMessage{data: reqPayload("https://example.com/b")}
	d := &fakeMessage{data: reqPayload("https://example.com/c")}

	c.HandleBatch(context.Background(), asMessages(a, b, d))

	require.Equal(t, 1, a.nacked)
	require.Equal(t, 1, b.nacked)
	require.Equal(t, 1, d.nacked)
	require.Len(t, runner.calls, 1)
	require.Equal(t, 1, pool.sessions[0].released)
}

func TestHandleBatchSessionLossWithoutFlagKeepsSession(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	runner := &fakeRunner{errsByURL: map[string]error{
		"https://example.com/a": fmt.Errorf("%w: ws closed", scraper.ErrSessionLost),
	}}
	c := New(pool, runner, Config{ReacquireOnSessionLoss: false}, zap.NewNop())

	a := &fakeMessage{data: reqPayload("https://example.com/a")}
	b := &fakeMessage{data: reqPayload("https://example.com/b")}

	c.HandleBatch(context.Background(), asMessages(a, b))

	require.Len(t, pool.sessions, 1)
	require.Equal(t, "sess-1", runner.calls[1].sessionID)
	require.Equal(t, 1, pool.sessions[0].released)
}

func TestHandleBatchEmptyIsNoOp(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	c := New(pool, &fakeRunner{}, Config{}, zap.NewNop())
	c.HandleBatch(context.Background(), nil)
	require.Empty(t, pool.sessions)
}
