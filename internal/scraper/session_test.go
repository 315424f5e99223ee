package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAcquireSessionReusesFreeSession(t *testing.T) {
	t.Parallel()

	pool := &fakePool{infos: []SessionInfo{
		{ID: "busy", Connected: true},
		{ID: "free", Connected: false},
	}}

	sess, err := AcquireSession(context.Background(), pool, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "free", sess.ID())
	require.Equal(t, []string{"free"}, pool.attached)
	require.Zero(t, pool.provisioned)
}

func TestAcquireSessionProvisionsWhenAllBusy(t *testing.T) {
	t.Parallel()

	pool := &fakePool{infos: []SessionInfo{
		{ID: "a", Connected: true},
		{ID: "b", Connected: true},
	}}

	sess, err := AcquireSession(context.Background(), pool, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "fresh", sess.ID())
	require.Empty(t, pool.attached)
	require.Equal(t, 1, pool.provisioned)
}

func TestAcquireSessionProvisionsWhenPoolEmpty(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}

	sess, err := AcquireSession(context.Background(), pool, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "fresh", sess.ID())
	require.Equal(t, 1, pool.provisioned)
}

func TestAcquireSessionFallsBackWhenAttachFails(t *testing.T) {
	t.Parallel()

	pool := &fakePool{
		infos:     []SessionInfo{{ID: "contested", Connected: false}},
		attachErr: errors.New("already taken"),
	}

	sess, err := AcquireSession(context.Background(), pool, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "fresh", sess.ID())
	require.Equal(t, 1, pool.provisioned)
}

func TestAcquireSessionTreatsListFailureAsEmpty(t *testing.T) {
	t.Parallel()

	pool := &fakePool{listErr: errors.New("pool unreachable")}

	sess, err := AcquireSession(context.Background(), pool, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "fresh", sess.ID())
}

func TestAcquireSessionProvisionFailureIsFatal(t *testing.T) {
	t.Parallel()

	pool := &fakePool{provisionErr: errors.New("pool at capacity")}

	_, err := AcquireSession(context.Background(), pool, zap.NewNop())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrSessionUnavailable)
}
