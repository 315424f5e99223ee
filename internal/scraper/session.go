package scraper

import (
	"context"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/bedatse/cf-web-scrapper-worker/internal/metrics"
)

// AcquireSession claims a browser session from the pool. Sessions that
// report an active connection are never attached to; among the free
// ones, one is picked uniformly at random (session cost is assumed
// uniform, so no affinity or load metric). Attach failures are expected
// under races where two holders pick the same session and are swallowed
// after logging; the fallback is always to provision a fresh session.
// Provisioning failure is fatal for the attempt.
func AcquireSession(ctx context.Context, pool SessionPool, logger *zap.Logger) (Session, error) {
	infos, err := pool.List(ctx)
	if err != nil {
		// A pool that cannot even be listed may still be able to
		// provision; treat this like an empty list.
		logger.Warn("session list failed", zap.Error(err))
		infos = nil
	}

	free := infos[:0:0]
	for _, info := range infos {
		if !info.Connected {
			free = append(free, info)
		}
	}

	if len(free) > 0 {
		pick := free[rand.IntN(len(free))]
		sess, err := pool.Attach(ctx, pick)
		if err == nil {
			logger.Debug("reusing browser session", zap.String("session_id", sess.ID()))
			metrics.ObserveSessionAcquired("reused")
			return sess, nil
		}
		logger.Warn("session attach failed, provisioning new session",
			zap.String("session_id", pick.ID),
			zap.Error(err),
		)
	}

	sess, err := pool.Provision(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: provision: %w", ErrSessionUnavailable, err)
	}
	logger.Debug("provisioned browser session", zap.String("session_id", sess.ID()))
	metrics.ObserveSessionAcquired("provisioned")
	return sess, nil
}
