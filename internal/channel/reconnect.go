package channel

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Reconnector is an opt-in, caller-side reconnection policy. The channel
// core never retries on its own; a caller that wants freshness back after
// an unclean close runs its reopen through this.
type Reconnector struct {
	log        *zap.Logger
	MaxElapsed time.Duration
}

func NewReconnector(log *zap.Logger) *Reconnector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconnector{log: log, MaxElapsed: 2 * time.Minute}
}

// Run retries reopen with exponential backoff until it succeeds, the
// context is cancelled, or MaxElapsed passes.
func (r *Reconnector) Run(ctx context.Context, reopen func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = r.MaxElapsed

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if err := reopen(ctx); err != nil {
			r.log.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}
