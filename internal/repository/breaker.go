package repository

import (
	"context"

	"go.uber.org/zap"

	"bloomboard/pkg/circuitbreaker"
)

// BreakerRepo fails fast while a remote backend keeps erroring, so a dead
// Redis or PostgreSQL does not stall every habit operation on its timeout.
type BreakerRepo struct {
	next   KVStore
	cb     *circuitbreaker.CircuitBreaker
	logger *zap.Logger
}

func WithBreaker(next KVStore, cfg circuitbreaker.Config, logger *zap.Logger) *BreakerRepo {
	return &BreakerRepo{
		next:   next,
		cb:     circuitbreaker.NewCircuitBreaker(cfg),
		logger: logger,
	}
}

func (r *BreakerRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := r.cb.Execute(func() error {
		var err error
		value, found, err = r.next.Get(ctx, key)
		return err
	})
	r.warnIfOpen(err)
	return value, found, err
}

func (r *BreakerRepo) Put(ctx context.Context, key string, value []byte) error {
	err := r.cb.Execute(func() error {
		return r.next.Put(ctx, key, value)
	})
	r.warnIfOpen(err)
	return err
}

func (r *BreakerRepo) Ping(ctx context.Context) error {
	return r.next.Ping(ctx)
}

func (r *BreakerRepo) Close() error {
	return r.next.Close()
}

// BreakerState exposes the breaker state for readiness checks. The bool is
// always true here; wrappers report false when no breaker sits below them.
func (r *BreakerRepo) BreakerState() (circuitbreaker.State, bool) {
	return r.cb.GetState(), true
}

func (r *BreakerRepo) warnIfOpen(err error) {
	if err == circuitbreaker.ErrCircuitBreakerOpen {
		r.logger.Warn("Storage circuit breaker open, call rejected")
	}
}
