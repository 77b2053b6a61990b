package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bloomboard/pkg/circuitbreaker"
	"bloomboard/pkg/metrics"
	"bloomboard/pkg/otel"
)

// Instrumented wraps a KVStore with tracing spans, latency metrics and logs.
type Instrumented struct {
	next   KVStore
	driver string
	logger *zap.Logger
}

func Instrument(next KVStore, driver string, logger *zap.Logger) *Instrumented {
	return &Instrumented{next: next, driver: driver, logger: logger}
}

func (r *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	start := time.Now()
	err := otel.StorageCall(ctx, r.driver, "get", key, func(ctx context.Context) error {
		var err error
		value, found, err = r.next.Get(ctx, key)
		return err
	})
	r.observe("get", key, start, err)
	return value, found, err
}

func (r *Instrumented) Put(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := otel.StorageCall(ctx, r.driver, "put", key, func(ctx context.Context) error {
		return r.next.Put(ctx, key, value)
	})
	r.observe("put", key, start, err)
	return err
}

func (r *Instrumented) Ping(ctx context.Context) error {
	return r.next.Ping(ctx)
}

func (r *Instrumented) Close() error {
	return r.next.Close()
}

// BreakerState forwards the state of a wrapped BreakerRepo.
func (r *Instrumented) BreakerState() (circuitbreaker.State, bool) {
	if b, ok := r.next.(*BreakerRepo); ok {
		return b.BreakerState()
	}
	return circuitbreaker.StateClosed, false
}

func (r *Instrumented) observe(op, key string, start time.Time, err error) {
	took := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStorageDuration(op, status, took)
	r.logger.Debug("Storage call",
		zap.String("driver", r.driver),
		zap.String("op", op),
		zap.String("key", key),
		zap.String("status", status),
		zap.Duration("took", took),
	)
}
