// Package app wires storage, events and the habit store from configuration.
// Both the HTTP server and the CLI start a session through it.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bloomboard/config"
	"bloomboard/internal/clock"
	"bloomboard/internal/codec"
	"bloomboard/internal/repository"
	"bloomboard/internal/service/feedback"
	"bloomboard/internal/service/habit"
	"bloomboard/pkg/mq"
)

type App struct {
	Config    *config.Config
	Storage   repository.KVStore
	Publisher mq.EventPublisher
	Store     *habit.Store
	Importer  *codec.Importer
	Clock     clock.Clock

	logger *zap.Logger
}

type Option func(*App)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.Clock = c }
}

// WithStorage skips the configured driver and uses storage as is.
func WithStorage(s repository.KVStore) Option {
	return func(a *App) { a.Storage = s }
}

// New opens storage and the event publisher, loads the habit store and
// applies the configured import fragment once.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	a := &App{
		Config: cfg,
		Clock:  clock.RealClock{},
		logger: log,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.Storage == nil {
		storage, err := repository.Open(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		a.Storage = storage
	}

	a.Publisher = mq.NopPublisher{}
	if cfg.MQ.URL != "" {
		pub, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			// Events are a side channel; keep running without the broker.
			log.Warn("Failed to init MQ publisher, habit events disabled", zap.Error(err))
		} else {
			a.Publisher = pub
			log.Info("MQ publisher ready", zap.String("exchange", mq.ExchangeName))
		}
	}

	a.Store = habit.NewStore(ctx, a.Storage, log,
		habit.WithClock(a.Clock),
		habit.WithKey(cfg.Storage.Key),
		habit.WithFeedback(feedback.NewQueue(a.Clock, cfg.Feedback.TTL)),
		habit.WithPublisher(a.Publisher),
	)
	a.Importer = codec.NewImporter(a.Store, log)

	return a, nil
}

// ImportOnce applies fragment, falling back to the configured one when empty.
func (a *App) ImportOnce(ctx context.Context, fragment string) bool {
	if fragment == "" {
		fragment = a.Config.Import.Fragment
	}
	if fragment == "" {
		return false
	}
	return a.Importer.Apply(ctx, fragment)
}

func (a *App) Close() {
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.logger.Warn("Failed to close storage", zap.Error(err))
		}
	}
}
