package codec

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"bloomboard/internal/model"
	"bloomboard/pkg/logger"
	"bloomboard/pkg/metrics"
	"bloomboard/pkg/otel"
)

// Replacer is the part of the habit store an import needs.
type Replacer interface {
	Replace(ctx context.Context, habits []model.Habit) int
}

// Importer applies a "#bb=" fragment to the store once per session.
type Importer struct {
	store  Replacer
	logger *zap.Logger
}

func NewImporter(store Replacer, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{store: store, logger: log}
}

// Apply decodes fragment and, on success, replaces the whole collection.
// Any failure leaves the collection untouched and returns false.
func (i *Importer) Apply(ctx context.Context, fragment string) bool {
	log := logger.WithTrace(ctx, i.logger)

	if strings.TrimSpace(fragment) == "" {
		metrics.IncrementImportOutcome("skipped")
		return false
	}

	ctx, span := otel.StartSpan(ctx, "habits.import")
	defer span.End()

	habits, err := DecodeFragment(fragment)
	if err != nil {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("import.outcome", outcome))
		span.RecordError(err)
		metrics.IncrementImportOutcome(outcome)
		log.Warn("Import fragment ignored",
			zap.String("outcome", outcome),
			zap.Int("length", len(fragment)),
			zap.Error(err),
		)
		return false
	}

	kept := i.store.Replace(ctx, habits)
	span.SetAttributes(
		attribute.String("import.outcome", "applied"),
		attribute.Int("import.kept", kept),
	)
	metrics.IncrementImportOutcome("applied")
	log.Info("Import fragment applied",
		zap.Int("received", len(habits)),
		zap.Int("kept", kept),
	)
	return true
}

// Outcome maps a decode error to its metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	case errors.Is(err, ErrText):
		return "text"
	case errors.Is(err, ErrJSON):
		return "json"
	case errors.Is(err, ErrShape):
		return "shape"
	default:
		return "unknown"
	}
}
