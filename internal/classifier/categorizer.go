package classifier

import (
	"context"
	"fmt"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// DefaultFallbackThreshold gates the generative fallback: rule results at or
// above it are trusted as-is.
const DefaultFallbackThreshold = 0.8

// Fallback is the generative fallback classifier. A nil result (with nil
// error) means the fallback declined and the rule guess stands.
type Fallback interface {
	Classify(ctx context.Context, product *domain.Product, ruleGuess domain.Classification) (*domain.Classification, error)
}

// Cache stores classification results keyed by product identity and revision.
type Cache interface {
	Get(ctx context.Context, key string) (*domain.Classification, bool)
	Set(ctx context.Context, key string, c domain.Classification)
}

// Categorizer runs the rule classifier and escalates low-confidence results
// to the generative fallback. It never returns an error: every failure path
// degrades to the best available rule result.
type Categorizer struct {
	rules     *RuleClassifier
	fallback  Fallback
	cache     Cache
	threshold float64
	telemetry *telemetry.Provider
	logger    logger.Logger
}

// NewCategorizer wires the classification pipeline. fallback and cache may be
// nil to disable those stages.
func NewCategorizer(rc *RuleClassifier, fallback Fallback, cache Cache, threshold float64, log logger.Logger, tp *telemetry.Provider) *Categorizer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFallbackThreshold
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Categorizer{
		rules:     rc,
		fallback:  fallback,
		cache:     cache,
		threshold: threshold,
		telemetry: tp,
		logger:    log,
	}
}

// Classify produces a Classification for the product. The fallback is
// consulted only below the confidence threshold, and its failures degrade
// silently to the rule guess.
func (c *Categorizer) Classify(ctx context.Context, product *domain.Product) domain.Classification {
	if c.telemetry != nil {
		var span trace.Span
		ctx, span = c.telemetry.Tracer.Start(ctx, "categorizer.classify")
		defer span.End()
	}

	key := cacheKey(product)
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok {
			c.logger.Debug("classification cache hit",
				logger.Int64("product_id", product.ID),
			)
			return *cached
		}
	}

	guess := c.rules.Classify(product)
	result := guess

	if guess.Confidence < c.threshold && c.fallback != nil {
		if c.telemetry != nil {
			c.telemetry.Metrics.FallbackInvocations.Inc()
		}
		improved, err := c.fallback.Classify(ctx, product, guess)
		switch {
		case err != nil:
			if c.telemetry != nil {
				c.telemetry.Metrics.FallbackFailures.Inc()
			}
			c.logger.Warn("fallback classification failed, keeping rule guess",
				logger.Int64("product_id", product.ID),
				logger.Error(err),
			)
		case improved != nil:
			result = *improved
		}
	}

	if c.cache != nil {
		c.cache.Set(ctx, key, result)
	}
	return result
}

func cacheKey(product *domain.Product) string {
	return fmt.Sprintf("classification:%d:%s", product.ID, product.UpdatedAt)
}
