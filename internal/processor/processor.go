// Package processor implements the idempotent merge/write engine. It decides
// whether a product still needs work, merges classification output into the
// remote resource without clobbering existing data, and stamps completion on
// the resource itself so correctness survives restarts and scale-out.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/history"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Merge policy constants.
const (
	maxMergedTags   = 25
	weakSEOTitleLen = 40
	weakSEODescLen  = 80
	defaultLanguage = "en"
)

// Outcome statuses.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
)

// ErrMissingProduct rejects processing before any remote call is made.
var ErrMissingProduct = errors.New("product identifier is required")

// ShopAPI is the remote surface the processor writes through. The throttled
// shopify client satisfies it.
type ShopAPI interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	UpdateProduct(ctx context.Context, update domain.ProductUpdate) (*domain.Product, error)
	ListMetafields(ctx context.Context, productID int64) ([]domain.Metafield, error)
	CreateMetafield(ctx context.Context, productID int64, mf domain.Metafield) (*domain.Metafield, error)
	UpdateMetafield(ctx context.Context, mf domain.Metafield) (*domain.Metafield, error)
}

// Classifier produces a classification for a product. The categorizer
// pipeline satisfies it.
type Classifier interface {
	Classify(ctx context.Context, product *domain.Product) domain.Classification
}

// HistoryRecorder appends audit entries. Recording failures are logged, never
// fatal.
type HistoryRecorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// Options adjusts one process call.
type Options struct {
	// Force skips the idempotence check.
	Force bool
	// DryRun computes the merge without touching the remote API.
	DryRun bool
	// SEOOnly restricts the write to the two SEO fields.
	SEOOnly bool
	// ReplaceTags replaces the remote tag set instead of merging into it.
	ReplaceTags bool
	// ReplaceSEO overwrites SEO fields even when they are not weak.
	ReplaceSEO bool
	// Manual bypasses the classifier pipeline with operator-provided fields.
	Manual *domain.Classification
	// Source labels the trigger (webhook, backfill, command) in metadata.
	Source string
}

// Outcome reports what a process call did.
type Outcome struct {
	Status         string                `json:"status"`
	Classification domain.Classification `json:"classification"`
	Written        *domain.ProductUpdate `json:"written,omitempty"`
}

// Processor is the idempotent merge/write engine.
type Processor struct {
	api        ShopAPI
	classifier Classifier
	history    HistoryRecorder
	language   string
	telemetry  *telemetry.Provider
	logger     logger.Logger
}

// New creates a processor. history may be nil to disable the audit log.
func New(api ShopAPI, clf Classifier, hist HistoryRecorder, language string, log logger.Logger, tp *telemetry.Provider) *Processor {
	if language == "" {
		language = defaultLanguage
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{
		api:        api,
		classifier: clf,
		history:    hist,
		language:   language,
		telemetry:  tp,
		logger:     log,
	}
}

// ProcessByID fetches the product and processes it.
func (p *Processor) ProcessByID(ctx context.Context, productID int64, opts Options) (*Outcome, error) {
	if productID == 0 {
		return nil, ErrMissingProduct
	}
	product, err := p.api.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, product, opts)
}

// Process runs the full merge/write sequence for one product. A failure
// anywhere after the skip check leaves the completion stamp unwritten, so a
// retried invocation redoes the full merge (at-least-once semantics).
func (p *Processor) Process(ctx context.Context, product *domain.Product, opts Options) (*Outcome, error) {
	if product == nil || product.ID == 0 {
		return nil, ErrMissingProduct
	}
	if p.telemetry != nil {
		var span trace.Span
		ctx, span = p.telemetry.Tracer.Start(ctx, "processor.process")
		defer span.End()
	}

	var metafields []domain.Metafield
	if !opts.DryRun {
		var err error
		metafields, err = p.api.ListMetafields(ctx, product.ID)
		if err != nil {
			return nil, fmt.Errorf("read metadata for product %d: %w", product.ID, err)
		}
		if !opts.Force && stampMatches(metafields, product.UpdatedAt) {
			p.logger.Debug("product already processed for this revision",
				logger.Int64("product_id", product.ID),
				logger.String("revision", product.UpdatedAt),
			)
			if p.telemetry != nil {
				p.telemetry.Metrics.ProductsSkipped.Inc()
			}
			return &Outcome{Status: StatusSkipped}, nil
		}
	}

	classification := p.classify(ctx, product, opts)
	update := p.buildUpdate(product, classification, opts)

	outcome := &Outcome{
		Status:         StatusProcessed,
		Classification: classification,
		Written:        &update,
	}
	if opts.DryRun {
		return outcome, nil
	}

	if err := p.write(ctx, product, metafields, classification, update, opts); err != nil {
		if p.telemetry != nil {
			p.telemetry.Metrics.ProductsFailed.Inc()
		}
		p.record(ctx, product, classification, opts, "failed", err)
		return nil, err
	}

	if p.telemetry != nil {
		p.telemetry.Metrics.ProductsProcessed.Inc()
	}
	p.record(ctx, product, classification, opts, StatusProcessed, nil)
	p.logger.Info("product processed",
		logger.Int64("product_id", product.ID),
		logger.String("category", classification.Category),
		logger.String("method", classification.Method),
		logger.Float64("confidence", classification.Confidence),
	)
	return outcome, nil
}

func (p *Processor) classify(ctx context.Context, product *domain.Product, opts Options) domain.Classification {
	if opts.Manual != nil {
		manual := *opts.Manual
		manual.Method = domain.MethodManual
		if manual.Category == "" {
			manual.Category = product.ProductType
		}
		if manual.Confidence == 0 {
			manual.Confidence = 1
		}
		return manual
	}
	return p.classifier.Classify(ctx, product)
}

// buildUpdate merges the classification into the product per policy:
// tag union capped and deduplicated, SEO fields overwritten only when weak.
func (p *Processor) buildUpdate(product *domain.Product, c domain.Classification, opts Options) domain.ProductUpdate {
	update := domain.ProductUpdate{ID: product.ID}

	if !opts.SEOOnly {
		update.ProductType = c.Category
		merged := MergeTags(product.TagList(), c.Tags, opts.ReplaceTags)
		update.Tags = domain.JoinTags(merged)
	}

	if shouldOverwriteSEO(product.SEOTitle, weakSEOTitleLen, opts.ReplaceSEO) && c.SEOTitle != "" {
		update.SEOTitle = c.SEOTitle
	}
	if shouldOverwriteSEO(product.SEODescription, weakSEODescLen, opts.ReplaceSEO) && c.SEODescription != "" {
		update.SEODescription = c.SEODescription
	}
	return update
}

// write pushes the product update, the classification metadata, and finally
// the completion stamp. Stamp last: a partial failure must leave the product
// unstamped.
func (p *Processor) write(ctx context.Context, product *domain.Product, metafields []domain.Metafield, c domain.Classification, update domain.ProductUpdate, opts Options) error {
	if _, err := p.api.UpdateProduct(ctx, update); err != nil {
		return fmt.Errorf("write product %d: %w", product.ID, err)
	}

	source := opts.Source
	if source == "" {
		source = "manual"
	}
	metadata := []domain.Metafield{
		{Namespace: domain.MetafieldNamespace, Key: domain.MetafieldKeyCategory, Value: c.Category},
		{Namespace: domain.MetafieldNamespace, Key: domain.MetafieldKeyTags, Value: domain.JoinTags(c.Tags)},
		{Namespace: domain.MetafieldNamespace, Key: domain.MetafieldKeyConfidence, Value: strconv.FormatFloat(c.Confidence, 'f', 2, 64)},
		{Namespace: domain.MetafieldNamespace, Key: domain.MetafieldKeyMethod, Value: c.Method},
		{Namespace: domain.MetafieldNamespace, Key: domain.MetafieldKeySource, Value: source},
		{Namespace: domain.MetafieldNamespace, Key: domain.MetafieldKeyLanguage, Value: p.language},
	}
	for _, mf := range metadata {
		if err := p.upsertMetafield(ctx, product.ID, metafields, mf); err != nil {
			return fmt.Errorf("write metadata %s for product %d: %w", mf.Key, product.ID, err)
		}
	}

	stamp := domain.Metafield{
		Namespace: domain.MetafieldNamespace,
		Key:       domain.MetafieldKeyStamp,
		Value:     product.UpdatedAt,
	}
	if err := p.upsertMetafield(ctx, product.ID, metafields, stamp); err != nil {
		return fmt.Errorf("stamp product %d: %w", product.ID, err)
	}
	return nil
}

// upsertMetafield reuses the metafield list fetched during the skip check so
// each field costs one write, not a read plus a write.
func (p *Processor) upsertMetafield(ctx context.Context, productID int64, existing []domain.Metafield, mf domain.Metafield) error {
	for i := range existing {
		if existing[i].Namespace == mf.Namespace && existing[i].Key == mf.Key {
			updated := existing[i]
			updated.Value = mf.Value
			_, err := p.api.UpdateMetafield(ctx, updated)
			return err
		}
	}
	mf.Type = domain.MetafieldTypeText
	_, err := p.api.CreateMetafield(ctx, productID, mf)
	return err
}

func (p *Processor) record(ctx context.Context, product *domain.Product, c domain.Classification, opts Options, status string, procErr error) {
	if p.history == nil {
		return
	}
	entry := history.Entry{
		ProductID:  product.ID,
		Category:   c.Category,
		Tags:       history.JoinTags(c.Tags),
		Confidence: c.Confidence,
		Method:     c.Method,
		Source:     opts.Source,
		Status:     status,
	}
	if procErr != nil {
		entry.Error = procErr.Error()
	}
	if err := p.history.Record(ctx, entry); err != nil {
		p.logger.Warn("history record failed",
			logger.Int64("product_id", product.ID),
			logger.Error(err),
		)
	}
}

// stampMatches reports whether the completion stamp equals the product's
// current revision.
func stampMatches(metafields []domain.Metafield, revision string) bool {
	for i := range metafields {
		if metafields[i].Namespace == domain.MetafieldNamespace && metafields[i].Key == domain.MetafieldKeyStamp {
			return metafields[i].Value == revision && revision != ""
		}
	}
	return false
}

// MergeTags unions existing and new tags (or replaces when replace is set),
// deduplicating case-insensitively while preserving first-seen casing, capped
// at maxMergedTags.
func MergeTags(existing, incoming []string, replace bool) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" || len(out) >= maxMergedTags {
			return
		}
		key := strings.ToLower(tag)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, tag)
	}

	if !replace {
		for _, tag := range existing {
			add(tag)
		}
	}
	for _, tag := range incoming {
		add(tag)
	}
	return out
}

// shouldOverwriteSEO holds the weak-field policy: empty or shorter than the
// weak threshold, unless replacement is explicitly requested.
func shouldOverwriteSEO(current string, weakLen int, replace bool) bool {
	if replace {
		return true
	}
	return len(strings.TrimSpace(current)) < weakLen
}
