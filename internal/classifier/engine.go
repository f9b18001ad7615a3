// Package classifier implements the deterministic rule-based product
// classifier and the confidence-gated orchestration over the generative
// fallback.
package classifier

import (
	"sync"
	"time"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/rules"
	"github.com/jonesrussell/catalog-classifier/internal/telemetry"
)

// DefaultCategory is the category applied by the implicit catch-all rule when
// no configured default is given.
const DefaultCategory = "Uncategorized"

// RuleClassifier evaluates the ordered rule list against product text. It
// never fails: when nothing matches, the implicit catch-all produces the
// default category at low confidence.
type RuleClassifier struct {
	store           *rules.Store
	defaultCategory string
	telemetry       *telemetry.Provider
	logger          logger.Logger

	// Keyword automaton cached per rule-store generation. Rebuilding on every
	// call would dominate classification cost during backfills.
	mu         sync.Mutex
	automaton  *ahocorasick.Matcher
	keywords   []keywordRef
	generation uint64
	built      bool
}

// keywordRef maps an automaton entry back to its rule position.
type keywordRef struct {
	ruleIndex int
}

// NewRuleClassifier creates a rule classifier over the given store.
func NewRuleClassifier(store *rules.Store, defaultCategory string, log logger.Logger, tp *telemetry.Provider) *RuleClassifier {
	if defaultCategory == "" {
		defaultCategory = DefaultCategory
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RuleClassifier{
		store:           store,
		defaultCategory: defaultCategory,
		telemetry:       tp,
		logger:          log,
	}
}

// Classify evaluates rules in declared order against the normalized haystack
// and returns the first match, or the catch-all result when nothing matches.
func (c *RuleClassifier) Classify(product *domain.Product) domain.Classification {
	start := time.Now()
	snapshot := c.store.Compiled()
	haystack := buildHaystack(product.Title, product.Vendor, product.BodyHTML)

	matched := c.keywordHits(snapshot, haystack)

	for i := range snapshot {
		rule := &snapshot[i]
		hit := false
		if rule.IsRegex() {
			hit = rule.Regexp.MatchString(haystack)
		} else {
			hit = matched[i]
		}
		if !hit {
			continue
		}

		confidence := rule.Confidence
		if confidence == 0 {
			confidence = domain.DefaultRuleConfidence
		}
		result := domain.Classification{
			Category:   rule.Category,
			Confidence: confidence,
			Method:     domain.MethodRules,
			RuleName:   rule.Name,
		}
		result.Tags = SynthesizeTags(product, rule.Category, rule.ExtraTags)
		result.SEOTitle, result.SEODescription = SynthesizeSEO(product, rule.Category)
		c.observe(start)
		return result
	}

	// Implicit catch-all guarantees classification always terminates with a
	// result.
	result := domain.Classification{
		Category:   c.defaultCategory,
		Confidence: domain.CatchAllConfidence,
		Method:     domain.MethodRules,
		RuleName:   domain.CatchAllRuleName,
	}
	result.Tags = SynthesizeTags(product, c.defaultCategory, nil)
	result.SEOTitle, result.SEODescription = SynthesizeSEO(product, c.defaultCategory)
	c.observe(start)
	return result
}

// keywordHits runs the automaton once over the haystack and reports which
// rules had at least one keyword hit.
func (c *RuleClassifier) keywordHits(snapshot []rules.Compiled, haystack string) map[int]bool {
	matcher, refs := c.matcher(snapshot)
	hits := make(map[int]bool)
	if matcher == nil {
		return hits
	}
	for _, idx := range matcher.Match([]byte(haystack)) {
		if idx < len(refs) {
			hits[refs[idx].ruleIndex] = true
		}
	}
	return hits
}

// matcher returns the cached automaton, rebuilding it when the rule store
// generation has moved.
func (c *RuleClassifier) matcher(snapshot []rules.Compiled) (*ahocorasick.Matcher, []keywordRef) {
	gen := c.store.Generation()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.built && c.generation == gen {
		return c.automaton, c.keywords
	}

	var words []string
	var refs []keywordRef
	for i := range snapshot {
		for _, kw := range snapshot[i].Keywords {
			normalized := NormalizeText(kw)
			if normalized == "" {
				continue
			}
			words = append(words, normalized)
			refs = append(refs, keywordRef{ruleIndex: i})
		}
	}

	c.generation = gen
	c.keywords = refs
	c.built = true
	if len(words) == 0 {
		c.automaton = nil
	} else {
		c.automaton = ahocorasick.NewStringMatcher(words)
	}
	c.logger.Debug("keyword automaton rebuilt",
		logger.Int("keywords", len(words)),
		logger.Int("rules", len(snapshot)),
	)
	return c.automaton, c.keywords
}

func (c *RuleClassifier) observe(start time.Time) {
	if c.telemetry != nil {
		c.telemetry.Metrics.RuleMatchDuration.Observe(time.Since(start).Seconds())
	}
}
