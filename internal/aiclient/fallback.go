package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonesrussell/catalog-classifier/internal/classifier"
	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
)

const (
	// descriptionPromptLimit bounds how much product description is sent to
	// the model.
	descriptionPromptLimit = 2000
	// fallbackConfidence applies when the model output carries no confidence.
	fallbackConfidence = 0.9
)

// fallbackOutput is the strict structure the model is instructed to return.
type fallbackOutput struct {
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	SEOTitle       string   `json:"seo_title"`
	SEODescription string   `json:"seo_description"`
	Confidence     float64  `json:"confidence"`
}

// Classify asks the model to confirm or improve a low-confidence rule guess.
// A nil result with nil error means the output could not be parsed and the
// rule guess stands; this method never panics into the processor.
func (c *Client) Classify(ctx context.Context, product *domain.Product, ruleGuess domain.Classification) (*domain.Classification, error) {
	prompt := buildFallbackPrompt(product, ruleGuess)

	raw, err := c.messenger.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	candidate, ok := ExtractJSONObject(raw)
	if !ok {
		c.logger.Warn("no JSON object in fallback model output",
			logger.Int64("product_id", product.ID),
		)
		return nil, nil
	}

	var output fallbackOutput
	if err := json.Unmarshal([]byte(candidate), &output); err != nil {
		c.logger.Warn("fallback model output did not match expected shape",
			logger.Int64("product_id", product.ID),
			logger.Error(err),
		)
		return nil, nil
	}

	result := merge(output, ruleGuess)
	c.logger.Debug("fallback classification accepted",
		logger.Int64("product_id", product.ID),
		logger.String("category", result.Category),
		logger.Float64("confidence", result.Confidence),
	)
	return &result, nil
}

// merge backfills any field the model left empty from the rule guess.
func merge(output fallbackOutput, guess domain.Classification) domain.Classification {
	result := domain.Classification{
		Category:       strings.TrimSpace(output.Category),
		Tags:           output.Tags,
		SEOTitle:       strings.TrimSpace(output.SEOTitle),
		SEODescription: strings.TrimSpace(output.SEODescription),
		Confidence:     output.Confidence,
		Method:         domain.MethodFallback,
		RuleName:       guess.RuleName,
	}
	if result.Category == "" {
		result.Category = guess.Category
	}
	if len(result.Tags) == 0 {
		result.Tags = guess.Tags
	}
	if result.SEOTitle == "" {
		result.SEOTitle = guess.SEOTitle
	}
	if result.SEODescription == "" {
		result.SEODescription = guess.SEODescription
	}
	if result.Confidence <= 0 || result.Confidence > 1 {
		result.Confidence = fallbackConfidence
	}
	return result
}

func buildFallbackPrompt(product *domain.Product, guess domain.Classification) string {
	description := classifier.StripHTML(product.BodyHTML)
	if runes := []rune(description); len(runes) > descriptionPromptLimit {
		description = string(runes[:descriptionPromptLimit])
	}

	guessJSON, _ := json.Marshal(guess)
	var b strings.Builder
	b.WriteString("You classify e-commerce products into category paths.\n")
	b.WriteString("Confirm or improve the rule-based guess below.\n\n")
	fmt.Fprintf(&b, "Title: %s\nVendor: %s\nDescription: %s\n\n", product.Title, product.Vendor, description)
	fmt.Fprintf(&b, "Rule guess: %s\n\n", guessJSON)
	b.WriteString("Respond with a single JSON object and nothing else, using exactly these fields:\n")
	b.WriteString(`{"category": "...", "tags": ["..."], "seo_title": "...", "seo_description": "...", "confidence": 0.0}`)
	return b.String()
}
