package classifier

import (
	"fmt"
	"strings"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
)

const (
	maxSynthesizedTags = 12
	maxTitleTokens     = 10
	minTokenLength     = 3

	seoTitleSourceLimit = 80
	seoTitleLimit       = 62
	seoDescriptionLimit = 155

	ellipsis = "…"
)

// stopWords are dropped from title-derived tags.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"this": true, "that": true, "your": true, "our": true, "new": true,
	"all": true, "per": true, "pack": true, "set": true,
}

// SynthesizeTags builds the tag list for a classification: the rule's static
// extra tags, the vendor, the category leaf, and up to maxTitleTokens
// normalized title tokens, deduplicated case-insensitively and capped.
func SynthesizeTags(product *domain.Product, category string, extraTags []string) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" || len(out) >= maxSynthesizedTags {
			return
		}
		key := strings.ToLower(tag)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, tag)
	}

	for _, tag := range extraTags {
		add(NormalizeText(tag))
	}
	add(NormalizeText(product.Vendor))
	add(strings.ToLower(domain.CategoryLeaf(category)))

	tokens := 0
	for _, token := range tokenize(product.Title) {
		if tokens >= maxTitleTokens {
			break
		}
		if len(token) < minTokenLength || stopWords[token] {
			continue
		}
		add(token)
		tokens++
	}

	return out
}

// SynthesizeSEO produces default SEO copy for a product. Used only when a
// classification does not already carry SEO fields.
func SynthesizeSEO(product *domain.Product, category string) (title, description string) {
	cleanTitle := strings.TrimSpace(StripHTML(product.Title))
	vendor := strings.TrimSpace(product.Vendor)
	leaf := domain.CategoryLeaf(category)

	title = strings.TrimSpace(vendor + " " + truncate(cleanTitle, seoTitleSourceLimit))
	title = truncate(title, seoTitleLimit)

	description = fmt.Sprintf("Shop %s by %s. Quality %s with fast shipping.",
		cleanTitle, vendor, strings.ToLower(leaf))
	description = truncate(description, seoDescriptionLimit)
	return title, description
}

// truncate cuts text past limit runes, appending an ellipsis marker.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + ellipsis
}
