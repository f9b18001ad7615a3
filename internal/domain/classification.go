package domain

import "strings"

// Classification method tags.
const (
	MethodRules    = "rules"
	MethodFallback = "fallback-model"
	MethodManual   = "manual"
)

// Classification is the result of classifying a product. Category is never
// empty; the classifier substitutes the configured default label when no rule
// produces one.
type Classification struct {
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	SEOTitle       string   `json:"seo_title"`
	SEODescription string   `json:"seo_description"`
	Confidence     float64  `json:"confidence"`
	Method         string   `json:"method"`
	RuleName       string   `json:"rule_name,omitempty"`
}

// CategoryLeaf returns the last segment of a ">"-delimited category path.
func CategoryLeaf(category string) string {
	if idx := strings.LastIndex(category, ">"); idx >= 0 {
		return strings.TrimSpace(category[idx+1:])
	}
	return strings.TrimSpace(category)
}
