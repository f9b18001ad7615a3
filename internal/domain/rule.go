package domain

// Rule is one ordered classification rule. A rule carries either a keyword
// list or a regex pattern, never both; the rules package enforces that at
// load time. Rules are evaluated in declared order and the first match wins.
type Rule struct {
	Name       string   `json:"name"                 yaml:"name"`
	Category   string   `json:"category"             yaml:"category"`
	Keywords   []string `json:"keywords,omitempty"   yaml:"keywords,omitempty"`
	Pattern    string   `json:"pattern,omitempty"    yaml:"pattern,omitempty"`
	ExtraTags  []string `json:"extra_tags,omitempty" yaml:"extra_tags,omitempty"`
	Confidence float64  `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// IsRegex reports whether the rule matches via its regex pattern rather than
// its keyword list.
func (r *Rule) IsRegex() bool {
	return r.Pattern != ""
}

// Default confidence values.
const (
	// DefaultRuleConfidence applies when a rule does not declare a confidence.
	DefaultRuleConfidence = 0.85
	// CatchAllConfidence is the confidence of the implicit catch-all rule.
	CatchAllConfidence = 0.2
	// CatchAllRuleName identifies the implicit lowest-priority rule.
	CatchAllRuleName = "catch-all"
)
