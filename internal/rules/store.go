// Package rules manages the ordered classification rule list backed by a
// YAML file. Callers hold an injected *Store reference; there is no ambient
// global rule state.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrDuplicate    = errors.New("rule name already exists")
)

// Compiled pairs a rule with its regex, compiled once at load time. Keyword
// rules carry a nil Regexp.
type Compiled struct {
	domain.Rule
	Regexp *regexp.Regexp
}

type ruleFile struct {
	Rules []domain.Rule `yaml:"rules"`
}

// Store holds the ordered rule list loaded from a YAML file. Load and Reload
// swap the list atomically; readers always see a consistent snapshot.
type Store struct {
	mu       sync.RWMutex
	path     string
	compiled []Compiled
	gen      uint64
	logger   logger.Logger
}

// Generation increments whenever the rule list changes, letting consumers
// cache derived structures (the keyword automaton) per snapshot.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// NewStore creates a store for the given rule file. Call Load before use.
func NewStore(path string, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{path: path, logger: log}
}

// Load reads and validates the rule file, replacing the in-memory list only
// when the whole file parses cleanly.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read rule file %s: %w", s.path, err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse rule file: %w", err)
	}

	compiled, err := compileAll(file.Rules)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.compiled = compiled
	s.gen++
	s.mu.Unlock()

	s.logger.Info("rules loaded", logger.String("path", s.path), logger.Int("count", len(compiled)))
	return nil
}

// Reload re-reads the rule file in place.
func (s *Store) Reload() error {
	return s.Load()
}

// Compiled returns the current rule snapshot in declared order.
func (s *Store) Compiled() []Compiled {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Compiled, len(s.compiled))
	copy(out, s.compiled)
	return out
}

// List returns the current rules without their compiled form.
func (s *Store) List() []domain.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Rule, len(s.compiled))
	for i := range s.compiled {
		out[i] = s.compiled[i].Rule
	}
	return out
}

// Add validates and appends a rule, then persists the file.
func (s *Store) Add(rule domain.Rule) error {
	compiled, err := compile(rule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.compiled {
		if s.compiled[i].Name == rule.Name {
			return fmt.Errorf("%w: %s", ErrDuplicate, rule.Name)
		}
	}
	s.compiled = append(s.compiled, compiled)
	if err := s.persistLocked(); err != nil {
		s.compiled = s.compiled[:len(s.compiled)-1]
		return err
	}
	s.gen++
	s.logger.Info("rule added", logger.String("rule", rule.Name))
	return nil
}

// Remove deletes a rule by name, then persists the file.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.compiled {
		if s.compiled[i].Name == name {
			removed := s.compiled[i]
			s.compiled = append(s.compiled[:i], s.compiled[i+1:]...)
			if err := s.persistLocked(); err != nil {
				s.compiled = append(s.compiled[:i], append([]Compiled{removed}, s.compiled[i:]...)...)
				return err
			}
			s.gen++
			s.logger.Info("rule removed", logger.String("rule", name))
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRuleNotFound, name)
}

// persistLocked writes the current list back to the rule file. Caller holds
// the write lock.
func (s *Store) persistLocked() error {
	file := ruleFile{Rules: make([]domain.Rule, len(s.compiled))}
	for i := range s.compiled {
		file.Rules[i] = s.compiled[i].Rule
	}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshal rule file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write rule file %s: %w", s.path, err)
	}
	return nil
}

func compileAll(raw []domain.Rule) ([]Compiled, error) {
	compiled := make([]Compiled, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i := range raw {
		if seen[raw[i].Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, raw[i].Name)
		}
		seen[raw[i].Name] = true
		c, err := compile(raw[i])
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}
	return compiled, nil
}

// compile validates one rule. Rules are data-driven tagged variants: a rule
// carries keywords or a regex pattern, not both and not neither.
func compile(rule domain.Rule) (Compiled, error) {
	if rule.Name == "" {
		return Compiled{}, errors.New("rule name is required")
	}
	if rule.Category == "" {
		return Compiled{}, fmt.Errorf("rule %s: category is required", rule.Name)
	}
	hasKeywords := len(rule.Keywords) > 0
	if hasKeywords == rule.IsRegex() {
		return Compiled{}, fmt.Errorf("rule %s: exactly one of keywords or pattern is required", rule.Name)
	}
	if rule.Confidence < 0 || rule.Confidence > 1 {
		return Compiled{}, fmt.Errorf("rule %s: confidence must be within [0,1]", rule.Name)
	}

	out := Compiled{Rule: rule}
	if rule.IsRegex() {
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return Compiled{}, fmt.Errorf("rule %s: invalid pattern: %w", rule.Name, err)
		}
		out.Regexp = re
	}
	return out, nil
}
