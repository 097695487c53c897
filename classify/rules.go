package classify

import (
	"context"
	"strings"
)

// Rule routes text containing any of its keywords to a collection. Keyword
// matching is a case-insensitive substring check.
type Rule struct {
	Collection string
	Keywords   []string
	// CreateIfMissing advises the caller to create the collection on first use.
	CreateIfMissing bool
}

// RuleOracle classifies text with an ordered list of keyword rules. The
// first matching rule wins, so order rules from specific to general. It is
// deterministic, needs no network, and serves offline runs and tests.
type RuleOracle struct {
	rules    []Rule
	fallback string
}

// RuleOption configures a RuleOracle.
type RuleOption func(*RuleOracle)

// WithFallbackCollection routes unmatched text into the named collection
// instead of returning ErrNoMatch.
func WithFallbackCollection(name string) RuleOption {
	return func(o *RuleOracle) {
		o.fallback = name
	}
}

// NewRuleOracle creates a keyword-rule oracle.
func NewRuleOracle(rules []Rule, opts ...RuleOption) *RuleOracle {
	oracle := &RuleOracle{rules: rules}
	for _, opt := range opts {
		opt(oracle)
	}
	return oracle
}

// Classify matches the text against the rules in order.
func (o *RuleOracle) Classify(_ context.Context, text string) (*Classification, error) {
	lowered := strings.ToLower(text)

	for _, rule := range o.rules {
		for _, keyword := range rule.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				return &Classification{
					CollectionName:         rule.Collection,
					ShouldCreateCollection: rule.CreateIfMissing,
					ExtractedFields:        map[string]string{"matched_keyword": keyword},
					Confidence:             1.0,
				}, nil
			}
		}
	}

	if o.fallback != "" {
		return &Classification{
			CollectionName:         o.fallback,
			ShouldCreateCollection: true,
		}, nil
	}
	return nil, ErrNoMatch
}
