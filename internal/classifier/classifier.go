// Package classifier assigns a category to a bank statement line by keyword matching.
//
// Rules are evaluated in table order and keywords in rule order; the first keyword that
// appears as a substring of the lower-cased description wins. Earlier rules therefore take
// precedence over later ones.
package classifier

import (
	"strings"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

const (
	matchConfidence    = 0.9
	positiveConfidence = 0.7

	IncomeCategory        = "Income"
	UncategorizedCategory = "Uncategorized"
)

// Rule maps a category to the keywords that select it.
type Rule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// Classifier is safe for concurrent use; the rule table never changes after New.
type Classifier struct {
	rules []Rule
}

// New copies rules into a classifier. Keywords are lower-cased and empty ones dropped;
// surrounding spaces are kept and take part in the match.
func New(rules []Rule) *Classifier {
	c := &Classifier{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToLower(kw)
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		c.rules = append(c.rules, Rule{Category: strings.TrimSpace(r.Category), Keywords: kws})
	}
	return c
}

// NewDefault returns a classifier over DefaultRules.
func NewDefault() *Classifier {
	return New(DefaultRules())
}

// Rules returns a copy of the rule table in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = Rule{Category: r.Category, Keywords: append([]string(nil), r.Keywords...)}
	}
	return out
}

// Classify never fails. Unmatched positive amounts fall back to Income, everything else to
// Uncategorized with zero confidence.
func (c *Classifier) Classify(description string, amount decimal.Decimal) core.ClassificationResult {
	desc := strings.ToLower(description)
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(desc, kw) {
				return core.ClassificationResult{
					Category:   r.Category,
					Confidence: matchConfidence,
					Reason:     "Matched: " + kw,
				}
			}
		}
	}
	if amount.IsPositive() {
		return core.ClassificationResult{
			Category:   IncomeCategory,
			Confidence: positiveConfidence,
			Reason:     "Positive amount",
		}
	}
	return core.ClassificationResult{
		Category:   UncategorizedCategory,
		Confidence: 0,
		Reason:     "No match",
	}
}
