package classifier

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRules is the built-in table, tuned for NZ and AU bank statements.
func DefaultRules() []Rule {
	return []Rule{
		{Category: "Groceries", Keywords: []string{"pak n save", "pak'nsave", "new world", "countdown", "iga", "supervalue", "supermarket", "groceries"}},
		{Category: "Transportation", Keywords: []string{"uber", "taxi", "bp", "shell", "caltex", "fuel", "petrol"}},
		{Category: "Bills & Utilities", Keywords: []string{"electricity", "gas", "water", "internet", "telstra", "optus", "vodafone"}},
		{Category: "Entertainment", Keywords: []string{"netflix", "spotify", "disney", "cinema", "f1"}},
		{Category: "Dining Out", Keywords: []string{"restaurant", "cafe", "coffee", "pizza", "burger", "kfc", "mcdonalds", "subway"}},
		{Category: "Shopping", Keywords: []string{"amazon", "ebay", "store", "retail"}},
		{Category: "Health & Medical", Keywords: []string{"pharmacy", "chemist", "medical", "doctor", "hospital"}},
		{Category: "Income", Keywords: []string{"salary", "wage", "pay", "deposit", "refund"}},
		{Category: "Transfers", Keywords: []string{"transfer", "atm", "withdrawal"}},
	}
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules decodes a YAML rule table:
//
//	rules:
//	  - category: Groceries
//	    keywords: [countdown, new world]
//
// Order in the document is evaluation order.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, errors.New("rule table is empty")
	}
	for i, r := range f.Rules {
		if r.Category == "" {
			return nil, fmt.Errorf("rule %d: category is required", i+1)
		}
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("rule %d (%s): at least one keyword is required", i+1, r.Category)
		}
	}
	return f.Rules, nil
}

// LoadRules reads a YAML rule table from path.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}
