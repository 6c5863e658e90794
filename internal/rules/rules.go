// Package rules implements keyword-based expense categorization.
//
// Categories are tested in a fixed enumeration order and the first rule
// whose keyword appears in the lower-cased description wins; a record
// matching nothing is assigned core.CategoryOther.
package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"spendscope/internal/core"
)

// CategoryRule owns a category name and the lowercase keywords that map a
// description to it.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Table is an ordered list of category rules. Order matters: it is the
// tie-break when a description matches keywords from several categories.
type Table []CategoryRule

// DefaultTable returns the seed rule set. Extend by adding entries here or
// by supplying a rules YAML file; nothing else needs to change.
func DefaultTable() Table {
	return Table{
		{Name: "Food", Keywords: []string{"coffee", "restaurant", "cafe", "lunch", "dinner", "grocery"}},
		{Name: "Travel", Keywords: []string{"flight", "uber", "taxi", "hotel", "train"}},
		{Name: "Utilities", Keywords: []string{"electric", "water", "internet", "bill"}},
		{Name: "Entertainment", Keywords: []string{"movie", "concert", "game", "ticket"}},
	}
}

// LoadTable reads a rule table from a YAML file holding an ordered list of
// {name, keywords} entries:
//
//	- name: Food
//	  keywords: [coffee, restaurant]
//	- name: Travel
//	  keywords: [flight, hotel]
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return t, nil
}

func (t Table) validate() error {
	seen := make(map[string]bool, len(t))
	for i, rule := range t {
		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("rule %d has an empty category name", i)
		}
		if seen[rule.Name] {
			return fmt.Errorf("duplicate category %q", rule.Name)
		}
		seen[rule.Name] = true
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("category %q has no keywords", rule.Name)
		}
	}
	return nil
}

// Categories returns the category names in rule order.
func (t Table) Categories() []string {
	names := make([]string, len(t))
	for i, rule := range t {
		names[i] = rule.Name
	}
	return names
}

// Categorize maps a free-text description to a category. An empty
// description matches nothing and yields core.CategoryOther.
func (t Table) Categorize(description string) string {
	desc := strings.ToLower(description)
	for _, rule := range t {
		for _, kw := range rule.Keywords {
			if strings.Contains(desc, kw) {
				return rule.Name
			}
		}
	}
	return core.CategoryOther
}

// Apply re-categorizes every expense in place from its description. This
// intentionally overwrites any category supplied in the input file.
func (t Table) Apply(expenses []core.Expense) {
	for i := range expenses {
		expenses[i].Category = t.Categorize(expenses[i].Description)
	}
}
