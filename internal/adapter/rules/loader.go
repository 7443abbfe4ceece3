// Package rules loads operator-controlled safety rules from a YAML file.
// The file extends (or overrides) the built-in blocklists and row limits and
// optionally declares column masks applied to results.
package rules

import (
	"fmt"
	"os"

	"github.com/guillermoBallester/aqueduct/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// File is the YAML shape:
//
//	blocked_keywords: [INSERT, DROP, ...]      # omit to keep built-ins
//	blocked_tables: [query_logs, users, ...]   # omit to keep built-ins
//	extra_blocked_tables: [salaries]           # appended to built-ins
//	default_row_limit: 500
//	max_row_limit: 5000
//	masks:
//	  email: partial
//	  ssn: redact
type File struct {
	BlockedKeywords    []string                   `yaml:"blocked_keywords"`
	BlockedTables      []string                   `yaml:"blocked_tables"`
	ExtraBlockedTables []string                   `yaml:"extra_blocked_tables"`
	DefaultRowLimit    *int                       `yaml:"default_row_limit"`
	MaxRowLimit        *int                       `yaml:"max_row_limit"`
	Masks              map[string]domain.MaskType `yaml:"masks"`
}

// Load reads the YAML file and merges it over the given base rule set
// (typically the built-in defaults plus environment additions).
// Returns the resulting RuleSet and column masks.
func Load(path string, base domain.RuleSet) (domain.RuleSet, map[string]domain.MaskType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RuleSet{}, nil, fmt.Errorf("reading rules file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.RuleSet{}, nil, fmt.Errorf("parsing rules YAML: %w", err)
	}

	rs, err := merge(f, base)
	if err != nil {
		return domain.RuleSet{}, nil, fmt.Errorf("validating rules file: %w", err)
	}

	for col, m := range f.Masks {
		if col == "" {
			return domain.RuleSet{}, nil, fmt.Errorf("validating rules file: masks contains an empty column name")
		}
		if !m.Valid() {
			return domain.RuleSet{}, nil, fmt.Errorf("validating rules file: masks[%q]: invalid value %q (allowed: redact, hash, partial, null)", col, m)
		}
	}

	return rs, f.Masks, nil
}

func merge(f File, base domain.RuleSet) (domain.RuleSet, error) {
	keywords := keys(base.BlockedKeywords)
	if f.BlockedKeywords != nil {
		keywords = f.BlockedKeywords
	}

	tables := keys(base.BlockedTables)
	if f.BlockedTables != nil {
		tables = f.BlockedTables
	}
	tables = append(tables, f.ExtraBlockedTables...)

	defaultLimit := base.DefaultRowLimit
	if f.DefaultRowLimit != nil {
		defaultLimit = *f.DefaultRowLimit
	}
	maxLimit := base.MaxRowLimit
	if f.MaxRowLimit != nil {
		maxLimit = *f.MaxRowLimit
	}

	if defaultLimit <= 0 {
		return domain.RuleSet{}, fmt.Errorf("default_row_limit must be a positive integer, got %d", defaultLimit)
	}
	if maxLimit <= 0 {
		return domain.RuleSet{}, fmt.Errorf("max_row_limit must be a positive integer, got %d", maxLimit)
	}
	if defaultLimit > maxLimit {
		return domain.RuleSet{}, fmt.Errorf("default_row_limit (%d) must not exceed max_row_limit (%d)", defaultLimit, maxLimit)
	}

	return domain.NewRuleSet(keywords, tables, defaultLimit, maxLimit), nil
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
