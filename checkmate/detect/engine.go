package detect

import (
	"context"
	"strings"
)

// Match is one rule hit on a line of code.
type Match struct {
	RuleID      string
	Severity    string
	Message     string
	Suggestion  string
	LineNumber  int
	LineContent string
	MatchedText string
}

// Suppressor decides whether a match must be suppressed before it becomes a
// flag. The whitelist store implements this.
type Suppressor interface {
	Contains(ctx context.Context, ruleID, matchedText string) (bool, error)
}

// Engine applies a compiled rule catalog to submitted code.
type Engine struct {
	catalog    *Catalog
	suppressor Suppressor
}

// NewEngine creates an engine over the given catalog. suppressor may be nil,
// in which case no matches are suppressed.
func NewEngine(catalog *Catalog, suppressor Suppressor) *Engine {
	return &Engine{catalog: catalog, suppressor: suppressor}
}

// RuleCount returns the number of rules in the engine's catalog.
func (e *Engine) RuleCount() int {
	return len(e.catalog.Rules)
}

// Scan runs every applicable rule against each line of code and returns the
// matches that survive whitelist suppression, in rule-catalog order.
func (e *Engine) Scan(ctx context.Context, code, language string) ([]Match, error) {
	lines := strings.Split(code, "\n")
	matches := make([]Match, 0)

	for i := range e.catalog.Rules {
		rule := &e.catalog.Rules[i]
		if !rule.AppliesTo(language) {
			continue
		}

		for lineIdx, line := range lines {
			matched := rule.re.FindString(line)
			if matched == "" {
				continue
			}
			if rule.exclude != nil && rule.exclude.MatchString(line) {
				continue
			}

			if e.suppressor != nil {
				suppressed, err := e.suppressor.Contains(ctx, rule.RuleID, matched)
				if err != nil {
					return nil, err
				}
				if suppressed {
					continue
				}
			}

			matches = append(matches, Match{
				RuleID:      rule.RuleID,
				Severity:    rule.Severity,
				Message:     rule.Message,
				Suggestion:  rule.Suggestion,
				LineNumber:  lineIdx + 1,
				LineContent: strings.TrimSpace(line),
				MatchedText: matched,
			})
		}
	}

	return matches, nil
}
