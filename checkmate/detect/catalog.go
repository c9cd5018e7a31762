// Package detect applies a data-driven catalog of regex detection rules to
// submitted code. The catalog is external input: an embedded default ships
// with the service, and deployments can point at a YAML file or an HTTP
// endpoint instead.
package detect

import (
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/CheckMateScan/go-api/checkmate/severity"
	"gopkg.in/yaml.v2"
)

//go:embed rules.yaml
var defaultCatalog []byte

// Rule is one detection rule from the catalog.
type Rule struct {
	RuleID          string   `yaml:"rule_id"`
	Name            string   `yaml:"name"`
	Pattern         string   `yaml:"pattern"`
	Exclude         string   `yaml:"exclude,omitempty"`
	Severity        string   `yaml:"severity"`
	Message         string   `yaml:"message"`
	Suggestion      string   `yaml:"suggestion"`
	Languages       []string `yaml:"languages"`
	CaseInsensitive bool     `yaml:"case_insensitive,omitempty"`

	re      *regexp.Regexp
	exclude *regexp.Regexp
}

// AppliesTo reports whether the rule covers the given language.
func (r *Rule) AppliesTo(language string) bool {
	if len(r.Languages) == 0 {
		return true
	}
	for _, l := range r.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// Catalog is a compiled set of detection rules.
type Catalog struct {
	Rules []Rule `yaml:"rules"`
}

// LoadCatalog loads a rule catalog from the given source: an http(s) URL,
// a file path, or the embedded default when source is empty.
func LoadCatalog(source string) (*Catalog, error) {
	var (
		data []byte
		err  error
	)

	switch {
	case source == "":
		data = defaultCatalog
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		data, err = fetchCatalog(source)
		if err != nil {
			return nil, err
		}
	default:
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read rule catalog %s: %w", source, err)
		}
	}

	return parseCatalog(data)
}

// fetchCatalog retrieves a catalog document over HTTP.
func fetchCatalog(url string) ([]byte, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch rule catalog %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rule catalog %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rule catalog body: %w", err)
	}
	return data, nil
}

// parseCatalog unmarshals and compiles a catalog, rejecting rules with
// invalid severities, duplicate IDs, or patterns that do not compile.
func parseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse rule catalog: %w", err)
	}
	if len(catalog.Rules) == 0 {
		return nil, fmt.Errorf("rule catalog contains no rules")
	}

	seen := make(map[string]bool, len(catalog.Rules))
	for i := range catalog.Rules {
		rule := &catalog.Rules[i]
		if rule.RuleID == "" {
			return nil, fmt.Errorf("rule %d: missing rule_id", i)
		}
		if seen[rule.RuleID] {
			return nil, fmt.Errorf("duplicate rule_id %s", rule.RuleID)
		}
		seen[rule.RuleID] = true

		if !severity.IsValid(rule.Severity) {
			return nil, fmt.Errorf("rule %s: invalid severity %q", rule.RuleID, rule.Severity)
		}

		pattern := rule.Pattern
		if rule.CaseInsensitive && !strings.HasPrefix(pattern, "(?i)") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: compile pattern: %w", rule.RuleID, err)
		}
		rule.re = re

		if rule.Exclude != "" {
			exclude, err := regexp.Compile(rule.Exclude)
			if err != nil {
				return nil, fmt.Errorf("rule %s: compile exclude: %w", rule.RuleID, err)
			}
			rule.exclude = exclude
		}
	}

	return &catalog, nil
}
