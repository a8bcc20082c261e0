// Package risk classifies the blast radius of a diff by matching changed
// file paths against configured glob rule sets, and consults security
// overrides that can force a commit to HIGH regardless of its diff.
package risk

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/types"
)

// rule is one compiled path pattern. Patterns with a leading **/ carry a
// second compiled variant with the prefix stripped, so they also match at
// the repository root the way gitignore patterns do.
type rule struct {
	pattern  string
	globs    []glob.Glob
	baseOnly bool
}

// Classifier maps changed file paths onto a risk class.
type Classifier struct {
	high   []rule
	medium []rule
}

// NewClassifier compiles the high/medium path rules from cfg.
func NewClassifier(cfg *config.ReleaseGovernorConfig) (*Classifier, error) {
	high, err := compileRules(cfg.HighRiskPaths)
	if err != nil {
		return nil, fmt.Errorf("risk: high_risk_paths: %w", err)
	}
	medium, err := compileRules(cfg.MediumRiskPaths)
	if err != nil {
		return nil, fmt.Errorf("risk: medium_risk_paths: %w", err)
	}
	return &Classifier{high: high, medium: medium}, nil
}

func compileRules(patterns []string) ([]rule, error) {
	rules := make([]rule, 0, len(patterns))
	for _, p := range patterns {
		variants := []string{p}
		// **/*.tf must also cover a root-level main.tf, so the **/ prefix
		// is treated as optional.
		if rest := strings.TrimPrefix(p, "**/"); rest != p {
			variants = append(variants, rest)
		}
		globs := make([]glob.Glob, 0, len(variants))
		for _, v := range variants {
			g, err := glob.Compile(v)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
			}
			globs = append(globs, g)
		}
		rules = append(rules, rule{
			pattern: p,
			globs:   globs,
			// Patterns without a slash match any path component, like a
			// bare name in a gitignore file.
			baseOnly: !strings.Contains(p, "/"),
		})
	}
	return rules, nil
}

func (r rule) matches(file string) bool {
	for _, g := range r.globs {
		if g.Match(file) {
			return true
		}
		if r.baseOnly && g.Match(path.Base(file)) {
			return true
		}
	}
	return false
}

func matchAny(rules []rule, file string) bool {
	for _, r := range rules {
		if r.matches(file) {
			return true
		}
	}
	return false
}

// Classify returns the risk class for a set of changed files. An empty diff
// is LOW. Any file matching a high-risk pattern makes the whole diff HIGH;
// HIGH is terminal, no later file can downgrade it. Otherwise any
// medium-risk match yields MEDIUM, and no match at all yields LOW.
func (c *Classifier) Classify(files []string) types.RiskClass {
	class := types.RiskLow
	for _, f := range files {
		f = path.Clean(f)
		if matchAny(c.high, f) {
			return types.RiskHigh
		}
		if matchAny(c.medium, f) {
			class = types.RiskMedium
		}
	}
	return class
}

// RiskPaths returns the sorted subset of files that drove the
// classification, for diagnostics. For a HIGH diff these are the high-rule
// matches; for MEDIUM, the medium-rule matches; for LOW, nothing.
func (c *Classifier) RiskPaths(files []string) []string {
	class := c.Classify(files)
	var rules []rule
	switch class {
	case types.RiskHigh:
		rules = c.high
	case types.RiskMedium:
		rules = c.medium
	default:
		return nil
	}
	var matched []string
	for _, f := range files {
		if matchAny(rules, path.Clean(f)) {
			matched = append(matched, f)
		}
	}
	sort.Strings(matched)
	return matched
}
