// Package ignore evaluates ignore patterns against relative paths. A path is
// hidden when any pattern matches it as a glob over the full path or equals
// one of its segments exactly.
package ignore

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/temirov/revscope/internal/utils"
)

const anyDepthPrefix = "**/"

// RuleSet holds trimmed, non-empty ignore patterns in declaration order.
type RuleSet struct {
	patterns []string
}

// Compile builds a RuleSet from raw pattern strings. Empty and whitespace-only
// patterns are dropped. Compilation never fails; a malformed glob stays in the
// set and participates only in segment comparison.
func Compile(patterns []string) *RuleSet {
	trimmedPatterns := make([]string, 0, len(patterns))
	for _, patternValue := range patterns {
		trimmedPattern := strings.TrimSpace(patternValue)
		if trimmedPattern == "" {
			continue
		}
		trimmedPatterns = append(trimmedPatterns, trimmedPattern)
	}
	return &RuleSet{patterns: trimmedPatterns}
}

// Len returns the number of active patterns.
func (ruleSet *RuleSet) Len() int {
	if ruleSet == nil {
		return 0
	}
	return len(ruleSet.patterns)
}

// Patterns returns a copy of the active patterns in declaration order.
func (ruleSet *RuleSet) Patterns() []string {
	if ruleSet == nil {
		return nil
	}
	return append([]string{}, ruleSet.patterns...)
}

// Matches reports whether the candidate path is hidden by any pattern. The
// path is normalized to forward slashes before evaluation. Matching is
// case-sensitive and treats dot entries like any other name. An empty rule
// set matches nothing.
func (ruleSet *RuleSet) Matches(pathValue string) bool {
	if ruleSet == nil || len(ruleSet.patterns) == 0 {
		return false
	}
	normalizedPath := utils.NormalizeToSlash(pathValue)
	pathSegments := strings.Split(normalizedPath, "/")
	for _, patternValue := range ruleSet.patterns {
		if patternMatchesPath(patternValue, normalizedPath, pathSegments) {
			return true
		}
	}
	return false
}

// patternMatchesPath evaluates one pattern against the normalized path. Bare
// patterns without a separator additionally match at any depth.
func patternMatchesPath(patternValue string, normalizedPath string, pathSegments []string) bool {
	if globMatches(patternValue, normalizedPath) {
		return true
	}
	if !strings.Contains(patternValue, "/") && globMatches(anyDepthPrefix+patternValue, normalizedPath) {
		return true
	}
	for _, pathSegment := range pathSegments {
		if pathSegment == patternValue {
			return true
		}
	}
	return false
}

// globMatches evaluates a doublestar glob. A malformed pattern reports no
// match rather than an error.
func globMatches(patternValue string, candidatePath string) bool {
	matched, matchError := doublestar.Match(patternValue, candidatePath)
	if matchError != nil {
		return false
	}
	return matched
}
