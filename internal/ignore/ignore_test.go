package ignore_test

import (
	"testing"

	"github.com/temirov/revscope/internal/ignore"
)

func TestMatches(t *testing.T) {
	testCases := []struct {
		name     string
		patterns []string
		path     string
		expected bool
	}{
		{name: "empty rule set", patterns: nil, path: "src/main.go", expected: false},
		{name: "whitespace pattern", patterns: []string{"   "}, path: "src/main.go", expected: false},
		{name: "suffix glob at root", patterns: []string{"*.lock"}, path: "yarn.lock", expected: true},
		{name: "suffix glob at depth", patterns: []string{"*.lock"}, path: "sub/dir/yarn.lock", expected: true},
		{name: "bare name hides directory contents", patterns: []string{"node_modules"}, path: "node_modules/x.js", expected: true},
		{name: "bare name hides nested directory", patterns: []string{"out"}, path: "build/out/app.js", expected: true},
		{name: "bare name as file", patterns: []string{"out"}, path: "src/out", expected: true},
		{name: "segment substring does not match", patterns: []string{"out"}, path: "src/output/app.js", expected: false},
		{name: "full path glob", patterns: []string{"src/*.ts"}, path: "src/app.ts", expected: true},
		{name: "full path glob wrong depth", patterns: []string{"src/*.ts"}, path: "src/nested/app.ts", expected: false},
		{name: "doublestar glob", patterns: []string{"src/**/*.ts"}, path: "src/nested/deep/app.ts", expected: true},
		{name: "case sensitive", patterns: []string{"README.md"}, path: "readme.md", expected: false},
		{name: "dot entries included", patterns: []string{".env"}, path: "config/.env", expected: true},
		{name: "malformed glob never matches", patterns: []string{"[a-"}, path: "a", expected: false},
		{name: "malformed glob still matches as segment", patterns: []string{"[a-"}, path: "src/[a-/file.go", expected: true},
		{name: "backslash path normalized", patterns: []string{"node_modules"}, path: "pkg\\node_modules\\x.js", expected: true},
		{name: "pattern list first match wins", patterns: []string{"*.tmp", "dist"}, path: "dist/bundle.js", expected: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			ruleSet := ignore.Compile(testCase.patterns)
			result := ruleSet.Matches(testCase.path)
			if result != testCase.expected {
				t.Fatalf("expected %v for path %q with patterns %v, got %v", testCase.expected, testCase.path, testCase.patterns, result)
			}
		})
	}
}

func TestCompileDropsBlankPatterns(t *testing.T) {
	ruleSet := ignore.Compile([]string{"", "  ", "*.lock", "\t", " dist "})
	if ruleSet.Len() != 2 {
		t.Fatalf("expected 2 active patterns, got %d", ruleSet.Len())
	}
	activePatterns := ruleSet.Patterns()
	if activePatterns[0] != "*.lock" || activePatterns[1] != "dist" {
		t.Fatalf("unexpected active patterns: %v", activePatterns)
	}
}

func TestMatchesTrimsPatternBeforeSegmentComparison(t *testing.T) {
	ruleSet := ignore.Compile([]string{"  node_modules  "})
	if !ruleSet.Matches("node_modules/x.js") {
		t.Fatalf("expected trimmed pattern to match segment")
	}
}

func TestNilRuleSetMatchesNothing(t *testing.T) {
	var ruleSet *ignore.RuleSet
	if ruleSet.Matches("any/path") {
		t.Fatalf("nil rule set must not match")
	}
	if ruleSet.Len() != 0 {
		t.Fatalf("nil rule set must report zero length")
	}
}
