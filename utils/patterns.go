package utils

import (
	"path"
	"regexp"
	"strings"
)

// PatternMatcher selects software names by glob or regex. Matching is case
// insensitive. Patterns that are neither a valid glob nor a valid regex are
// ignored.
type PatternMatcher struct {
	includeGlobs []string
	includeRegex []*regexp.Regexp
	excludeGlobs []string
	excludeRegex []*regexp.Regexp
}

func NewPatternMatcher(includePatterns, excludePatterns []string) *PatternMatcher {
	return &PatternMatcher{
		includeGlobs: lowerAll(includePatterns),
		includeRegex: compileRegex(includePatterns),
		excludeGlobs: lowerAll(excludePatterns),
		excludeRegex: compileRegex(excludePatterns),
	}
}

// HasIncludes reports whether any include pattern was configured.
func (m *PatternMatcher) HasIncludes() bool {
	return m != nil && (len(m.includeGlobs) > 0 || len(m.includeRegex) > 0)
}

func (m *PatternMatcher) ShouldInclude(name string) bool {
	if m == nil {
		return true
	}
	if m.HasIncludes() && !m.matches(name, m.includeGlobs, m.includeRegex) {
		return false
	}
	if (len(m.excludeGlobs) > 0 || len(m.excludeRegex) > 0) && m.matches(name, m.excludeGlobs, m.excludeRegex) {
		return false
	}
	return true
}

func (m *PatternMatcher) matches(name string, globs []string, regexes []*regexp.Regexp) bool {
	lower := strings.ToLower(name)
	for _, pattern := range globs {
		if pattern == lower {
			return true
		}
		matched, _ := path.Match(pattern, lower)
		if matched {
			return true
		}
	}
	for _, re := range regexes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func lowerAll(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, strings.ToLower(p))
	}
	return out
}

func compileRegex(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if re, err := regexp.Compile("(?i)" + pattern); err == nil {
			compiled = append(compiled, re)
		}
	}
	return compiled
}
