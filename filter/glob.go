package filter

import "strings"

// matchesGlob reports whether path matches an ant-style pattern: `*`
// matches within one path segment, `**` matches across segments
// (including zero). No third-party glob library in the example pack
// implements ant-style `**` path matching (path.Match and filepath.Match
// only support single-segment `*`), so this is a small hand-rolled
// segment matcher.
func matchesGlob(pattern, path string) bool {
	patternSegs := splitPath(pattern)
	pathSegs := splitPath(path)
	return matchSegments(patternSegs, pathSegs)
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	head := pattern[0]
	if head == "**" {
		if matchSegments(pattern[1:], path) {
			return true
		}
		if len(path) == 0 {
			return false
		}
		return matchSegments(pattern, path[1:])
	}
	if len(path) == 0 {
		return false
	}
	if !matchSegment(head, path[0]) {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}

func matchSegment(pattern, segment string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == segment
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(segment, parts[0]) {
		return false
	}
	segment = segment[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(segment, part)
		if idx < 0 {
			return false
		}
		segment = segment[idx+len(part):]
	}
	last := parts[len(parts)-1]
	return strings.HasSuffix(segment, last) && len(segment) >= len(last)
}

// Matcher decides inclusion for a path per §4.9: exclude takes
// precedence over include; an empty include list means "match
// everything".
type Matcher struct {
	includes []string
	excludes []string
}

// NewMatcher builds a Matcher from ant-style include/exclude patterns.
func NewMatcher(includes, excludes []string) *Matcher {
	return &Matcher{includes: includes, excludes: excludes}
}

// Match reports whether path should be intercepted by the filter.
func (m *Matcher) Match(path string) bool {
	for _, pattern := range m.excludes {
		if matchesGlob(pattern, path) {
			return false
		}
	}
	if len(m.includes) == 0 {
		return true
	}
	for _, pattern := range m.includes {
		if matchesGlob(pattern, path) {
			return true
		}
	}
	return false
}
