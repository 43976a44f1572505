package filter

import "testing"

func TestMatchesGlob(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"exact match", "/api/users", "/api/users", true},
		{"exact mismatch", "/api/users", "/api/orders", false},
		{"single segment wildcard", "/api/*/profile", "/api/users/profile", true},
		{"single segment wildcard does not cross segments", "/api/*/profile", "/api/users/extra/profile", false},
		{"double star matches zero segments", "/api/**", "/api", true},
		{"double star matches one segment", "/api/**", "/api/users", true},
		{"double star matches many segments", "/api/**", "/api/users/1/profile", true},
		{"double star prefix and suffix", "/api/**/profile", "/api/users/1/profile", true},
		{"double star prefix and suffix no match", "/api/**/profile", "/api/users/1/settings", false},
		{"partial segment wildcard", "/assets/*.png", "/assets/logo.png", true},
		{"partial segment wildcard mismatch extension", "/assets/*.png", "/assets/logo.jpg", false},
		{"root pattern", "/", "/", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := matchesGlob(tc.pattern, tc.path)
			if got != tc.want {
				t.Fatalf("matchesGlob(%q, %q) = %v, want %v", tc.pattern, tc.path, got, tc.want)
			}
		})
	}
}

func TestMatcherExcludeWinsOverInclude(t *testing.T) {
	m := NewMatcher([]string{"/api/**"}, []string{"/api/health"})

	if !m.Match("/api/users") {
		t.Fatal("expected /api/users to match")
	}
	if m.Match("/api/health") {
		t.Fatal("expected /api/health to be excluded")
	}
}

func TestMatcherEmptyIncludesMatchesEverything(t *testing.T) {
	m := NewMatcher(nil, []string{"/internal/**"})

	if !m.Match("/anything") {
		t.Fatal("expected an empty include list to match everything")
	}
	if m.Match("/internal/metrics") {
		t.Fatal("expected /internal/metrics to be excluded")
	}
}

func TestMatcherNonMatchingIncludeExcludesPath(t *testing.T) {
	m := NewMatcher([]string{"/api/**"}, nil)
	if m.Match("/static/logo.png") {
		t.Fatal("expected a path outside every include pattern to not match")
	}
}
