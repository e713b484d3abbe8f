// Package route decides which request paths are reachable without
// authentication.
//
// Patterns are globs over '/'-separated segments: '*' matches within one
// segment and '**' across segments. A pattern ending in "/**" also matches
// the bare prefix, so "/swagger-ui/**" matches "/swagger-ui". Patterns are
// tried in order and the first match wins.
package route

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPublicRoutes lists the routes reachable without a credential.
var DefaultPublicRoutes = []string{
	"/auth/login",
	"/healthz",
	"/actuator/health",
	"/metrics",
	"/v3/api-docs/**",
	"/swagger-ui/**",
	"/swagger-ui.html",
	"/ws/status",
	"/ws/connect",
}

// entry is one compiled pattern.
type entry struct {
	pattern string
	globs   []glob.Glob
}

// Matcher is an ordered list of compiled public-route patterns. It is
// immutable after New and safe for concurrent use.
type Matcher struct {
	entries []entry
}

// New compiles patterns. Every pattern must start with '/'.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{entries: make([]entry, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("public route %q must start with '/'", p)
		}

		sources := []string{p}
		if prefix, ok := strings.CutSuffix(p, "/**"); ok && prefix != "" {
			sources = append(sources, prefix)
		}

		e := entry{pattern: p}
		for _, src := range sources {
			g, err := glob.Compile(src, '/')
			if err != nil {
				return nil, fmt.Errorf("compiling public route %q: %w", p, err)
			}
			e.globs = append(e.globs, g)
		}
		m.entries = append(m.entries, e)
	}
	return m, nil
}

// MustNew is like New but panics on an invalid pattern.
func MustNew(patterns []string) *Matcher {
	m, err := New(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

// Match returns the first pattern matching path.
func (m *Matcher) Match(path string) (string, bool) {
	path = CleanPath(path)
	for _, e := range m.entries {
		for _, g := range e.globs {
			if g.Match(path) {
				return e.pattern, true
			}
		}
	}
	return "", false
}

// IsPublic reports whether path matches any public pattern.
func (m *Matcher) IsPublic(path string) bool {
	_, ok := m.Match(path)
	return ok
}

// Patterns returns the configured patterns in order.
func (m *Matcher) Patterns() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.pattern
	}
	return out
}

// CleanPath collapses runs of '/' into one. It does not resolve "." or ".."
// segments, so the matcher and the router always see the same path.
func CleanPath(path string) string {
	if !strings.Contains(path, "//") {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}
