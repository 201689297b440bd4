package watcher

import (
	"path/filepath"
	"strings"
)

// Patterns matches paths against shell glob patterns, case-insensitively.
// A pattern matches if it matches either the base name or the full path,
// so "*.cpp" selects every C++ file in the tree and "*/include/*.h" selects
// headers under any include directory.
type Patterns struct {
	globs []string
}

// NewPatterns builds a matcher. Invalid globs never match.
func NewPatterns(globs []string) *Patterns {
	p := &Patterns{globs: make([]string, 0, len(globs))}
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		p.globs = append(p.globs, strings.ToLower(filepath.ToSlash(g)))
	}
	return p
}

// Match reports whether path is selected by any pattern.
func (p *Patterns) Match(path string) bool {
	full := strings.ToLower(filepath.ToSlash(path))
	base := strings.ToLower(filepath.Base(path))
	for _, g := range p.globs {
		if ok, _ := filepath.Match(g, base); ok {
			return true
		}
		if ok, _ := filepath.Match(g, full); ok {
			return true
		}
		if strings.Contains(g, "/") && matchSuffix(g, full) {
			return true
		}
	}
	return false
}

// matchSuffix tries the pattern against every trailing run of path segments,
// which lets a relative pattern like "src/*.c" match "/home/me/proj/src/a.c".
func matchSuffix(glob, full string) bool {
	for i := 0; i < len(full); i++ {
		if full[i] != '/' {
			continue
		}
		if ok, _ := filepath.Match(glob, full[i+1:]); ok {
			return true
		}
	}
	return false
}

// Globs returns the normalized patterns.
func (p *Patterns) Globs() []string {
	out := make([]string, len(p.globs))
	copy(out, p.globs)
	return out
}
