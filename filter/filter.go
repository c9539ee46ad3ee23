// Package filter decides which paths a deploy never touches.
package filter

import (
	"path"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Set is an ordered list of exclusion patterns using gitignore syntax, which
// agrees with rsync for the patterns deploys use: a pattern without a slash
// matches a basename at any depth, a trailing slash restricts it to directories,
// and a matched directory excludes everything beneath it.
type Set struct {
	patterns []string
	matcher  *ignore.GitIgnore
}

// New compiles patterns into a Set. Blank lines and comments are ignored.
func New(patterns ...string) *Set {
	kept := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		kept = append(kept, p)
	}
	return &Set{
		patterns: kept,
		matcher:  ignore.CompileIgnoreLines(kept...),
	}
}

// Patterns returns a copy of the patterns in order.
func (s *Set) Patterns() []string {
	return append([]string(nil), s.patterns...)
}

// Excluded reports whether rel, a path relative to the sync root, is excluded.
func (s *Set) Excluded(rel string, isDir bool) bool {
	if s == nil || len(s.patterns) == 0 {
		return false
	}
	rel = strings.TrimPrefix(path.Clean(filepath.ToSlash(rel)), "/")
	if rel == "." || rel == "" {
		return false
	}
	if isDir {
		rel += "/"
	}
	return s.matcher.MatchesPath(rel)
}
