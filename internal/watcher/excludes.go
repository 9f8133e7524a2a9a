package watcher

import (
	"fmt"
	"path/filepath"

	"github.com/moby/patternmatcher"
)

// ExcludeSet decides which relative paths are outside the watch scope,
// such as internal state directories and generated-file churn.
type ExcludeSet struct {
	pm *patternmatcher.PatternMatcher
}

// NewExcludeSet compiles glob patterns into an ExcludeSet. Patterns follow
// dockerignore semantics: "vendor" excludes the directory and everything
// under it, "*.log" excludes by basename anywhere.
func NewExcludeSet(patterns []string) (*ExcludeSet, error) {
	expanded := make([]string, 0, len(patterns)*2)
	for _, p := range patterns {
		expanded = append(expanded, p)
		// Basename patterns like *.log should match at any depth.
		if !filepath.IsAbs(p) && filepath.Base(p) == p {
			expanded = append(expanded, filepath.Join("**", p))
		}
	}

	pm, err := patternmatcher.New(expanded)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	return &ExcludeSet{pm: pm}, nil
}

// Matches reports whether the workspace-relative path is excluded.
func (e *ExcludeSet) Matches(relPath string) bool {
	if e == nil || relPath == "" || relPath == "." {
		return false
	}
	matched, err := e.pm.MatchesOrParentMatches(filepath.ToSlash(relPath))
	if err != nil {
		return false
	}
	return matched
}
