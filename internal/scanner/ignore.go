package scanner

import (
	"foldersync/internal/logger"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

type ignoreMatcher struct {
	patterns []string
}

func newIgnoreMatcher(patterns []string) *ignoreMatcher {
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			logger.Log.Warn("invalid ignore pattern, skipping",
				zap.String("pattern", p))
			continue
		}
		valid = append(valid, p)
	}

	return &ignoreMatcher{patterns: valid}
}

// match reports whether the slash separated relative path, or any of its
// components, matches one of the patterns.
func (m *ignoreMatcher) match(rel string) bool {
	if m == nil || len(m.patterns) == 0 || rel == "" {
		return false
	}

	parts := strings.Split(rel, "/")
	for _, pattern := range m.patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}

		for _, part := range parts {
			if ok, _ := doublestar.Match(pattern, part); ok {
				return true
			}
		}
	}

	return false
}
