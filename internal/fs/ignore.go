package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// defaultIgnorePatterns are always applied, whatever the configuration.
var defaultIgnorePatterns = []string{IgnoreFileName}

type patternKind uint8

const (
	// matchBase matches the last path element.
	matchBase patternKind = iota
	// matchPath matches the whole path relative to the tree root.
	matchPath
	// matchDir matches any path element that is a directory, so
	// everything below it is ignored.
	matchDir
)

type ignorePattern struct {
	pattern string
	kind    patternKind
}

// IgnoreMatcher decides which files of a tree are skipped.
//
//	*.log        any file whose name matches
//	build/out.o  the file at exactly that relative path
//	cache/       every file below a directory named cache
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses raw pattern lines. Blank lines and lines starting
// with '#' are skipped, as are patterns path.Match rejects.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		p := ignorePattern{pattern: raw, kind: matchBase}
		switch {
		case strings.HasSuffix(raw, "/"):
			p = ignorePattern{pattern: strings.TrimSuffix(raw, "/"), kind: matchDir}
		case strings.Contains(raw, "/"):
			p.kind = matchPath
		}
		if _, err := path.Match(p.pattern, ""); err != nil {
			continue
		}
		patterns = append(patterns, p)
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the file at relativePath (relative to the tree
// root, OS separators) is ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if len(m.patterns) == 0 || relativePath == "" {
		return false
	}

	rel := filepath.ToSlash(relativePath)
	elems := strings.Split(rel, "/")
	base := elems[len(elems)-1]
	dirs := elems[:len(elems)-1]

	for _, p := range m.patterns {
		switch p.kind {
		case matchBase:
			if ok, _ := path.Match(p.pattern, base); ok {
				return true
			}
		case matchPath:
			if ok, _ := path.Match(p.pattern, rel); ok {
				return true
			}
		case matchDir:
			for _, d := range dirs {
				if ok, _ := path.Match(p.pattern, d); ok {
					return true
				}
			}
		}
	}
	return false
}

// ParseIgnoreFile returns the raw lines of an ignore file, or nil when the
// file does not exist.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
