package snapshot

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// IgnoreChecker decides which paths stay out of a snapshot.
type IgnoreChecker struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	pattern  string
	negated  bool
	dirOnly  bool
	hasSlash bool // pattern contains a slash, so match against full path
	regex    *regexp.Regexp
}

// NewIgnoreChecker creates an IgnoreChecker for the given root. It
// always ignores .grove/ and .git/. If a .groveignore file exists in
// root, its patterns are parsed and applied after the defaults.
func NewIgnoreChecker(root string) *IgnoreChecker {
	var lines []string
	f, err := os.Open(filepath.Join(root, ".groveignore"))
	if err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
	}
	return NewIgnoreCheckerFromLines(lines)
}

// NewIgnoreCheckerFromLines builds a checker from ignore-file lines
// without touching the filesystem.
func NewIgnoreCheckerFromLines(lines []string) *IgnoreChecker {
	ic := &IgnoreChecker{
		patterns: []ignorePattern{
			{pattern: ".grove", dirOnly: true},
			{pattern: ".git", dirOnly: true},
		},
	}
	for _, line := range lines {
		if p := parseIgnoreLine(line); p != nil {
			ic.patterns = append(ic.patterns, *p)
		}
	}
	return ic
}

// parseIgnoreLine parses a single .groveignore line. Returns nil for
// empty lines and comments.
func parseIgnoreLine(line string) *ignorePattern {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	p := &ignorePattern{}

	// Negation: lines starting with ! un-ignore a pattern.
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}

	// Directory-only: lines ending with / match directories and
	// everything beneath them.
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimRight(line, "/")
	}

	p.hasSlash = strings.Contains(line, "/")
	p.pattern = line
	if strings.Contains(line, "**") {
		if re, err := regexp.Compile(globToRegex(line)); err == nil {
			p.regex = re
		}
	}
	return p
}

// IsIgnored checks whether a relative slash-separated path should be
// ignored. Last matching pattern wins, which is what makes negation
// work.
func (ic *IgnoreChecker) IsIgnored(path string) bool {
	path = filepath.ToSlash(path)

	ignored := false
	for i := range ic.patterns {
		if ic.patterns[i].matches(path) {
			ignored = !ic.patterns[i].negated
		}
	}
	return ignored
}

// matches checks if the given relative path matches this pattern.
func (p *ignorePattern) matches(path string) bool {
	if p.dirOnly {
		// The directory itself or anything beneath it.
		if path == p.pattern || strings.HasPrefix(path, p.pattern+"/") {
			return true
		}
		return false
	}

	if p.hasSlash {
		return p.match(path)
	}

	// Pattern without a slash matches the filename component only.
	return p.match(filepath.Base(path))
}

func (p *ignorePattern) match(target string) bool {
	if p.regex != nil {
		return p.regex.MatchString(target)
	}
	matched, _ := filepath.Match(p.pattern, target)
	return matched
}

func globToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		if ch == '*' {
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					// Globstar directory segment: zero or more path segments.
					b.WriteString("(?:.*/)?")
					i += 2
				} else {
					b.WriteString(".*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
			continue
		}
		if ch == '?' {
			b.WriteString("[^/]")
			continue
		}
		if strings.ContainsRune(`.+()|[]{}^$\\`, rune(ch)) {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	b.WriteString("$")
	return b.String()
}
