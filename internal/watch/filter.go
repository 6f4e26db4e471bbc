package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Filter decides which changed paths are worth a rebuild.
type Filter struct {
	root     string
	skipDirs []string
	excludes []*regexp.Regexp
	gi       *ignore.GitIgnore
}

// NewFilter compiles the exclusion patterns. Paths under any of skipDirs
// (absolute) are always ignored.
func NewFilter(root string, skipDirs, patterns []string, respectGitignore bool) (*Filter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	f := &Filter{root: abs}
	for _, d := range skipDirs {
		if d == "" {
			continue
		}
		ad, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve %s: %w", d, err)
		}
		f.skipDirs = append(f.skipDirs, ad)
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("watch: bad exclude pattern %q: %w", p, err)
		}
		f.excludes = append(f.excludes, re)
	}
	if respectGitignore {
		gi, err := ignore.CompileIgnoreFile(filepath.Join(abs, ".gitignore"))
		if err == nil {
			f.gi = gi
		}
	}
	return f, nil
}

// Ignored reports whether a change at path should not trigger a rebuild.
func (f *Filter) Ignored(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	if strings.HasSuffix(abs, "~") {
		return true
	}
	for _, d := range f.skipDirs {
		if abs == d || strings.HasPrefix(abs, d+string(os.PathSeparator)) {
			return true
		}
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, re := range f.excludes {
		if re.MatchString(rel) {
			return true
		}
	}
	return f.gi != nil && f.gi.MatchesPath(rel)
}
