// Package route derives canonical URL routes from content file paths.
package route

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/weaving/internal/apperr"
)

// Root is the route of the site root.
const Root = "/"

// indexStem names files that collapse into their parent directory's route.
const indexStem = "index"

// FromPath returns the route for path, which must be inside contentRoot.
//
//	content/index.md       -> /
//	content/blog/post1.md  -> /blog/post1/
//	content/blog/index.md  -> /blog/
func FromPath(contentRoot, path string) (string, error) {
	root, err := filepath.Abs(contentRoot)
	if err != nil {
		return "", apperr.New(apperr.KindRoute, "resolve content root", contentRoot, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperr.New(apperr.KindRoute, "resolve path", path, err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.New(apperr.KindRoute, "derive route", path,
			fmt.Errorf("path is not inside content root %s", root))
	}

	parts := Segments(filepath.ToSlash(rel))
	if n := len(parts); n > 0 {
		stem := fileStem(parts[n-1])
		if stem == indexStem {
			parts = parts[:n-1]
		} else {
			parts[n-1] = stem
		}
	}
	return Join(parts), nil
}

// fileStem drops the extension from name. A dot-file such as ".md" has no
// extension and keeps its full name.
func fileStem(name string) string {
	if stem := strings.TrimSuffix(name, filepath.Ext(name)); stem != "" {
		return stem
	}
	return name
}

// Segments splits a slash-separated path into its normal components,
// dropping empty, "." and ".." elements.
func Segments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		switch s {
		case "", ".", "..":
			continue
		}
		out = append(out, s)
	}
	return out
}

// Join builds a route from segments: a leading slash always, a trailing slash
// unless the route is the bare root.
func Join(parts []string) string {
	if len(parts) == 0 {
		return Root
	}
	return "/" + strings.Join(parts, "/") + "/"
}
