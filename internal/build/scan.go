package build

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/weaving/internal/apperr"
)

// scanFiles returns every regular file under root whose name ends in ext,
// sorted. A missing root yields no files.
func scanFiles(root, ext string) ([]string, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, apperr.New(apperr.KindGlob, "scan *"+ext, root, err)
	}
	sort.Strings(out)
	return out, nil
}

// readSources loads every file under root ending in ext, keyed by base name.
// Later duplicates of a base name win, matching the sorted walk order.
func readSources(root, ext string) (map[string]string, error) {
	paths, err := scanFiles(root, ext)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, apperr.New(apperr.KindIO, "read template", p, err)
		}
		out[filepath.Base(p)] = string(data)
	}
	return out, nil
}
