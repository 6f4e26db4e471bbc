package tasks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/starford/weaving/internal/apperr"
	"github.com/starford/weaving/internal/graph"
	"github.com/starford/weaving/internal/render"
)

// WellKnownDir is the site directory copied verbatim for RFC 8615 paths.
const WellKnownDir = ".well-known"

// PublicCopy copies the public directory into the build directory under its
// own base name.
type PublicCopy struct{}

func (PublicCopy) Name() string { return "public_copy" }

func (PublicCopy) Run(_ context.Context, site Site, _ *graph.Snapshot) (*render.Output, error) {
	return planCopy(site.PublicDir, filepath.Join(site.BuildDir, filepath.Base(site.PublicDir)))
}

// WellKnownCopy copies {base}/.well-known to {build}/.well-known.
type WellKnownCopy struct{}

func (WellKnownCopy) Name() string { return "well_known_copy" }

func (WellKnownCopy) Run(_ context.Context, site Site, _ *graph.Snapshot) (*render.Output, error) {
	return planCopy(filepath.Join(site.BaseDir, WellKnownDir), filepath.Join(site.BuildDir, WellKnownDir))
}

// planCopy returns an output that copies src to dst once the build writes.
// A missing src is not an error.
func planCopy(src, dst string) (*render.Output, error) {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.New(apperr.KindIO, "stat copy source", src, err)
	}
	if !info.IsDir() {
		return nil, apperr.New(apperr.KindIO, "stat copy source", src, fmt.Errorf("not a directory"))
	}
	return &render.Output{Path: dst, Source: src, Emit: true}, nil
}
