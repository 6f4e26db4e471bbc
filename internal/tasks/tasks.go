// Package tasks holds the whole-site side-effect tasks that run alongside
// page rendering: sitemap, atom feed and static directory copies.
package tasks

import (
	"context"
	"strings"

	"github.com/starford/weaving/internal/graph"
	"github.com/starford/weaving/internal/render"
)

// Site is the configuration a task needs.
type Site struct {
	BaseDir   string
	PublicDir string
	BuildDir  string
	BaseURL   string
	Title     string
	Author    string
	Config    map[string]any
}

// URL returns the base URL with a scheme and without a trailing slash.
func (s Site) URL() string {
	u := strings.TrimSuffix(s.BaseURL, "/")
	if !strings.Contains(u, "://") {
		u = "http://" + u
	}
	return u
}

// Task consumes the full content snapshot and produces at most one output.
// A nil output with a nil error means there was nothing to do.
type Task interface {
	Name() string
	Run(ctx context.Context, site Site, snap *graph.Snapshot) (*render.Output, error)
}

// Default returns the tasks every build runs.
func Default() []Task {
	return []Task{
		PublicCopy{},
		WellKnownCopy{},
		Sitemap{},
		AtomFeed{},
	}
}
