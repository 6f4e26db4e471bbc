package tasks

import (
	"context"
	_ "embed"
	"path/filepath"
	"time"

	"github.com/starford/weaving/internal/apperr"
	"github.com/starford/weaving/internal/graph"
	"github.com/starford/weaving/internal/render"
	"github.com/starford/weaving/internal/route"
)

var (
	//go:embed templates/sitemap.xml.liquid
	sitemapTemplate string

	//go:embed templates/atom.xml.liquid
	atomTemplate string
)

// Sitemap writes sitemap.xml listing every emitted page.
type Sitemap struct{}

func (Sitemap) Name() string { return "sitemap" }

func (Sitemap) Run(_ context.Context, site Site, snap *graph.Snapshot) (*render.Output, error) {
	var pages []graph.Page
	for _, p := range snap.Pages() {
		if p.Emit {
			pages = append(pages, p)
		}
	}
	return renderFeed("sitemap.xml", sitemapTemplate, site, pages)
}

// AtomFeed writes atom.xml with the most recent section pages. Pages in the
// root bucket (home and section list pages) are not entries.
type AtomFeed struct{}

func (AtomFeed) Name() string { return "atom_feed" }

func (AtomFeed) Run(_ context.Context, site Site, snap *graph.Snapshot) (*render.Output, error) {
	var pages []graph.Page
	for _, p := range snap.Recent() {
		if len(route.Segments(p.Route)) >= 2 {
			pages = append(pages, p)
		}
	}
	return renderFeed("atom.xml", atomTemplate, site, pages)
}

func renderFeed(name, source string, site Site, pages []graph.Page) (*render.Output, error) {
	list := make([]map[string]any, len(pages))
	updated := time.Unix(0, 0).UTC()
	for i, p := range pages {
		list[i] = p.Map()
		if t := p.Meta.LastUpdated; t != nil && t.After(updated) {
			updated = *t
		}
	}

	bindings := map[string]any{
		"site": map[string]any{
			"url":    site.URL(),
			"title":  site.Title,
			"author": site.Author,
		},
		"site_config": site.Config,
		"pages":       list,
		"updated":     updated.Format(time.RFC3339),
	}

	out, err := render.NewEngine(nil).RenderString(source, bindings)
	if err != nil {
		return nil, apperr.New(apperr.KindRender, "render "+name, "", err)
	}
	return &render.Output{
		Path:     filepath.Join(site.BuildDir, name),
		Contents: []byte(out),
		Emit:     true,
	}, nil
}
