// Package graph builds the content graph every page is rendered against: an
// immutable route to page snapshot, bucketed into top-level sections.
package graph

import (
	"fmt"
	"sort"

	"github.com/starford/weaving/internal/apperr"
	"github.com/starford/weaving/internal/document"
	"github.com/starford/weaving/internal/route"
)

// RootBucket holds pages whose route has at most one segment: the home page
// and every section's own list page.
const RootBucket = "root"

// Page is the public projection of a document.
type Page struct {
	Route string
	Title string
	Body  string
	Meta  document.Metadata
	TOC   []document.Heading
	Emit  bool
	Path  string
}

// FromDocument projects d. Body is empty until the page is rendered.
func FromDocument(d *document.Document) Page {
	return Page{
		Route: d.Route,
		Title: d.Meta.Title,
		Meta:  d.Meta,
		TOC:   d.TOC,
		Emit:  d.Emit,
		Path:  d.Path,
	}
}

// Map returns the page as template data.
func (p Page) Map() map[string]any {
	toc := make([]map[string]any, len(p.TOC))
	for i, h := range p.TOC {
		toc[i] = map[string]any{"depth": h.Depth, "text": h.Text, "slug": h.Slug}
	}
	return map[string]any{
		"route": p.Route,
		"title": p.Title,
		"body":  p.Body,
		"meta":  p.Meta.Map(),
		"toc":   toc,
	}
}

type placement struct {
	route  string
	bucket string
	listOf string
}

// Snapshot is the read-only set of all pages in a build. It is safe for
// concurrent use.
type Snapshot struct {
	pages      map[string]Page
	routes     []string
	placements []placement
}

// NewSnapshot indexes pages by route and precomputes section membership.
// Two pages with the same route are a route error.
func NewSnapshot(pages []Page) (*Snapshot, error) {
	s := &Snapshot{pages: make(map[string]Page, len(pages))}
	for _, p := range pages {
		if prev, dup := s.pages[p.Route]; dup {
			return nil, apperr.New(apperr.KindRoute, "index pages", p.Path,
				fmt.Errorf("route %s already produced by %s", p.Route, prev.Path))
		}
		s.pages[p.Route] = p
		s.routes = append(s.routes, p.Route)
	}
	sort.Strings(s.routes)

	s.placements = make([]placement, len(s.routes))
	for i, r := range s.routes {
		s.placements[i] = place(r)
	}
	return s, nil
}

func place(r string) placement {
	segs := route.Segments(r)
	switch len(segs) {
	case 0:
		return placement{route: r, bucket: RootBucket}
	case 1:
		return placement{route: r, bucket: RootBucket, listOf: segs[0]}
	default:
		return placement{route: r, bucket: segs[0]}
	}
}

// Len returns the number of pages.
func (s *Snapshot) Len() int { return len(s.routes) }

// Routes returns every route in ascending order.
func (s *Snapshot) Routes() []string {
	out := make([]string, len(s.routes))
	copy(out, s.routes)
	return out
}

// Page looks up a page by route.
func (s *Snapshot) Page(r string) (Page, bool) {
	p, ok := s.pages[r]
	return p, ok
}

// Pages returns every page ordered by route.
func (s *Snapshot) Pages() []Page {
	out := make([]Page, len(s.routes))
	for i, r := range s.routes {
		out[i] = s.pages[r]
	}
	return out
}

// Recent returns the emitted pages, most recently published first.
func (s *Snapshot) Recent() []Page {
	var out []Page
	for _, r := range s.routes {
		if p := s.pages[r]; p.Emit {
			out = append(out, p)
		}
	}
	SortByPublished(out)
	return out
}

// Sections buckets every page except exclude by its first route segment.
// A section's list page never appears inside its own bucket, but the bucket
// exists even if that leaves it empty. Buckets are sorted by SortByPublished.
func (s *Snapshot) Sections(exclude string) map[string][]Page {
	out := make(map[string][]Page)
	for _, pl := range s.placements {
		if pl.route == exclude {
			continue
		}
		if pl.listOf != "" {
			if _, ok := out[pl.listOf]; !ok {
				out[pl.listOf] = []Page{}
			}
		}
		out[pl.bucket] = append(out[pl.bucket], s.pages[pl.route])
	}
	for _, bucket := range out {
		SortByPublished(bucket)
	}
	return out
}

// SortByPublished orders pages newest first. Pages without a publish time go
// last; ties keep their existing order.
func SortByPublished(pages []Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		a, b := pages[i].Meta.Published, pages[j].Meta.Published
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
