// Package render turns documents into pages: body template pass, markdown
// conversion, then the page template wrap.
package render

import (
	"fmt"
	"path/filepath"

	"github.com/osteele/liquid"

	"github.com/starford/weaving/internal/apperr"
	"github.com/starford/weaving/internal/document"
	"github.com/starford/weaving/internal/graph"
)

// Output is a file the build will write once every task has finished.
// A non-empty Source means the directory tree at Source is copied to Path
// instead of writing Contents.
type Output struct {
	Path     string
	Contents []byte
	Emit     bool
	Source   string
	Route    string
}

type pageTemplate struct {
	tpl *liquid.Template
	err error
}

// Pipeline renders documents against one content snapshot. Templates are
// compiled when the pipeline is created, before any concurrent use.
type Pipeline struct {
	engine    *Engine
	markdown  *Markdown
	snapshot  *graph.Snapshot
	globals   graph.Globals
	buildDir  string
	templates map[string]pageTemplate
}

// PipelineOptions configure NewPipeline.
type PipelineOptions struct {
	Engine    *Engine
	Markdown  *Markdown
	Snapshot  *graph.Snapshot
	Globals   graph.Globals
	BuildDir  string
	Templates map[string]string // file name -> source
}

// NewPipeline compiles every page template. A template that fails to
// compile only fails the documents that use it.
func NewPipeline(opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		engine:    opts.Engine,
		markdown:  opts.Markdown,
		snapshot:  opts.Snapshot,
		globals:   opts.Globals,
		buildDir:  opts.BuildDir,
		templates: make(map[string]pageTemplate, len(opts.Templates)),
	}
	for name, src := range opts.Templates {
		tpl, err := p.engine.Parse(name, src)
		p.templates[name] = pageTemplate{tpl: tpl, err: err}
	}
	return p
}

// Render runs every stage for doc. Documents with Emit false are rendered
// in full; the returned Output carries Emit false and is never written.
func (p *Pipeline) Render(doc *document.Document) (*Output, error) {
	name := TemplateName(doc.Meta.Template)
	pt, ok := p.templates[name]
	if !ok {
		return nil, apperr.New(apperr.KindTemplate, "resolve template", doc.Path,
			fmt.Errorf("no template named %q: %w", name, apperr.ErrNotFound))
	}
	if pt.err != nil {
		return nil, apperr.New(apperr.KindTemplate, "compile template "+name, doc.Path, pt.err)
	}

	ctx := p.snapshot.ContextFor(graph.FromDocument(doc), p.globals)

	body, err := p.engine.RenderString(doc.Body, ctx.Bindings())
	if err != nil {
		return nil, apperr.New(apperr.KindRender, "render body", doc.Path, err)
	}

	html, err := p.markdown.Convert(body)
	if err != nil {
		return nil, apperr.New(apperr.KindRender, "convert markdown", doc.Path, err)
	}
	ctx.SetBody(html)

	page, err := pt.tpl.RenderString(ctx.Bindings())
	if err != nil {
		return nil, apperr.New(apperr.KindTemplate, "render template "+name, doc.Path, err)
	}

	return &Output{
		Path:     OutputPath(p.buildDir, doc.Route),
		Contents: []byte(page),
		Emit:     doc.Emit,
		Route:    doc.Route,
	}, nil
}

// OutputPath returns buildDir + route + index.html.
func OutputPath(buildDir, route string) string {
	return filepath.Join(buildDir, filepath.FromSlash(route), "index.html")
}
