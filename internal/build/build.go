// Package build coordinates one full site build: scan, load, render every
// document and side-effect task concurrently, then write after the join.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/weaving/internal/apperr"
	"github.com/starford/weaving/internal/checksum"
	"github.com/starford/weaving/internal/document"
	"github.com/starford/weaving/internal/graph"
	"github.com/starford/weaving/internal/manifest"
	"github.com/starford/weaving/internal/metrics"
	"github.com/starford/weaving/internal/render"
	"github.com/starford/weaving/internal/storage"
	"github.com/starford/weaving/internal/tasks"
)

// Settings are the resolved, absolute site paths and options for a build.
type Settings struct {
	BaseDir     string
	ContentDir  string
	TemplateDir string
	PartialsDir string
	PublicDir   string
	BuildDir    string
	BaseURL     string
	Title       string
	Author      string
	SyntaxTheme string
	// Workers bounds concurrent render tasks; 0 means unbounded.
	Workers int
	// Clean deletes outputs of earlier builds that this build did not
	// produce. It needs a manifest.
	Clean bool
	// SiteConfig is exposed to templates as site_config.
	SiteConfig map[string]any
}

// Result describes a successful build.
type Result struct {
	ID       string
	Snapshot *graph.Snapshot
	Pages    int
	Written  []string // relative to the build directory
	Swept    []string
	Duration time.Duration
}

// Coordinator runs builds. Build is not safe for concurrent use; callers
// such as the watch loop serialise it.
type Coordinator struct {
	settings Settings
	tasks    []tasks.Task
	logger   *slog.Logger
	recorder metrics.Recorder
	manifest manifest.Store

	mu   sync.RWMutex
	last *Result
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithManifest records outputs in m and enables the stale sweep.
func WithManifest(m manifest.Store) Option {
	return func(c *Coordinator) { c.manifest = m }
}

// WithTasks replaces the default side-effect tasks.
func WithTasks(t ...tasks.Task) Option {
	return func(c *Coordinator) { c.tasks = t }
}

// New returns a Coordinator for s.
func New(s Settings, opts ...Option) *Coordinator {
	c := &Coordinator{
		settings: s,
		tasks:    tasks.Default(),
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the coordinator's settings.
func (c *Coordinator) Settings() Settings { return c.settings }

// Last returns the most recent successful build, or nil.
func (c *Coordinator) Last() *Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Build runs one build from a fresh scan. Nothing is written unless every
// render and side-effect task succeeds.
func (c *Coordinator) Build(ctx context.Context) (*Result, error) {
	id := uuid.NewString()
	start := time.Now()
	logger := c.logger.With(slog.String("build_id", id))
	logger.Info("build: started", slog.String("content_dir", c.settings.ContentDir))

	res, err := c.run(ctx, id, logger)
	res.Duration = time.Since(start)
	c.finish(id, start, res, err, logger)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.last = res
	c.mu.Unlock()
	return res, nil
}

func (c *Coordinator) finish(id string, start time.Time, res *Result, err error, logger *slog.Logger) {
	outcome := metrics.OutcomeSuccess
	msg := ""
	if err != nil {
		outcome = metrics.OutcomeFailure
		msg = err.Error()
	}
	c.recorder.ObserveBuildDuration(res.Duration)
	c.recorder.IncBuildOutcome(outcome)

	if c.manifest != nil {
		rec := manifest.Build{
			ID:         id,
			StartedAt:  start,
			FinishedAt: time.Now(),
			Outcome:    string(outcome),
			Pages:      res.Pages,
			Written:    len(res.Written),
			Error:      msg,
		}
		if mErr := c.manifest.RecordBuild(rec); mErr != nil {
			logger.Warn("build: manifest record failed", slog.String("error", mErr.Error()))
		}
	}

	if err != nil {
		logger.Error("build: failed",
			slog.String("error", msg),
			slog.String("kind", apperr.KindOf(err).String()),
			slog.Duration("duration", res.Duration))
		return
	}
	logger.Info("build: finished",
		slog.Int("pages", res.Pages),
		slog.Int("written", len(res.Written)),
		slog.Int("swept", len(res.Swept)),
		slog.Duration("duration", res.Duration))
}

func (c *Coordinator) run(ctx context.Context, id string, logger *slog.Logger) (*Result, error) {
	res := &Result{ID: id}
	s := c.settings

	docs, err := c.loadDocuments(logger)
	if err != nil {
		return res, err
	}
	res.Pages = len(docs)

	pages := make([]graph.Page, len(docs))
	for i, d := range docs {
		pages[i] = graph.FromDocument(d)
	}
	snap, err := graph.NewSnapshot(pages)
	if err != nil {
		return res, err
	}
	res.Snapshot = snap

	templates, err := readSources(s.TemplateDir, render.Extension)
	if err != nil {
		return res, err
	}
	partials, err := readSources(s.PartialsDir, render.Extension)
	if err != nil {
		return res, err
	}

	css, ok, err := render.ThemeCSS(s.SyntaxTheme)
	if err != nil {
		return res, apperr.New(apperr.KindRender, "theme css", "", err)
	}
	if !ok {
		logger.Warn("build: unknown syntax theme, using default",
			slog.String("theme", s.SyntaxTheme),
			slog.String("default", render.DefaultTheme))
	}

	pipeline := render.NewPipeline(render.PipelineOptions{
		Engine:    render.NewEngine(partials),
		Markdown:  render.NewMarkdown(s.SyntaxTheme),
		Snapshot:  snap,
		Globals:   graph.Globals{ExtraCSS: css, Site: s.SiteConfig},
		BuildDir:  s.BuildDir,
		Templates: templates,
	})

	outputs, err := c.renderAll(ctx, docs, pipeline, snap)
	if err != nil {
		return res, err
	}
	c.recorder.AddPagesRendered(len(docs))

	written, entries, err := c.write(outputs, logger)
	res.Written = written
	c.recorder.AddOutputsWritten(len(written))
	if err != nil {
		return res, err
	}

	swept, err := c.sweep(id, entries, logger)
	res.Swept = swept
	return res, err
}

// loadDocuments scans the content directory and loads every document in
// parallel.
func (c *Coordinator) loadDocuments(logger *slog.Logger) ([]*document.Document, error) {
	paths, err := scanFiles(c.settings.ContentDir, ".md")
	if err != nil {
		return nil, err
	}
	docs := make([]*document.Document, len(paths))
	var g errgroup.Group
	c.limit(&g)
	for i, p := range paths {
		g.Go(safe("load "+p, func() error {
			d, err := document.Load(c.settings.ContentDir, p, logger)
			if err != nil {
				return err
			}
			docs[i] = d
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// renderAll fans out one task per document and one per side-effect task.
// Every task runs to completion; the first error is returned.
func (c *Coordinator) renderAll(ctx context.Context, docs []*document.Document, p *render.Pipeline, snap *graph.Snapshot) ([]*render.Output, error) {
	outputs := make([]*render.Output, len(docs)+len(c.tasks))
	site := c.site()

	var g errgroup.Group
	c.limit(&g)
	for i, d := range docs {
		g.Go(safe("render "+d.Route, func() error {
			out, err := p.Render(d)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		}))
	}
	for j, t := range c.tasks {
		g.Go(safe("task "+t.Name(), func() error {
			out, err := t.Run(ctx, site, snap)
			if err != nil {
				return fmt.Errorf("task %s: %w", t.Name(), err)
			}
			outputs[len(docs)+j] = out
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// write persists outputs after the join. Hidden documents are dropped here.
func (c *Coordinator) write(outputs []*render.Output, logger *slog.Logger) ([]string, []manifest.Entry, error) {
	store, err := storage.NewFS(c.settings.BuildDir)
	if err != nil {
		return nil, nil, apperr.New(apperr.KindIO, "open build dir", c.settings.BuildDir, err)
	}

	var written []string
	var entries []manifest.Entry
	for _, out := range outputs {
		if out == nil {
			continue
		}
		if !out.Emit {
			logger.Debug("build: skipping hidden page", slog.String("route", out.Route))
			continue
		}
		rel, err := store.Rel(out.Path)
		if err != nil {
			return written, entries, apperr.New(apperr.KindIO, "resolve output", out.Path, err)
		}
		if out.Source != "" {
			files, err := store.CopyTree(out.Source, rel)
			written = append(written, files...)
			if err != nil {
				return written, entries, apperr.New(apperr.KindIO, "copy tree", out.Source, err)
			}
			continue
		}
		if err := store.Write(rel, out.Contents); err != nil {
			return written, entries, apperr.New(apperr.KindIO, "write output", out.Path, err)
		}
		written = append(written, rel)
		entries = append(entries, manifest.Entry{
			Path:     rel,
			Route:    out.Route,
			Checksum: checksum.Sum(out.Contents),
		})
	}
	return written, entries, nil
}

// sweep records this build's outputs and, with Clean, deletes what earlier
// builds wrote that this one did not.
func (c *Coordinator) sweep(id string, entries []manifest.Entry, logger *slog.Logger) ([]string, error) {
	if c.manifest == nil {
		if c.settings.Clean {
			logger.Warn("build: clean requested without a manifest, skipping sweep")
		}
		return nil, nil
	}
	if err := c.manifest.Record(id, entries); err != nil {
		return nil, apperr.New(apperr.KindIO, "record manifest", "", err)
	}
	if !c.settings.Clean {
		return nil, nil
	}

	stale, err := c.manifest.Stale(id)
	if err != nil {
		return nil, apperr.New(apperr.KindIO, "list stale outputs", "", err)
	}
	if len(stale) == 0 {
		return nil, nil
	}
	store, err := storage.NewFS(c.settings.BuildDir)
	if err != nil {
		return nil, apperr.New(apperr.KindIO, "open build dir", c.settings.BuildDir, err)
	}
	for _, p := range stale {
		if err := store.Delete(p); err != nil {
			return nil, apperr.New(apperr.KindIO, "sweep output", filepath.FromSlash(p), err)
		}
		logger.Debug("build: swept stale output", slog.String("path", p))
	}
	if err := c.manifest.Delete(stale); err != nil {
		return stale, apperr.New(apperr.KindIO, "forget stale outputs", "", err)
	}
	return stale, nil
}

func (c *Coordinator) site() tasks.Site {
	s := c.settings
	return tasks.Site{
		BaseDir:   s.BaseDir,
		PublicDir: s.PublicDir,
		BuildDir:  s.BuildDir,
		BaseURL:   s.BaseURL,
		Title:     s.Title,
		Author:    s.Author,
		Config:    s.SiteConfig,
	}
}

func (c *Coordinator) limit(g *errgroup.Group) {
	if c.settings.Workers > 0 {
		g.SetLimit(c.settings.Workers)
	}
}

// safe turns a panic in fn into a task-join error.
func safe(op string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = apperr.New(apperr.KindJoin, op, "", fmt.Errorf("task panicked: %v\n%s", r, debug.Stack()))
			}
		}()
		return fn()
	}
}
