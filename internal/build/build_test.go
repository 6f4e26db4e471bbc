package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/weaving/internal/apperr"
	"github.com/starford/weaving/internal/graph"
	"github.com/starford/weaving/internal/manifest"
	"github.com/starford/weaving/internal/metrics"
	"github.com/starford/weaving/internal/render"
	"github.com/starford/weaving/internal/tasks"
	"github.com/starford/weaving/internal/testutil"
)

func settings(root string) Settings {
	return Settings{
		BaseDir:     root,
		ContentDir:  filepath.Join(root, "content"),
		TemplateDir: filepath.Join(root, "templates"),
		PartialsDir: filepath.Join(root, "partials"),
		PublicDir:   filepath.Join(root, "public"),
		BuildDir:    filepath.Join(root, "site"),
		BaseURL:     "http://example.test",
		Title:       "Test",
		SyntaxTheme: render.DefaultTheme,
		SiteConfig:  map[string]any{"title": "Test"},
	}
}

func readOut(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "site", filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func exists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, "site", filepath.FromSlash(rel)))
	return err == nil
}

func TestBuildTitleSubstitutedOnce(t *testing.T) {
	root := testutil.WriteSite(t, map[string]string{
		"templates/default.liquid": "<html><title>{{page.title}}</title></html>",
		"content/hello.md":         "---\ntitle: test\n---\n",
	})

	res, err := New(settings(root), WithLogger(testutil.Quiet())).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	html := readOut(t, root, "hello/index.html")
	if strings.Count(html, "test") != 1 || !strings.Contains(html, "<title>test</title>") {
		t.Errorf("html = %q", html)
	}
	if res.Pages != 1 || res.ID == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestBuildHiddenPageVisibleButNotWritten(t *testing.T) {
	root := testutil.WriteSite(t, map[string]string{
		"templates/default.liquid": `{% for p in content.root %}[{{ p.title }}]{% endfor %}{{ page.body }}`,
		"content/index.md":         "---\ntitle: Home\n---\n",
		"content/draft.md":         "---\ntitle: Draft\nemit: false\n---\nsecret",
	})

	if _, err := New(settings(root), WithLogger(testutil.Quiet())).Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if exists(root, "draft/index.html") {
		t.Error("hidden page was written")
	}
	if home := readOut(t, root, "index.html"); !strings.Contains(home, "[Draft]") {
		t.Errorf("hidden page missing from home graph: %q", home)
	}
	if strings.Contains(readOut(t, root, "sitemap.xml"), "/draft/") {
		t.Error("hidden page listed in sitemap")
	}
}

func TestBuildFailureWritesNothing(t *testing.T) {
	root := testutil.WriteSite(t, map[string]string{
		"templates/default.liquid": `{{ page.body }}`,
		"content/good.md":          "fine",
		"content/bad.md":           "---\ntemplate: missing\n---\n",
		"public/style.css":         "body{}",
	})

	_, err := New(settings(root), WithLogger(testutil.Quiet())).Build(context.Background())
	if apperr.KindOf(err) != apperr.KindTemplate {
		t.Fatalf("expected template error, got %v", err)
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Error("expected ErrNotFound in chain")
	}
	if _, statErr := os.Stat(filepath.Join(root, "site")); !os.IsNotExist(statErr) {
		t.Error("build dir should not be created on failure")
	}
}

func TestBuildCopiesAndFeeds(t *testing.T) {
	root := testutil.WriteSite(t, map[string]string{
		"templates/default.liquid": `{{ page.body }}`,
		"content/index.md":         "---\ntitle: Home\n---\n",
		"content/posts/one.md":     "---\ntitle: One\npublished: 2024-01-02T00:00:00Z\n---\nbody",
		"public/img/logo.svg":      "<svg/>",
		".well-known/security.txt": "Contact: a@b",
	})

	res, err := New(settings(root), WithLogger(testutil.Quiet())).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if readOut(t, root, "public/img/logo.svg") != "<svg/>" {
		t.Error("public tree not copied")
	}
	if readOut(t, root, ".well-known/security.txt") != "Contact: a@b" {
		t.Error(".well-known not copied")
	}
	if sm := readOut(t, root, "sitemap.xml"); !strings.Contains(sm, "<loc>http://example.test/posts/one/</loc>") {
		t.Errorf("sitemap = %s", sm)
	}
	if feed := readOut(t, root, "atom.xml"); !strings.Contains(feed, "<title>One</title>") {
		t.Errorf("atom = %s", feed)
	}
	if len(res.Written) != 6 {
		t.Errorf("written = %v", res.Written)
	}
}

func TestBuildPartialsAndSections(t *testing.T) {
	root := testutil.WriteSite(t, map[string]string{
		"templates/default.liquid": `{% include "nav.liquid" %}|{{ page.body }}`,
		"partials/nav.liquid":      `{% for p in content.posts %}<a href="{{ p.route }}">{{ p.title }}</a>{% endfor %}`,
		"content/posts/index.md":   "---\ntitle: Posts\n---\n",
		"content/posts/a.md":       "---\ntitle: A\npublished: 2024-01-01T00:00:00Z\n---\n",
		"content/posts/b.md":       "---\ntitle: B\npublished: 2024-02-01T00:00:00Z\n---\n",
	})

	if _, err := New(settings(root), WithLogger(testutil.Quiet())).Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	list := readOut(t, root, "posts/index.html")
	if !strings.HasPrefix(list, `<a href="/posts/b/">B</a><a href="/posts/a/">A</a>|`) {
		t.Errorf("list page = %q", list)
	}
	if a := readOut(t, root, "posts/a/index.html"); strings.Contains(a, "/posts/a/") {
		t.Errorf("current page listed in its own bucket: %q", a)
	}
}

type panicTask struct{}

func (panicTask) Name() string { return "panic" }

func (panicTask) Run(context.Context, tasks.Site, *graph.Snapshot) (*render.Output, error) {
	panic("boom")
}

func TestBuildTaskPanicIsJoinError(t *testing.T) {
	root := testutil.WriteSite(t, map[string]string{
		"templates/default.liquid": `x`,
		"content/index.md":         "",
	})
	c := New(settings(root), WithLogger(testutil.Quiet()), WithTasks(panicTask{}))
	_, err := c.Build(context.Background())
	if apperr.KindOf(err) != apperr.KindJoin {
		t.Fatalf("expected join error, got %v", err)
	}
	if c.Last() != nil {
		t.Error("failed build must not replace the last result")
	}
}

func TestBuildCleanSweepsStaleOutputs(t *testing.T) {
	root := testutil.WriteSite(t, map[string]string{
		"templates/default.liquid": `{{ page.title }}`,
		"content/keep.md":          "---\ntitle: Keep\n---\n",
		"content/gone.md":          "---\ntitle: Gone\n---\n",
		"public/a.txt":             "a",
	})
	db, err := manifest.Open(filepath.Join(root, ".weaving", "manifest.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s := settings(root)
	s.Clean = true
	rec := metrics.NewPrometheusRecorder(nil)
	c := New(s, WithLogger(testutil.Quiet()), WithManifest(db), WithRecorder(rec))

	if _, err := c.Build(context.Background()); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if !exists(root, "gone/index.html") {
		t.Fatal("first build should write gone/")
	}

	if err := os.Remove(filepath.Join(root, "content", "gone.md")); err != nil {
		t.Fatal(err)
	}
	res, err := c.Build(context.Background())
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if exists(root, "gone/index.html") || exists(root, "gone") {
		t.Error("stale page not swept")
	}
	if !exists(root, "keep/index.html") || !exists(root, "public/a.txt") || !exists(root, "sitemap.xml") {
		t.Error("live outputs were swept")
	}
	if len(res.Swept) != 1 || res.Swept[0] != "gone/index.html" {
		t.Errorf("swept = %v", res.Swept)
	}

	last, err := db.LastBuild()
	if err != nil || last == nil || last.ID != res.ID || last.Outcome != "success" {
		t.Errorf("last build = %+v, %v", last, err)
	}
}

func TestBuildWorkerLimit(t *testing.T) {
	files := map[string]string{"templates/default.liquid": `{{ page.title }}`}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		files["content/"+name+".md"] = "---\ntitle: " + name + "\n---\n"
	}
	root := testutil.WriteSite(t, files)
	s := settings(root)
	s.Workers = 1

	if _, err := New(s, WithLogger(testutil.Quiet())).Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if readOut(t, root, name+"/index.html") != name {
			t.Errorf("page %s missing", name)
		}
	}
}
