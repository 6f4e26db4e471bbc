package internal

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/weaving/internal/testutil"
)

func testSite(t *testing.T) *Config {
	t.Helper()
	root := testutil.WriteSite(t, map[string]string{
		"templates/default.liquid": "<html><body>{{ page.body }}</body></html>",
		"content/index.md":         "---\ntitle: Home\n---\n# Hello",
		"content/blog/post.md":     "---\ntitle: Post\npublished: 2024-01-02\n---\nBody",
		"public/style.css":         "body{}",
	})
	cfg := NewDefaultConfig()
	cfg.Site.BaseDir = root
	cfg.Site.Title = "Test"
	cfg.Serve.Address = "127.0.0.1:0"
	cfg.Serve.Debounce = Duration{20 * time.Millisecond}
	return cfg
}

func TestBuildRequiresConfig(t *testing.T) {
	if err := Build(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestBuildWritesSite(t *testing.T) {
	cfg := testSite(t)
	if err := Build(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard)); err != nil {
		t.Fatalf("build: %v", err)
	}

	site := cfg.Site.Path(cfg.Site.BuildDir)
	for _, rel := range []string{"index.html", "blog/post/index.html", "public/style.css", "sitemap.xml", "atom.xml"} {
		if _, err := os.Stat(filepath.Join(site, rel)); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
	if _, err := os.Stat(cfg.ManifestFile()); err != nil {
		t.Errorf("manifest not created: %v", err)
	}
}

func TestBuildFailureIsReturned(t *testing.T) {
	cfg := testSite(t)
	testutil.WriteFile(t, cfg.Site.BaseDir, "content/bad.md", "---\ntemplate: missing\n---\n")
	err := Build(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err == nil || !strings.Contains(err.Error(), "build") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunRebuildsAndStopsOnCancel(t *testing.T) {
	cfg := testSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, WithConfig(cfg), WithLogOutput(io.Discard))
	}()

	out := filepath.Join(cfg.Site.Path(cfg.Site.BuildDir), "blog", "post", "index.html")
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		_, err := os.Stat(out)
		return err == nil
	}, "initial build never wrote output")

	// Give the watcher time to register directories.
	time.Sleep(100 * time.Millisecond)
	testutil.WriteFile(t, cfg.Site.BaseDir, "content/blog/post.md", "---\ntitle: Post\n---\nChanged body")
	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && strings.Contains(string(data), "Changed body")
	}, "rebuild never picked up the change")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
