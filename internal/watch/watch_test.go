package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/weaving/internal/testutil"
)

func TestFilterIgnored(t *testing.T) {
	root := testutil.WriteSite(t, map[string]string{
		".gitignore":       "*.log\n",
		"content/index.md": "",
	})
	f, err := NewFilter(root,
		[]string{filepath.Join(root, "site"), filepath.Join(root, ".weaving")},
		[]string{`\.git`, `node_modules`, `^drafts/.*\.tmp$`},
		true)
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]bool{
		"content/index.md":         false,
		"templates/default.liquid": false,
		"site/index.html":          true,
		"site":                     true,
		".weaving/manifest.db":     true,
		".git/HEAD":                true,
		"a/node_modules/x.js":      true,
		"drafts/x.tmp":             true,
		"content/x.tmp":            false,
		"content/index.md~":        true,
		"debug.log":                true,
	}
	for rel, want := range cases {
		if got := f.Ignored(filepath.Join(root, filepath.FromSlash(rel))); got != want {
			t.Errorf("Ignored(%s) = %v, want %v", rel, got, want)
		}
	}
	if !f.Ignored(filepath.Dir(root)) {
		t.Error("paths outside the root should be ignored")
	}
}

func TestFilterGitignoreOptional(t *testing.T) {
	root := testutil.WriteSite(t, map[string]string{".gitignore": "*.log\n"})
	f, err := NewFilter(root, nil, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if f.Ignored(filepath.Join(root, "debug.log")) {
		t.Error(".gitignore should only apply when enabled")
	}
}

func TestFilterBadPattern(t *testing.T) {
	if _, err := NewFilter(t.TempDir(), nil, []string{"("}, false); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

type harness struct {
	root    string
	builds  atomic.Int32
	loop    *Loop
	cancel  context.CancelFunc
	stopped chan struct{}
}

func start(t *testing.T, rebuild func(n int32) error) *harness {
	t.Helper()
	root := testutil.WriteSite(t, map[string]string{
		"content/index.md": "",
		"site/index.html":  "",
		"node_modules/x":   "",
	})
	f, err := NewFilter(root, []string{filepath.Join(root, "site")}, []string{`node_modules`}, false)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{root: root, stopped: make(chan struct{})}
	h.loop = New(root, f, 100*time.Millisecond, func(context.Context) error {
		return rebuild(h.builds.Add(1))
	}, testutil.Quiet())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.stopped)
		_ = h.loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.stopped
	})
	// Let the watcher register its directories.
	time.Sleep(100 * time.Millisecond)
	return h
}

func (h *harness) write(t *testing.T, rel string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(h.root, filepath.FromSlash(rel)), []byte(time.Now().String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoopIgnoresExcludedAndBuildDir(t *testing.T) {
	h := start(t, func(int32) error { return nil })

	h.write(t, "site/index.html")
	h.write(t, "site/new.html")
	h.write(t, "node_modules/x")

	time.Sleep(400 * time.Millisecond)
	if n := h.builds.Load(); n != 0 {
		t.Fatalf("excluded changes triggered %d rebuilds", n)
	}
}

func TestLoopDebouncesBursts(t *testing.T) {
	h := start(t, func(int32) error { return nil })

	h.write(t, "content/index.md")
	time.Sleep(20 * time.Millisecond)
	h.write(t, "content/other.md")

	testutil.Eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return h.builds.Load() >= 1
	}, "no rebuild after change")
	time.Sleep(300 * time.Millisecond)
	if n := h.builds.Load(); n != 1 {
		t.Fatalf("rebuilds = %d, want 1", n)
	}

	select {
	case <-h.loop.Reloads():
	case <-time.After(time.Second):
		t.Fatal("successful rebuild did not signal a reload")
	}
}

func TestLoopSurvivesFailedRebuild(t *testing.T) {
	h := start(t, func(n int32) error {
		if n == 1 {
			return errors.New("template error")
		}
		return nil
	})

	h.write(t, "content/index.md")
	testutil.Eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return h.builds.Load() == 1
	}, "first rebuild did not run")

	select {
	case <-h.loop.Reloads():
		t.Fatal("failed rebuild must not signal a reload")
	case <-time.After(200 * time.Millisecond):
	}

	h.write(t, "content/index.md")
	select {
	case <-h.loop.Reloads():
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after a failed rebuild")
	}
}

func TestLoopWatchesNewDirectories(t *testing.T) {
	h := start(t, func(int32) error { return nil })

	if err := os.MkdirAll(filepath.Join(h.root, "content", "posts"), 0o755); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return h.builds.Load() >= 1
	}, "directory creation did not trigger a rebuild")
	time.Sleep(200 * time.Millisecond)
	before := h.builds.Load()

	h.write(t, "content/posts/a.md")
	testutil.Eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return h.builds.Load() > before
	}, "file in new directory did not trigger a rebuild")
}
