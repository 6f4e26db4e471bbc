package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/weaving/pkg/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Site.SyntaxTheme != "monokai" {
		t.Errorf("syntax theme = %q", cfg.Site.SyntaxTheme)
	}
	if cfg.Serve.Debounce.Duration != 200*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Serve.Debounce)
	}
}

func TestSiteConfig_OnlyLiquid(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Site.TemplatingLanguage = "handlebars"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("unsupported templating language should fail")
	}
	if !strings.Contains(err.Error(), "site") {
		t.Errorf("error should name the section: %v", err)
	}
}

func TestSiteConfig_RequiredDirs(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Site.BuildDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty build_dir should fail")
	}
}

func TestBuildConfig_CleanNeedsManifest(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Build.Clean = true
	cfg.Build.ManifestPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("clean without manifest should fail")
	}
	cfg.Build.Workers = -1
	cfg.Build.ManifestPath = "m.db"
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative workers should fail")
	}
}

func TestServeConfig_BadExcludeAndDebounce(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Serve.WatchExcludes = []string{"("}
	if err := cfg.Validate(); err == nil {
		t.Fatal("bad regex should fail")
	}

	cfg = NewDefaultConfig()
	cfg.Serve.Debounce = Duration{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero debounce should fail")
	}
}

func TestBuildSettingsResolvesAgainstBaseDir(t *testing.T) {
	base := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Site.BaseDir = base
	cfg.Site.PublicDir = "/srv/static"
	cfg.Site.Title = "Blog"

	s := cfg.BuildSettings()
	if s.BaseDir != base {
		t.Errorf("base = %q", s.BaseDir)
	}
	if s.ContentDir != filepath.Join(base, "content") {
		t.Errorf("content = %q", s.ContentDir)
	}
	if s.PublicDir != "/srv/static" {
		t.Errorf("absolute dir should be kept, got %q", s.PublicDir)
	}
	if s.SiteConfig["title"] != "Blog" {
		t.Errorf("site_config title = %v", s.SiteConfig["title"])
	}
	if got := cfg.ManifestFile(); got != filepath.Join(base, ".weaving", "manifest.db") {
		t.Errorf("manifest = %q", got)
	}

	cfg.Build.ManifestPath = ""
	if cfg.ManifestFile() != "" {
		t.Error("empty manifest path should disable the manifest")
	}
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weaving.toml")
	t.Setenv("WEAVING_TEST_AUTHOR", "Ada")
	data := `
[app]
log_level = "debug"

[site]
title = "Notes"
author = "${WEAVING_TEST_AUTHOR}"

[serve]
debounce = "50ms"
watch_excludes = ["\\.cache"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
	if cfg.Site.Title != "Notes" || cfg.Site.Author != "Ada" {
		t.Errorf("site = %+v", cfg.Site)
	}
	if cfg.Site.ContentDir != "content" {
		t.Errorf("unset keys should keep defaults, content_dir = %q", cfg.Site.ContentDir)
	}
	if cfg.Serve.Debounce.Duration != 50*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Serve.Debounce)
	}
	if len(cfg.Serve.WatchExcludes) != 1 || cfg.Serve.WatchExcludes[0] != `\.cache` {
		t.Errorf("excludes = %v", cfg.Serve.WatchExcludes)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weaving.yaml")
	data := "site:\n  title: Yaml Site\nbuild:\n  workers: 4\nserve:\n  debounce: 1s\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Site.Title != "Yaml Site" || cfg.Build.Workers != 4 || cfg.Serve.Debounce.Duration != time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weaving.toml")
	if err := os.WriteFile(path, []byte("[site]\ntemplating_language = \"jinja\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := pkgconfig.Load(path, NewDefaultConfig())
	if err == nil || !strings.Contains(err.Error(), "validation") {
		t.Fatalf("err = %v", err)
	}
}

func TestInitConfigRoundTrip(t *testing.T) {
	base := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Site.BaseDir = base
	cfg.Site.Title = "Fresh"

	path, err := InitConfig(cfg, false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if path != filepath.Join(base, ConfigFileName) {
		t.Errorf("path = %q", path)
	}
	if _, err := InitConfig(cfg, false); err == nil {
		t.Error("second init without overwrite should fail")
	}
	if _, err := InitConfig(cfg, true); err != nil {
		t.Errorf("overwrite: %v", err)
	}

	loaded := NewDefaultConfig()
	loaded.Site.Title = ""
	if err := pkgconfig.Load(path, loaded); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Site.Title != "Fresh" || loaded.Site.BaseDir != "." {
		t.Errorf("reloaded site = %+v", loaded.Site)
	}
	if loaded.Serve.Debounce != cfg.Serve.Debounce {
		t.Errorf("debounce = %v", loaded.Serve.Debounce)
	}
}
