package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/weaving/internal/build"
	"github.com/starford/weaving/internal/render"
	"github.com/starford/weaving/internal/watch"
)

// TemplatingLiquid is the only supported templating language.
const TemplatingLiquid = "liquid"

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app" toml:"app"`
	Site  SiteConfig        `yaml:"site" toml:"site"`
	Build BuildConfig       `yaml:"build" toml:"build"`
	Serve ServeConfig       `yaml:"serve" toml:"serve"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Build.Validate(); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if err := c.Serve.Validate(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return nil
}

// SiteConfig locates the site's directories and describes the site.
// Relative directories are resolved against BaseDir.
type SiteConfig struct {
	BaseDir            string `yaml:"base_dir" toml:"base_dir"`
	ContentDir         string `yaml:"content_dir" toml:"content_dir"`
	TemplateDir        string `yaml:"template_dir" toml:"template_dir"`
	PartialsDir        string `yaml:"partials_dir" toml:"partials_dir"`
	PublicDir          string `yaml:"public_dir" toml:"public_dir"`
	BuildDir           string `yaml:"build_dir" toml:"build_dir"`
	BaseURL            string `yaml:"base_url" toml:"base_url"`
	Title              string `yaml:"title" toml:"title"`
	Author             string `yaml:"author" toml:"author"`
	TemplatingLanguage string `yaml:"templating_language" toml:"templating_language"`
	SyntaxTheme        string `yaml:"syntax_theme" toml:"syntax_theme"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseDir, validation.Required),
		validation.Field(&c.ContentDir, validation.Required),
		validation.Field(&c.TemplateDir, validation.Required),
		validation.Field(&c.PartialsDir, validation.Required),
		validation.Field(&c.PublicDir, validation.Required),
		validation.Field(&c.BuildDir, validation.Required),
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.TemplatingLanguage, validation.Required, validation.In(TemplatingLiquid)),
		validation.Field(&c.SyntaxTheme, validation.Required),
	)
}

// Path resolves dir against BaseDir and makes it absolute.
func (c *SiteConfig) Path(dir string) string {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.BaseDir, dir)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

// Map returns the site section as template data for site_config.
func (c *SiteConfig) Map() map[string]any {
	return map[string]any{
		"base_url":            c.BaseURL,
		"title":               c.Title,
		"author":              c.Author,
		"content_dir":         c.ContentDir,
		"template_dir":        c.TemplateDir,
		"partials_dir":        c.PartialsDir,
		"public_dir":          c.PublicDir,
		"build_dir":           c.BuildDir,
		"templating_language": c.TemplatingLanguage,
		"syntax_theme":        c.SyntaxTheme,
	}
}

// BuildConfig holds build options.
type BuildConfig struct {
	// Workers bounds concurrent render tasks; 0 means unbounded.
	Workers int  `yaml:"workers" toml:"workers"`
	Clean   bool `yaml:"clean" toml:"clean"`
	// ManifestPath is relative to the site base dir. Empty disables the
	// manifest and the clean sweep.
	ManifestPath string `yaml:"manifest_path" toml:"manifest_path"`
}

// Validate validates the build configuration.
func (c *BuildConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.Clean && c.ManifestPath == "" {
		return errors.New("clean requires manifest_path")
	}
	return nil
}

// ServeConfig holds preview server and watch options.
type ServeConfig struct {
	Address          string   `yaml:"address" toml:"address"`
	WatchExcludes    []string `yaml:"watch_excludes" toml:"watch_excludes"`
	Debounce         Duration `yaml:"debounce" toml:"debounce"`
	RespectGitignore bool     `yaml:"respect_gitignore" toml:"respect_gitignore"`
}

// Validate validates the serve configuration.
func (c *ServeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Address, validation.Required),
		validation.Field(&c.WatchExcludes, validation.Each(validation.By(isRegexp))),
		validation.Field(&c.Debounce, validation.By(isPositiveDuration)),
	)
}

func isRegexp(v any) error {
	s, _ := v.(string)
	if _, err := regexp.Compile(s); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", s, err)
	}
	return nil
}

func isPositiveDuration(v any) error {
	d, _ := v.(Duration)
	if d.Duration <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

// Duration is a time.Duration written as a string such as "200ms".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// BuildSettings resolves every site path into build settings.
func (c *Config) BuildSettings() build.Settings {
	s := &c.Site
	return build.Settings{
		BaseDir:     s.Path("."),
		ContentDir:  s.Path(s.ContentDir),
		TemplateDir: s.Path(s.TemplateDir),
		PartialsDir: s.Path(s.PartialsDir),
		PublicDir:   s.Path(s.PublicDir),
		BuildDir:    s.Path(s.BuildDir),
		BaseURL:     s.BaseURL,
		Title:       s.Title,
		Author:      s.Author,
		SyntaxTheme: s.SyntaxTheme,
		Workers:     c.Build.Workers,
		Clean:       c.Build.Clean,
		SiteConfig:  s.Map(),
	}
}

// ManifestFile returns the absolute manifest path, or "" when disabled.
func (c *Config) ManifestFile() string {
	if c.Build.ManifestPath == "" {
		return ""
	}
	return c.Site.Path(c.Build.ManifestPath)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Site: SiteConfig{
			BaseDir:            ".",
			ContentDir:         "content",
			TemplateDir:        "templates",
			PartialsDir:        "partials",
			PublicDir:          "public",
			BuildDir:           "site",
			BaseURL:            "http://localhost:8080",
			TemplatingLanguage: TemplatingLiquid,
			SyntaxTheme:        render.DefaultTheme,
		},
		Build: BuildConfig{
			ManifestPath: ".weaving/manifest.db",
		},
		Serve: ServeConfig{
			Address:       "localhost:8080",
			WatchExcludes: []string{`\.git`, `node_modules`, `\.weaving`},
			Debounce:      Duration{watch.DefaultDebounce},
		},
	}
}
