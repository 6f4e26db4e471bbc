// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	pkgconfig "github.com/starford/weaving/pkg/config"

	"github.com/starford/weaving/internal/build"
	"github.com/starford/weaving/internal/livereload"
	"github.com/starford/weaving/internal/manifest"
	"github.com/starford/weaving/internal/mcpserver"
	"github.com/starford/weaving/internal/metrics"
	"github.com/starford/weaving/internal/preview"
	"github.com/starford/weaving/internal/storage"
	"github.com/starford/weaving/internal/watch"
)

// ConfigFileName is the config file written by InitConfig.
const ConfigFileName = "weaving.toml"

const shutdownTimeout = 10 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger builds the JSON logger and installs it as the default.
func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	cfg := a.config
	logger.Info("Configuration loaded",
		slog.String("base_dir", cfg.Site.Path(".")),
		slog.String("build_dir", cfg.Site.Path(cfg.Site.BuildDir)),
		slog.String("manifest_path", cfg.ManifestFile()),
		slog.String("log_level", cfg.App.LogLevel.String()))
	return logger
}

// coordinator opens the manifest, if enabled, and wires the build
// coordinator. The returned func releases the manifest.
func (a *application) coordinator(logger *slog.Logger, extra ...build.Option) (*build.Coordinator, *manifest.DB, func(), error) {
	opts := []build.Option{build.WithLogger(logger)}

	var db *manifest.DB
	closeFn := func() {}
	if path := a.config.ManifestFile(); path != "" {
		var err error
		db, err = manifest.Open(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init manifest: %w", err)
		}
		opts = append(opts, build.WithManifest(db))
		closeFn = func() {
			if err := db.Close(); err != nil {
				logger.Warn("manifest close failed", slog.String("error", err.Error()))
			}
		}
	}

	opts = append(opts, extra...)
	return build.New(a.config.BuildSettings(), opts...), db, closeFn, nil
}

// Build runs a single build and returns its error.
func Build(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()

	coord, _, closeFn, err := app.coordinator(logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := coord.Build(ctx); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	return nil
}

// Run builds the site, then serves the preview while watching for changes
// until a shutdown signal arrives or ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	recorder := metrics.NewPrometheusRecorder(nil)
	hub := livereload.NewHub(logger)
	recorder.WatchClients(hub.Count)

	coord, _, closeFn, err := app.coordinator(logger, build.WithRecorder(recorder))
	if err != nil {
		return err
	}
	defer closeFn()

	// A failed first build still starts the server; the next change retries.
	if _, err := coord.Build(ctx); err != nil {
		logger.Warn("initial build failed", slog.String("error", err.Error()))
	}

	settings := coord.Settings()
	router := preview.NewRouter(preview.RouterOptions{
		Site: preview.Site{
			BuildDir:   settings.BuildDir,
			PublicDir:  settings.PublicDir,
			ContentDir: settings.ContentDir,
		},
		Reload:  hub,
		Metrics: recorder.HTTPHandler(),
		Logger:  logger,
	})

	skipDirs := []string{settings.BuildDir}
	if path := cfg.ManifestFile(); path != "" {
		skipDirs = append(skipDirs, filepath.Dir(path))
	}
	filter, err := watch.NewFilter(settings.BaseDir, skipDirs, cfg.Serve.WatchExcludes, cfg.Serve.RespectGitignore)
	if err != nil {
		return err
	}
	loop := watch.New(settings.BaseDir, filter, cfg.Serve.Debounce.Duration, func(ctx context.Context) error {
		_, err := coord.Build(ctx)
		return err
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Serve.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.Serve.Address))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Watch the base dir and rebuild on change.
	g.Go(func() error {
		return loop.Run(gCtx)
	})

	// Forward successful rebuilds to connected browsers.
	g.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-loop.Reloads():
				n := hub.Broadcast(gCtx)
				logger.Debug("livereload: broadcast", slog.Int("clients", n))
			}
		}
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.Serve.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		hub.Close()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP serves the site tools over stdio. Logs go to the configured
// log output, which must not be stdout.
func ServeMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()

	coord, db, closeFn, err := app.coordinator(logger)
	if err != nil {
		return err
	}
	defer closeFn()

	settings := coord.Settings()
	content, err := storage.NewFS(settings.ContentDir)
	if err != nil {
		return fmt.Errorf("init content storage: %w", err)
	}
	output, err := storage.NewFS(settings.BuildDir)
	if err != nil {
		return fmt.Errorf("init output storage: %w", err)
	}

	mcpOpts := mcpserver.Options{Builder: coord, Content: content, Output: output}
	if db != nil {
		mcpOpts.Manifest = db
	}

	logger.Info("mcp: serving on stdio")
	return mcpserver.New(mcpOpts).ServeStdio()
}

// InitConfig writes cfg as TOML into its base dir. The written base_dir
// is "." so the file stays valid when the site moves.
func InitConfig(cfg *Config, overwrite bool) (string, error) {
	path := filepath.Join(cfg.Site.Path("."), ConfigFileName)
	out := *cfg
	out.Site.BaseDir = "."
	if err := pkgconfig.WriteTOML(path, &out, overwrite); err != nil {
		return "", err
	}
	return path, nil
}
