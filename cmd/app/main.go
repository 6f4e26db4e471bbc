package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/weaving/internal"
	pkgconfig "github.com/starford/weaving/pkg/config"
)

// loadConfig applies the config file, when present, over the defaults.
// A relative base_dir in the file is taken relative to the file.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()

	base := cmd.String("path")
	configPath := cmd.String("config")
	if base != "" && !filepath.IsAbs(configPath) {
		configPath = filepath.Join(base, configPath)
	}

	_, statErr := os.Stat(configPath)
	switch {
	case statErr == nil:
		if err := pkgconfig.Load(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if !filepath.IsAbs(cfg.Site.BaseDir) {
			cfg.Site.BaseDir = filepath.Join(filepath.Dir(configPath), cfg.Site.BaseDir)
		}
	case !errors.Is(statErr, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", statErr)
	}

	if base != "" {
		cfg.Site.BaseDir = base
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func build(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Build(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app build error: %w", err)
	}
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr := cmd.String("address"); addr != "" {
		cfg.Serve.Address = addr
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func writeConfig(_ context.Context, cmd *cli.Command) error {
	cfg := internal.NewDefaultConfig()
	if base := cmd.String("path"); base != "" {
		cfg.Site.BaseDir = base
	}
	path, err := internal.InitConfig(cfg, cmd.Bool("force"))
	if err != nil {
		return err
	}
	slog.Info("config written", slog.String("path", path))
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func main() {
	cmd := &cli.Command{
		Name:  "weaving",
		Usage: "Static site builder with a live-reloading preview server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.toml, .yaml); missing means defaults",
				DefaultText: internal.ConfigFileName,
				Value:       internal.ConfigFileName,
				Sources:     cli.EnvVars("WEAVING_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "Site base directory, overrides site.base_dir",
				Sources: cli.EnvVars("WEAVING_BASE_PATH"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Build the site once",
				Action: build,
			},
			{
				Name:   "serve",
				Usage:  "Build, preview and rebuild on change",
				Action: serve,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "address",
						Aliases: []string{"a"},
						Usage:   "Listen address, overrides serve.address",
						Sources: cli.EnvVars("WEAVING_ADDRESS"),
					},
				},
			},
			{
				Name:   "config",
				Usage:  "Write a default " + internal.ConfigFileName,
				Action: writeConfig,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing config file",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve site tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
