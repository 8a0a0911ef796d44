package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/sylvanet/arbor/internal"
	"github.com/sylvanet/arbor/internal/federation"
	"github.com/sylvanet/arbor/internal/mcpserver"
	"github.com/sylvanet/arbor/internal/slurfilter"
	"github.com/sylvanet/arbor/internal/store"
	pkgconfig "github.com/sylvanet/arbor/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// runMCP serves the read-only MCP tools over stdio against the same store
// and resolver the HTTP server uses.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	slurs, err := slurfilter.LoadFile(cfg.Slurs.PatternFile)
	if err != nil {
		return fmt.Errorf("init slur filter: %w", err)
	}
	fetcher := federation.NewHTTPFetcher(0, cfg.Federation.FetchesPerSecond, cfg.Federation.UserAgent, nil)
	conv := federation.NewConverter(st, fetcher, slurs, cfg.Federation.Domain)

	return mcpserver.New(st, conv, cfg.Federation.Limit()).ServeStdio()
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:   "arbor",
		Usage:  "Federated discussion server: resolves and exchanges signed comment objects between instances",
		Action: run,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve-mcp",
				Usage:  "Serve read-only MCP tools over stdio",
				Action: runMCP,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
