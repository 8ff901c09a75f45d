package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"primamateria.systems/alembic/internal/provisioner"
)

var Version string

func main() {
	ctx := context.Background()
	cliflags := make(map[string]any)

	var configFile string

	app := &cli.Command{
		Name:  "alembic",
		Usage: "Ensure the Victorian authorship attribution dataset is available locally",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Specified TOML config file",
				Required:    false,
				Destination: &configFile,
				Aliases:     []string{"c"},
				Sources:     cli.EnvVars("ALEMBIC_CONFIG"),
				Action: func(ctx context.Context, cCtx *cli.Command, v string) error {
					if v == "" {
						return errors.New("config file passed without value")
					}
					if _, err := os.Stat(v); err != nil && os.IsNotExist(err) {
						return errors.New("config file not found")
					} else if err != nil {
						return err
					}
					return nil
				},
			},
			&cli.BoolFlag{
				Name:    "force-download",
				Usage:   "Download the archive even if required files are present or a cached zip exists",
				Sources: cli.EnvVars("ALEMBIC_FORCE_DOWNLOAD"),
			},
			&cli.StringFlag{
				Name:  "archive-path",
				Usage: "Use an already-downloaded archive at the given path instead of fetching from the internet",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Only report missing files and clean-up actions without downloading or deleting anything",
			},
			&cli.BoolFlag{
				Name:  "keep-archive",
				Usage: "Retain the cached archive after extraction (default is to delete it)",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("ALEMBIC_DEBUG"),
				Action: func(ctx context.Context, cm *cli.Command, b bool) error {
					cliflags["debug"] = true
					return nil
				},
			},
		},
		Action: func(ctx context.Context, cCtx *cli.Command) error {
			p, err := setup(ctx, configFile, cliflags)
			if err != nil {
				return err
			}
			return p.Ensure(ctx, provisioner.EnsureOptions{
				ForceDownload: cCtx.Bool("force-download"),
				ArchivePath:   cCtx.String("archive-path"),
				DryRun:        cCtx.Bool("dry-run"),
				KeepArchive:   cCtx.Bool("keep-archive"),
			})
		},
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show which required dataset files are present",
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					p, err := setup(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					p.Status()
					return nil
				},
			},
			{
				Name:  "clean",
				Usage: "Remove redundant extraction byproducts without acquiring anything",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Report clean-up actions without deleting anything",
					},
				},
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					p, err := setup(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					if err := p.Cleanup(cCtx.Bool("dry-run")); err != nil {
						return err
					}
					p.ReportManualCleanup()
					return nil
				},
			},
			{
				Name:  "version",
				Usage: "show version",
				Action: func(_ context.Context, _ *cli.Command) error {
					fmt.Printf("alembic version %v\n", Version)
					return nil
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
