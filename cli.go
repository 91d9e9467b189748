package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/felipezacker/zcrm/app"
)

// Applicator defines the interface for the core application logic.
// This allows the CLI to be tested independently of the main app implementation.
type Applicator interface {
	Dump(ctx context.Context, opts app.Options) error
	Validate(ctx context.Context, opts app.Options) error
	Migrate(ctx context.Context, opts app.Options) error
}

// BuildCLI creates the full CLI command structure for the application.
// It injects the core application logic (the Applicator) into the command actions.
func BuildCLI(a Applicator) *cli.Command {
	// Flags common to every command.
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to an optional yaml configuration file",
	}
	dirFlag := &cli.StringFlag{
		Name:    "dir",
		Aliases: []string{"out", "d"},
		Usage:   "dump directory (default from configuration: data/dumps)",
	}
	logLevelFlag := &cli.StringFlag{
		Name:  "log-level",
		Value: "info",
		Usage: "log verbosity: debug, info, warn or error",
	}

	common := func(c *cli.Command) app.Options {
		return app.Options{
			ConfigPath: c.String("config"),
			Dir:        c.String("dir"),
			LogLevel:   c.String("log-level"),
		}
	}

	dumpCmd := &cli.Command{
		Name:  "dump",
		Usage: "Extract every DataCrazy entity into the dump directory",
		Flags: []cli.Flag{configFlag, dirFlag, logLevelFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return a.Dump(ctx, common(c))
		},
	}

	validateCmd := &cli.Command{
		Name:  "validate",
		Usage: "Report record counts and missing references in a dump",
		Flags: []cli.Flag{configFlag, dirFlag, logLevelFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return a.Validate(ctx, common(c))
		},
	}

	migrateCmd := &cli.Command{
		Name:  "migrate",
		Usage: "Load a dump into the ZmobCRM database",
		Flags: []cli.Flag{
			configFlag,
			dirFlag,
			logLevelFlag,
			&cli.BoolFlag{Name: "dry-run", Usage: "transform everything but write nothing"},
			&cli.StringFlag{Name: "entity", Usage: "migrate a single entity, such as deals"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "do not ask for confirmation"},
			&cli.IntFlag{Name: "batch", Usage: "rows per upsert statement (default from configuration: 500)"},
			&cli.StringFlag{Name: "driver", Usage: "target database driver: postgres or sqlite"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			opts := common(c)
			opts.DryRun = c.Bool("dry-run")
			opts.Entity = c.String("entity")
			opts.Force = c.Bool("force")
			opts.Driver = c.String("driver")
			if c.IsSet("batch") {
				batch := c.Int("batch")
				if batch < 1 {
					return fmt.Errorf("--batch must be at least 1, got %d", batch)
				}
				opts.Batch = batch
			}
			return a.Migrate(ctx, opts)
		},
	}

	// Assemble the root command.
	rootCmd := &cli.Command{
		Name:     "zcrm-migrate",
		Usage:    "Migrate a DataCrazy CRM account to ZmobCRM",
		Commands: []*cli.Command{dumpCmd, validateCmd, migrateCmd},
	}

	return rootCmd
}
