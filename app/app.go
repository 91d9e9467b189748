// Package app wires configuration, the DataCrazy client, the dump files and the target
// database into the dump, validate and migrate commands.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/term"

	"github.com/felipezacker/zcrm/apiclients/datacrazy"
	"github.com/felipezacker/zcrm/config"
	"github.com/felipezacker/zcrm/db"
	"github.com/felipezacker/zcrm/dump"
	"github.com/felipezacker/zcrm/extract"
	"github.com/felipezacker/zcrm/migrate"
	"github.com/felipezacker/zcrm/validate"
)

// ErrNotTerminal is returned when confirmation is needed but cannot be asked for.
var ErrNotTerminal = errors.New("stdin is not a terminal: use --force to migrate without confirmation")

// Options are the command line settings shared by the commands. Zero values leave the
// configuration untouched.
type Options struct {
	ConfigPath string
	Dir        string
	LogLevel   string

	// migrate only
	DryRun bool
	Entity string
	Force  bool
	Batch  int
	Driver string
}

// App is the central orchestrator for the application's business logic.
type App struct {
	stdout     io.Writer
	stderr     io.Writer
	stdin      io.Reader
	isTerminal func() bool
	now        func() time.Time
}

// New creates an App attached to the process standard streams.
func New() *App {
	return &App{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		stdin:      os.Stdin,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		now:        time.Now,
	}
}

// logger returns a console logger for a stage.
func (a *App) logger(stage, level string) (*log.Logger, error) {
	lvl := log.InfoLevel
	if level != "" {
		var err error
		lvl, err = log.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	return log.NewWithOptions(a.stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          stage,
		Level:           lvl,
	}), nil
}

// loadConfig loads the configuration and applies the flag overrides.
func (a *App) loadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Dir != "" {
		cfg.DumpDir = opts.Dir
	}
	if opts.Driver != "" {
		switch opts.Driver {
		case db.DriverPostgres, db.DriverSQLite:
		default:
			return nil, fmt.Errorf("--driver must be %s or %s, got %q", db.DriverPostgres, db.DriverSQLite, opts.Driver)
		}
		cfg.Target.Driver = opts.Driver
	}
	if opts.Batch < 0 {
		return nil, fmt.Errorf("--batch must be at least 1, got %d", opts.Batch)
	}
	if opts.Batch > 0 {
		cfg.Target.BatchSize = opts.Batch
	}
	return cfg, nil
}

// Dump extracts every DataCrazy entity into the dump directory.
func (a *App) Dump(ctx context.Context, opts Options) error {
	cfg, err := a.loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.RequireExtractor(); err != nil {
		return err
	}
	logger, err := a.logger("dump", opts.LogLevel)
	if err != nil {
		return err
	}

	client, err := datacrazy.NewClient(cfg.DataCrazy, slog.New(logger))
	if err != nil {
		return fmt.Errorf("failed to create datacrazy client: %w", err)
	}

	start := a.now()
	summary, err := extract.New(client, cfg.DumpDir, logger).Run(ctx)
	if err != nil {
		return err
	}
	extract.PrintSummary(a.stdout, summary, a.now().Sub(start))
	return nil
}

// Validate prints the integrity report of the dump. Missing references are reported
// as ErrIntegrityGaps after the report is printed.
func (a *App) Validate(ctx context.Context, opts Options) error {
	cfg, err := a.loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := a.logger("validate", opts.LogLevel)
	if err != nil {
		return err
	}

	logger.Info("loading dump", "dir", cfg.DumpDir)
	d, err := dump.Load(cfg.DumpDir)
	if err != nil {
		return err
	}
	report := validate.Check(d)
	report.Print(a.stdout)
	if report.HasIntegrityGaps() {
		return validate.ErrIntegrityGaps
	}
	return nil
}

// Migrate loads the dump into the target database.
func (a *App) Migrate(ctx context.Context, opts Options) error {
	cfg, err := a.loadConfig(opts)
	if err != nil {
		return err
	}
	if err := migrate.ValidateEntity(opts.Entity); err != nil {
		return err
	}
	if err := cfg.RequireLoader(); err != nil {
		return err
	}
	logger, err := a.logger("migrate", opts.LogLevel)
	if err != nil {
		return err
	}

	d, err := dump.Load(cfg.DumpDir)
	if err != nil {
		return err
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return err
	}
	store, err := db.NewConnection(cfg.Target.Driver, dsn, logger, cfg.Target.DisableTriggerRPC, cfg.Target.EnableTriggerRPC)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if store.Driver() == db.DriverSQLite {
		mount, err := db.SchemaMount(cfg.Target.SchemaDir)
		if err != nil {
			return err
		}
		logger.Debug(mount.String())
		if err := store.InitSchema(mount, db.SchemaFile); err != nil {
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
	}

	org, err := store.FirstOrganization(ctx)
	if err != nil {
		return fmt.Errorf("pre-flight check failed: %w", err)
	}
	logger.Info("target organization", "name", org.Name, "id", org.ID)

	if !opts.Force && !opts.DryRun {
		n := len(d.Leads) + len(d.Businesses) + len(d.Products) + len(d.Tags)
		ok, err := a.confirm(fmt.Sprintf("Migrate %d records into organization %s? [y/N] ", n, org.Name))
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("migration aborted")
			return nil
		}
	}

	m, err := migrate.New(store, migrate.Options{
		OrganizationID:    org.ID,
		BatchSize:         cfg.Target.BatchSize,
		DryRun:            opts.DryRun,
		Entity:            opts.Entity,
		ErrorsDir:         cfg.ErrorsDir,
		DisableTriggerRPC: cfg.Target.DisableTriggerRPC,
		EnableTriggerRPC:  cfg.Target.EnableTriggerRPC,
	}, logger)
	if err != nil {
		return err
	}

	report, err := m.Run(ctx, d)
	if report != nil {
		report.Print(a.stdout)
	}
	if err != nil {
		return err
	}
	if n := report.TotalErrors(); n > 0 && !opts.DryRun {
		return fmt.Errorf("%w: %d rows, see the error files", migrate.ErrRowErrors, n)
	}
	return nil
}

// confirm asks a yes or no question on the terminal. Only "y" confirms.
func (a *App) confirm(prompt string) (bool, error) {
	if !a.isTerminal() {
		return false, ErrNotTerminal
	}
	fmt.Fprint(a.stdout, prompt)
	answer, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("could not read answer: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y"), nil
}
