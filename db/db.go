// Package db is the store written to by the migration. The production target is the
// ZmobCRM Postgres database on Supabase. A sqlite database with the same tables serves
// as a local rehearsal target, and is what the tests run against.
//
// Statements are built with go-sqlbuilder in the flavor matching the driver, so the same
// upsert runs unchanged on both.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx" // helper library
	_ "github.com/lib/pq"     // postgres driver
	_ "modernc.org/sqlite"    // pure go sqlite driver

	"github.com/felipezacker/zcrm/internal/mounts"
)

// Drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SQLEmbeddedFS holds the rehearsal schema.
//
//go:embed sql
var SQLEmbeddedFS embed.FS

// SchemaFile is the schema file name in the sql mount.
const SchemaFile = "schema.sql"

// DB provides a wrapper around the sqlx connection for the migration's store
// operations.
type DB struct {
	*sqlx.DB
	driver string
	flavor sqlbuilder.Flavor
	log    *log.Logger
}

// NewConnection opens and pings a database. For sqlite, rpcs names functions registered
// as no-ops so that trigger toggles behave as they do on Supabase.
func NewConnection(driver, dsn string, logger *log.Logger, rpcs ...string) (*DB, error) {

	var flavor sqlbuilder.Flavor
	dataSource := dsn
	switch driver {
	case DriverPostgres:
		flavor = sqlbuilder.PostgreSQL
	case DriverSQLite:
		flavor = sqlbuilder.SQLite
		var err error
		dataSource, err = sqliteDataSource(dsn)
		if err != nil {
			return nil, err
		}
		// Registration must precede the first connection.
		if err := RegisterFunctions(rpcs...); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	dbDB, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// sqlite allows one writer; a single connection also keeps shared in-memory
		// databases alive for the life of the DB.
		dbDB.SetMaxOpenConns(1)
	}
	if err := dbDB.Ping(); err != nil {
		_ = dbDB.Close()
		return nil, fmt.Errorf("could not connect to %s database: %w", driver, err)
	}

	if logger == nil {
		logger = log.New(nil)
	}
	return &DB{
		DB:     sqlx.NewDb(dbDB, driver),
		driver: driver,
		flavor: flavor,
		log:    logger,
	}, nil
}

// sqliteDataSource adds the foreign key pragma to a sqlite path, and WAL journaling for
// file databases.
func sqliteDataSource(dsn string) (string, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	// in-memory test databases need the shared cache to survive reconnection.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		if !strings.Contains(dsn, "cache=shared") {
			return "", fmt.Errorf("in-memory connection %q should contain 'cache=shared'", dsn)
		}
		return dsn + sep + "_pragma=foreign_keys(1)", nil
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", nil
}

// Driver reports the database driver name.
func (db *DB) Driver() string {
	return db.driver
}

// SchemaMount mounts the sql directory, either embedded or from dir when it is not
// empty.
func SchemaMount(dir string) (*mounts.FileMount, error) {
	return mounts.NewFileMount("sql", SQLEmbeddedFS, dir)
}

// InitSchema creates the necessary tables if they don't already exist. The schema file
// can be run idempotently.
func (db *DB) InitSchema(fileFS fs.FS, filePath string) error {

	schema, err := fs.ReadFile(fileFS, filePath)
	if err != nil {
		return fmt.Errorf("could not read schema file at %q: %w", filePath, err)
	}

	_, err = db.ExecContext(context.Background(), string(schema))
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}
