package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
)

// ErrNoOrganization reports a target database with no organization to migrate into.
var ErrNoOrganization = errors.New("no organization found")

// ErrInvalidIdentifier reports a table, column or function name that is not a plain
// SQL identifier.
var ErrInvalidIdentifier = errors.New("invalid sql identifier")

var identifierRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validIdentifier reports whether s can be interpolated into a statement.
func validIdentifier(s string) bool {
	return identifierRegexp.MatchString(s)
}

// Organization is a ZmobCRM organization (tenant).
type Organization struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

// Count returns the number of rows in table.
func (db *DB) Count(ctx context.Context, table string) (int, error) {
	if !validIdentifier(table) {
		return 0, fmt.Errorf("table %q: %w", table, ErrInvalidIdentifier)
	}
	sb := db.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)").From(table)
	query, args := sb.Build()

	var n int
	if err := db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count %s failed: %w", table, err)
	}
	return n, nil
}

// CallRPC calls the database function name with no arguments, discarding its result.
func (db *DB) CallRPC(ctx context.Context, name string) error {
	if !validIdentifier(name) {
		return fmt.Errorf("function %q: %w", name, ErrInvalidIdentifier)
	}
	if _, err := db.ExecContext(ctx, "SELECT "+name+"()"); err != nil {
		return fmt.Errorf("rpc %s failed: %w", name, err)
	}
	return nil
}

// FirstOrganization returns the oldest organization that is not deleted.
func (db *DB) FirstOrganization(ctx context.Context) (Organization, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select("id", "name").
		From("organizations").
		Where(sb.IsNull("deleted_at")).
		OrderBy("created_at").Asc().
		Limit(1)
	query, args := sb.Build()

	var org Organization
	err := db.GetContext(ctx, &org, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return org, ErrNoOrganization
	}
	if err != nil {
		return org, fmt.Errorf("organization lookup failed: %w", err)
	}
	return org, nil
}
