package db

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// column is a row struct field written to the column name.
type column struct {
	name  string
	index int
}

// columns returns the top level `db` tagged fields of a row type, in field order.
// Nested struct fields, such as the payload of a json column, are not columns.
func (db *DB) columns(t reflect.Type) ([]column, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("row type %s is not a struct", t)
	}
	var cols []column
	for _, fi := range db.Mapper.TypeMap(t).Index {
		if len(fi.Index) != 1 || fi.Name == "" {
			continue
		}
		if !validIdentifier(fi.Name) {
			return nil, fmt.Errorf("column %q of %s: %w", fi.Name, t, ErrInvalidIdentifier)
		}
		cols = append(cols, column{fi.Name, fi.Index[0]})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("row type %s has no db tagged fields", t)
	}
	return cols, nil
}

// Upsert writes rows to table in a single statement. Rows conflicting on the conflict
// columns are updated in place, or left untouched when ignoreDuplicates is set. All rows
// must be of the same struct type.
func (db *DB) Upsert(ctx context.Context, table string, conflict []string, rows []any, ignoreDuplicates bool) error {
	if len(rows) == 0 {
		return nil
	}
	query, args, err := db.upsertStatement(table, conflict, rows, ignoreDuplicates)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert into %s failed: %w", table, err)
	}
	db.log.Debug("upserted", "table", table, "rows", len(rows))
	return nil
}

// upsertStatement builds the INSERT ... ON CONFLICT statement for Upsert.
func (db *DB) upsertStatement(table string, conflict []string, rows []any, ignoreDuplicates bool) (string, []any, error) {
	if !validIdentifier(table) {
		return "", nil, fmt.Errorf("table %q: %w", table, ErrInvalidIdentifier)
	}
	if len(conflict) == 0 {
		return "", nil, errors.New("upsert needs at least one conflict column")
	}

	first := reflect.Indirect(reflect.ValueOf(rows[0]))
	rowType := first.Type()
	cols, err := db.columns(rowType)
	if err != nil {
		return "", nil, err
	}

	names := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
		quoted[i] = db.flavor.Quote(c.name)
	}
	for _, c := range conflict {
		if !slices.Contains(names, c) {
			return "", nil, fmt.Errorf("conflict column %q is not a column of %s", c, rowType)
		}
	}

	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(quoted...)
	for i, r := range rows {
		v := reflect.Indirect(reflect.ValueOf(r))
		if v.Type() != rowType {
			return "", nil, fmt.Errorf("row %d is a %s, expected %s", i, v.Type(), rowType)
		}
		values := make([]any, len(cols))
		for j, c := range cols {
			values[j] = v.Field(c.index).Interface()
		}
		ib.Values(values...)
	}
	ib.SQL(db.onConflict(conflict, names, ignoreDuplicates))

	query, args := ib.Build()
	return query, args, nil
}

// onConflict renders the conflict clause. Every non-conflict column is overwritten
// from the excluded row unless duplicates are ignored.
func (db *DB) onConflict(conflict, names []string, ignoreDuplicates bool) string {
	target := make([]string, len(conflict))
	for i, c := range conflict {
		target[i] = db.flavor.Quote(c)
	}
	clause := "ON CONFLICT (" + strings.Join(target, ", ") + ")"

	var set []string
	for _, n := range names {
		if slices.Contains(conflict, n) {
			continue
		}
		q := db.flavor.Quote(n)
		set = append(set, q+" = EXCLUDED."+q)
	}
	if ignoreDuplicates || len(set) == 0 {
		return clause + " DO NOTHING"
	}
	return clause + " DO UPDATE SET " + strings.Join(set, ", ")
}
