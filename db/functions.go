package db

// This functions.go registers Go functions with the sqlite driver as set out in the
// package docs for modernc.org/sqlite.RegisterFunction and
// modernc.org/sqlite.FunctionImpl.

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"modernc.org/sqlite"
)

var (
	registerMu sync.Mutex
	registered = map[string]bool{}
)

// noopFunc stands in for a Supabase RPC that has no sqlite equivalent, such as the
// deal trigger toggles.
func noopFunc(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	return nil, nil
}

// RegisterFunctions registers each name as a zero argument no-op function globally for
// all sqlite connections. Registration is global to the driver, so names already
// registered are skipped.
func RegisterFunctions(names ...string) error {
	registerMu.Lock()
	defer registerMu.Unlock()

	for _, name := range names {
		if name == "" || registered[name] {
			continue
		}
		if !validIdentifier(name) {
			return fmt.Errorf("cannot register function %q: %w", name, ErrInvalidIdentifier)
		}
		if err := sqlite.RegisterScalarFunction(name, 0, noopFunc); err != nil {
			return fmt.Errorf("could not register function %q: %w", name, err)
		}
		registered[name] = true
	}
	return nil
}
