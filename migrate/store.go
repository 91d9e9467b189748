package migrate

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

// Store is the database the migration writes to. *db.DB satisfies it.
type Store interface {
	Upsert(ctx context.Context, table string, conflict []string, rows []any, ignoreDuplicates bool) error
	Count(ctx context.Context, table string) (int, error)
	CallRPC(ctx context.Context, name string) error
}

// dryRunStore writes nothing and logs what would have been written.
type dryRunStore struct {
	log *log.Logger
}

func (s dryRunStore) Upsert(ctx context.Context, table string, conflict []string, rows []any, ignoreDuplicates bool) error {
	s.log.Info(fmt.Sprintf("would upsert %d rows into %s", len(rows), table))
	return nil
}

func (s dryRunStore) Count(ctx context.Context, table string) (int, error) {
	return 0, nil
}

func (s dryRunStore) CallRPC(ctx context.Context, name string) error {
	s.log.Debug("would call " + name)
	return nil
}
