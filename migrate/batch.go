package migrate

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/felipezacker/zcrm/transform"
)

// DefaultBatchSize is the number of rows written per statement.
const DefaultBatchSize = 500

// RowError is a row that could not be written, even on its own.
type RowError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult is the outcome of writing the rows of one table.
type BatchResult struct {
	Inserted      int
	Errors        []RowError
	BatchFailures int
}

// BatchUpsert writes rows to table in chunks of size. When a chunk fails, each of its
// rows is written on its own, ignoring duplicates, and rows that still fail are
// collected as RowErrors. The only error returned is a cancelled context.
func BatchUpsert(
	ctx context.Context,
	store Store,
	table string,
	conflict []string,
	rows []transform.Row,
	size int,
	logger *log.Logger,
) (BatchResult, error) {

	var res BatchResult
	if size < 1 {
		size = DefaultBatchSize
	}
	batches := (len(rows) + size - 1) / size

	for b := range batches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		start := b * size
		chunk := rows[start:min(start+size, len(rows))]

		err := store.Upsert(ctx, table, conflict, asAny(chunk), false)
		if err == nil {
			res.Inserted += len(chunk)
			logger.Info(fmt.Sprintf("%s: batch %d/%d", table, b+1, batches), "rows", len(chunk))
			continue
		}

		res.BatchFailures++
		logger.Warn(fmt.Sprintf("%s: batch %d/%d failed, retrying row by row", table, b+1, batches), "err", err)
		for _, r := range chunk {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if err := store.Upsert(ctx, table, conflict, []any{r}, true); err != nil {
				res.Errors = append(res.Errors, RowError{ID: r.RowID(), Error: err.Error()})
				continue
			}
			res.Inserted++
		}
	}
	return res, nil
}

func asAny(rows []transform.Row) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

// asRows widens typed rows for BatchUpsert.
func asRows[T transform.Row](rows []T) []transform.Row {
	out := make([]transform.Row, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
