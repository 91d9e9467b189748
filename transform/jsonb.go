package transform

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB wraps a value stored in a json or jsonb column.
type JSONB[T any] struct {
	Data T
}

// NewJSONB wraps v.
func NewJSONB[T any](v T) JSONB[T] {
	return JSONB[T]{Data: v}
}

// Scan implements sql.Scanner. Postgres returns []byte and sqlite returns string.
func (p *JSONB[T]) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, &p.Data)
	case string:
		return json.Unmarshal([]byte(v), &p.Data)
	case nil:
		var zero T
		p.Data = zero
		return nil
	default:
		return fmt.Errorf("JSONB.Scan: expected []byte or string, got %T", src)
	}
}

// Value implements driver.Valuer. The encoding is sent as text since lib/pq encodes
// []byte parameters as bytea.
func (p JSONB[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(p.Data)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// MarshalJSON keeps rows written to error files readable.
func (p JSONB[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Data)
}
