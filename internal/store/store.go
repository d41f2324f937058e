package store

import (
	"context"
	"fmt"

	"github.com/minseodaa/bankdrop/internal/config"
	"github.com/minseodaa/bankdrop/internal/model"
)

// Store is the durable home of BankRecords.
type Store interface {
	// EnsureSchema creates missing tables. Safe to call repeatedly and from
	// several processes.
	EnsureSchema(ctx context.Context) error

	// Insert appends rec and returns it with its assigned id.
	Insert(ctx context.Context, rec model.BankRecord) (model.StoredRecord, error)

	// InsertOnce appends rec unless fingerprint was already ingested, in
	// which case it returns the previously stored record and inserted=false.
	InsertOnce(ctx context.Context, fingerprint, source string, rec model.BankRecord) (stored model.StoredRecord, inserted bool, err error)

	// Count returns the number of rows in the bank table.
	Count(ctx context.Context) (int64, error)

	Close() error
}

// Error is returned for every failed store operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// Open connects to the backend named by cfg.Driver and ensures the schema.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
