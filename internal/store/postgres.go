package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minseodaa/bankdrop/internal/model"
)

//go:embed schema_postgres.sql
var postgresSchema string

// schemaLockKey guards concurrent EnsureSchema calls from several processes;
// CREATE TABLE IF NOT EXISTS alone can race on the catalog.
const schemaLockKey = 0x62616e6b // "bank"

// Postgres is the PostgreSQL Store backend.
type Postgres struct {
	pool *pgxpool.Pool
	mu   sync.Mutex
}

// OpenPostgres connects to dsn and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, storeErr("open", fmt.Errorf("parsing dsn: %w", err))
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storeErr("open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storeErr("open", fmt.Errorf("connecting: %w", err))
	}

	s := &Postgres{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tables under a transaction-scoped advisory lock.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("ensure schema", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", schemaLockKey); err != nil {
		return storeErr("ensure schema", fmt.Errorf("advisory lock: %w", err))
	}
	if _, err := tx.Exec(ctx, postgresSchema); err != nil {
		return storeErr("ensure schema", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("ensure schema", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Insert appends rec to the bank table.
func (s *Postgres) Insert(ctx context.Context, rec model.BankRecord) (model.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := insertPostgres(ctx, s.pool, rec)
	if err != nil {
		return model.StoredRecord{}, storeErr("insert", err)
	}
	return model.StoredRecord{ID: id, BankRecord: rec}, nil
}

// InsertOnce appends rec unless fingerprint is already recorded. A rolled
// back attempt still consumes a sequence value, so ids may have gaps.
func (s *Postgres) InsertOnce(ctx context.Context, fingerprint, source string, rec model.BankRecord) (model.StoredRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.StoredRecord{}, false, storeErr("insert once", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	id, err := insertPostgres(ctx, tx, rec)
	if err != nil {
		return model.StoredRecord{}, false, storeErr("insert once", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO ingested_documents (fingerprint, record_id, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (fingerprint) DO NOTHING
	`, fingerprint, id, source)
	if err != nil {
		return model.StoredRecord{}, false, storeErr("insert once", fmt.Errorf("claim fingerprint: %w", err))
	}

	if tag.RowsAffected() == 0 {
		var existing model.StoredRecord
		err := tx.QueryRow(ctx, `
			SELECT b.id, COALESCE(b.bank, ''), COALESCE(b.account_number, ''), COALESCE(b.name, ''), COALESCE(b.amount, 0)
			FROM ingested_documents d
			JOIN bank b ON b.id = d.record_id
			WHERE d.fingerprint = $1
		`, fingerprint).Scan(&existing.ID, &existing.Bank, &existing.AccountNumber, &existing.Name, &existing.Amount)
		if err != nil {
			return model.StoredRecord{}, false, storeErr("insert once", fmt.Errorf("select existing: %w", err))
		}
		return existing, false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return model.StoredRecord{}, false, storeErr("insert once", fmt.Errorf("commit: %w", err))
	}
	return model.StoredRecord{ID: id, BankRecord: rec}, true, nil
}

// Count returns the number of stored records.
func (s *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM bank").Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertPostgres(ctx context.Context, q queryRower, rec model.BankRecord) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO bank (bank, account_number, name, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, rec.Bank, rec.AccountNumber, rec.Name, rec.Amount).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errors.New("insert bank row: no id returned")
	}
	if err != nil {
		return 0, fmt.Errorf("insert bank row: %w", err)
	}
	return id, nil
}
