package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/minseodaa/bankdrop/internal/model"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

const selectRecordByFingerprint = `
	SELECT b.id, COALESCE(b.bank, ''), COALESCE(b.account_number, ''), COALESCE(b.name, ''), COALESCE(b.amount, 0)
	FROM ingested_documents d
	JOIN bank b ON b.id = d.record_id
	WHERE d.fingerprint = ?`

// SQLite is the default Store backend.
type SQLite struct {
	db *sql.DB

	// mu serializes writes. The pool already holds a single connection;
	// the mutex keeps the insert and its LastInsertId read together.
	mu sync.Mutex
}

// sqlitePragmas are applied by the driver to every new connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(10000)",
	"foreign_keys(1)",
}

// sqliteDSN appends the connection pragmas to path.
func sqliteDSN(path string) string {
	q := make(url.Values)
	q["_pragma"] = sqlitePragmas
	return path + "?" + q.Encode()
}

// OpenSQLite creates or opens the database at path, applies pragmas and
// ensures the schema. Parent directories are created as needed.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, storeErr("open", fmt.Errorf("creating database dir: %w", err))
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, storeErr("open", err)
	}

	// SQLite supports a single writer; one connection avoids SQLITE_BUSY
	// inside the process and keeps ":memory:" databases on one handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storeErr("open", fmt.Errorf("connecting: %w", err))
	}

	s := &SQLite{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the bank and ingested_documents tables if missing.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return storeErr("ensure schema", err)
	}
	return nil
}

// Insert appends rec to the bank table.
func (s *SQLite) Insert(ctx context.Context, rec model.BankRecord) (model.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := insertSQLite(ctx, s.db, rec)
	if err != nil {
		return model.StoredRecord{}, storeErr("insert", err)
	}
	return model.StoredRecord{ID: id, BankRecord: rec}, nil
}

// InsertOnce appends rec and records fingerprint in one transaction. When
// the fingerprint is already present the transaction is rolled back and the
// earlier record is returned.
func (s *SQLite) InsertOnce(ctx context.Context, fingerprint, source string, rec model.BankRecord) (model.StoredRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.StoredRecord{}, false, storeErr("insert once", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // no-op after commit

	id, err := insertSQLite(ctx, tx, rec)
	if err != nil {
		return model.StoredRecord{}, false, storeErr("insert once", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO ingested_documents (fingerprint, record_id, source)
		VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, fingerprint, id, source)
	if err != nil {
		return model.StoredRecord{}, false, storeErr("insert once", fmt.Errorf("claim fingerprint: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.StoredRecord{}, false, storeErr("insert once", fmt.Errorf("rows affected: %w", err))
	}

	if n == 0 {
		var existing model.StoredRecord
		err := tx.QueryRowContext(ctx, selectRecordByFingerprint, fingerprint).Scan(
			&existing.ID, &existing.Bank, &existing.AccountNumber, &existing.Name, &existing.Amount)
		if err != nil {
			return model.StoredRecord{}, false, storeErr("insert once", fmt.Errorf("select existing: %w", err))
		}
		// Rollback discards the speculative bank row and its sequence bump.
		return existing, false, nil
	}

	if err := tx.Commit(); err != nil {
		return model.StoredRecord{}, false, storeErr("insert once", fmt.Errorf("commit: %w", err))
	}
	return model.StoredRecord{ID: id, BankRecord: rec}, true, nil
}

// Count returns the number of stored records.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bank").Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSQLite(ctx context.Context, db execer, rec model.BankRecord) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO bank (bank, account_number, name, amount)
		VALUES (?, ?, ?, ?)
	`, rec.Bank, rec.AccountNumber, rec.Name, rec.Amount)
	if err != nil {
		return 0, fmt.Errorf("insert bank row: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}
