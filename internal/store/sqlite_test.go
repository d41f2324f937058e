package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minseodaa/bankdrop/internal/config"
	"github.com/minseodaa/bankdrop/internal/model"
)

// createTestStore opens a fresh SQLite store in a temp dir.
func createTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(n int) model.BankRecord {
	return model.BankRecord{
		Bank:          fmt.Sprintf("bank-%d", n),
		AccountNumber: fmt.Sprintf("110-%04d", n),
		Name:          fmt.Sprintf("holder-%d", n),
		Amount:        int64(n * 100),
	}
}

func TestOpenSQLite_CreatesDatabaseAndParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "bank.db")

	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	s := createTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	s := createTestStore(t)

	// No idle connections: each query below runs on a freshly opened one.
	s.db.SetMaxIdleConns(0)

	for i := 0; i < 2; i++ {
		var timeout, fk int
		require.NoError(t, s.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
		require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
		assert.Equal(t, 10000, timeout)
		assert.Equal(t, 1, fk)
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/data/bank.db")
	assert.Equal(t, "/data/bank.db?"+
		"_pragma=journal_mode%28WAL%29&_pragma=synchronous%28NORMAL%29&"+
		"_pragma=busy_timeout%2810000%29&_pragma=foreign_keys%281%29", dsn)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.db")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(ctx, path)
		require.NoError(t, err, "open iteration %d", i)
		require.NoError(t, s.EnsureSchema(ctx))
		require.NoError(t, s.EnsureSchema(ctx))
		_, err = s.Insert(ctx, record(i))
		require.NoError(t, err)
		s.Close()
	}

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "reopening must not drop rows")

	for _, table := range []string{"bank", "ingested_documents"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestEnsureSchema_ExistingLegacyTable(t *testing.T) {
	// Databases created by the previous ingester already hold the bank table
	// and may contain NULL columns.
	path := filepath.Join(t.TempDir(), "bank.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	_, err = s.db.Exec("INSERT INTO bank (bank, account_number, name, amount) VALUES (NULL, NULL, NULL, NULL)")
	require.NoError(t, err)
	s.Close()

	s, err = OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	stored, err := s.Insert(context.Background(), record(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.ID)
}

func TestInsert_AssignsIncreasingIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const n = 10
	var prev int64
	for i := 0; i < n; i++ {
		stored, err := s.Insert(ctx, record(i))
		require.NoError(t, err)
		assert.Greater(t, stored.ID, prev)
		assert.Equal(t, record(i), stored.BankRecord)
		prev = stored.ID
	}

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)
}

func TestInsert_RoundTripsColumns(t *testing.T) {
	s := createTestStore(t)
	rec := model.BankRecord{Bank: "Kakao Bank", AccountNumber: "3333-01-1234567", Name: "Hong Gildong", Amount: -1500}

	stored, err := s.Insert(context.Background(), rec)
	require.NoError(t, err)

	var got model.BankRecord
	err = s.db.QueryRow("SELECT bank, account_number, name, amount FROM bank WHERE id = ?", stored.ID).
		Scan(&got.Bank, &got.AccountNumber, &got.Name, &got.Amount)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestInsert_DoesNotDeduplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a, err := s.Insert(ctx, record(1))
	require.NoError(t, err)
	b, err := s.Insert(ctx, record(1))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestInsert_ConcurrentCallers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const workers, perWorker = 8, 25
	ids := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				stored, err := s.Insert(ctx, record(w*perWorker+i))
				if !assert.NoError(t, err) {
					return
				}
				ids <- stored.ID
			}
		}(w)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*perWorker)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), n)
}

func TestInsertOnce_SameFingerprintStoredOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, inserted, err := s.InsertOnce(ctx, "fp-1", "a.json", record(1))
	require.NoError(t, err)
	assert.True(t, inserted)

	second, inserted, err := s.InsertOnce(ctx, "fp-1", "copy-of-a.json", record(1))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first, second)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInsertOnce_RollbackKeepsIDsDense(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a, _, err := s.InsertOnce(ctx, "fp-a", "a.json", record(1))
	require.NoError(t, err)
	_, _, err = s.InsertOnce(ctx, "fp-a", "a.json", record(1))
	require.NoError(t, err)
	b, inserted, err := s.InsertOnce(ctx, "fp-b", "b.json", record(2))
	require.NoError(t, err)
	require.True(t, inserted)

	assert.Equal(t, a.ID+1, b.ID)
}

func TestInsertOnce_DistinctFingerprints(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, inserted, err := s.InsertOnce(ctx, fmt.Sprintf("fp-%d", i), "x.json", record(1))
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	var source string
	require.NoError(t, s.db.QueryRow("SELECT source FROM ingested_documents WHERE fingerprint = 'fp-3'").Scan(&source))
	assert.Equal(t, "x.json", source)
}

func TestInsert_ClosedStoreReturnsStoreError(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bank.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Insert(context.Background(), record(1))
	require.Error(t, err)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "insert", se.Op)
	assert.Contains(t, err.Error(), "store: insert")
}

func TestOpen_SelectsSQLite(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bank.db")})
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.(*SQLite)
	assert.True(t, ok)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func TestOpenSQLite_Memory(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Insert(context.Background(), record(1))
	require.NoError(t, err)
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
