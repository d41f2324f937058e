package ingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minseodaa/bankdrop/internal/auditlog"
	"github.com/minseodaa/bankdrop/internal/extract"
	"github.com/minseodaa/bankdrop/internal/model"
	"github.com/minseodaa/bankdrop/internal/store"
)

const leftDoc = `{"Left":{"bank":"X","account_number":"123","name":"A","amount":"50"},"Right":{"bank":"Y"}}`

func openStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeDoc(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

type failingStore struct{}

func (failingStore) Insert(context.Context, model.BankRecord) (model.StoredRecord, error) {
	return model.StoredRecord{}, &store.Error{Op: "insert", Err: errors.New("disk I/O error")}
}

func (failingStore) InsertOnce(context.Context, string, string, model.BankRecord) (model.StoredRecord, bool, error) {
	return model.StoredRecord{}, false, &store.Error{Op: "insert once", Err: errors.New("disk I/O error")}
}

func TestProcess_Inserted(t *testing.T) {
	var logs bytes.Buffer
	s := openStore(t)
	p := New(s, Options{Logger: quietLogger(&logs)})
	path := writeDoc(t, t.TempDir(), "analysis_1.json", leftDoc)

	out := p.Process(context.Background(), SourceBatch, path)

	require.Equal(t, model.StatusInserted, out.Status)
	require.NotNil(t, out.Record)
	assert.Equal(t, int64(1), out.Record.ID)
	assert.Equal(t, model.BankRecord{Bank: "X", AccountNumber: "123", Name: "A", Amount: 50}, out.Record.BankRecord)
	assert.Empty(t, out.Fingerprint)
	assert.NoError(t, out.Err)
	assert.Contains(t, logs.String(), "ingest: stored record")
	assert.Contains(t, logs.String(), "id=1")
}

func TestProcess_Skipped(t *testing.T) {
	var logs bytes.Buffer
	s := openStore(t)
	p := New(s, Options{Logger: quietLogger(&logs)})
	path := writeDoc(t, t.TempDir(), "right_only.json", `{"Right":{"bank":"Y"}}`)

	out := p.Process(context.Background(), SourceBatch, path)

	assert.Equal(t, model.StatusSkipped, out.Status)
	assert.Nil(t, out.Record)
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, logs.String(), "no Left section")
}

func TestProcess_ParseError(t *testing.T) {
	var logs bytes.Buffer
	p := New(openStore(t), Options{Logger: quietLogger(&logs)})
	path := writeDoc(t, t.TempDir(), "broken.json", `{"Left":`)

	out := p.Process(context.Background(), SourceWatch, path)

	assert.Equal(t, model.StatusFailed, out.Status)
	var pe *extract.ParseError
	assert.True(t, errors.As(out.Err, &pe))
	assert.Contains(t, logs.String(), "ingest: failed")
	assert.Contains(t, logs.String(), "broken.json")
}

func TestProcess_ReadError(t *testing.T) {
	var logs bytes.Buffer
	p := New(openStore(t), Options{Logger: quietLogger(&logs)})

	out := p.Process(context.Background(), SourceWatch, filepath.Join(t.TempDir(), "gone.json"))

	assert.Equal(t, model.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, os.ErrNotExist)
}

func TestProcess_StoreError(t *testing.T) {
	var logs bytes.Buffer
	p := New(failingStore{}, Options{Logger: quietLogger(&logs)})
	path := writeDoc(t, t.TempDir(), "a.json", leftDoc)

	out := p.Process(context.Background(), SourceBatch, path)

	assert.Equal(t, model.StatusFailed, out.Status)
	var se *store.Error
	assert.True(t, errors.As(out.Err, &se))
	assert.Contains(t, logs.String(), "disk I/O error")
}

func TestProcess_SameFileTwiceWithoutDedup(t *testing.T) {
	var logs bytes.Buffer
	s := openStore(t)
	p := New(s, Options{Logger: quietLogger(&logs)})
	path := writeDoc(t, t.TempDir(), "a.json", leftDoc)

	first := p.Process(context.Background(), SourceWatch, path)
	second := p.Process(context.Background(), SourceWatch, path)

	assert.Equal(t, model.StatusInserted, first.Status)
	assert.Equal(t, model.StatusInserted, second.Status)
	assert.NotEqual(t, first.Record.ID, second.Record.ID)
}

func TestProcess_Dedup(t *testing.T) {
	var logs bytes.Buffer
	s := openStore(t)
	p := New(s, Options{Dedup: true, Logger: quietLogger(&logs)})
	dir := t.TempDir()
	a := writeDoc(t, dir, "a.json", leftDoc)
	b := writeDoc(t, dir, "b.json", leftDoc) // same body, different name

	first := p.Process(context.Background(), SourceBatch, a)
	second := p.Process(context.Background(), SourceBatch, b)

	require.Equal(t, model.StatusInserted, first.Status)
	require.Equal(t, model.StatusDuplicate, second.Status)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Len(t, first.Fingerprint, 64)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProcess_WritesAuditLog(t *testing.T) {
	var logs bytes.Buffer
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "ingest-log.csv")
	p := New(openStore(t), Options{
		Audit:  auditlog.New(logPath),
		RunID:  "run-1",
		Logger: quietLogger(&logs),
	})

	p.Process(context.Background(), SourceBatch, writeDoc(t, dir, "ok.json", leftDoc))
	p.Process(context.Background(), SourceBatch, writeDoc(t, dir, "none.json", `[]`))
	p.Process(context.Background(), SourceBatch, writeDoc(t, dir, "bad.json", `nope`))

	entries, err := auditlog.Read(logPath)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "inserted", entries[0].Status)
	assert.Equal(t, int64(1), entries[0].RecordID)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, "batch", entries[0].Source)

	assert.Equal(t, "skipped", entries[1].Status)
	assert.Zero(t, entries[1].RecordID)

	assert.Equal(t, "failed", entries[2].Status)
	assert.Contains(t, entries[2].Error, "parsing JSON")
	assert.Equal(t, filepath.Join(dir, "bad.json"), entries[2].Path)
}

func TestProcess_ArchivesNonFailed(t *testing.T) {
	var logs bytes.Buffer
	dir := t.TempDir()
	archive := filepath.Join(dir, "processed")
	p := New(openStore(t), Options{ArchiveDir: archive, Logger: quietLogger(&logs)})

	ok := writeDoc(t, dir, "ok.json", leftDoc)
	skipped := writeDoc(t, dir, "skipped.json", `{"Right":{}}`)
	bad := writeDoc(t, dir, "bad.json", `{`)

	p.Process(context.Background(), SourceBatch, ok)
	p.Process(context.Background(), SourceBatch, skipped)
	p.Process(context.Background(), SourceBatch, bad)

	for _, name := range []string{"ok.json", "skipped.json"} {
		_, err := os.Stat(filepath.Join(archive, name))
		assert.NoError(t, err, "%s should be archived", name)
		_, err = os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s should leave the results dir", name)
	}
	_, err := os.Stat(bad)
	assert.NoError(t, err, "failed files stay in place")
}

func TestAppend(t *testing.T) {
	var logs bytes.Buffer
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.csv")
	s := openStore(t)
	p := New(s, Options{Audit: auditlog.New(logPath), Logger: quietLogger(&logs)})

	stored, err := p.Append(context.Background(), model.BankRecord{Bank: "Z", Amount: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ID)

	entries, err := auditlog.Read(logPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "append", entries[0].Source)
	assert.Equal(t, int64(1), entries[0].RecordID)
}

func TestAppend_StoreError(t *testing.T) {
	var logs bytes.Buffer
	p := New(failingStore{}, Options{Logger: quietLogger(&logs)})

	_, err := p.Append(context.Background(), model.BankRecord{Bank: "Z"})
	require.Error(t, err)
	assert.Contains(t, logs.String(), "ingest: failed")
}

func TestDiscard_WritesAuditLog(t *testing.T) {
	var logs bytes.Buffer
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.csv")
	p := New(openStore(t), Options{Audit: auditlog.New(logPath), RunID: "run-2", Logger: quietLogger(&logs)})

	out := p.Discard(SourceWatch, filepath.Join(dir, "gone.json"), errors.New("file vanished"))
	assert.Equal(t, model.StatusDropped, out.Status)

	entries, err := auditlog.Read(logPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dropped", entries[0].Status)
	assert.Equal(t, "watch", entries[0].Source)
	assert.Equal(t, filepath.Join(dir, "gone.json"), entries[0].Path)
	assert.Equal(t, "file vanished", entries[0].Error)
	assert.Contains(t, logs.String(), "ingest: dropped")
}
