// Package auditlog keeps a CSV trail of every per-file ingestion outcome,
// so the history of a results directory can be reconstructed after the fact.
package auditlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one row in the audit log.
type Entry struct {
	Timestamp   time.Time
	RunID       string
	Source      string // batch, watch or append
	Path        string
	Status      string
	RecordID    int64 // zero when nothing was stored
	Fingerprint string
	Error       string
}

// Header is the CSV header of the audit log.
const Header = "timestamp,run_id,source,path,status,record_id,fingerprint,error"

const (
	numFields      = 8
	colTimestamp   = 0
	colRunID       = 1
	colSource      = 2
	colPath        = 3
	colStatus      = 4
	colRecordID    = 5
	colFingerprint = 6
	colError       = 7
)

// NewRunID returns a fresh identifier for one process run.
func NewRunID() string {
	return uuid.NewString()
}

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	row[colRunID] = e.RunID
	row[colSource] = e.Source
	row[colPath] = e.Path
	row[colStatus] = e.Status
	if e.RecordID != 0 {
		row[colRecordID] = strconv.FormatInt(e.RecordID, 10)
	}
	row[colFingerprint] = e.Fingerprint
	row[colError] = e.Error
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339Nano, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	var id int64
	if record[colRecordID] != "" {
		id, err = strconv.ParseInt(record[colRecordID], 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("parsing record id %q: %w", record[colRecordID], err)
		}
	}

	return Entry{
		Timestamp:   ts,
		RunID:       record[colRunID],
		Source:      record[colSource],
		Path:        record[colPath],
		Status:      record[colStatus],
		RecordID:    id,
		Fingerprint: record[colFingerprint],
		Error:       record[colError],
	}, nil
}

// Log appends entries to a CSV file. It is safe for concurrent use.
type Log struct {
	path string
	mu   sync.Mutex
}

// New returns a Log writing to path. The file and its directory are created
// on the first Append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the file the log writes to.
func (l *Log) Path() string { return l.path }

// Append writes entries, creating the file and header if needed.
func (l *Log) Append(entries ...Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating audit log dir: %w", err)
	}

	needsHeader := false
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all entries from the log at path.
// Returns an empty slice if the file does not exist.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading audit log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
