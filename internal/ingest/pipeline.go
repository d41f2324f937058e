// Package ingest runs a single analysis document through
// read -> parse -> extract -> store, and records the outcome.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/minseodaa/bankdrop/internal/auditlog"
	"github.com/minseodaa/bankdrop/internal/extract"
	"github.com/minseodaa/bankdrop/internal/fingerprint"
	"github.com/minseodaa/bankdrop/internal/model"
)

// Store is the part of store.Store the pipeline writes through.
type Store interface {
	Insert(ctx context.Context, rec model.BankRecord) (model.StoredRecord, error)
	InsertOnce(ctx context.Context, fingerprint, source string, rec model.BankRecord) (model.StoredRecord, bool, error)
}

// Source names the component that handed a document to the pipeline.
type Source string

const (
	SourceBatch  Source = "batch"
	SourceWatch  Source = "watch"
	SourceAppend Source = "append"
)

// Options configures a Pipeline.
type Options struct {
	// Dedup stores each distinct document body at most once.
	Dedup bool
	// ArchiveDir, when set, receives every file that did not fail.
	ArchiveDir string
	// Audit receives one entry per outcome. Optional.
	Audit *auditlog.Log
	// RunID tags audit entries of this process run.
	RunID string
	// Logger overrides slog.Default().
	Logger *slog.Logger
}

// Pipeline is safe for concurrent use as long as its Store is.
type Pipeline struct {
	store Store
	opts  Options
	log   *slog.Logger
	now   func() time.Time
}

// New creates a Pipeline writing to store.
func New(store Store, opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{store: store, opts: opts, log: log, now: time.Now}
}

// Process ingests the file at path. Failures are reported in the returned
// Outcome, never as a panic or an early return to the caller's loop.
func (p *Pipeline) Process(ctx context.Context, source Source, path string) model.Outcome {
	out := p.process(ctx, path)

	if out.Status != model.StatusFailed && p.opts.ArchiveDir != "" {
		if dst, err := Archive(path, p.opts.ArchiveDir); err != nil {
			p.log.Warn("ingest: archive failed", "path", path, "error", err)
		} else {
			p.log.Debug("ingest: archived", "path", path, "to", dst)
		}
	}

	p.report(source, out)
	return out
}

func (p *Pipeline) process(ctx context.Context, path string) model.Outcome {
	out := model.Outcome{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("reading file: %w", err)
		return out
	}

	raw, err := extract.Decode(data)
	if err != nil {
		out.Status = model.StatusFailed
		out.Err = err
		return out
	}

	rec, ok := extract.Extract(raw)
	if !ok {
		out.Status = model.StatusSkipped
		return out
	}

	if !p.opts.Dedup {
		stored, err := p.store.Insert(ctx, rec)
		if err != nil {
			out.Status = model.StatusFailed
			out.Err = err
			return out
		}
		out.Status = model.StatusInserted
		out.Record = &stored
		return out
	}

	out.Fingerprint = fingerprint.Of(data)
	stored, inserted, err := p.store.InsertOnce(ctx, out.Fingerprint, path, rec)
	if err != nil {
		out.Status = model.StatusFailed
		out.Err = err
		return out
	}
	out.Record = &stored
	out.Status = model.StatusInserted
	if !inserted {
		out.Status = model.StatusDuplicate
	}
	return out
}

// Discard records that the file at path was noticed but never processed,
// so the audit trail still accounts for it.
func (p *Pipeline) Discard(source Source, path string, reason error) model.Outcome {
	out := model.Outcome{Path: path, Status: model.StatusDropped, Err: reason}
	p.report(source, out)
	return out
}

// Append stores rec directly, for producers that do not go through the
// results directory.
func (p *Pipeline) Append(ctx context.Context, rec model.BankRecord) (model.StoredRecord, error) {
	stored, err := p.store.Insert(ctx, rec)
	out := model.Outcome{Status: model.StatusInserted, Record: &stored}
	if err != nil {
		out = model.Outcome{Status: model.StatusFailed, Err: err}
	}
	p.report(SourceAppend, out)
	return stored, err
}

func (p *Pipeline) report(source Source, out model.Outcome) {
	attrs := []any{"source", string(source), "path", out.Path, "status", string(out.Status)}
	if out.Record != nil {
		attrs = append(attrs, "id", out.Record.ID)
	}

	switch out.Status {
	case model.StatusInserted:
		p.log.Info("ingest: stored record", attrs...)
	case model.StatusDuplicate:
		p.log.Info("ingest: document already ingested", attrs...)
	case model.StatusSkipped:
		p.log.Info("ingest: no Left section", attrs...)
	case model.StatusDropped:
		p.log.Warn("ingest: dropped", append(attrs, "reason", out.Err)...)
	default:
		p.log.Error("ingest: failed", append(attrs, "error", out.Err)...)
	}

	if p.opts.Audit == nil {
		return
	}
	entry := auditlog.Entry{
		Timestamp:   p.now(),
		RunID:       p.opts.RunID,
		Source:      string(source),
		Path:        out.Path,
		Status:      string(out.Status),
		Fingerprint: out.Fingerprint,
	}
	if out.Record != nil {
		entry.RecordID = out.Record.ID
	}
	if out.Err != nil {
		entry.Error = out.Err.Error()
	}
	if err := p.opts.Audit.Append(entry); err != nil {
		p.log.Warn("ingest: audit log append failed", "path", out.Path, "error", err)
	}
}
