// Package importer ingests every analysis document already present in a
// results directory, once, and reports what happened to each file.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minseodaa/bankdrop/internal/ingest"
	"github.com/minseodaa/bankdrop/internal/model"
)

// Processor handles one file. *ingest.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, source ingest.Source, path string) model.Outcome
}

// FileInfo describes a document in the results directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// Scan returns the regular files in dir whose name ends in ext
// (case-insensitive), sorted by name. Subdirectories are not descended.
func Scan(dir, ext string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading results dir: %w", err)
	}

	ext = strings.ToLower(ext)
	var files []FileInfo
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Importer runs the batch import.
type Importer struct {
	proc Processor
	ext  string
	log  *slog.Logger
}

// New creates an Importer for files with the given extension.
func New(proc Processor, ext string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{proc: proc, ext: ext, log: logger}
}

// ImportAll processes every eligible file in dir. A file that fails is
// counted and the run continues. The returned error is non-nil only when
// dir cannot be listed or ctx is cancelled between files.
//
// No record of imported files is kept: running twice over the same
// directory stores every document twice unless the pipeline deduplicates.
func (im *Importer) ImportAll(ctx context.Context, dir string) (Report, error) {
	report := Report{Dir: dir}

	files, err := Scan(dir, im.ext)
	if err != nil {
		return report, err
	}
	im.log.Info("import: started", "dir", dir, "files", len(files))

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			im.log.Warn("import: interrupted", "dir", dir, "remaining", len(files)-len(report.Outcomes))
			return report, err
		}
		report.Add(im.proc.Process(ctx, ingest.SourceBatch, f.Path))
	}

	im.log.Info("import: finished", "dir", dir,
		"succeeded", report.Succeeded, "skipped", report.Skipped,
		"failed", report.Failed, "duplicates", report.Duplicates)
	return report, nil
}
