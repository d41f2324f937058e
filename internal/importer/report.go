package importer

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/minseodaa/bankdrop/internal/model"
)

// Report summarizes one ImportAll run.
type Report struct {
	Dir        string
	Succeeded  int
	Skipped    int
	Failed     int
	Duplicates int
	Outcomes   []model.Outcome // in processing order
}

// Add counts out and keeps it.
func (r *Report) Add(out model.Outcome) {
	switch out.Status {
	case model.StatusInserted:
		r.Succeeded++
	case model.StatusSkipped:
		r.Skipped++
	case model.StatusDuplicate:
		r.Duplicates++
	default:
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, out)
}

// Total is the number of files processed.
func (r Report) Total() int { return len(r.Outcomes) }

// WriteText renders the report for a terminal, one line per file.
func (r Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Imported %d file(s)\n", r.Total()); err != nil {
		return err
	}
	for _, out := range r.Outcomes {
		name := filepath.Base(out.Path)
		var err error
		switch {
		case out.Status == model.StatusFailed:
			_, err = fmt.Fprintf(w, "  %-9s  %s: %v\n", out.Status, name, out.Err)
		case out.Record != nil:
			_, err = fmt.Fprintf(w, "  %-9s  %s (id %d)\n", out.Status, name, out.Record.ID)
		default:
			_, err = fmt.Fprintf(w, "  %-9s  %s\n", out.Status, name)
		}
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "succeeded=%d skipped=%d failed=%d duplicates=%d\n",
		r.Succeeded, r.Skipped, r.Failed, r.Duplicates)
	return err
}
