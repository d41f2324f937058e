// Package drop is the producer side of the results directory: it pulls the
// JSON objects out of a recognition response and deposits them as an
// analysis document the watcher can pick up.
//
// Files are written atomically (write .tmp then rename) so the watcher never
// sees a partial document.
package drop

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoJSON is returned when a response contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ParseResponse finds every JSON object embedded in text, in order. Prose and
// code fences around them are ignored. One object is returned as is; several
// are returned as an array.
func ParseResponse(text string) (any, error) {
	var objects []any
	for i := 0; i < len(text); {
		j := strings.IndexByte(text[i:], '{')
		if j < 0 {
			break
		}
		i += j

		dec := json.NewDecoder(strings.NewReader(text[i:]))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			i++
			continue
		}
		objects = append(objects, obj)
		i += int(dec.InputOffset())
	}

	switch len(objects) {
	case 0:
		return nil, ErrNoJSON
	case 1:
		return objects[0], nil
	default:
		return objects, nil
	}
}

// Writer deposits analysis documents into a results directory.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates a Writer targeting dir. The directory is created on
// first write if it does not exist.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Write stores doc as indented JSON under analysis_<unixmillis>.json and
// returns the final path. A numeric suffix is added if the name is taken.
func (w *Writer) Write(doc any) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("drop: mkdir %s: %w", w.dir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("drop: encoding document: %w", err)
	}
	data = append(data, '\n')

	target := w.target()
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("drop: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("drop: rename: %w", err)
	}
	return target, nil
}

// WriteResponse parses a recognition response and writes the result.
func (w *Writer) WriteResponse(text string) (string, error) {
	doc, err := ParseResponse(text)
	if err != nil {
		return "", err
	}
	return w.Write(doc)
}

func (w *Writer) target() string {
	base := fmt.Sprintf("analysis_%d", w.now().UnixMilli())
	target := filepath.Join(w.dir, base+".json")
	for n := 1; exists(target); n++ {
		target = filepath.Join(w.dir, fmt.Sprintf("%s_%d.json", base, n))
	}
	return target
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
