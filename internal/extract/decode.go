package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ParseError reports a document whose text is not a single valid JSON value.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing JSON at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errTrailingData = errors.New("unexpected data after top-level value")

// Decode parses data as exactly one JSON value. Numbers are kept as
// json.Number so amounts are not rounded through float64.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Offset: 0, Err: errors.New("empty document")}
		}
		return nil, &ParseError{Offset: syntaxOffset(err, dec.InputOffset()), Err: err}
	}

	off := dec.InputOffset()
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errTrailingData
		}
		return nil, &ParseError{Offset: syntaxOffset(err, off), Err: err}
	}
	return v, nil
}

func syntaxOffset(err error, fallback int64) int64 {
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return se.Offset
	}
	return fallback
}
