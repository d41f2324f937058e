package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Archive moves the file at path into dir, creating dir if needed, and
// returns the new path. An archived file with the same name is never
// replaced; a numeric suffix is added instead.
func Archive(path, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive dir: %w", err)
	}

	dst := archiveTarget(dir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("moving %s to archive: %w", filepath.Base(path), err)
	}
	return dst, nil
}

func archiveTarget(dir, name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	dst := filepath.Join(dir, name)
	for n := 1; exists(dst); n++ {
		dst = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
	return dst
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
