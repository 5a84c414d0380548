package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink persists a finished EPUB and reports where it went.
type Sink interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// DirSink writes artifacts into Dir, creating it when missing. The file is
// written to a temporary name first and renamed into place.
type DirSink struct {
	Dir string
}

func (s DirSink) Write(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename into %s: %w", path, err)
	}
	return path, nil
}

// MemorySink keeps the last artifact in memory. The job registry serves
// downloads from it.
type MemorySink struct {
	Name string
	Data []byte
}

func (s *MemorySink) Write(_ context.Context, name string, data []byte) (string, error) {
	s.Name = name
	s.Data = append([]byte(nil), data...)
	return name, nil
}
