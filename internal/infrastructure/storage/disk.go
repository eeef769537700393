package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// DiskStorage writes screenshots under a base directory.
type DiskStorage struct {
	baseDir string
}

func NewDiskStorage(baseDir string) *DiskStorage {
	return &DiskStorage{baseDir: baseDir}
}

func (s *DiskStorage) Save(ctx context.Context, objectName string, r io.Reader, size int64) error {
	path := filepath.Join(s.baseDir, filepath.FromSlash(objectName))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create screenshot file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(r, size)); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write screenshot: %w", err)
	}

	slog.Info("screenshot stored", "path", path, "size", size)
	return nil
}
