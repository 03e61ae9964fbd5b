// Package storage reads input documents and writes output documents
// atomically.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

type Storage struct{}

// SaveFile writes content through a temp file in the destination
// directory and renames it into place. A failed write never leaves a
// partial file at filePath that could be mistaken for success.
func (s *Storage) SaveFile(filePath string, content []byte) error {
	dir := filepath.Dir(filePath)
	tmp, err := os.CreateTemp(dir, ".citation-cleaner-*")
	if err != nil {
		return fmt.Errorf("error saving file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("error saving file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error saving file: %w", err)
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error saving file: %w", err)
	}
	return nil
}

// ReadFile reads the full contents of a file into memory.
func (s *Storage) ReadFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return data, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

func (s *Storage) HasFile(fn string) bool {
	return fileExists(fn)
}
