// Package testutils provides helpers shared by the package tests: fixture
// tree builders, directory snapshots, and a recording slog handler.
package testutils

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFiles materializes a fixture tree under dir: keys are slash-separated
// relative paths, values file contents. Parent directories are created.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700), "Setup: could not create fixture directory")
		require.NoError(t, os.WriteFile(path, []byte(content), 0600), "Setup: could not write fixture file")
	}
}

// CopyDir copies the contents of a directory to another directory.
func CopyDir(t *testing.T, srcDir, dstDir string) error {
	t.Helper()

	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0700)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0600)
	})
}

// GetDirContents returns the contents of a directory as a map of
// slash-separated relative file paths to file contents.
func GetDirContents(t *testing.T, dir string) (map[string]string, error) {
	t.Helper()

	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir || d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		// Normalize content between Windows and Linux
		content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})

	return files, err
}
