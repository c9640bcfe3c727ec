// Package home manages the keywordlens home directory layout.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the keywordlens home directory.
	DefaultDirName = ".keywordlens"

	// ExportsDirName is the subdirectory for exported result files.
	ExportsDirName = "exports"

	// GridsDirName is the subdirectory for composite grid images written
	// during verification.
	GridsDirName = "grids"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// CheckpointFileName is the durable progress checkpoint.
	CheckpointFileName = "checkpoint.json"
)

// Dir represents the keywordlens home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.keywordlens).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// CheckpointPath returns the path to the progress checkpoint file.
func (d *Dir) CheckpointPath() string {
	return filepath.Join(d.path, CheckpointFileName)
}

// ExportsDir returns the directory for exported result files.
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, ExportsDirName)
}

// GridsDir returns the directory for composite grid images.
func (d *Dir) GridsDir() string {
	return filepath.Join(d.path, GridsDirName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.ExportsDir(), d.GridsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
