// Package storage persists trainer snapshots and agent statistics, and owns
// the on-disk layout of a data directory.
package storage

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DefaultRoot is the data directory used when none is configured.
const DefaultRoot = "data"

// Default file names inside a data directory.
const (
	PGNFile   = "self_play_games.pgn"
	MovesFile = "self_play_moves.jsonl"
	ModelsDir = "models"
)

// Paths is the set of artifacts kept under one data directory.
type Paths struct {
	Root   string
	PGN    string // primary game log
	Moves  string // newline-delimited per-game records
	Models string // Badger directory with vocabulary and model snapshots
}

// Layout returns the standard artifact paths below root. Nothing is created.
func Layout(root string) Paths {
	if root == "" {
		root = DefaultRoot
	}
	return Paths{
		Root:   root,
		PGN:    filepath.Join(root, PGNFile),
		Moves:  filepath.Join(root, MovesFile),
		Models: filepath.Join(root, ModelsDir),
	}
}

// EnsureDir creates dir and its parents if they do not exist.
func EnsureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "storage: create %s", dir)
	}
	return nil
}

// EnsureParent creates the directory that will hold path.
func EnsureParent(path string) error {
	return EnsureDir(filepath.Dir(path))
}
