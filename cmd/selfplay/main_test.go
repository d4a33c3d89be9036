package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/hailam/chessmerit/internal/quality"
	"github.com/hailam/chessmerit/internal/selfplay"
	"github.com/hailam/chessmerit/internal/storage"
	"github.com/hailam/chessmerit/internal/trainer"
)

// firstMoveEngine always plays the first legal move and evaluates every
// position as equal.
type firstMoveEngine struct {
	closed bool
}

func (e *firstMoveEngine) Analyse(fen string, depth int) (quality.Eval, error) {
	return quality.CP(0), nil
}

func (e *firstMoveEngine) BestMove(fen string, depth int) (string, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return "", err
	}
	return chess.NewGame(opt).Position().ValidMoves()[0].String(), nil
}

func (e *firstMoveEngine) Close() error {
	e.closed = true
	return nil
}

func TestCorruptStoreFallsBack(t *testing.T) {
	paths := storage.Layout(t.TempDir())
	if err := os.MkdirAll(paths.Models, 0755); err != nil {
		t.Fatalf("Failed to create models dir: %v", err)
	}
	manifest := filepath.Join(paths.Models, "MANIFEST")
	if err := os.WriteFile(manifest, []byte("not a badger manifest"), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	if s, err := storage.Open(paths.Models); err == nil {
		s.Close()
		t.Fatal("Expected the corrupt store to fail to open")
	}

	log := zerolog.Nop()
	store, err := openStore(paths.Models, log)
	if err != nil {
		t.Fatalf("Expected fallback store, got error: %v", err)
	}
	defer store.Close()

	tr := trainer.New(trainer.Config{Hidden: 8, Seed: 1}, store)
	if tr.VocabularySize() != 0 {
		t.Errorf("Expected a fresh vocabulary, got %d", tr.VocabularySize())
	}

	cfg := sessionConfig(paths, store, tr, true, true, log)
	cfg.Games = 2
	cfg.MaxPlies = 4
	cfg.Depth = 1

	eng := &firstMoveEngine{}
	sess, err := selfplay.New(cfg, func() (selfplay.Engine, error) { return eng, nil }).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(sess.Games) != 2 || sess.Plies() == 0 || sess.Plies() > 8 {
		t.Errorf("Expected 2 games of at most 4 plies, got %d games, %d plies", len(sess.Games), sess.Plies())
	}
	if len(sess.PersistErrors) != 0 {
		t.Errorf("Unexpected persist errors: %v", sess.PersistErrors)
	}
	if tr.VocabularySize() == 0 {
		t.Error("Expected the trainer to learn moves")
	}
	if !eng.closed {
		t.Error("Expected engine to be closed")
	}

	stats, err := store.LoadStats()
	if err != nil || stats.GamesPlayed != 2 {
		t.Errorf("Expected 2 games in fallback stats, got %+v (%v)", stats, err)
	}
}

func TestOpenStoreOnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	store, err := openStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer store.Close()

	if err := store.SaveVocabulary(map[string]int{"e2e4": 0}); err != nil {
		t.Fatalf("SaveVocabulary failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Expected store directory to exist: %v", err)
	}
}
