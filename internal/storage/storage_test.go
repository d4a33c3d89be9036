package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVocabularyRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.LoadVocabulary(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on empty store, got %v", err)
	}

	want := map[string]int{"e2e4": 0, "e7e5": 1, "g1f3": 2}
	if err := s.SaveVocabulary(want); err != nil {
		t.Fatalf("SaveVocabulary failed: %v", err)
	}
	got, err := s.LoadVocabulary()
	if err != nil {
		t.Fatalf("LoadVocabulary failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(got))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Entry %s: expected %d, got %d", k, v, got[k])
		}
	}

	// Rewritten in full, not merged.
	if err := s.SaveVocabulary(map[string]int{"d2d4": 0}); err != nil {
		t.Fatalf("SaveVocabulary failed: %v", err)
	}
	got, _ = s.LoadVocabulary()
	if len(got) != 1 || got["d2d4"] != 0 {
		t.Errorf("Expected single entry after rewrite, got %v", got)
	}
}

func TestModelCompressed(t *testing.T) {
	s := openTestStore(t)

	blob := bytes.Repeat([]byte{0, 0, 128, 63}, 4096)
	if err := s.SaveModel(blob); err != nil {
		t.Fatalf("SaveModel failed: %v", err)
	}

	raw, err := s.get(keyModel)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(raw) >= len(blob) {
		t.Errorf("Expected compressed blob smaller than %d bytes, got %d", len(blob), len(raw))
	}

	got, err := s.LoadModel()
	if err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Error("Model blob changed across save/load")
	}
}

func TestRecordGame(t *testing.T) {
	s := openTestStore(t)

	games := []GameRecord{
		{Outcome: OutcomeWin, Merits: 130, Plies: 40},
		{Outcome: OutcomeWin, Merits: 110, Plies: 30},
		{Outcome: OutcomeLoss, Merits: -150, Plies: 22},
		{Outcome: OutcomeDraw, Merits: 12, Plies: 80},
		{Outcome: OutcomeUnfinished, Merits: 5, Plies: 200},
	}
	for _, g := range games {
		if _, err := s.RecordGame(g); err != nil {
			t.Fatalf("RecordGame failed: %v", err)
		}
	}

	stats, err := s.LoadStats()
	if err != nil {
		t.Fatalf("LoadStats failed: %v", err)
	}
	if stats.GamesPlayed != 5 || stats.Wins != 2 || stats.Losses != 1 || stats.Draws != 1 || stats.Unfinished != 1 {
		t.Errorf("Unexpected counts: %+v", stats)
	}
	if stats.TotalMerits != 107 {
		t.Errorf("Expected total merits 107, got %d", stats.TotalMerits)
	}
	if stats.TotalPlies != 372 {
		t.Errorf("Expected 372 plies, got %d", stats.TotalPlies)
	}
	if stats.LongestWinStrk != 2 {
		t.Errorf("Expected longest streak 2, got %d", stats.LongestWinStrk)
	}
	if rate := stats.WinRate(); rate != 40 {
		t.Errorf("Expected 40%% win rate, got %.2f%%", rate)
	}
}

func TestOpenOnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "models")

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.SaveVocabulary(map[string]int{"e2e4": 0}); err != nil {
		t.Fatalf("SaveVocabulary failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()
	got, err := s.LoadVocabulary()
	if err != nil || got["e2e4"] != 0 {
		t.Errorf("Expected persisted vocabulary, got %v (%v)", got, err)
	}
}

func TestLayout(t *testing.T) {
	p := Layout("")
	if p.Root != DefaultRoot {
		t.Errorf("Expected default root %q, got %q", DefaultRoot, p.Root)
	}
	if p.PGN != filepath.Join(DefaultRoot, PGNFile) {
		t.Errorf("Unexpected PGN path %q", p.PGN)
	}

	root := t.TempDir()
	p = Layout(root)
	if err := EnsureParent(filepath.Join(p.Models, "x")); err != nil {
		t.Fatalf("EnsureParent failed: %v", err)
	}
	if _, err := os.Stat(p.Models); err != nil {
		t.Errorf("Models directory was not created: %v", err)
	}
}
