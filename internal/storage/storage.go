package storage

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Storage keys
const (
	keyVocabulary = "vocabulary"
	keyModel      = "model"
	keyStats      = "stats"
)

// ErrNotFound is returned by loaders when no snapshot has been written yet.
var ErrNotFound = errors.New("storage: snapshot not found")

// Outcome is an agent's result in one finished game.
type Outcome int

const (
	OutcomeWin Outcome = iota
	OutcomeLoss
	OutcomeDraw
	OutcomeUnfinished
)

// AgentStats aggregates results across every session written to the store.
type AgentStats struct {
	GamesPlayed    int       `json:"games_played"`
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	Draws          int       `json:"draws"`
	Unfinished     int       `json:"unfinished"`
	TotalMerits    int       `json:"total_merits"`
	TotalPlies     int       `json:"total_plies"`
	LongestWinStrk int       `json:"longest_win_streak"`
	CurrentStreak  int       `json:"current_streak"`
	LastPlayed     time.Time `json:"last_played"`
}

// GameRecord is what RecordGame needs to know about a finished game.
type GameRecord struct {
	Outcome Outcome
	Merits  int
	Plies   int
}

// WinRate returns the win rate as a percentage (0-100)
func (s *AgentStats) WinRate() float64 {
	if s.GamesPlayed == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.GamesPlayed) * 100
}

// Store wraps BadgerDB for vocabulary, model and statistics snapshots.
type Store struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens (creating if needed) a store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	return open(badger.DefaultOptions(dir))
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open badger")
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "storage: zstd writer")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, errors.Wrap(err, "storage: zstd reader")
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.dec.Close()
	s.enc.Close()
	err := s.db.Close()
	s.db = nil
	return err
}

// SaveVocabulary replaces the stored move-to-index mapping.
func (s *Store) SaveVocabulary(mapping map[string]int) error {
	data, err := json.Marshal(mapping)
	if err != nil {
		return errors.Wrap(err, "storage: encode vocabulary")
	}
	return s.put(keyVocabulary, data)
}

// LoadVocabulary returns the stored mapping or ErrNotFound.
func (s *Store) LoadVocabulary() (map[string]int, error) {
	data, err := s.get(keyVocabulary)
	if err != nil {
		return nil, err
	}
	mapping := make(map[string]int)
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, errors.Wrap(err, "storage: decode vocabulary")
	}
	return mapping, nil
}

// SaveModel replaces the stored model parameters. The blob is compressed.
func (s *Store) SaveModel(blob []byte) error {
	return s.put(keyModel, s.enc.EncodeAll(blob, nil))
}

// LoadModel returns the last saved model blob or ErrNotFound.
func (s *Store) LoadModel() ([]byte, error) {
	data, err := s.get(keyModel)
	if err != nil {
		return nil, err
	}
	blob, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "storage: decompress model")
	}
	return blob, nil
}

// LoadStats loads agent statistics, returns empty stats if not found
func (s *Store) LoadStats() (*AgentStats, error) {
	stats := &AgentStats{}
	data, err := s.get(keyStats)
	if errors.Is(err, ErrNotFound) {
		return stats, nil
	}
	if err != nil {
		return stats, err
	}
	if err := json.Unmarshal(data, stats); err != nil {
		return &AgentStats{}, errors.Wrap(err, "storage: decode stats")
	}
	return stats, nil
}

// RecordGame folds a finished game into the stored statistics.
func (s *Store) RecordGame(rec GameRecord) (*AgentStats, error) {
	stats, err := s.LoadStats()
	if err != nil {
		return nil, err
	}

	stats.GamesPlayed++
	stats.TotalMerits += rec.Merits
	stats.TotalPlies += rec.Plies
	stats.LastPlayed = time.Now()

	switch rec.Outcome {
	case OutcomeWin:
		stats.Wins++
		stats.CurrentStreak++
		if stats.CurrentStreak > stats.LongestWinStrk {
			stats.LongestWinStrk = stats.CurrentStreak
		}
	case OutcomeLoss:
		stats.Losses++
		stats.CurrentStreak = 0
	case OutcomeDraw:
		stats.Draws++
		stats.CurrentStreak = 0
	default:
		stats.Unfinished++
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return nil, errors.Wrap(err, "storage: encode stats")
	}
	if err := s.put(keyStats, data); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) put(key string, val []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
	return errors.Wrapf(err, "storage: write %s", key)
}

func (s *Store) get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "storage: read %s", key)
	}
	return out, nil
}
