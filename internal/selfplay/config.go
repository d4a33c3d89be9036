package selfplay

import (
	"github.com/rs/zerolog"

	"github.com/hailam/chessmerit/internal/storage"
)

// Default values for Config
const (
	DefaultGames    = 1
	DefaultMaxPlies = 200
	DefaultDepth    = 12
)

// Config controls a self-play session.
type Config struct {
	Games           int  // games to play, default 1
	AlternateColors bool // agent takes black in every second game
	MaxPlies        int  // per-game ply cap, default 200
	Depth           int  // reference engine search depth, default 12

	// PGNPath is the primary game log. Empty disables it.
	PGNPath string
	// MovesPath receives one JSON record per game. Empty disables it.
	MovesPath string

	// Select chooses the agent's moves. Nil means the agent always plays
	// the engine's best move.
	Select SelectFunc
	// Train is called after every ply. Nil disables training.
	Train TrainFunc
	// Stats receives the agent's result after every game. Nil disables it.
	Stats StatsRecorder

	Logger zerolog.Logger
}

// DefaultConfig returns the defaults with the game logs in the standard
// data directory.
func DefaultConfig() Config {
	paths := storage.Layout(storage.DefaultRoot)
	return Config{
		Games:           DefaultGames,
		AlternateColors: true,
		MaxPlies:        DefaultMaxPlies,
		Depth:           DefaultDepth,
		PGNPath:         paths.PGN,
		MovesPath:       paths.Moves,
	}
}

func (c Config) withDefaults() Config {
	if c.Games <= 0 {
		c.Games = DefaultGames
	}
	if c.MaxPlies <= 0 {
		c.MaxPlies = DefaultMaxPlies
	}
	if c.Depth <= 0 {
		c.Depth = DefaultDepth
	}
	return c
}
