package selfplay

import (
	"github.com/google/uuid"
	"github.com/notnil/chess"

	"github.com/hailam/chessmerit/internal/quality"
)

// Result is a game result in PGN notation.
type Result string

const (
	ResultWhiteWin   Result = "1-0"
	ResultBlackWin   Result = "0-1"
	ResultDraw       Result = "1/2-1/2"
	ResultUnfinished Result = "*" // stopped by the ply cap
)

func resultOf(o chess.Outcome) Result {
	switch o {
	case chess.WhiteWon:
		return ResultWhiteWin
	case chess.BlackWon:
		return ResultBlackWin
	case chess.Draw:
		return ResultDraw
	}
	return ResultUnfinished
}

// Winner returns the winning side, or chess.NoColor for draws and
// unfinished games.
func (r Result) Winner() chess.Color {
	switch r {
	case ResultWhiteWin:
		return chess.White
	case ResultBlackWin:
		return chess.Black
	}
	return chess.NoColor
}

// MoveRecord is the verdict on one ply. Scores are centipawns from the
// mover's perspective.
type MoveRecord struct {
	Move        string          `json:"move"`
	SAN         string          `json:"san"`
	Quality     quality.Quality `json:"quality"`
	Improvement int             `json:"improvement"`
	VsBestCP    int             `json:"vs_best_cp"`
	IsBest      bool            `json:"is_best"`
}

// GameSummary is one finished game.
type GameSummary struct {
	GameIndex   int          `json:"game_index"`
	Session     uuid.UUID    `json:"session"`
	Result      Result       `json:"result"`
	TotalMerits int          `json:"total_merits"`
	Moves       []MoveRecord `json:"moves"`

	AgentColor chess.Color `json:"-"`
}

// Session is the outcome of Orchestrator.Run.
type Session struct {
	ID          uuid.UUID
	TotalMerits int
	Games       []GameSummary
	// PersistErrors collects best-effort write failures (move log, stats).
	PersistErrors []error
}

// Plies returns the number of moves played across all games.
func (s Session) Plies() int {
	n := 0
	for _, g := range s.Games {
		n += len(g.Moves)
	}
	return n
}
