package board

import (
	"github.com/notnil/chess"

	"github.com/hailam/chessmerit/internal/quality"
)

// Plane layout of an encoded position: six white piece planes, six black
// piece planes, then one plane marking every legal destination square.
const (
	PieceTypes  = 6
	Planes      = 2*PieceTypes + 1
	Squares     = 64
	EncodedSize = Planes * Squares
	movesPlane  = 2 * PieceTypes
)

// pieceOffset maps a notnil piece type to its plane within a color block.
var pieceOffset = map[chess.PieceType]int{
	chess.Pawn:   0,
	chess.Knight: 1,
	chess.Bishop: 2,
	chess.Rook:   3,
	chess.Queen:  4,
	chess.King:   5,
}

// Encode flattens a position into EncodedSize float32 values, square index
// a1=0 ... h8=63 within each plane.
func Encode(pos *chess.Position) []float32 {
	out := make([]float32, EncodedSize)
	for sq, piece := range pos.Board().SquareMap() {
		off, ok := pieceOffset[piece.Type()]
		if !ok {
			continue
		}
		plane := off
		if piece.Color() == chess.Black {
			plane += PieceTypes
		}
		out[plane*Squares+int(sq)] = 1
	}
	for _, m := range pos.ValidMoves() {
		out[movesPlane*Squares+int(m.S2())] = 1
	}
	return out
}

// Sign is +1 for white and -1 for black; it flips white-perspective scores
// into the given side's perspective.
func Sign(c chess.Color) int {
	if c == chess.Black {
		return -1
	}
	return 1
}

// Terminal reports whether the side to move has no legal moves and, if so,
// the resulting evaluation from white's perspective.
func Terminal(pos *chess.Position) (quality.Eval, bool) {
	switch pos.Status() {
	case chess.Checkmate:
		// The side to move is mated.
		return quality.MateIn(-Sign(pos.Turn())), true
	case chess.Stalemate:
		return quality.CP(0), true
	}
	return quality.Eval{}, false
}
