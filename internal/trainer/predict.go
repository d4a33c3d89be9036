package trainer

import (
	"github.com/notnil/chess"

	"github.com/hailam/chessmerit/internal/board"
)

// SelectMove returns the legal move the policy scores highest, in UCI
// notation. It returns "" when the policy knows none of the legal moves, so a
// caller can fall back to another source.
func (t *Trainer) SelectMove(pos *chess.Position) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.policy.Classes() == 0 {
		return "", nil
	}
	logits := t.policy.Logits(board.Encode(pos))

	best, bestScore := "", float32(0)
	for _, m := range pos.ValidMoves() {
		uci := m.String()
		idx, ok := t.vocab.Lookup(uci)
		if !ok {
			continue
		}
		if best == "" || logits[idx] > bestScore {
			best, bestScore = uci, logits[idx]
		}
	}
	return best, nil
}
