package trainer

import "github.com/pkg/errors"

// Vocabulary maps move identifiers to dense class indices in first-seen
// order. Entries are never renumbered or removed.
type Vocabulary struct {
	index map[string]int
	moves []string
}

// NewVocabulary returns an empty vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{index: make(map[string]int)}
}

// VocabularyFromMap rebuilds a vocabulary from a persisted mapping. The
// indices must be exactly 0..len-1.
func VocabularyFromMap(mapping map[string]int) (*Vocabulary, error) {
	moves := make([]string, len(mapping))
	seen := make([]bool, len(mapping))
	for move, idx := range mapping {
		if move == "" {
			return nil, errors.New("trainer: empty move in vocabulary")
		}
		if idx < 0 || idx >= len(mapping) {
			return nil, errors.Errorf("trainer: index %d for %s out of range 0..%d", idx, move, len(mapping)-1)
		}
		if seen[idx] {
			return nil, errors.Errorf("trainer: index %d assigned twice", idx)
		}
		seen[idx] = true
		moves[idx] = move
	}

	v := NewVocabulary()
	for i, move := range moves {
		v.index[move] = i
	}
	v.moves = moves
	return v, nil
}

// Len returns the number of known moves.
func (v *Vocabulary) Len() int {
	return len(v.moves)
}

// Lookup returns the index of a known move.
func (v *Vocabulary) Lookup(move string) (int, bool) {
	idx, ok := v.index[move]
	return idx, ok
}

// Add returns the index of move, allocating the next one if it is new.
func (v *Vocabulary) Add(move string) (idx int, added bool) {
	if idx, ok := v.index[move]; ok {
		return idx, false
	}
	idx = len(v.moves)
	v.index[move] = idx
	v.moves = append(v.moves, move)
	return idx, true
}

// Move returns the identifier stored at idx.
func (v *Vocabulary) Move(idx int) string {
	return v.moves[idx]
}

// Map returns a copy of the mapping suitable for persisting.
func (v *Vocabulary) Map() map[string]int {
	out := make(map[string]int, len(v.index))
	for k, idx := range v.index {
		out[k] = idx
	}
	return out
}

// Moves returns the identifiers in index order.
func (v *Vocabulary) Moves() []string {
	out := make([]string, len(v.moves))
	copy(out, v.moves)
	return out
}
