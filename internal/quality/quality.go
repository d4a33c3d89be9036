// Package quality turns reference-engine evaluations into move-quality labels
// and merit deltas.
package quality

// MateScore is the centipawn value a forced mate saturates to.
const MateScore = 100000

// Thresholds on vs_best (centipawns, mover's perspective).
const (
	GoodThreshold       = -20
	InaccurateThreshold = -100
	MistakeThreshold    = -300
)

// Quality is the label attached to a played move.
type Quality int

const (
	Best Quality = iota
	Good
	Inaccurate
	Mistake
	Blunder
)

var qualityNames = [...]string{"best", "good", "inaccurate", "mistake", "blunder"}

// String returns the lowercase label.
func (q Quality) String() string {
	if q < Best || q > Blunder {
		return "unknown"
	}
	return qualityNames[q]
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quality) UnmarshalText(text []byte) error {
	parsed, ok := Parse(string(text))
	if !ok {
		return &ParseError{Label: string(text)}
	}
	*q = parsed
	return nil
}

// Parse maps a label back to its Quality.
func Parse(label string) (Quality, bool) {
	for i, name := range qualityNames {
		if name == label {
			return Quality(i), true
		}
	}
	return Best, false
}

// ParseError reports an unknown quality label.
type ParseError struct {
	Label string
}

func (e *ParseError) Error() string {
	return "quality: unknown label " + e.Label
}

// baseMerit is indexed by Quality.
var baseMerit = [...]int{3, 2, 0, -3, -10}

// Eval is an engine evaluation from white's perspective.
// A non-zero Mate takes precedence over CP; its sign names the side that mates.
type Eval struct {
	CP    int
	Mate  int
	Known bool
}

// CP returns a known centipawn evaluation.
func CP(cp int) Eval {
	return Eval{CP: cp, Known: true}
}

// MateIn returns a known forced-mate evaluation. Positive n means white mates.
func MateIn(n int) Eval {
	return Eval{Mate: n, Known: true}
}

// Centipawns converts the evaluation to an integer score.
// Forced mates saturate to ±MateScore, unknown evaluations are 0.
func (e Eval) Centipawns() int {
	if !e.Known {
		return 0
	}
	switch {
	case e.Mate > 0:
		return MateScore
	case e.Mate < 0:
		return -MateScore
	}
	return e.CP
}

// Classify labels a move by its gap to the engine's best move.
// The first matching rule wins.
func Classify(vsBest int, isBest bool) (Quality, string) {
	switch {
	case isBest:
		return Best, "matches engine best"
	case vsBest >= GoodThreshold:
		return Good, "within 20cp of best"
	case vsBest >= InaccurateThreshold:
		return Inaccurate, "within 100cp of best"
	case vsBest >= MistakeThreshold:
		return Mistake, "100-300cp worse than best"
	}
	return Blunder, "more than 300cp worse than best"
}

// Merit returns the reinforcement delta for a classified move.
// No clamp is applied: very large gaps keep pushing the delta down.
func Merit(q Quality, vsBest int) int {
	base := 0
	if q >= Best && q <= Blunder {
		base = baseMerit[q]
	}
	extra := 0
	switch {
	case vsBest < 0:
		extra = floorDiv(vsBest, 200)
	case vsBest > 0:
		extra = floorDiv(vsBest, 400)
	}
	return base + extra
}

// Assessment is the full verdict on one move.
type Assessment struct {
	Improvement int
	VsBest      int
	Quality     Quality
	Reason      string
	Merit       int
}

// Assess scores a move. All inputs are centipawns from the mover's perspective.
func Assess(before, after, afterBest int, isBest bool) Assessment {
	a := Assessment{
		Improvement: after - before,
		VsBest:      after - afterBest,
	}
	a.Quality, a.Reason = Classify(a.VsBest, isBest)
	a.Merit = Merit(a.Quality, a.VsBest)
	return a
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
