// Package trainer trains a move-policy model online, one example at a time,
// over a move vocabulary that grows as new moves are seen.
package trainer

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"lukechampine.com/frand"

	"github.com/hailam/chessmerit/internal/board"
	"github.com/hailam/chessmerit/internal/storage"
)

// Defaults used when a Config field is zero.
const (
	DefaultLearningRate = 1e-4
	DefaultHidden       = 256
	minWeight           = 0.1
)

// ErrNoMove is returned by EnsureIndex for an empty move identifier.
var ErrNoMove = errors.New("trainer: empty move identifier")

// Config configures a Trainer.
type Config struct {
	LearningRate float32 // default 1e-4
	Hidden       int     // width of a freshly created hidden layer, default 256
	Seed         uint64  // 0 seeds weight initialization from system entropy
	Logger       zerolog.Logger
}

// Snapshots persists the vocabulary and model. Loaders return
// storage.ErrNotFound when nothing has been saved.
type Snapshots interface {
	LoadVocabulary() (map[string]int, error)
	SaveVocabulary(mapping map[string]int) error
	LoadModel() ([]byte, error)
	SaveModel(blob []byte) error
}

// Step describes one call to Update.
type Step struct {
	Trained bool
	Move    string
	Index   int
	Grew    bool // the move was new and the head was widened
	Merit   int
	Weight  float32
	Loss    float32
	// SaveErr is the first persistence failure of this step. Training has
	// already been applied in memory when it is set.
	SaveErr error
}

// Trainer owns the vocabulary, the policy and its optimizer. All methods
// serialize on a single mutex.
type Trainer struct {
	mu     sync.Mutex
	cfg    Config
	store  Snapshots
	vocab  *Vocabulary
	policy *Policy
	opt    *Adam
	rng    *frand.RNG
	log    zerolog.Logger
}

// New builds a trainer, restoring snapshots from store when possible. Missing
// or unusable snapshots fall back to an empty vocabulary and a fresh model.
// A nil store disables persistence.
func New(cfg Config, store Snapshots) *Trainer {
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	if cfg.Hidden <= 0 {
		cfg.Hidden = DefaultHidden
	}

	t := &Trainer{
		cfg:   cfg,
		store: store,
		rng:   newRNG(cfg.Seed),
		log:   cfg.Logger,
	}
	t.vocab = t.loadVocabulary()
	t.policy = t.loadPolicy()
	t.opt = NewAdam(cfg.LearningRate, t.policy.params())

	t.log.Info().
		Int("vocabulary", t.vocab.Len()).
		Int("hidden", t.policy.Hidden.Out).
		Float32("lr", cfg.LearningRate).
		Msg("trainer ready")
	return t
}

func newRNG(seed uint64) *frand.RNG {
	var key [32]byte
	if seed == 0 {
		key = frand.Entropy256()
	} else {
		binary.LittleEndian.PutUint64(key[:], seed)
	}
	return frand.NewCustom(key[:], 1024, 12)
}

func (t *Trainer) loadVocabulary() *Vocabulary {
	if t.store == nil {
		return NewVocabulary()
	}
	mapping, err := t.store.LoadVocabulary()
	if err != nil {
		t.logLoadErr(err, "vocabulary")
		return NewVocabulary()
	}
	v, err := VocabularyFromMap(mapping)
	if err != nil {
		t.log.Warn().Err(err).Msg("discarding inconsistent vocabulary snapshot")
		return NewVocabulary()
	}
	return v
}

func (t *Trainer) loadPolicy() *Policy {
	fresh := func() *Policy {
		return NewPolicy(board.EncodedSize, t.cfg.Hidden, t.vocab.Len(), t.rng)
	}
	if t.store == nil {
		return fresh()
	}
	blob, err := t.store.LoadModel()
	if err != nil {
		t.logLoadErr(err, "model")
		return fresh()
	}
	p, err := UnmarshalPolicy(blob)
	if err != nil {
		t.log.Warn().Err(err).Msg("discarding unreadable model snapshot")
		return fresh()
	}
	if p.Inputs() == board.EncodedSize && p.Classes() < t.vocab.Len() {
		// The newest vocabulary entries were saved without a model save.
		missing := t.vocab.Len() - p.Classes()
		for p.Classes() < t.vocab.Len() {
			p.Head = p.Head.Grow(t.rng)
		}
		t.log.Warn().
			Int("classes", p.Classes()).
			Int("grown", missing).
			Msg("model snapshot behind vocabulary, widened head")
		return p
	}
	if p.Inputs() != board.EncodedSize || p.Classes() != t.vocab.Len() {
		t.log.Warn().
			Int("inputs", p.Inputs()).
			Int("classes", p.Classes()).
			Int("vocabulary", t.vocab.Len()).
			Msg("model snapshot does not match vocabulary, starting fresh")
		return fresh()
	}
	return p
}

func (t *Trainer) logLoadErr(err error, what string) {
	if errors.Is(err, storage.ErrNotFound) {
		t.log.Debug().Str("snapshot", what).Msg("no snapshot, starting empty")
		return
	}
	t.log.Warn().Err(err).Str("snapshot", what).Msg("snapshot load failed, starting empty")
}

// VocabularySize returns the number of known moves.
func (t *Trainer) VocabularySize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vocab.Len()
}

// Classes returns the current width of the policy head.
func (t *Trainer) Classes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.policy.Classes()
}

// EnsureIndex returns the class index of move, allocating one and widening
// the model if the move is new. The index is valid even when the returned
// error is set; the error only reports a failed vocabulary save.
func (t *Trainer) EnsureIndex(move string) (int, error) {
	if move == "" {
		return -1, ErrNoMove
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, _, err := t.ensureIndex(move)
	return idx, err
}

func (t *Trainer) ensureIndex(move string) (int, bool, error) {
	idx, added := t.vocab.Add(move)
	if !added {
		return idx, false, nil
	}

	// Build the wider head next to the old one, then swap.
	t.policy.Head = t.policy.Head.Grow(t.rng)
	// Old moments refer to the old shapes; start over.
	t.opt = NewAdam(t.cfg.LearningRate, t.policy.params())

	t.log.Debug().Str("move", move).Int("idx", idx).Int("classes", t.policy.Classes()).Msg("vocabulary grew")

	var saveErr error
	if t.store != nil {
		if err := t.store.SaveVocabulary(t.vocab.Map()); err != nil {
			saveErr = errors.Wrap(err, "trainer: save vocabulary")
			t.log.Warn().Err(saveErr).Str("move", move).Msg("vocabulary not persisted")
		}
	}
	return idx, true, saveErr
}

// Weight is the loss multiplier for an example with the given merit delta.
func Weight(merit int) float32 {
	w := 1 + float32(merit)/5
	if w < minWeight {
		return minWeight
	}
	return w
}

// Update trains on one example: encoded board x, the move played and its
// merit delta. An empty move is a no-op. Persistence failures are logged and
// reported in Step.SaveErr; the returned error is reserved for invalid input.
func (t *Trainer) Update(x []float32, move string, merit int) (Step, error) {
	if move == "" {
		return Step{Index: -1}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(x) != t.policy.Inputs() {
		return Step{Index: -1}, errors.Errorf("trainer: board has %d features, want %d", len(x), t.policy.Inputs())
	}

	idx, grew, saveErr := t.ensureIndex(move)
	step := Step{
		Trained: true,
		Move:    move,
		Index:   idx,
		Grew:    grew,
		Merit:   merit,
		Weight:  Weight(merit),
	}

	params := t.policy.params()
	if !t.opt.Tracks(params) {
		t.opt = NewAdam(t.cfg.LearningRate, params)
	}
	loss, grads := t.policy.gradients(x, idx, step.Weight)
	t.opt.Step(params, grads)
	step.Loss = loss

	if err := t.saveModel(); err != nil && saveErr == nil {
		saveErr = err
	}
	step.SaveErr = saveErr

	t.log.Debug().
		Str("move", move).
		Int("idx", idx).
		Int("merits", merit).
		Float32("w", step.Weight).
		Float32("loss", loss).
		Msg("trainer update")
	return step, nil
}

func (t *Trainer) saveModel() error {
	if t.store == nil {
		return nil
	}
	blob, err := t.policy.MarshalBinary()
	if err == nil {
		err = t.store.SaveModel(blob)
	}
	if err != nil {
		err = errors.Wrap(err, "trainer: save model")
		t.log.Warn().Err(err).Msg("model not persisted")
	}
	return err
}
