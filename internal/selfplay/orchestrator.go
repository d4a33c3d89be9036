// Package selfplay plays an agent against a UCI reference engine, grades
// every ply with the engine and feeds the graded moves to a trainer.
package selfplay

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hailam/chessmerit/internal/board"
	"github.com/hailam/chessmerit/internal/quality"
	"github.com/hailam/chessmerit/internal/storage"
)

// TerminalBonus is added to the agent's merits for a win and subtracted for a loss.
const TerminalBonus = 100

// Mover labels used in the per-ply trace.
const (
	moverModel    = "agent (model)"
	moverFallback = "agent (fallback)"
	moverEngine   = "engine"
)

// Engine is the reference engine. Evaluations are from white's perspective.
type Engine interface {
	Analyse(fen string, depth int) (quality.Eval, error)
	BestMove(fen string, depth int) (string, error)
	Close() error
}

// newGamer is implemented by engines that want a "ucinewgame" between games.
type newGamer interface {
	NewGame() error
}

// Launcher starts the reference engine.
type Launcher func() (Engine, error)

// Selection is a move chosen by a SelectFunc. Either field may be set; Move
// wins when both are. A zero Selection declines to choose.
type Selection struct {
	UCI  string
	Move *chess.Move
}

// SelectFunc picks the agent's move in pos. Errors, panics, empty
// selections and illegal moves make the orchestrator play the engine's move.
type SelectFunc func(pos *chess.Position) (Selection, error)

// Example is one graded ply handed to a TrainFunc.
type Example struct {
	History []MoveRecord // every ply of the game so far, this one included
	Board   []float32    // encoded position before the move
	Move    string       // UCI notation
	Quality quality.Quality
	Merit   int
}

// TrainFunc consumes a graded ply. Errors and panics are logged and ignored.
type TrainFunc func(ex Example) error

// StatsRecorder folds finished games into persistent agent statistics.
type StatsRecorder interface {
	RecordGame(rec storage.GameRecord) (*storage.AgentStats, error)
}

// Orchestrator runs self-play sessions. It is not safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	launch Launcher
	log    zerolog.Logger
}

// New returns an orchestrator that starts its engine with launch.
func New(cfg Config, launch Launcher) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{cfg: cfg, launch: launch, log: cfg.Logger}
}

// Run plays cfg.Games games. The engine is started once before the first game
// and closed on every return path. A launch failure is returned before any
// game is played. Engine errors and primary game log failures end the
// session; the games finished so far are still returned.
func (o *Orchestrator) Run(ctx context.Context) (Session, error) {
	sess := Session{ID: uuid.New()}
	if o.launch == nil {
		return sess, errors.New("selfplay: no engine launcher")
	}
	eng, err := o.launch()
	if err != nil {
		return sess, errors.Wrap(err, "selfplay: start reference engine")
	}
	defer func() {
		if err := eng.Close(); err != nil {
			o.log.Warn().Err(err).Msg("closing reference engine")
		}
	}()

	log := o.log.With().Str("session", sess.ID.String()).Logger()
	log.Info().Int("games", o.cfg.Games).Int("depth", o.cfg.Depth).Msg("self-play started")

	for g := 0; g < o.cfg.Games; g++ {
		if err := ctx.Err(); err != nil {
			return sess, err
		}
		agent := chess.White
		if o.cfg.AlternateColors && g%2 == 1 {
			agent = chess.Black
		}
		if ng, ok := eng.(newGamer); ok {
			if err := ng.NewGame(); err != nil {
				return sess, errors.Wrapf(err, "selfplay: new game %d", g)
			}
		}

		p := &player{
			o:       o,
			eng:     eng,
			agent:   agent,
			summary: GameSummary{GameIndex: g, Session: sess.ID, AgentColor: agent},
			log:     log.With().Int("game", g).Logger(),
		}
		game, err := p.play(ctx)
		if err != nil {
			return sess, err
		}
		summary := p.summary

		if err := o.appendPGN(game, summary, agent); err != nil {
			return sess, err
		}
		if err := o.appendMoves(summary); err != nil {
			log.Warn().Err(err).Int("game", g).Msg("move log not written")
			sess.PersistErrors = append(sess.PersistErrors, err)
		}
		if err := o.recordStats(summary); err != nil {
			log.Warn().Err(err).Int("game", g).Msg("agent stats not written")
			sess.PersistErrors = append(sess.PersistErrors, err)
		}

		sess.Games = append(sess.Games, summary)
		sess.TotalMerits += summary.TotalMerits

		log.Info().
			Int("game", g).
			Str("agent", agent.Name()).
			Str("result", string(summary.Result)).
			Int("plies", len(summary.Moves)).
			Int("merits", summary.TotalMerits).
			Msg("game finished")
	}

	log.Info().Int("merits", sess.TotalMerits).Int("plies", sess.Plies()).Msg("self-play finished")
	return sess, nil
}

func (o *Orchestrator) recordStats(s GameSummary) error {
	if o.cfg.Stats == nil {
		return nil
	}
	_, err := o.cfg.Stats.RecordGame(storage.GameRecord{
		Outcome: agentOutcome(s.Result, s.AgentColor),
		Merits:  s.TotalMerits,
		Plies:   len(s.Moves),
	})
	return errors.Wrap(err, "selfplay: record stats")
}

func agentOutcome(r Result, agent chess.Color) storage.Outcome {
	switch {
	case r == ResultUnfinished:
		return storage.OutcomeUnfinished
	case r == ResultDraw:
		return storage.OutcomeDraw
	case r.Winner() == agent:
		return storage.OutcomeWin
	}
	return storage.OutcomeLoss
}

// player holds the state of one game.
type player struct {
	o       *Orchestrator
	eng     Engine
	agent   chess.Color
	summary GameSummary
	log     zerolog.Logger

	// after is the evaluation of the current position when the previous ply
	// already computed it.
	after *quality.Eval
}

func (p *player) play(ctx context.Context) (*chess.Game, error) {
	game := chess.NewGame()
	for game.Outcome() == chess.NoOutcome && len(p.summary.Moves) < p.o.cfg.MaxPlies {
		if err := ctx.Err(); err != nil {
			return game, err
		}
		if err := p.ply(game); err != nil {
			return game, err
		}
	}

	p.summary.Result = resultOf(game.Outcome())
	switch winner := p.summary.Result.Winner(); {
	case winner == chess.NoColor:
	case winner == p.agent:
		p.summary.TotalMerits += TerminalBonus
	default:
		p.summary.TotalMerits -= TerminalBonus
	}
	return game, nil
}

func (p *player) ply(game *chess.Game) error {
	cfg := p.o.cfg
	pos := game.Position()
	mover := pos.Turn()
	plyNo := len(p.summary.Moves) + 1

	var before quality.Eval
	if p.after != nil {
		before = *p.after
	} else {
		var err error
		if before, err = p.evaluate(pos, false); err != nil {
			return err
		}
	}
	bestUCI, err := p.eng.BestMove(pos.String(), cfg.Depth)
	if err != nil {
		return errors.Wrapf(err, "selfplay: best move at ply %d", plyNo)
	}
	best := findMove(pos, bestUCI)
	if best == nil {
		return errors.Errorf("selfplay: engine best move %q is not legal at ply %d", bestUCI, plyNo)
	}

	chosen, label := best, moverEngine
	if mover == p.agent {
		label = moverFallback
		if m := p.selectMove(pos); m != nil {
			chosen, label = m, moverModel
		}
	}

	encoded := board.Encode(pos)
	san := chess.AlgebraicNotation{}.Encode(pos, chosen)
	if err := game.Move(chosen); err != nil {
		return errors.Wrapf(err, "selfplay: apply %s", chosen)
	}

	after, err := p.evaluate(game.Position(), game.Outcome() == chess.Draw)
	if err != nil {
		return err
	}
	isBest := chosen.String() == best.String()
	afterBest := after
	if !isBest {
		if afterBest, err = p.evaluate(pos.Update(best), false); err != nil {
			return err
		}
	}
	p.after = &after

	sign := board.Sign(mover)
	a := quality.Assess(
		sign*before.Centipawns(),
		sign*after.Centipawns(),
		sign*afterBest.Centipawns(),
		isBest,
	)
	p.summary.TotalMerits += a.Merit
	rec := MoveRecord{
		Move:        chosen.String(),
		SAN:         san,
		Quality:     a.Quality,
		Improvement: a.Improvement,
		VsBestCP:    a.VsBest,
		IsBest:      isBest,
	}
	p.summary.Moves = append(p.summary.Moves, rec)

	p.log.Debug().
		Int("ply", plyNo).
		Str("mover", label).
		Str("move", rec.Move).
		Str("san", san).
		Int("before", before.Centipawns()).
		Int("after", after.Centipawns()).
		Int("best_after", afterBest.Centipawns()).
		Stringer("quality", a.Quality).
		Str("reason", a.Reason).
		Int("improvement", a.Improvement).
		Int("vs_best", a.VsBest).
		Int("delta", a.Merit).
		Int("merits", p.summary.TotalMerits).
		Msg("ply")

	p.train(Example{
		History: append([]MoveRecord(nil), p.summary.Moves...),
		Board:   encoded,
		Move:    rec.Move,
		Quality: a.Quality,
		Merit:   a.Merit,
	})
	return nil
}

// evaluate scores pos from white's perspective. Finished positions are scored
// locally; drawn marks a draw the rules declared on the game record.
func (p *player) evaluate(pos *chess.Position, drawn bool) (quality.Eval, error) {
	if e, ok := board.Terminal(pos); ok {
		return e, nil
	}
	if drawn {
		return quality.CP(0), nil
	}
	e, err := p.eng.Analyse(pos.String(), p.o.cfg.Depth)
	if err != nil {
		return e, errors.Wrapf(err, "selfplay: analyse %s", pos)
	}
	return e, nil
}

// selectMove asks the agent for a move and returns nil when it declines.
func (p *player) selectMove(pos *chess.Position) (m *chess.Move) {
	sel := p.o.cfg.Select
	if sel == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn().Interface("panic", r).Msg("move selection panicked, using engine move")
			m = nil
		}
	}()

	s, err := sel(pos)
	if err != nil {
		p.log.Warn().Err(err).Msg("move selection failed, using engine move")
		return nil
	}
	uci := s.UCI
	if s.Move != nil {
		uci = s.Move.String()
	}
	if uci == "" {
		return nil
	}
	if m = findMove(pos, uci); m == nil {
		p.log.Warn().Str("move", uci).Msg("agent move is not legal, using engine move")
	}
	return m
}

func (p *player) train(ex Example) {
	fn := p.o.cfg.Train
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn().Interface("panic", r).Str("move", ex.Move).Msg("training callback panicked")
		}
	}()
	if err := fn(ex); err != nil {
		p.log.Warn().Err(err).Str("move", ex.Move).Msg("training callback failed")
	}
}

// findMove returns the legal move in pos written as uci, or nil.
func findMove(pos *chess.Position, uci string) *chess.Move {
	uci = strings.ToLower(strings.TrimSpace(uci))
	if uci == "" {
		return nil
	}
	for _, m := range pos.ValidMoves() {
		if m.String() == uci {
			return m
		}
	}
	return nil
}
