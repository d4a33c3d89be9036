// Command selfplay plays an online-trained policy against a UCI reference
// engine, grading every move and training on the graded moves as it goes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"time"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hailam/chessmerit/internal/selfplay"
	"github.com/hailam/chessmerit/internal/storage"
	"github.com/hailam/chessmerit/internal/trainer"
	"github.com/hailam/chessmerit/internal/uci"
)

var (
	enginePath = flag.String("engine", "stockfish", "UCI reference engine executable")
	hash       = flag.Int("hash", 0, "engine hash size in MB (0 keeps the engine default)")
	threads    = flag.Int("threads", 0, "engine threads (0 keeps the engine default)")
	games      = flag.Int("games", selfplay.DefaultGames, "number of games to play")
	depth      = flag.Int("depth", selfplay.DefaultDepth, "reference engine search depth")
	maxPlies   = flag.Int("max-plies", selfplay.DefaultMaxPlies, "ply cap per game")
	alternate  = flag.Bool("alternate", true, "alternate the agent's color between games")
	dataDir    = flag.String("data", storage.DefaultRoot, "directory for game logs and model snapshots")
	lr         = flag.Float64("lr", trainer.DefaultLearningRate, "trainer learning rate")
	hidden     = flag.Int("hidden", trainer.DefaultHidden, "hidden layer width for a fresh model")
	seed       = flag.Uint64("seed", 0, "weight initialization seed (0 = random)")
	train      = flag.Bool("train", true, "train the policy on every graded ply")
	policy     = flag.Bool("policy", true, "let the policy choose the agent's moves")
	showStats  = flag.Bool("stats", false, "print stored agent statistics and exit")
	verbose    = flag.Bool("v", false, "log every ply")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
)

func main() {
	flag.Parse()

	log := newLogger(*verbose)
	if err := run(log); err != nil {
		log.Error().Err(err).Msg("selfplay failed")
		os.Exit(1)
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func run(log zerolog.Logger) error {
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return errors.Wrap(err, "could not create CPU profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return errors.Wrap(err, "could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", *cpuprofile).Msg("CPU profiling enabled")
	}

	paths := storage.Layout(*dataDir)
	store, err := openStore(paths.Models, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if *showStats {
		return printStats(store)
	}

	tr := trainer.New(trainer.Config{
		LearningRate: float32(*lr),
		Hidden:       *hidden,
		Seed:         *seed,
		Logger:       log.With().Str("component", "trainer").Logger(),
	}, store)

	cfg := sessionConfig(paths, store, tr, *policy, *train, log)
	cfg.Games = *games
	cfg.AlternateColors = *alternate
	cfg.MaxPlies = *maxPlies
	cfg.Depth = *depth

	launch := func() (selfplay.Engine, error) {
		eng, err := uci.Start(uci.Config{
			Path:    *enginePath,
			Hash:    *hash,
			Threads: *threads,
			Logger:  log.With().Str("component", "uci").Logger(),
		})
		if err != nil {
			return nil, err
		}
		return eng, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess, err := selfplay.New(cfg, launch).Run(ctx)
	printSession(sess, tr.VocabularySize())
	return err
}

// openStore opens the snapshot store in dir. A directory that cannot be
// opened is logged and replaced by an in-memory store, so the session starts
// from a fresh model and nothing is persisted.
func openStore(dir string, log zerolog.Logger) (*storage.Store, error) {
	err := storage.EnsureDir(dir)
	if err == nil {
		var store *storage.Store
		if store, err = storage.Open(dir); err == nil {
			return store, nil
		}
	}
	log.Warn().Err(err).Str("dir", dir).Msg("snapshot store unusable, continuing without persistence")
	return storage.OpenInMemory()
}

// sessionConfig wires the trainer and store into a self-play config.
func sessionConfig(paths storage.Paths, store *storage.Store, tr *trainer.Trainer, usePolicy, useTrain bool, log zerolog.Logger) selfplay.Config {
	cfg := selfplay.DefaultConfig()
	cfg.PGNPath = paths.PGN
	cfg.MovesPath = paths.Moves
	cfg.Stats = store
	cfg.Logger = log.With().Str("component", "selfplay").Logger()
	if usePolicy {
		cfg.Select = func(pos *chess.Position) (selfplay.Selection, error) {
			mv, err := tr.SelectMove(pos)
			return selfplay.Selection{UCI: mv}, err
		}
	}
	if useTrain {
		cfg.Train = func(ex selfplay.Example) error {
			_, err := tr.Update(ex.Board, ex.Move, ex.Merit)
			return err
		}
	}
	return cfg
}

func printSession(sess selfplay.Session, vocabulary int) {
	for _, g := range sess.Games {
		fmt.Printf("game %d/%d: agent=%s result=%s plies=%d merits=%d\n",
			g.GameIndex+1, len(sess.Games), g.AgentColor.Name(), g.Result, len(g.Moves), g.TotalMerits)
	}
	fmt.Printf("session %s: games=%d plies=%d merits=%d vocabulary=%d\n",
		sess.ID, len(sess.Games), sess.Plies(), sess.TotalMerits, vocabulary)
	for _, err := range sess.PersistErrors {
		fmt.Printf("  not persisted: %v\n", err)
	}
}

func printStats(store *storage.Store) error {
	s, err := store.LoadStats()
	if err != nil {
		return err
	}
	fmt.Printf("games:       %d\n", s.GamesPlayed)
	fmt.Printf("wins:        %d (%.1f%%)\n", s.Wins, s.WinRate())
	fmt.Printf("losses:      %d\n", s.Losses)
	fmt.Printf("draws:       %d\n", s.Draws)
	fmt.Printf("unfinished:  %d\n", s.Unfinished)
	fmt.Printf("merits:      %d\n", s.TotalMerits)
	fmt.Printf("plies:       %d\n", s.TotalPlies)
	fmt.Printf("best streak: %d\n", s.LongestWinStrk)
	if !s.LastPlayed.IsZero() {
		fmt.Printf("last played: %s\n", s.LastPlayed.Format(time.RFC3339))
	}
	return nil
}
