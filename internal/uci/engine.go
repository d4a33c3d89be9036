// Package uci drives an external reference engine over the Universal Chess
// Interface protocol.
package uci

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hailam/chessmerit/internal/quality"
)

var (
	// ErrEngineNotFound is returned by Start when the executable does not exist.
	ErrEngineNotFound = errors.New("uci: engine executable not found")
	// ErrNoBestMove is returned when the engine answers "bestmove (none)".
	ErrNoBestMove = errors.New("uci: engine returned no best move")
)

// quitTimeout bounds how long Close waits for the process to exit after "quit".
const quitTimeout = 2 * time.Second

// Config describes how to launch the engine.
type Config struct {
	Path    string
	Args    []string
	Env     []string // appended to the current environment
	Hash    int      // MB, 0 keeps the engine default
	Threads int      // 0 keeps the engine default
	Logger  zerolog.Logger
}

// Engine is a running UCI subprocess. It is not safe for concurrent use.
type Engine struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *bufio.Scanner
	log   zerolog.Logger
	name  string
}

// SearchResult is the outcome of one "go depth" request.
type SearchResult struct {
	Depth    int
	Eval     quality.Eval // white's perspective
	BestMove string       // UCI notation, empty when the engine has none
}

// Start launches the engine and completes the uci/isready handshake.
func Start(cfg Config) (*Engine, error) {
	if cfg.Path == "" {
		return nil, ErrEngineNotFound
	}
	path, err := exec.LookPath(cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(ErrEngineNotFound, "%s: %v", cfg.Path, err)
	}

	cmd := exec.Command(path, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "uci: stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "uci: stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "uci: start %s", path)
	}

	e := &Engine{
		cmd:   cmd,
		stdin: stdin,
		out:   bufio.NewScanner(stdout),
		log:   cfg.Logger,
	}

	if err := e.handshake(cfg); err != nil {
		e.Close()
		return nil, err
	}
	e.log.Info().Str("engine", e.name).Str("path", path).Msg("reference engine started")
	return e, nil
}

// Name returns the engine's self-reported "id name".
func (e *Engine) Name() string {
	return e.name
}

func (e *Engine) handshake(cfg Config) error {
	if err := e.send("uci"); err != nil {
		return err
	}
	err := e.readUntil("uciok", func(fields []string) {
		if len(fields) > 2 && fields[0] == "id" && fields[1] == "name" {
			e.name = strings.Join(fields[2:], " ")
		}
	})
	if err != nil {
		return errors.Wrap(err, "uci: handshake")
	}

	if cfg.Hash > 0 {
		if err := e.send(fmt.Sprintf("setoption name Hash value %d", cfg.Hash)); err != nil {
			return err
		}
	}
	if cfg.Threads > 0 {
		if err := e.send(fmt.Sprintf("setoption name Threads value %d", cfg.Threads)); err != nil {
			return err
		}
	}
	return e.ready()
}

// NewGame tells the engine a new game starts and waits until it is ready.
func (e *Engine) NewGame() error {
	if err := e.send("ucinewgame"); err != nil {
		return err
	}
	return e.ready()
}

func (e *Engine) ready() error {
	if err := e.send("isready"); err != nil {
		return err
	}
	return errors.Wrap(e.readUntil("readyok", nil), "uci: isready")
}

// Search runs a fixed-depth search on the position and returns the deepest
// exact score together with the engine's best move.
func (e *Engine) Search(fen string, depth int) (SearchResult, error) {
	white, err := whiteToMove(fen)
	if err != nil {
		return SearchResult{}, err
	}
	if err := e.send("position fen " + fen); err != nil {
		return SearchResult{}, err
	}
	if err := e.send(fmt.Sprintf("go depth %d", depth)); err != nil {
		return SearchResult{}, err
	}

	var res SearchResult
	best := Info{Depth: -1}
	for e.out.Scan() {
		fields := strings.Fields(e.out.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "info":
			info, ok := ParseInfo(fields[1:])
			if ok && info.Depth >= best.Depth {
				best = info
			}
		case "bestmove":
			if len(fields) > 1 && fields[1] != "(none)" && fields[1] != "0000" {
				res.BestMove = fields[1]
			}
			if best.Depth >= 0 {
				res.Depth = best.Depth
				res.Eval = best.Eval(white)
			}
			return res, nil
		}
	}
	if err := e.out.Err(); err != nil {
		return SearchResult{}, errors.Wrap(err, "uci: read search output")
	}
	return SearchResult{}, errors.Wrap(io.ErrUnexpectedEOF, "uci: engine exited during search")
}

// Analyse returns the engine's evaluation of the position, white's perspective.
func (e *Engine) Analyse(fen string, depth int) (quality.Eval, error) {
	res, err := e.Search(fen, depth)
	if err != nil {
		return quality.Eval{}, err
	}
	return res.Eval, nil
}

// BestMove returns the engine's choice for the position in UCI notation.
func (e *Engine) BestMove(fen string, depth int) (string, error) {
	res, err := e.Search(fen, depth)
	if err != nil {
		return "", err
	}
	if res.BestMove == "" {
		return "", errors.Wrapf(ErrNoBestMove, "fen %q", fen)
	}
	return res.BestMove, nil
}

// Close asks the engine to quit and waits for the process, killing it if it
// does not exit in time.
func (e *Engine) Close() error {
	_ = e.send("quit")
	e.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(quitTimeout):
		e.log.Warn().Str("engine", e.name).Msg("engine did not quit, killing")
		if err := e.cmd.Process.Kill(); err != nil {
			return errors.Wrap(err, "uci: kill engine")
		}
		<-done
		return nil
	}
}

func (e *Engine) send(line string) error {
	e.log.Trace().Str("cmd", line).Msg("uci >")
	if _, err := io.WriteString(e.stdin, line+"\n"); err != nil {
		return errors.Wrapf(err, "uci: send %q", line)
	}
	return nil
}

// readUntil consumes output lines until one starts with token.
func (e *Engine) readUntil(token string, each func(fields []string)) error {
	for e.out.Scan() {
		fields := strings.Fields(e.out.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == token {
			return nil
		}
		if each != nil {
			each(fields)
		}
	}
	if err := e.out.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

// whiteToMove reads the side-to-move field of a FEN.
func whiteToMove(fen string) (bool, error) {
	parts := strings.Fields(fen)
	if len(parts) < 2 {
		return false, errors.Errorf("uci: malformed fen %q", fen)
	}
	switch parts[1] {
	case "w":
		return true, nil
	case "b":
		return false, nil
	}
	return false, errors.Errorf("uci: bad side to move in fen %q", fen)
}

// Info is the score-bearing part of an "info" line, relative to the side to move.
type Info struct {
	Depth  int
	CP     int
	Mate   int
	IsMate bool
}

// ParseInfo parses the tokens following "info". It reports false for lines
// without an exact score (no score, or a lowerbound/upperbound score).
func ParseInfo(args []string) (Info, bool) {
	var info Info
	scored := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "depth":
			if i+1 < len(args) {
				info.Depth, _ = strconv.Atoi(args[i+1])
				i++
			}
		case "score":
			if i+2 >= len(args) {
				return Info{}, false
			}
			v, err := strconv.Atoi(args[i+2])
			if err != nil {
				return Info{}, false
			}
			switch args[i+1] {
			case "cp":
				info.CP = v
			case "mate":
				info.Mate = v
				info.IsMate = true
			default:
				return Info{}, false
			}
			scored = true
			i += 2
		case "lowerbound", "upperbound":
			return Info{}, false
		case "pv", "string":
			// Everything after pv/string is moves or free text.
			i = len(args)
		}
	}
	return info, scored
}

// Eval converts the side-to-move score into a white-perspective evaluation.
func (i Info) Eval(whiteToMove bool) quality.Eval {
	sign := 1
	if !whiteToMove {
		sign = -1
	}
	if !i.IsMate {
		return quality.CP(sign * i.CP)
	}
	// "mate 0" and negative counts mean the side to move is being mated.
	n := i.Mate
	if n == 0 {
		n = -1
	}
	return quality.MateIn(sign * n)
}
