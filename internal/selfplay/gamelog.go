package selfplay

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/notnil/chess"
	"github.com/pkg/errors"

	"github.com/hailam/chessmerit/internal/storage"
)

const (
	pgnEvent    = "chessmerit self-play"
	pgnSite     = "local"
	agentName   = "agent"
	engineName  = "reference engine"
	logFileMode = 0644
)

// appendPGN writes the finished game to the primary game log.
func (o *Orchestrator) appendPGN(game *chess.Game, s GameSummary, agent chess.Color) error {
	if o.cfg.PGNPath == "" {
		return nil
	}
	white, black := agentName, engineName
	if agent == chess.Black {
		white, black = black, white
	}
	game.AddTagPair("Event", pgnEvent)
	game.AddTagPair("Site", pgnSite)
	game.AddTagPair("Date", time.Now().Format("2006.01.02"))
	game.AddTagPair("Round", strconv.Itoa(s.GameIndex+1))
	game.AddTagPair("White", white)
	game.AddTagPair("Black", black)
	game.AddTagPair("Session", s.Session.String())
	game.AddTagPair("Result", string(s.Result))

	err := appendFile(o.cfg.PGNPath, []byte(game.String()+"\n\n"))
	return errors.Wrapf(err, "selfplay: append game %d to %s", s.GameIndex, o.cfg.PGNPath)
}

// appendMoves writes one JSON line for the game to the move log.
func (o *Orchestrator) appendMoves(s GameSummary) error {
	if o.cfg.MovesPath == "" {
		return nil
	}
	line, err := json.Marshal(s)
	if err != nil {
		return errors.Wrapf(err, "selfplay: encode game %d", s.GameIndex)
	}
	err = appendFile(o.cfg.MovesPath, append(line, '\n'))
	return errors.Wrapf(err, "selfplay: append game %d to %s", s.GameIndex, o.cfg.MovesPath)
}

func appendFile(path string, data []byte) error {
	if err := storage.EnsureParent(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFileMode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
