package playtest

import (
	"errors"
	"fmt"
	"log/slog"
)

// Runner plays one match, a move at a time.
type Runner struct {
	Observer *Observer
	Actor    *Actor
	Bot      *Bot
	MatchID  string
}

// Step plays one move for the seat whose turn it is: an action, or ending the
// turn when the bot has nothing left to do. It reports true once the match
// has a winner.
func (r *Runner) Step() (bool, error) {
	g, err := r.Observer.Match(r.MatchID)
	if err != nil {
		return false, err
	}
	if g.GameEnded {
		return true, nil
	}
	pid := g.CurrentPlayerID()
	if pid == "" {
		return false, fmt.Errorf("match %s is in %s phase", r.MatchID, g.Phase)
	}

	if req, ok := r.Bot.Decide(g, pid); ok {
		out, err := r.Actor.Act(r.MatchID, req)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Rejected() {
			slog.Debug("move rejected", "match", r.MatchID, "player", pid, "action", req.Type, "code", apiErr.Code, "reason", apiErr.Message)
			r.Bot.Reject(pid, g.Round, req.Type)
			return false, nil
		}
		if err != nil {
			return false, err
		}
		slog.Debug("move played", "match", r.MatchID, "player", pid, "action", req.Type, "details", out.Result.Entry.Details)
		return out.Result.Winner != "", nil
	}

	out, err := r.Actor.EndTurn(r.MatchID, pid)
	if err != nil {
		return false, err
	}
	if rep := out.Report; rep != nil {
		slog.Info("round played",
			"match", r.MatchID,
			"round", rep.Round,
			"demand", rep.Market.Demand,
			"sold", len(rep.Market.Sales),
			"manufacturer", rep.Manufacturer.Mode,
			"resale", rep.Resale.Mode,
		)
		return rep.Winner != "", nil
	}
	return false, nil
}
