package state

import (
	"slices"

	"github.com/jason-s-yu/scorecard/engine"
	"github.com/jason-s-yu/scorecard/internal/event"
)

// editable reports whether bids and made flags may change in a round.
func editable(st event.RoundState) bool {
	return st == event.RoundBidding || st == event.RoundPlaying || st == event.RoundComplete
}

func bidSet(s AppState, p event.BidSet) AppState {
	rd, ok := s.Rounds[p.Round]
	if !ok || !editable(rd.State) || !IsPresent(s, p.Round, p.PlayerID) {
		return s
	}
	if p.Bid > BidLimit(s, p.Round, p.PlayerID) {
		return s
	}
	if cur, ok := rd.Bids[p.PlayerID]; ok && cur == p.Bid {
		return s
	}
	s = s.withRounds()
	s.Rounds[p.Round].Bids[p.PlayerID] = p.Bid
	return s
}

// BidLimit is the highest bid round accepts from playerID: the dealt hand when
// round is the live single-player round, the round's hand size otherwise.
func BidLimit(s AppState, round int, playerID string) int {
	if n, ok := spDealtSize(s, round, playerID); ok {
		return n
	}
	return engine.TricksForRound(round, 0)
}

// spDealtSize returns how many cards playerID was dealt when round is the
// live single-player round and they hold a seat in it.
func spDealtSize(s AppState, round int, playerID string) (int, bool) {
	sp := s.SP
	if sp.RoundNo != round || !slices.Contains(sp.Order, playerID) {
		return 0, false
	}
	hand, ok := sp.Hands[playerID]
	if !ok {
		return 0, false
	}
	n := len(hand) + SPTricksPlayed(s)
	if slices.ContainsFunc(sp.TrickPlays, func(pl engine.Play) bool { return pl.PlayerID == playerID }) {
		n++
	}
	return n, true
}

// madeSet records the outcome for a player; a nil Made clears it.
func madeSet(s AppState, p event.MadeSet) AppState {
	rd, ok := s.Rounds[p.Round]
	if !ok || !editable(rd.State) || !IsPresent(s, p.Round, p.PlayerID) {
		return s
	}
	cur, has := rd.Made[p.PlayerID]
	if (p.Made == nil && !has) || (p.Made != nil && has && cur == *p.Made) {
		return s
	}
	s = s.withRounds()
	if p.Made == nil {
		delete(s.Rounds[p.Round].Made, p.PlayerID)
	} else {
		s.Rounds[p.Round].Made[p.PlayerID] = *p.Made
	}
	return s
}

// forward lists the transitions round/state-set may make. Scored is reached
// only through round/finalize.
var forward = map[event.RoundState][]event.RoundState{
	event.RoundLocked:  {event.RoundBidding},
	event.RoundBidding: {event.RoundPlaying, event.RoundComplete},
	event.RoundPlaying: {event.RoundComplete},
}

func roundStateSet(s AppState, p event.RoundStateSet) AppState {
	rd, ok := s.Rounds[p.Round]
	if !ok {
		return s
	}
	if rd.State == event.RoundScored && p.State == event.RoundBidding {
		return reopenRound(s, p.Round)
	}
	for _, next := range forward[rd.State] {
		if next == p.State {
			s = s.withRounds()
			r := s.Rounds[p.Round]
			r.State = p.State
			s.Rounds[p.Round] = r
			return s
		}
	}
	return s
}

// reopenRound takes a scored round back to bidding for a single-player
// replay. Its recorded deltas come off the cumulative scores.
func reopenRound(s AppState, round int) AppState {
	if s.SP.Phase != event.PhaseSummary && s.SP.Phase != event.PhaseDone {
		return s
	}
	s = s.withRounds().withScores()
	rd := s.Rounds[round]
	for id, d := range rd.Deltas {
		s.Scores[id] -= d
	}
	rd.State = event.RoundBidding
	rd.Bids = map[string]int{}
	rd.Made = map[string]bool{}
	rd.Deltas = nil
	s.Rounds[round] = rd
	return s
}

func roundFinalize(s AppState, p event.RoundFinalize) AppState {
	if !ReadyToFinalize(s, p.Round) {
		return s
	}
	s = s.withRounds().withScores()
	rd := s.Rounds[p.Round]
	rd.Deltas = map[string]int{}
	for _, id := range PresentPlayers(s, p.Round) {
		d := engine.RoundDelta(rd.Bids[id], rd.Made[id])
		rd.Deltas[id] = d
		s.Scores[id] += d
	}
	rd.State = event.RoundScored
	s.Rounds[p.Round] = rd
	if next, ok := s.Rounds[p.Round+1]; ok && next.State == event.RoundLocked {
		next.State = event.RoundBidding
		s.Rounds[p.Round+1] = next
	}
	return s
}

func scoreAdded(s AppState, p event.ScoreAdded) AppState {
	if _, ok := s.Players[p.PlayerID]; !ok || p.Delta == 0 {
		return s
	}
	s = s.withScores()
	s.Scores[p.PlayerID] += p.Delta
	return s
}
