package state

import (
	"sort"

	"github.com/jason-s-yu/scorecard/engine"
	"github.com/jason-s-yu/scorecard/internal/event"
)

// IsPresent reports whether a registered player takes part in a round. A round
// with no entry for the player counts them as present.
func IsPresent(s AppState, round int, playerID string) bool {
	if _, ok := s.Players[playerID]; !ok {
		return false
	}
	rd, ok := s.Rounds[round]
	if !ok {
		return false
	}
	present, ok := rd.Present[playerID]
	return !ok || present
}

// PresentPlayers lists the players present in a round in display order.
func PresentPlayers(s AppState, round int) []string {
	var out []string
	for _, id := range s.Order {
		if IsPresent(s, round, id) {
			out = append(out, id)
		}
	}
	return out
}

// ReadyToFinalize reports whether every present player has a bid and an
// outcome and the round has not been scored yet.
func ReadyToFinalize(s AppState, round int) bool {
	rd, ok := s.Rounds[round]
	if !ok || !editable(rd.State) {
		return false
	}
	ids := PresentPlayers(s, round)
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if _, ok := rd.Bids[id]; !ok {
			return false
		}
		if _, ok := rd.Made[id]; !ok {
			return false
		}
	}
	return true
}

// CurrentRound returns the lowest round still open for play, or 0 when every
// round is scored or locked.
func CurrentRound(s AppState) int {
	rounds := make([]int, 0, len(s.Rounds))
	for n := range s.Rounds {
		rounds = append(rounds, n)
	}
	sort.Ints(rounds)
	for _, n := range rounds {
		if editable(s.Rounds[n].State) {
			return n
		}
	}
	return 0
}

// RoundsScored counts the rounds in the scored state.
func RoundsScored(s AppState) int {
	n := 0
	for _, rd := range s.Rounds {
		if rd.State == event.RoundScored {
			n++
		}
	}
	return n
}

// Standing is one line of the leaderboard.
type Standing struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// Standings ranks registered players by cumulative score. Ties share a rank
// and keep display order.
func Standings(s AppState) []Standing {
	out := make([]Standing, 0, len(s.Order))
	for _, id := range s.Order {
		out = append(out, Standing{PlayerID: id, Name: s.Players[id], Score: s.Scores[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out
}

// Winners returns the ids sharing the top score.
func Winners(s AppState) []string {
	var ids []string
	for _, st := range Standings(s) {
		if st.Rank == 1 {
			ids = append(ids, st.PlayerID)
		}
	}
	return ids
}

// ActiveRoster returns the active roster for a mode.
func ActiveRoster(s AppState, mode event.RosterType) (Roster, bool) {
	id := s.ActiveScorecardRosterID
	if mode == event.RosterSingle {
		id = s.ActiveSingleRosterID
	}
	if id == "" {
		return Roster{}, false
	}
	r, ok := s.Rosters[id]
	return r, ok
}

// SPCurrentBidder returns the next player to bid in the single-player round,
// starting left of the dealer, or "" once everyone has bid.
func SPCurrentBidder(s AppState) string {
	sp := s.SP
	if sp.Phase != event.PhaseBidding || len(sp.Order) == 0 {
		return ""
	}
	rd := s.Rounds[sp.RoundNo]
	start := engine.SeatIndex(sp.Order, sp.DealerID) + 1
	for k := 0; k < len(sp.Order); k++ {
		id := sp.Order[(start+k)%len(sp.Order)]
		if _, ok := rd.Bids[id]; !ok {
			return id
		}
	}
	return ""
}

// SPCurrentPlayer returns whose turn it is in the current trick, or "" while a
// completed trick waits to be cleared or outside the playing phase.
func SPCurrentPlayer(s AppState) string {
	sp := s.SP
	n := len(sp.Order)
	if sp.Phase != event.PhasePlaying || n == 0 || sp.Reveal != nil || len(sp.TrickPlays) >= n {
		return ""
	}
	lead := engine.SeatIndex(sp.Order, sp.LeaderID)
	if lead < 0 {
		return ""
	}
	id := sp.Order[(lead+len(sp.TrickPlays))%n]
	if len(sp.Hands[id]) == 0 {
		return ""
	}
	return id
}

// SPLedSuit returns the suit led in the current trick.
func SPLedSuit(s AppState) (engine.Suit, bool) { return engine.LedSuit(s.SP.TrickPlays) }

// SPTrickComplete reports whether every seated player has played to the trick.
func SPTrickComplete(s AppState) bool {
	n := len(s.SP.Order)
	return n > 0 && len(s.SP.TrickPlays) == n
}

// SPLastTrick reports whether the completed trick is the last of the round.
func SPLastTrick(s AppState) bool {
	if !SPTrickComplete(s) {
		return false
	}
	for _, h := range s.SP.Hands {
		if len(h) > 0 {
			return false
		}
	}
	return true
}

// SPRoundOver reports whether every trick of the dealt round has been cleared.
func SPRoundOver(s AppState) bool {
	sp := s.SP
	if sp.RoundNo == 0 || len(sp.Order) == 0 || len(sp.TrickPlays) > 0 {
		return false
	}
	for _, h := range sp.Hands {
		if len(h) > 0 {
			return false
		}
	}
	return true
}

// SPTricksPlayed counts the tricks cleared so far in the round.
func SPTricksPlayed(s AppState) int {
	n := 0
	for _, c := range s.SP.TrickCounts {
		n += c
	}
	return n
}
