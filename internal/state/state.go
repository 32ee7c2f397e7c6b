// Package state holds the reduced projection of the event log and the pure
// reducer that folds events into it.
package state

import (
	"maps"
	"slices"

	"github.com/jason-s-yu/scorecard/engine"
	"github.com/jason-s-yu/scorecard/internal/event"
)

// DefaultRounds is the number of rounds in a fresh game.
const DefaultRounds = 10

// AppState is the whole application state. Treat values as immutable: Reduce
// returns a new AppState and never writes through the maps of its input.
type AppState struct {
	Players                 map[string]string           `json:"players"`
	PlayerTypes             map[string]event.PlayerType `json:"playerTypes"`
	PlayerStyles            map[string]engine.Style     `json:"playerStyles,omitempty"`
	Order                   []string                    `json:"order"`
	Rosters                 map[string]Roster           `json:"rosters"`
	ActiveScorecardRosterID string                      `json:"activeScorecardRosterId,omitempty"`
	ActiveSingleRosterID    string                      `json:"activeSingleRosterId,omitempty"`
	Rounds                  map[int]RoundData           `json:"rounds"`
	Scores                  map[string]int              `json:"scores"`
	SP                      SPState                     `json:"sp"`
}

// Roster is a named, ordered grouping of players. Membership never changes
// under an existing id.
type Roster struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Type      event.RosterType `json:"type"`
	PlayerIDs []string         `json:"playerIds"`
	Archived  bool             `json:"archived,omitempty"`
}

// RoundData is one row of the scorecard. Deltas is filled in by finalize.
type RoundData struct {
	State   event.RoundState `json:"state"`
	Bids    map[string]int   `json:"bids"`
	Made    map[string]bool  `json:"made"`
	Present map[string]bool  `json:"present"`
	Deltas  map[string]int   `json:"deltas,omitempty"`
}

// Reveal marks a completed trick whose winner is being shown.
type Reveal struct {
	WinnerID string `json:"winnerId"`
}

// SPState is the single-player runtime.
type SPState struct {
	Phase            event.Phase              `json:"phase"`
	RoundNo          int                      `json:"roundNo"`
	DealerID         string                   `json:"dealerId,omitempty"`
	LeaderID         string                   `json:"leaderId,omitempty"`
	Order            []string                 `json:"order"`
	Trump            engine.Suit              `json:"trump,omitempty"`
	TrumpCard        *engine.Card             `json:"trumpCard,omitempty"`
	Hands            map[string][]engine.Card `json:"hands"`
	TrickPlays       []engine.Play            `json:"trickPlays"`
	TrickCounts      map[string]int           `json:"trickCounts"`
	TrumpBroken      bool                     `json:"trumpBroken"`
	Reveal           *Reveal                  `json:"reveal"`
	Seed             int64                    `json:"seed"`
	HumanID          string                   `json:"humanId,omitempty"`
	Tallies          map[int]map[string]int   `json:"tallies,omitempty"`
	SummaryEnteredAt *int64                   `json:"summaryEnteredAt,omitempty"`
}

// Initial returns INITIAL_STATE: ten rounds with round 1 open for bids and the
// single-player session in setup. Each call returns fresh maps.
func Initial() AppState {
	s := AppState{
		Players:      map[string]string{},
		PlayerTypes:  map[string]event.PlayerType{},
		PlayerStyles: map[string]engine.Style{},
		Rosters:      map[string]Roster{},
		Rounds:       make(map[int]RoundData, DefaultRounds),
		Scores:       map[string]int{},
		SP:           initialSP(),
	}
	for r := 1; r <= DefaultRounds; r++ {
		st := event.RoundLocked
		if r == 1 {
			st = event.RoundBidding
		}
		s.Rounds[r] = newRound(st)
	}
	return s
}

func initialSP() SPState {
	return SPState{
		Phase:       event.PhaseSetup,
		Hands:       map[string][]engine.Card{},
		TrickCounts: map[string]int{},
	}
}

func newRound(st event.RoundState) RoundData {
	return RoundData{
		State:   st,
		Bids:    map[string]int{},
		Made:    map[string]bool{},
		Present: map[string]bool{},
	}
}

// ---------------------------------------------------------------------------
// Copy-on-write helpers
// ---------------------------------------------------------------------------

func (r RoundData) clone() RoundData {
	return RoundData{
		State:   r.State,
		Bids:    cloneMap(r.Bids),
		Made:    cloneMap(r.Made),
		Present: cloneMap(r.Present),
		Deltas:  maps.Clone(r.Deltas),
	}
}

// withRounds returns s with a private copy of every round.
func (s AppState) withRounds() AppState {
	rounds := make(map[int]RoundData, len(s.Rounds))
	for n, rd := range s.Rounds {
		rounds[n] = rd.clone()
	}
	s.Rounds = rounds
	return s
}

// withPlayers returns s with private copies of the player registry.
func (s AppState) withPlayers() AppState {
	s.Players = cloneMap(s.Players)
	s.PlayerTypes = cloneMap(s.PlayerTypes)
	s.PlayerStyles = cloneMap(s.PlayerStyles)
	s.Order = slices.Clone(s.Order)
	return s
}

func (s AppState) withScores() AppState {
	s.Scores = cloneMap(s.Scores)
	return s
}

func (s AppState) withRosters() AppState {
	s.Rosters = cloneMap(s.Rosters)
	return s
}

// withSP returns s with a private copy of the single-player runtime.
func (s AppState) withSP() AppState {
	sp := s.SP
	sp.Order = slices.Clone(sp.Order)
	sp.Hands = make(map[string][]engine.Card, len(s.SP.Hands))
	for id, h := range s.SP.Hands {
		sp.Hands[id] = slices.Clone(h)
	}
	sp.TrickPlays = slices.Clone(sp.TrickPlays)
	sp.TrickCounts = cloneMap(sp.TrickCounts)
	if sp.TrumpCard != nil {
		c := *sp.TrumpCard
		sp.TrumpCard = &c
	}
	if sp.Reveal != nil {
		r := *sp.Reveal
		sp.Reveal = &r
	}
	if sp.Tallies != nil {
		t := make(map[int]map[string]int, len(sp.Tallies))
		for n, m := range sp.Tallies {
			t[n] = maps.Clone(m)
		}
		sp.Tallies = t
	}
	if sp.SummaryEnteredAt != nil {
		at := *sp.SummaryEnteredAt
		sp.SummaryEnteredAt = &at
	}
	s.SP = sp
	return s
}

// Clone returns a deep copy of s.
func (s AppState) Clone() AppState {
	s = s.withRounds().withPlayers().withScores().withSP()
	rosters := make(map[string]Roster, len(s.Rosters))
	for id, r := range s.Rosters {
		r.PlayerIDs = slices.Clone(r.PlayerIDs)
		rosters[id] = r
	}
	s.Rosters = rosters
	return s
}

// cloneMap copies m, returning an empty map rather than nil so later writes
// are always safe.
func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	maps.Copy(out, m)
	return out
}
