package state

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/scorecard/engine"
	"github.com/jason-s-yu/scorecard/internal/event"
)

var seq int

// ev wraps a payload with a deterministic id and timestamp.
func ev(p event.Payload) event.Event {
	seq++
	return event.NewAt(fmt.Sprintf("e%d", seq), int64(seq), p)
}

func apply(s AppState, ps ...event.Payload) AppState {
	for _, p := range ps {
		s = Reduce(s, ev(p))
	}
	return s
}

func yes() *bool { b := true; return &b }
func no() *bool  { b := false; return &b }

func withPlayers(ids ...string) AppState {
	s := Initial()
	for _, id := range ids {
		s = apply(s, event.PlayerAdded{ID: id, Name: "Player " + id})
	}
	return s
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestHandledTypesMatchSchemas(t *testing.T) {
	assert.ElementsMatch(t, event.Types(), HandledTypes())
}

func TestInitialState(t *testing.T) {
	s := Initial()
	require.Len(t, s.Rounds, DefaultRounds)
	assert.Equal(t, event.RoundBidding, s.Rounds[1].State)
	for r := 2; r <= DefaultRounds; r++ {
		assert.Equal(t, event.RoundLocked, s.Rounds[r].State, "round %d", r)
	}
	assert.Equal(t, event.PhaseSetup, s.SP.Phase)
	assert.Equal(t, mustJSON(t, Initial()), mustJSON(t, s))
}

func TestReplayIsDeterministic(t *testing.T) {
	events := []event.Event{
		event.NewAt("1", 1, event.PlayerAdded{ID: "p1", Name: "Ana"}),
		event.NewAt("2", 2, event.PlayerAdded{ID: "p2", Name: "Ben", Kind: event.PlayerBot}),
		event.NewAt("3", 3, event.BidSet{Round: 1, PlayerID: "p1", Bid: 3}),
		event.NewAt("4", 4, event.BidSet{Round: 1, PlayerID: "p2", Bid: 2}),
		event.NewAt("5", 5, event.MadeSet{Round: 1, PlayerID: "p1", Made: yes()}),
		event.NewAt("6", 6, event.MadeSet{Round: 1, PlayerID: "p2", Made: no()}),
		event.NewAt("7", 7, event.RoundFinalize{Round: 1}),
		event.NewAt("8", 8, event.RosterCreated{RosterID: "r1", Name: "Friday", Kind: event.RosterScorecard, PlayerIDs: []string{"p1", "p2"}}),
		event.NewAt("9", 9, event.ScoreAdded{PlayerID: "p2", Delta: 4}),
	}
	a := Replay(events)
	b := Replay(events)
	assert.Equal(t, mustJSON(t, a), mustJSON(t, b))
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := withPlayers("p1", "p2")
	s = apply(s, event.BidSet{Round: 1, PlayerID: "p1", Bid: 2})
	before := mustJSON(t, s)

	_ = apply(s,
		event.BidSet{Round: 1, PlayerID: "p1", Bid: 4},
		event.MadeSet{Round: 1, PlayerID: "p1", Made: yes()},
		event.PlayerDropped{ID: "p2", FromRound: 1},
		event.PlayerRenamed{ID: "p1", Name: "Renamed"},
		event.RosterCreated{RosterID: "r", Name: "R", Kind: event.RosterSingle},
		event.ScoreAdded{PlayerID: "p1", Delta: 3},
	)
	assert.Equal(t, before, mustJSON(t, s))
}

func TestUnknownTypeIsNoop(t *testing.T) {
	s := withPlayers("p1")
	next := Reduce(s, event.Event{ID: "x", Type: "player/exploded"})
	assert.Equal(t, mustJSON(t, s), mustJSON(t, next))
}

func TestAbsenceGuard(t *testing.T) {
	s := withPlayers("p1", "p2")
	s = apply(s, event.PlayerDropped{ID: "p2", FromRound: 1})
	s = apply(s,
		event.BidSet{Round: 1, PlayerID: "p2", Bid: 1},
		event.MadeSet{Round: 1, PlayerID: "p2", Made: yes()},
	)
	for r := 1; r <= DefaultRounds; r++ {
		assert.False(t, IsPresent(s, r, "p2"))
		assert.NotContains(t, s.Rounds[r].Bids, "p2")
		assert.NotContains(t, s.Rounds[r].Made, "p2")
	}
}

func TestFinalizeScoring(t *testing.T) {
	s := withPlayers("p1", "p2")
	s = apply(s,
		event.BidSet{Round: 1, PlayerID: "p1", Bid: 3},
		event.BidSet{Round: 1, PlayerID: "p2", Bid: 2},
		event.MadeSet{Round: 1, PlayerID: "p1", Made: yes()},
		event.MadeSet{Round: 1, PlayerID: "p2", Made: no()},
	)
	require.True(t, ReadyToFinalize(s, 1))
	s = apply(s, event.RoundFinalize{Round: 1})

	assert.Equal(t, map[string]int{"p1": 8, "p2": -7}, s.Scores)
	assert.Equal(t, map[string]int{"p1": 8, "p2": -7}, s.Rounds[1].Deltas)
	assert.Equal(t, event.RoundScored, s.Rounds[1].State)
	assert.Equal(t, event.RoundBidding, s.Rounds[2].State)
	assert.Equal(t, 2, CurrentRound(s))
}

func TestFinalizeNeedsEveryOutcome(t *testing.T) {
	s := withPlayers("p1", "p2")
	s = apply(s,
		event.BidSet{Round: 1, PlayerID: "p1", Bid: 1},
		event.BidSet{Round: 1, PlayerID: "p2", Bid: 1},
		event.MadeSet{Round: 1, PlayerID: "p1", Made: yes()},
	)
	assert.False(t, ReadyToFinalize(s, 1))
	s = apply(s, event.RoundFinalize{Round: 1})
	assert.Equal(t, event.RoundBidding, s.Rounds[1].State)
	assert.Zero(t, s.Scores["p1"])

	// Clearing an outcome takes the round back out of ready.
	s = apply(s, event.MadeSet{Round: 1, PlayerID: "p2", Made: no()})
	require.True(t, ReadyToFinalize(s, 1))
	s = apply(s, event.MadeSet{Round: 1, PlayerID: "p2", Made: nil})
	assert.False(t, ReadyToFinalize(s, 1))
}

func TestFinalizeIsOnce(t *testing.T) {
	s := withPlayers("p1")
	s = apply(s,
		event.BidSet{Round: 1, PlayerID: "p1", Bid: 0},
		event.MadeSet{Round: 1, PlayerID: "p1", Made: yes()},
		event.RoundFinalize{Round: 1},
		event.RoundFinalize{Round: 1},
	)
	assert.Equal(t, 5, s.Scores["p1"])
}

func TestFinalizeSecondToLastOpensLast(t *testing.T) {
	s := withPlayers("p1")
	for r := 1; r <= 9; r++ {
		s = apply(s,
			event.BidSet{Round: r, PlayerID: "p1", Bid: 0},
			event.MadeSet{Round: r, PlayerID: "p1", Made: yes()},
			event.RoundFinalize{Round: r},
		)
	}
	assert.Equal(t, event.RoundBidding, s.Rounds[10].State)
	assert.Equal(t, 10, CurrentRound(s))
	assert.Equal(t, 9, RoundsScored(s))
}

func TestLateJoinIsNotRetroactive(t *testing.T) {
	s := withPlayers("p1")
	s = apply(s,
		event.BidSet{Round: 1, PlayerID: "p1", Bid: 2},
		event.MadeSet{Round: 1, PlayerID: "p1", Made: yes()},
		event.RoundFinalize{Round: 1},
		event.PlayerAdded{ID: "late", Name: "Late"},
	)
	assert.False(t, IsPresent(s, 1, "late"))
	assert.True(t, IsPresent(s, 2, "late"))
	assert.Zero(t, s.Scores["late"])
	assert.NotContains(t, s.Rounds[1].Deltas, "late")
}

func TestDropLeavesScoredRounds(t *testing.T) {
	s := withPlayers("p1", "p2")
	s = apply(s,
		event.BidSet{Round: 1, PlayerID: "p1", Bid: 1},
		event.BidSet{Round: 1, PlayerID: "p2", Bid: 1},
		event.MadeSet{Round: 1, PlayerID: "p1", Made: yes()},
		event.MadeSet{Round: 1, PlayerID: "p2", Made: yes()},
		event.RoundFinalize{Round: 1},
		event.BidSet{Round: 2, PlayerID: "p2", Bid: 3},
		event.PlayerDropped{ID: "p2", FromRound: 1},
	)
	assert.True(t, IsPresent(s, 1, "p2"), "scored round must not change")
	assert.Equal(t, 1, s.Rounds[1].Bids["p2"])
	assert.False(t, IsPresent(s, 2, "p2"))
	assert.NotContains(t, s.Rounds[2].Bids, "p2")

	s = apply(s, event.PlayerResumed{ID: "p2", FromRound: 3})
	assert.False(t, IsPresent(s, 2, "p2"))
	assert.True(t, IsPresent(s, 3, "p2"))
}

func TestRoundStateMovesForwardOnly(t *testing.T) {
	s := withPlayers("p1")
	s = apply(s, event.RoundStateSet{Round: 1, State: event.RoundPlaying})
	assert.Equal(t, event.RoundPlaying, s.Rounds[1].State)

	s = apply(s, event.RoundStateSet{Round: 1, State: event.RoundBidding})
	assert.Equal(t, event.RoundPlaying, s.Rounds[1].State, "backwards move must be absorbed")

	s = apply(s, event.RoundStateSet{Round: 1, State: event.RoundScored})
	assert.Equal(t, event.RoundPlaying, s.Rounds[1].State, "scored only via finalize")

	s = apply(s, event.RoundStateSet{Round: 3, State: event.RoundComplete})
	assert.Equal(t, event.RoundLocked, s.Rounds[3].State, "locked cannot jump to complete")

	s = apply(s, event.RoundStateSet{Round: 1, State: event.RoundComplete})
	assert.Equal(t, event.RoundComplete, s.Rounds[1].State)
}

func TestReopenScoredRound(t *testing.T) {
	s := withPlayers("p1")
	s = apply(s,
		event.BidSet{Round: 1, PlayerID: "p1", Bid: 2},
		event.MadeSet{Round: 1, PlayerID: "p1", Made: yes()},
		event.RoundFinalize{Round: 1},
	)
	require.Equal(t, 7, s.Scores["p1"])

	blocked := apply(s, event.RoundStateSet{Round: 1, State: event.RoundBidding})
	assert.Equal(t, event.RoundScored, blocked.Rounds[1].State, "reopen needs a finished single-player round")

	s = apply(s,
		event.SPPhaseSet{Phase: event.PhaseBidding},
		event.SPPhaseSet{Phase: event.PhasePlaying},
		event.SPPhaseSet{Phase: event.PhaseSummary},
		event.RoundStateSet{Round: 1, State: event.RoundBidding},
	)
	assert.Equal(t, event.RoundBidding, s.Rounds[1].State)
	assert.Zero(t, s.Scores["p1"])
	assert.Empty(t, s.Rounds[1].Bids)
	assert.Empty(t, s.Rounds[1].Made)
}

func TestBidCapAndLockedRound(t *testing.T) {
	s := withPlayers("p1")
	s = apply(s, event.BidSet{Round: 1, PlayerID: "p1", Bid: 11})
	assert.NotContains(t, s.Rounds[1].Bids, "p1")

	s = apply(s, event.BidSet{Round: 2, PlayerID: "p1", Bid: 1})
	assert.NotContains(t, s.Rounds[2].Bids, "p1", "locked rounds take no bids")
}

func TestReaddedPlayerStartsFromZero(t *testing.T) {
	s := withPlayers("p1")
	s = apply(s,
		event.ScoreAdded{PlayerID: "p1", Delta: 5},
		event.PlayerRemoved{ID: "p1"},
	)
	assert.Equal(t, 5, s.Scores["p1"], "removal keeps the score as history")

	s = apply(s, event.PlayerAdded{ID: "p1", Name: "Back again"})
	assert.Zero(t, s.Scores["p1"])
}

func TestBotStyleFollowsType(t *testing.T) {
	s := Initial()
	s = apply(s,
		event.PlayerAdded{ID: "b", Name: "Bot", Kind: event.PlayerBot, Style: engine.StyleAggressive},
		event.PlayerAdded{ID: "h", Name: "Human", Style: engine.StyleCautious},
	)
	assert.Equal(t, engine.StyleAggressive, s.PlayerStyles["b"])
	assert.NotContains(t, s.PlayerStyles, "h", "humans keep no style")

	s = apply(s, event.PlayerTypeSet{ID: "b", Kind: event.PlayerBot, Style: engine.StyleCautious})
	assert.Equal(t, engine.StyleCautious, s.PlayerStyles["b"])

	s = apply(s, event.PlayerTypeSet{ID: "b", Kind: event.PlayerHuman, Style: engine.StyleCautious})
	assert.Equal(t, event.PlayerHuman, s.PlayerTypes["b"])
	assert.NotContains(t, s.PlayerStyles, "b")

	s = apply(s, event.PlayerTypeSet{ID: "h", Kind: event.PlayerBot, Style: engine.StyleBalanced}, event.PlayerRemoved{ID: "h"})
	assert.NotContains(t, s.PlayerStyles, "h")
}

func TestPlayerRegistry(t *testing.T) {
	s := withPlayers("p1", "p2", "p3")
	s = apply(s,
		event.PlayerAdded{ID: "p1", Name: "Dup"},
		event.PlayerRenamed{ID: "p2", Name: "  Bea "},
		event.PlayerTypeSet{ID: "p3", Kind: event.PlayerBot},
		event.PlayersReordered{Order: []string{"p3", "p1"}},
	)
	assert.Equal(t, "Player p1", s.Players["p1"])
	assert.Equal(t, "Bea", s.Players["p2"])
	assert.Equal(t, event.PlayerBot, s.PlayerTypes["p3"])
	assert.Equal(t, []string{"p1", "p2", "p3"}, s.Order, "partial reorder is absorbed")

	s = apply(s, event.PlayersReordered{Order: []string{"p3", "p1", "p2"}})
	assert.Equal(t, []string{"p3", "p1", "p2"}, s.Order)

	s = apply(s, event.ScoreAdded{PlayerID: "p1", Delta: 6}, event.PlayerRemoved{ID: "p1"})
	assert.NotContains(t, s.Players, "p1")
	assert.Equal(t, []string{"p3", "p2"}, s.Order)
	assert.Equal(t, 6, s.Scores["p1"], "score history survives removal")
}

func TestStandings(t *testing.T) {
	s := withPlayers("a", "b", "c")
	s = apply(s,
		event.ScoreAdded{PlayerID: "b", Delta: 10},
		event.ScoreAdded{PlayerID: "c", Delta: 10},
		event.ScoreAdded{PlayerID: "a", Delta: -2},
	)
	got := Standings(s)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].PlayerID)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "c", got[1].PlayerID)
	assert.Equal(t, 1, got[1].Rank)
	assert.Equal(t, 3, got[2].Rank)
	assert.Equal(t, []string{"b", "c"}, Winners(s))
}
