package state

import (
	"maps"
	"slices"

	"github.com/jason-s-yu/scorecard/engine"
	"github.com/jason-s-yu/scorecard/internal/event"
)

// spDeal starts a single-player round: fresh hands and trick state, leader to
// the dealer's left, and the mirrored scorecard round open for bids with any
// earlier marks cleared. Rounds already in play or past it are left alone.
func spDeal(s AppState, p event.SPDeal) AppState {
	for _, id := range p.Order {
		if _, ok := s.Players[id]; !ok {
			return s
		}
	}
	if rd, ok := s.Rounds[p.RoundNo]; ok && rd.State != event.RoundLocked && rd.State != event.RoundBidding {
		return s
	}

	s = s.withSP().withRounds()
	sp := s.SP
	sp.Phase = event.PhaseBidding
	sp.RoundNo = p.RoundNo
	sp.DealerID = p.DealerID
	sp.LeaderID = engine.NextSeat(p.Order, p.DealerID)
	sp.Order = slices.Clone(p.Order)
	sp.Trump = p.Trump
	tc := p.TrumpCard
	sp.TrumpCard = &tc
	sp.Hands = make(map[string][]engine.Card, len(p.Hands))
	for id, h := range p.Hands {
		sp.Hands[id] = slices.Clone(h)
	}
	sp.TrickPlays = nil
	sp.TrickCounts = make(map[string]int, len(p.Order))
	for _, id := range p.Order {
		sp.TrickCounts[id] = 0
	}
	sp.TrumpBroken = false
	sp.Reveal = nil
	sp.SummaryEnteredAt = nil
	s.SP = sp

	rd, ok := s.Rounds[p.RoundNo]
	if !ok {
		rd = newRound(event.RoundBidding)
	}
	rd.State = event.RoundBidding
	rd.Bids = map[string]int{}
	rd.Made = map[string]bool{}
	rd.Deltas = nil
	for _, id := range s.Order {
		rd.Present[id] = slices.Contains(p.Order, id)
	}
	s.Rounds[p.RoundNo] = rd
	return s
}

// phaseForward lists the moves sp/phase-set may make. sp/deal reopens bidding
// and sp/session-reset returns to setup.
var phaseForward = map[event.Phase][]event.Phase{
	event.PhaseSetup:   {event.PhaseBidding},
	event.PhaseBidding: {event.PhasePlaying},
	event.PhasePlaying: {event.PhaseSummary, event.PhaseDone},
	event.PhaseSummary: {event.PhaseDone},
}

func spPhaseSet(s AppState, p event.SPPhaseSet) AppState {
	if !slices.Contains(phaseForward[s.SP.Phase], p.Phase) {
		return s
	}
	s.SP.Phase = p.Phase
	return s
}

func spLeaderSet(s AppState, p event.SPLeaderSet) AppState {
	if !slices.Contains(s.SP.Order, p.LeaderID) || s.SP.LeaderID == p.LeaderID {
		return s
	}
	s.SP.LeaderID = p.LeaderID
	return s
}

// spTrickPlayed accepts a card only from the player whose turn it is, only
// from their hand, and only when the play is legal.
func spTrickPlayed(s AppState, p event.SPTrickPlayed) AppState {
	if s.SP.Phase != event.PhasePlaying || SPCurrentPlayer(s) != p.PlayerID {
		return s
	}
	hand := s.SP.Hands[p.PlayerID]
	if !engine.IsLegalPlay(hand, s.SP.TrickPlays, s.SP.Trump, s.SP.TrumpBroken, p.Card) {
		return s
	}

	s = s.withSP()
	sp := &s.SP
	if engine.BreaksTrump(sp.TrickPlays, sp.Trump, p.Card) {
		sp.TrumpBroken = true
	}
	sp.TrickPlays = append(sp.TrickPlays, engine.Play{PlayerID: p.PlayerID, Card: p.Card})
	sp.Hands[p.PlayerID] = engine.Without(hand, p.Card)
	if len(sp.TrickPlays) == len(sp.Order) {
		sp.Reveal = &Reveal{WinnerID: engine.TrickWinner(sp.Trump, sp.TrickPlays)}
	}
	return s
}

// spTrickCleared credits the winner of the completed trick and empties it. A
// winner that disagrees with the played cards is ignored.
func spTrickCleared(s AppState, p event.SPTrickCleared) AppState {
	if !SPTrickComplete(s) || engine.TrickWinner(s.SP.Trump, s.SP.TrickPlays) != p.WinnerID {
		return s
	}
	s = s.withSP()
	s.SP.TrickCounts[p.WinnerID]++
	s.SP.TrickPlays = nil
	return s
}

func spRevealClear(s AppState, _ event.SPTrickRevealClear) AppState {
	if s.SP.Reveal == nil {
		return s
	}
	s.SP.Reveal = nil
	return s
}

func spRoundTallySet(s AppState, p event.SPRoundTallySet) AppState {
	s = s.withSP()
	if s.SP.Tallies == nil {
		s.SP.Tallies = map[int]map[string]int{}
	}
	s.SP.Tallies[p.RoundNo] = maps.Clone(p.Tallies)
	return s
}

func spSeedSet(s AppState, p event.SPSeedSet) AppState {
	s.SP.Seed = p.Seed
	return s
}

func spHumanSet(s AppState, p event.SPHumanSet) AppState {
	if _, ok := s.Players[p.ID]; !ok {
		return s
	}
	s.SP.HumanID = p.ID
	return s
}

func spSessionReset(s AppState, _ event.SPSessionReset) AppState {
	s.SP = initialSP()
	return s
}

func spSummaryEnteredSet(s AppState, p event.SPSummaryEnteredSet) AppState {
	if p.At == nil {
		s.SP.SummaryEnteredAt = nil
		return s
	}
	at := *p.At
	s.SP.SummaryEnteredAt = &at
	return s
}
