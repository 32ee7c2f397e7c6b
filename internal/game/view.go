package game

import (
	"github.com/jason-s-yu/scorecard/engine"
	"github.com/jason-s-yu/scorecard/internal/event"
	"github.com/jason-s-yu/scorecard/internal/state"
)

// ObfSeat is one seat at the single-player table as seen by one observer.
type ObfSeat struct {
	PlayerID      string           `json:"playerId"`
	Name          string           `json:"name"`
	Type          event.PlayerType `json:"type"`
	HandSize      int              `json:"handSize"`
	Bid           *int             `json:"bid,omitempty"`
	TricksWon     int              `json:"tricksWon"`
	IsCurrentTurn bool             `json:"isCurrentTurn"`
	// RevealedHand is populated only for the observer's own seat.
	RevealedHand []engine.Card `json:"revealedHand,omitempty"`
}

// ObfTableState is the table with every hand but the observer's hidden.
type ObfTableState struct {
	Height          int64            `json:"height"`
	Phase           event.Phase      `json:"phase"`
	RoundNo         int              `json:"roundNo"`
	DealerID        string           `json:"dealerId,omitempty"`
	LeaderID        string           `json:"leaderId,omitempty"`
	Trump           engine.Suit      `json:"trump,omitempty"`
	TrumpCard       *engine.Card     `json:"trumpCard,omitempty"`
	TrumpBroken     bool             `json:"trumpBroken"`
	TrickPlays      []engine.Play    `json:"trickPlays"`
	Reveal          *state.Reveal    `json:"reveal,omitempty"`
	CurrentPlayerID string           `json:"currentPlayerId,omitempty"`
	Seats           []ObfSeat        `json:"seats"`
	Standings       []state.Standing `json:"standings"`
}

// View returns the live table as forUser may see it.
func (s *Store) View(forUser string) (ObfTableState, error) {
	st, h, err := s.State()
	if err != nil {
		return ObfTableState{}, err
	}
	return ObfuscatedTable(st, h, forUser), nil
}

// ObfuscatedTable builds the view of st for forUser. Plays already on the
// table are public; cards in hand are visible only to their owner.
func ObfuscatedTable(st state.AppState, height int64, forUser string) ObfTableState {
	sp := st.SP
	obf := ObfTableState{
		Height:      height,
		Phase:       sp.Phase,
		RoundNo:     sp.RoundNo,
		DealerID:    sp.DealerID,
		LeaderID:    sp.LeaderID,
		Trump:       sp.Trump,
		TrumpCard:   sp.TrumpCard,
		TrumpBroken: sp.TrumpBroken,
		TrickPlays:  append([]engine.Play{}, sp.TrickPlays...),
		Reveal:      sp.Reveal,
		Standings:   state.Standings(st),
	}

	switch sp.Phase {
	case event.PhaseBidding:
		obf.CurrentPlayerID = state.SPCurrentBidder(st)
	case event.PhasePlaying:
		obf.CurrentPlayerID = state.SPCurrentPlayer(st)
	}

	bids := st.Rounds[sp.RoundNo].Bids
	for _, id := range sp.Order {
		seat := ObfSeat{
			PlayerID:      id,
			Name:          st.Players[id],
			Type:          st.PlayerTypes[id],
			HandSize:      len(sp.Hands[id]),
			TricksWon:     sp.TrickCounts[id],
			IsCurrentTurn: id == obf.CurrentPlayerID,
		}
		if b, ok := bids[id]; ok {
			seat.Bid = &b
		}
		if id == forUser {
			seat.RevealedHand = append([]engine.Card{}, sp.Hands[id]...)
		}
		obf.Seats = append(obf.Seats, seat)
	}
	return obf
}
