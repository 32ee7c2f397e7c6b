package state

import (
	"slices"
	"strings"

	"github.com/jason-s-yu/scorecard/internal/event"
)

func playerAdded(s AppState, p event.PlayerAdded) AppState {
	if _, exists := s.Players[p.ID]; exists {
		return s
	}
	s = s.withPlayers().withRounds().withScores()
	s.Players[p.ID] = strings.TrimSpace(p.Name)
	kind := p.Kind
	if kind == "" {
		kind = event.PlayerHuman
	}
	s.PlayerTypes[p.ID] = kind
	if kind == event.PlayerBot && p.Style != "" {
		s.PlayerStyles[p.ID] = p.Style
	}
	s.Order = append(s.Order, p.ID)
	// A removed id coming back starts from zero.
	s.Scores[p.ID] = 0
	// Late joiners sit out every round that is already scored.
	for _, rd := range s.Rounds {
		rd.Present[p.ID] = rd.State != event.RoundScored
	}
	return s
}

func playerRenamed(s AppState, p event.PlayerRenamed) AppState {
	name := strings.TrimSpace(p.Name)
	if cur, ok := s.Players[p.ID]; !ok || cur == name {
		return s
	}
	s = s.withPlayers()
	s.Players[p.ID] = name
	return s
}

// playerTypeSet changes the type and, for bots, the style. A human keeps no
// style.
func playerTypeSet(s AppState, p event.PlayerTypeSet) AppState {
	if _, ok := s.Players[p.ID]; !ok {
		return s
	}
	style := p.Style
	if p.Kind != event.PlayerBot {
		style = ""
	}
	if s.PlayerTypes[p.ID] == p.Kind && s.PlayerStyles[p.ID] == style {
		return s
	}
	s = s.withPlayers()
	s.PlayerTypes[p.ID] = p.Kind
	if style == "" {
		delete(s.PlayerStyles, p.ID)
	} else {
		s.PlayerStyles[p.ID] = style
	}
	return s
}

func playerDropped(s AppState, p event.PlayerDropped) AppState {
	if _, ok := s.Players[p.ID]; !ok {
		return s
	}
	s = s.withRounds()
	for n, rd := range s.Rounds {
		if n < p.FromRound || rd.State == event.RoundScored {
			continue
		}
		rd.Present[p.ID] = false
		delete(rd.Bids, p.ID)
		delete(rd.Made, p.ID)
	}
	return s
}

func playerResumed(s AppState, p event.PlayerResumed) AppState {
	if _, ok := s.Players[p.ID]; !ok {
		return s
	}
	s = s.withRounds()
	for n, rd := range s.Rounds {
		if n < p.FromRound || rd.State == event.RoundScored {
			continue
		}
		rd.Present[p.ID] = true
	}
	return s
}

// playerRemoved unregisters a player. Scored rounds and the cumulative score
// entry stay as history.
func playerRemoved(s AppState, p event.PlayerRemoved) AppState {
	if _, ok := s.Players[p.ID]; !ok {
		return s
	}
	s = s.withPlayers().withRounds()
	delete(s.Players, p.ID)
	delete(s.PlayerTypes, p.ID)
	delete(s.PlayerStyles, p.ID)
	s.Order = slices.DeleteFunc(s.Order, func(id string) bool { return id == p.ID })
	for _, rd := range s.Rounds {
		if rd.State == event.RoundScored {
			continue
		}
		delete(rd.Present, p.ID)
		delete(rd.Bids, p.ID)
		delete(rd.Made, p.ID)
	}
	return s
}

// playersReordered accepts only a permutation of the current order.
func playersReordered(s AppState, p event.PlayersReordered) AppState {
	if !samePlayers(s.Order, p.Order) || slices.Equal(s.Order, p.Order) {
		return s
	}
	s = s.withPlayers()
	s.Order = slices.Clone(p.Order)
	return s
}

func samePlayers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
