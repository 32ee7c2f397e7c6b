package state

import (
	"slices"
	"strings"

	"github.com/jason-s-yu/scorecard/internal/event"
)

func rosterCreated(s AppState, p event.RosterCreated) AppState {
	if _, exists := s.Rosters[p.RosterID]; exists {
		return s
	}
	s = s.withRosters()
	s.Rosters[p.RosterID] = Roster{
		ID:        p.RosterID,
		Name:      strings.TrimSpace(p.Name),
		Type:      p.Kind,
		PlayerIDs: slices.Clone(p.PlayerIDs),
	}
	return s
}

// derive stores next under newID as a successor of the roster at oldID and
// moves the active pointer along if oldID was active.
func derive(s AppState, oldID, newID string, ids []string) AppState {
	old, ok := s.Rosters[oldID]
	if !ok {
		return s
	}
	if _, taken := s.Rosters[newID]; taken {
		return s
	}
	s = s.withRosters()
	s.Rosters[newID] = Roster{ID: newID, Name: old.Name, Type: old.Type, PlayerIDs: ids}
	switch {
	case s.ActiveScorecardRosterID == oldID:
		s.ActiveScorecardRosterID = newID
	case s.ActiveSingleRosterID == oldID:
		s.ActiveSingleRosterID = newID
	}
	return s
}

func rosterPlayerAdded(s AppState, p event.RosterPlayerAdded) AppState {
	old, ok := s.Rosters[p.RosterID]
	if !ok || slices.Contains(old.PlayerIDs, p.PlayerID) {
		return s
	}
	ids := append(slices.Clone(old.PlayerIDs), p.PlayerID)
	return derive(s, p.RosterID, p.NewRosterID, ids)
}

func rosterPlayersReordered(s AppState, p event.RosterPlayersReordered) AppState {
	old, ok := s.Rosters[p.RosterID]
	if !ok || !samePlayers(old.PlayerIDs, p.Order) {
		return s
	}
	return derive(s, p.RosterID, p.NewRosterID, slices.Clone(p.Order))
}

func rosterReset(s AppState, p event.RosterReset) AppState {
	return derive(s, p.RosterID, p.NewRosterID, nil)
}

func rosterRenamed(s AppState, p event.RosterRenamed) AppState {
	r, ok := s.Rosters[p.RosterID]
	name := strings.TrimSpace(p.Name)
	if !ok || r.Name == name {
		return s
	}
	s = s.withRosters()
	r.Name = name
	s.Rosters[p.RosterID] = r
	return s
}

func rosterActivated(s AppState, p event.RosterActivated) AppState {
	r, ok := s.Rosters[p.RosterID]
	if !ok || r.Archived || r.Type != p.Mode {
		return s
	}
	if p.Mode == event.RosterSingle {
		s.ActiveSingleRosterID = p.RosterID
	} else {
		s.ActiveScorecardRosterID = p.RosterID
	}
	return s
}

func isActive(s AppState, id string) bool {
	return s.ActiveScorecardRosterID == id || s.ActiveSingleRosterID == id
}

func rosterArchived(s AppState, p event.RosterArchived) AppState {
	r, ok := s.Rosters[p.RosterID]
	if !ok || r.Archived || isActive(s, p.RosterID) {
		return s
	}
	s = s.withRosters()
	r.Archived = true
	s.Rosters[p.RosterID] = r
	return s
}

func rosterRestored(s AppState, p event.RosterRestored) AppState {
	r, ok := s.Rosters[p.RosterID]
	if !ok || !r.Archived {
		return s
	}
	s = s.withRosters()
	r.Archived = false
	s.Rosters[p.RosterID] = r
	return s
}

func rosterDeleted(s AppState, p event.RosterDeleted) AppState {
	if _, ok := s.Rosters[p.RosterID]; !ok || isActive(s, p.RosterID) {
		return s
	}
	s = s.withRosters()
	delete(s.Rosters, p.RosterID)
	return s
}
