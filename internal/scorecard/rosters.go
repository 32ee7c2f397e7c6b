package scorecard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/jason-s-yu/scorecard/internal/event"
	"github.com/jason-s-yu/scorecard/internal/game"
	"github.com/jason-s-yu/scorecard/internal/state"
)

var (
	ErrUnknownRoster = errors.New("scorecard: unknown roster")
	ErrActiveRoster  = errors.New("scorecard: roster is active")
	ErrArchived      = errors.New("scorecard: roster is archived")
)

func knownRoster(st state.AppState, id string) (state.Roster, error) {
	r, ok := st.Rosters[id]
	if !ok {
		return state.Roster{}, fmt.Errorf("%w: %s", ErrUnknownRoster, id)
	}
	return r, nil
}

func active(st state.AppState, id string) bool {
	return st.ActiveScorecardRosterID == id || st.ActiveSingleRosterID == id
}

// CreateRoster stores a scorecard roster of registered players and returns its
// id. It does not activate it.
func (b *Board) CreateRoster(ctx context.Context, name string, playerIDs []string) (string, game.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", game.Result{}, ErrEmptyName
	}
	id := uuid.NewString()
	res, err := b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		for _, pid := range playerIDs {
			if err := knownPlayer(st, pid); err != nil {
				return nil, err
			}
		}
		return []event.Event{event.New(event.RosterCreated{
			RosterID:  id,
			Name:      name,
			Kind:      event.RosterScorecard,
			PlayerIDs: slices.Clone(playerIDs),
		})}, nil
	})
	if err != nil {
		return "", game.Result{}, err
	}
	return id, res, nil
}

// ActivateRoster makes rosterID the active scorecard roster.
func (b *Board) ActivateRoster(ctx context.Context, rosterID string) (game.Result, error) {
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		r, err := knownRoster(st, rosterID)
		if err != nil {
			return nil, err
		}
		if r.Archived {
			return nil, ErrArchived
		}
		return []event.Event{event.New(event.RosterActivated{RosterID: rosterID, Mode: r.Type})}, nil
	})
}

// AddToRoster derives a new roster version with playerID appended and returns
// its id. The active pointer follows when rosterID was active.
func (b *Board) AddToRoster(ctx context.Context, rosterID, playerID string) (string, game.Result, error) {
	next := uuid.NewString()
	res, err := b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		r, err := knownRoster(st, rosterID)
		if err != nil {
			return nil, err
		}
		if err := knownPlayer(st, playerID); err != nil {
			return nil, err
		}
		if slices.Contains(r.PlayerIDs, playerID) {
			return nil, fmt.Errorf("scorecard: %s already on roster %s", playerID, rosterID)
		}
		return []event.Event{event.New(event.RosterPlayerAdded{RosterID: rosterID, NewRosterID: next, PlayerID: playerID})}, nil
	})
	if err != nil {
		return "", game.Result{}, err
	}
	return next, res, nil
}

// ReorderRoster derives a new roster version with the players in order.
func (b *Board) ReorderRoster(ctx context.Context, rosterID string, order []string) (string, game.Result, error) {
	next := uuid.NewString()
	res, err := b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		r, err := knownRoster(st, rosterID)
		if err != nil {
			return nil, err
		}
		if len(order) != len(r.PlayerIDs) {
			return nil, ErrBadOrder
		}
		for _, id := range order {
			if !slices.Contains(r.PlayerIDs, id) {
				return nil, ErrBadOrder
			}
		}
		return []event.Event{event.New(event.RosterPlayersReordered{RosterID: rosterID, NewRosterID: next, Order: order})}, nil
	})
	if err != nil {
		return "", game.Result{}, err
	}
	return next, res, nil
}

// ResetRoster derives an empty roster version.
func (b *Board) ResetRoster(ctx context.Context, rosterID string) (string, game.Result, error) {
	next := uuid.NewString()
	res, err := b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if _, err := knownRoster(st, rosterID); err != nil {
			return nil, err
		}
		return []event.Event{event.New(event.RosterReset{RosterID: rosterID, NewRosterID: next})}, nil
	})
	if err != nil {
		return "", game.Result{}, err
	}
	return next, res, nil
}

// RenameRoster renames rosterID in place.
func (b *Board) RenameRoster(ctx context.Context, rosterID, name string) (game.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return game.Result{}, ErrEmptyName
	}
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if _, err := knownRoster(st, rosterID); err != nil {
			return nil, err
		}
		return []event.Event{event.New(event.RosterRenamed{RosterID: rosterID, Name: name})}, nil
	})
}

// ArchiveRoster hides an inactive roster.
func (b *Board) ArchiveRoster(ctx context.Context, rosterID string) (game.Result, error) {
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if _, err := knownRoster(st, rosterID); err != nil {
			return nil, err
		}
		if active(st, rosterID) {
			return nil, ErrActiveRoster
		}
		return []event.Event{event.New(event.RosterArchived{RosterID: rosterID})}, nil
	})
}

// RestoreRoster brings an archived roster back.
func (b *Board) RestoreRoster(ctx context.Context, rosterID string) (game.Result, error) {
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if _, err := knownRoster(st, rosterID); err != nil {
			return nil, err
		}
		return []event.Event{event.New(event.RosterRestored{RosterID: rosterID})}, nil
	})
}

// DeleteRoster removes an inactive roster.
func (b *Board) DeleteRoster(ctx context.Context, rosterID string) (game.Result, error) {
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if _, err := knownRoster(st, rosterID); err != nil {
			return nil, err
		}
		if active(st, rosterID) {
			return nil, ErrActiveRoster
		}
		return []event.Event{event.New(event.RosterDeleted{RosterID: rosterID})}, nil
	})
}
