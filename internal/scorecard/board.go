// Package scorecard drives the paper-scorecard mode: a grid of bids and
// made/missed marks per round, finalized into cumulative scores.
package scorecard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/scorecard/internal/event"
	"github.com/jason-s-yu/scorecard/internal/game"
	"github.com/jason-s-yu/scorecard/internal/state"
)

var (
	ErrUnknownPlayer = errors.New("scorecard: unknown player")
	ErrUnknownRound  = errors.New("scorecard: unknown round")
	ErrRoundClosed   = errors.New("scorecard: round is not open")
	ErrNotPresent    = errors.New("scorecard: player sits out this round")
	ErrInvalidBid    = errors.New("scorecard: bid out of range")
	ErrNoBid         = errors.New("scorecard: no bid to mark")
	ErrEmptyName     = errors.New("scorecard: name must not be empty")
	ErrZeroDelta     = errors.New("scorecard: adjustment must not be zero")
	ErrBadOrder      = errors.New("scorecard: order must list every player once")
)

// Log is the subset of game.Store a board reads and writes through.
type Log interface {
	State() (state.AppState, int64, error)
	AppendMany(ctx context.Context, evs []event.Event) (game.Result, error)
}

// Board turns grid edits into event batches after checking them against the
// current state, so a rejected edit comes back as an error rather than being
// silently absorbed.
type Board struct {
	log Log
	lg  logrus.FieldLogger

	Mu sync.Mutex
}

// New returns a board writing through l.
func New(l Log, logger logrus.FieldLogger) *Board {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Board{log: l, lg: logger}
}

// append checks the batch built by build against the current state and
// appends it. Assumes lock is held by caller.
func (b *Board) append(ctx context.Context, build func(state.AppState) ([]event.Event, error)) (game.Result, error) {
	st, _, err := b.log.State()
	if err != nil {
		return game.Result{}, err
	}
	evs, err := build(st)
	if err != nil {
		return game.Result{}, err
	}
	return b.log.AppendMany(ctx, evs)
}

func (b *Board) do(ctx context.Context, build func(state.AppState) ([]event.Event, error)) (game.Result, error) {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	return b.append(ctx, build)
}

func knownPlayer(st state.AppState, id string) error {
	if _, ok := st.Players[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	return nil
}

// openRound checks that round accepts bids and marks for playerID.
func openRound(st state.AppState, round int, playerID string) error {
	if err := knownPlayer(st, playerID); err != nil {
		return err
	}
	rd, ok := st.Rounds[round]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRound, round)
	}
	switch rd.State {
	case event.RoundBidding, event.RoundPlaying, event.RoundComplete:
	default:
		return fmt.Errorf("%w: round %d is %s", ErrRoundClosed, round, rd.State)
	}
	if !state.IsPresent(st, round, playerID) {
		return fmt.Errorf("%w: %s in round %d", ErrNotPresent, playerID, round)
	}
	return nil
}

// AddPlayer registers a new player and returns the generated id.
func (b *Board) AddPlayer(ctx context.Context, name string) (string, game.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", game.Result{}, ErrEmptyName
	}
	id := uuid.NewString()
	res, err := b.do(ctx, func(state.AppState) ([]event.Event, error) {
		return []event.Event{event.New(event.PlayerAdded{ID: id, Name: name})}, nil
	})
	if err != nil {
		return "", game.Result{}, err
	}
	b.lg.WithFields(logrus.Fields{"player": id, "height": res.Height}).Debug("player added")
	return id, res, nil
}

// Rename changes a player's display name.
func (b *Board) Rename(ctx context.Context, playerID, name string) (game.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return game.Result{}, ErrEmptyName
	}
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if err := knownPlayer(st, playerID); err != nil {
			return nil, err
		}
		return []event.Event{event.New(event.PlayerRenamed{ID: playerID, Name: name})}, nil
	})
}

// Remove unregisters a player. Scored rounds keep their history.
func (b *Board) Remove(ctx context.Context, playerID string) (game.Result, error) {
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if err := knownPlayer(st, playerID); err != nil {
			return nil, err
		}
		return []event.Event{event.New(event.PlayerRemoved{ID: playerID})}, nil
	})
}

// Reorder sets the display order.
func (b *Board) Reorder(ctx context.Context, order []string) (game.Result, error) {
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if len(order) != len(st.Order) {
			return nil, ErrBadOrder
		}
		seen := make(map[string]bool, len(order))
		for _, id := range order {
			if _, ok := st.Players[id]; !ok || seen[id] {
				return nil, ErrBadOrder
			}
			seen[id] = true
		}
		return []event.Event{event.New(event.PlayersReordered{Order: order})}, nil
	})
}

// SetBid records playerID's bid for round.
func (b *Board) SetBid(ctx context.Context, round int, playerID string, bid int) (game.Result, error) {
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if err := openRound(st, round, playerID); err != nil {
			return nil, err
		}
		if limit := state.BidLimit(st, round, playerID); bid < 0 || bid > limit {
			return nil, fmt.Errorf("%w: %d (round %d allows 0-%d)", ErrInvalidBid, bid, round, limit)
		}
		return []event.Event{event.New(event.BidSet{Round: round, PlayerID: playerID, Bid: bid})}, nil
	})
}

// SetMade marks playerID's bid made or missed, or clears the mark when made is
// nil. When the mark completes the round, round/finalize joins the same batch.
func (b *Board) SetMade(ctx context.Context, round int, playerID string, made *bool) (game.Result, error) {
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if err := openRound(st, round, playerID); err != nil {
			return nil, err
		}
		if _, ok := st.Rounds[round].Bids[playerID]; !ok && made != nil {
			return nil, fmt.Errorf("%w: %s in round %d", ErrNoBid, playerID, round)
		}
		mark := event.New(event.MadeSet{Round: round, PlayerID: playerID, Made: made})
		evs := []event.Event{mark}
		if state.ReadyToFinalize(state.Reduce(st, mark), round) {
			evs = append(evs, event.New(event.RoundFinalize{Round: round}))
			b.lg.WithField("round", round).Info("round complete; finalizing")
		}
		return evs, nil
	})
}

// Drop makes playerID sit out from fromRound on. Scored rounds are untouched.
func (b *Board) Drop(ctx context.Context, playerID string, fromRound int) (game.Result, error) {
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if err := knownPlayer(st, playerID); err != nil {
			return nil, err
		}
		if _, ok := st.Rounds[fromRound]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownRound, fromRound)
		}
		return []event.Event{event.New(event.PlayerDropped{ID: playerID, FromRound: fromRound})}, nil
	})
}

// Resume brings playerID back from fromRound on.
func (b *Board) Resume(ctx context.Context, playerID string, fromRound int) (game.Result, error) {
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if err := knownPlayer(st, playerID); err != nil {
			return nil, err
		}
		if _, ok := st.Rounds[fromRound]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownRound, fromRound)
		}
		return []event.Event{event.New(event.PlayerResumed{ID: playerID, FromRound: fromRound})}, nil
	})
}

// Adjust adds a manual correction to playerID's cumulative score.
func (b *Board) Adjust(ctx context.Context, playerID string, delta int) (game.Result, error) {
	if delta == 0 {
		return game.Result{}, ErrZeroDelta
	}
	return b.do(ctx, func(st state.AppState) ([]event.Event, error) {
		if err := knownPlayer(st, playerID); err != nil {
			return nil, err
		}
		return []event.Event{event.New(event.ScoreAdded{PlayerID: playerID, Delta: delta})}, nil
	})
}
