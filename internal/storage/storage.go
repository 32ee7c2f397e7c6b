// Package storage persists the live snapshot, the batch log that produced it,
// and archived game records.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/scorecard/internal/event"
	"github.com/jason-s-yu/scorecard/internal/state"
)

// SnapshotID is the key of the single live snapshot.
const SnapshotID = "current"

var (
	// ErrNotFound is returned when a snapshot or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrHeightConflict is returned when a commit does not land directly on
	// top of the durable height, usually because another writer took it.
	ErrHeightConflict = errors.New("height already taken")
)

// Snapshot is the durable post-batch state.
type Snapshot struct {
	ID     string         `json:"id"`
	Height int64          `json:"height"`
	State  state.AppState `json:"state"`
}

// Batch is one atomic group of events, stored at the height it produced.
type Batch struct {
	Height int64         `json:"height"`
	Events []event.Event `json:"events"`
	Reset  bool          `json:"reset,omitempty"`
}

// Commit moves the durable height from Height-1 to Height. A Reset commit
// starts a new game: State is replayed from INITIAL_STATE and older batches
// are discarded.
type Commit struct {
	Height int64
	Events []event.Event
	State  state.AppState
	Reset  bool
}

func (c Commit) batch() Batch {
	return Batch{Height: c.Height, Events: c.Events, Reset: c.Reset}
}

// Record is an opaque archived game.
type Record struct {
	ID        string
	Data      []byte
	UpdatedAt int64
}

// Snapshots stores the live snapshot and its batch log.
type Snapshots interface {
	// Commit atomically stores the batch and the new snapshot.
	Commit(ctx context.Context, c Commit) error
	// Latest returns the current snapshot or ErrNotFound.
	Latest(ctx context.Context) (Snapshot, error)
	// Batches returns the stored batches above height after, ascending.
	Batches(ctx context.Context, after int64) ([]Batch, error)
}

// Records stores archived games.
type Records interface {
	PutRecord(ctx context.Context, id string, data []byte) error
	GetRecord(ctx context.Context, id string) ([]byte, error)
	ListRecords(ctx context.Context) ([]Record, error)
	DeleteRecord(ctx context.Context, id string) error
}

// Backend is a complete storage implementation.
type Backend interface {
	Snapshots
	Records
	Close() error
}

func validCommit(c Commit) error {
	if c.Height < 1 {
		return fmt.Errorf("commit height %d: must be positive", c.Height)
	}
	return nil
}

func encodeState(s state.AppState) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return string(b), nil
}

func decodeState(data []byte) (state.AppState, error) {
	var s state.AppState
	if err := json.Unmarshal(data, &s); err != nil {
		return state.AppState{}, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}

func encodeEvents(evs []event.Event) (string, error) {
	if evs == nil {
		evs = []event.Event{}
	}
	b, err := json.Marshal(evs)
	if err != nil {
		return "", fmt.Errorf("encode events: %w", err)
	}
	return string(b), nil
}

func decodeEvents(data []byte) ([]event.Event, error) {
	evs, err := event.DecodeAll(data)
	if err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return evs, nil
}
