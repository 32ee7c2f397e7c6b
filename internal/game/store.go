// Package game owns the live game: an event-sourced store that serializes
// appends, persists every batch at exactly one height, and converges with
// sibling instances that share the same storage through the signal bus.
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/scorecard/internal/archive"
	"github.com/jason-s-yu/scorecard/internal/event"
	"github.com/jason-s-yu/scorecard/internal/signal"
	"github.com/jason-s-yu/scorecard/internal/state"
	"github.com/jason-s-yu/scorecard/internal/storage"
)

// DefaultMaxRetries bounds how often an append catches up and retries after
// losing a height race.
const DefaultMaxRetries = 5

// signalTimeout bounds the catch-up triggered by a remote height signal.
const signalTimeout = 10 * time.Second

// Options configures a Store.
type Options struct {
	Snapshots storage.Snapshots
	// Records holds archived games. Defaults to Snapshots when it also
	// implements storage.Records.
	Records storage.Records
	// Bus connects sibling instances. Defaults to a private in-process hub.
	Bus        signal.Bus
	Logger     logrus.FieldLogger
	Clock      func() time.Time
	InstanceID string
	MaxRetries int
}

// Result describes a completed append.
type Result struct {
	Height  int64
	Applied int
	// Warning is a *DurabilityError when the batch is only held in memory.
	Warning error
}

// Store is the authoritative live game for one instance.
type Store struct {
	snapshots  storage.Snapshots
	records    storage.Records
	bus        signal.Bus
	log        *logrus.Entry
	clock      func() time.Time
	instanceID string
	maxRetries int
	loader     *archive.Loader

	// Mu guards the fields below and is held for the whole of an append, so
	// appends from one instance never interleave.
	Mu      sync.Mutex
	st      state.AppState
	height  int64
	pending []storage.Commit
	events  []event.Event // since the last reset
	seen    map[string]struct{}
	opened  bool
	closed  bool
	unsub   func()

	ready chan struct{}

	listenMu     sync.Mutex
	listeners    map[int]func(signal.Signal)
	nextListener int
}

// New builds a store. It does no I/O; call Open before use.
func New(opts Options) (*Store, error) {
	if opts.Snapshots == nil {
		return nil, errors.New("game: snapshots backend is required")
	}
	records := opts.Records
	if records == nil {
		r, ok := opts.Snapshots.(storage.Records)
		if !ok {
			return nil, errors.New("game: records backend is required")
		}
		records = r
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	id := opts.InstanceID
	if id == "" {
		id = uuid.NewString()
	}
	bus := opts.Bus
	if bus == nil {
		bus = signal.NewHub(logger).Connect(id)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}

	s := &Store{
		snapshots:  opts.Snapshots,
		records:    records,
		bus:        bus,
		log:        logger.WithField("instance", id),
		clock:      clock,
		instanceID: id,
		maxRetries: retries,
		st:         state.Initial(),
		seen:       map[string]struct{}{},
		ready:      make(chan struct{}),
		listeners:  map[int]func(signal.Signal){},
	}
	s.loader = archive.NewLoader(s.fetchRecord)
	return s, nil
}

// InstanceID identifies this store on the bus.
func (s *Store) InstanceID() string { return s.instanceID }

// Open rehydrates from the durable snapshot and starts listening for signals
// from other instances. Calling it again is a no-op.
func (s *Store) Open(ctx context.Context) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.opened {
		return nil
	}
	if err := s.reloadLocked(ctx); err != nil {
		return fmt.Errorf("game: rehydrate: %w", err)
	}
	s.unsub = s.bus.Subscribe(s.onSignal)
	s.opened = true
	close(s.ready)
	s.log.WithFields(logrus.Fields{"height": s.height, "events": len(s.events)}).Info("store opened")
	return nil
}

// Ready reports whether Open has completed.
func (s *Store) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until Open completes or ctx ends.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state and height. The state must be treated as
// read-only.
func (s *Store) State() (state.AppState, int64, error) {
	if !s.Ready() {
		return state.AppState{}, 0, ErrNotReady
	}
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.st, s.height, nil
}

// Bundle returns the events since the last reset and the height they reach.
func (s *Store) Bundle() (archive.Bundle, error) {
	if !s.Ready() {
		return archive.Bundle{}, ErrNotReady
	}
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return archive.Bundle{LatestSeq: s.height, Events: append([]event.Event(nil), s.events...)}, nil
}

// Pending returns how many batches are applied in memory but not yet durable.
func (s *Store) Pending() int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return len(s.pending)
}

// Append is AppendMany with a single event.
func (s *Store) Append(ctx context.Context, ev event.Event) (Result, error) {
	return s.AppendMany(ctx, []event.Event{ev})
}

// AppendMany validates evs, drops ids already applied, folds the rest into
// the state and commits them as one batch at the next height. A lost height
// race is resolved by catching up and retrying. A storage failure keeps the
// batch in memory and reports it through Result.Warning.
func (s *Store) AppendMany(ctx context.Context, evs []event.Event) (Result, error) {
	if !s.Ready() {
		return Result{}, ErrNotReady
	}
	for _, ev := range evs {
		if err := event.Validate(ev); err != nil {
			return Result{}, err
		}
	}
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.closed {
		return Result{}, ErrClosed
	}
	return s.appendLocked(ctx, evs)
}

// appendLocked commits evs on top of the current height.
// Assumes lock is held by caller.
func (s *Store) appendLocked(ctx context.Context, evs []event.Event) (Result, error) {
	if len(s.pending) > 0 {
		if err := s.flushPendingLocked(ctx, true); err != nil {
			s.log.WithError(err).Debug("queued batches still not durable")
		}
	}

	for attempt := 0; ; attempt++ {
		fresh := s.unseen(evs)
		if len(fresh) == 0 {
			return Result{Height: s.height}, nil
		}
		c := storage.Commit{Height: s.height + 1, Events: fresh, State: state.Fold(s.st, fresh)}

		// Durable order must match local order; behind a stuck queue a new
		// batch can only join the queue.
		if len(s.pending) > 0 {
			return s.queueLocked(c, &DurabilityError{Height: c.Height, Err: errors.New("earlier batches not persisted")}), nil
		}

		err := s.snapshots.Commit(ctx, c)
		switch {
		case err == nil:
			s.applyLocked(c)
			s.announce(ctx, c.Height)
			return Result{Height: c.Height, Applied: len(fresh)}, nil
		case errors.Is(err, storage.ErrHeightConflict):
			if attempt >= s.maxRetries {
				return Result{}, fmt.Errorf("game: append at height %d after %d retries: %w", c.Height, attempt, err)
			}
			s.log.WithField("height", c.Height).Debug("height taken by another instance; catching up")
			if err := s.catchUpLocked(ctx); err != nil {
				return Result{}, err
			}
		case ctx.Err() != nil:
			return Result{}, ctx.Err()
		default:
			s.log.WithError(err).WithField("height", c.Height).Warn("persist failed; keeping batch in memory")
			return s.queueLocked(c, &DurabilityError{Height: c.Height, Err: err}), nil
		}
	}
}

// queueLocked applies c in memory and queues it for persistence.
// Assumes lock is held by caller.
func (s *Store) queueLocked(c storage.Commit, warn error) Result {
	s.applyLocked(c)
	s.pending = append(s.pending, c)
	return Result{Height: c.Height, Applied: len(c.Events), Warning: warn}
}

// applyLocked makes c the current state.
// Assumes lock is held by caller.
func (s *Store) applyLocked(c storage.Commit) {
	if c.Reset {
		s.events = nil
		s.seen = map[string]struct{}{}
	}
	s.st = c.State
	s.height = c.Height
	s.events = append(s.events, c.Events...)
	for _, ev := range c.Events {
		s.seen[ev.ID] = struct{}{}
	}
}

// unseen filters out events whose ids were already applied or repeat within
// evs. Assumes lock is held by caller.
func (s *Store) unseen(evs []event.Event) []event.Event {
	out := make([]event.Event, 0, len(evs))
	batch := make(map[string]struct{}, len(evs))
	for _, ev := range evs {
		if _, ok := s.seen[ev.ID]; ok {
			continue
		}
		if _, ok := batch[ev.ID]; ok {
			continue
		}
		batch[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// flushPendingLocked persists queued batches in order. When another instance
// took one of their heights, the queue is rebased once on top of the durable
// state. Assumes lock is held by caller.
func (s *Store) flushPendingLocked(ctx context.Context, rebase bool) error {
	for len(s.pending) > 0 {
		c := s.pending[0]
		err := s.snapshots.Commit(ctx, c)
		switch {
		case err == nil:
			s.pending = s.pending[1:]
			s.announce(ctx, c.Height)
		case errors.Is(err, storage.ErrHeightConflict) && rebase:
			if err := s.rebaseLocked(ctx); err != nil {
				return err
			}
			return s.flushPendingLocked(ctx, false)
		default:
			return &DurabilityError{Height: c.Height, Err: err}
		}
	}
	return nil
}

// rebaseLocked reloads the durable state and re-applies every queued batch on
// top of it, dropping events the durable log already holds.
// Assumes lock is held by caller.
func (s *Store) rebaseLocked(ctx context.Context) error {
	queued := s.pending
	s.pending = nil
	if err := s.reloadLocked(ctx); err != nil {
		s.pending = queued
		return err
	}
	for _, q := range queued {
		fresh := s.unseen(q.Events)
		if len(fresh) == 0 && !q.Reset {
			continue
		}
		base := s.st
		if q.Reset {
			base = state.Initial()
		}
		s.queueLocked(storage.Commit{
			Height: s.height + 1,
			Events: fresh,
			State:  state.Fold(base, fresh),
			Reset:  q.Reset,
		}, nil)
	}
	s.log.WithFields(logrus.Fields{"height": s.height, "queued": len(s.pending)}).Info("rebased queued batches")
	return nil
}

// reloadLocked replaces the in-memory state with the durable snapshot and
// rebuilds the event list from the batch log.
// Assumes lock is held by caller.
func (s *Store) reloadLocked(ctx context.Context) error {
	snap, err := s.snapshots.Latest(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		snap = storage.Snapshot{ID: storage.SnapshotID, State: state.Initial()}
	case err != nil:
		return err
	}

	var evs []event.Event
	batches, err := s.snapshots.Batches(ctx, 0)
	if err != nil {
		s.log.WithError(err).Warn("batch log unavailable; event history incomplete")
	}
	for _, b := range batches {
		if b.Height > snap.Height {
			break
		}
		if b.Reset {
			evs = nil
		}
		evs = append(evs, b.Events...)
	}

	s.st = snap.State
	s.height = snap.Height
	s.events = evs
	s.seen = make(map[string]struct{}, len(evs))
	for _, ev := range evs {
		s.seen[ev.ID] = struct{}{}
	}
	return nil
}

// CatchUp brings the store up to the durable height, replaying the batches it
// missed or reloading the snapshot when the log has a gap.
func (s *Store) CatchUp(ctx context.Context) error {
	if !s.Ready() {
		return ErrNotReady
	}
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.catchUpLocked(ctx)
}

// catchUpLocked is CatchUp. Assumes lock is held by caller.
func (s *Store) catchUpLocked(ctx context.Context) error {
	if len(s.pending) > 0 {
		return s.flushPendingLocked(ctx, true)
	}
	from := s.height

	batches, err := s.snapshots.Batches(ctx, s.height)
	if err != nil {
		s.log.WithError(err).Warn("batch log unavailable; reloading snapshot")
		return s.reloadLocked(ctx)
	}
	if len(batches) == 0 {
		// The log may have been truncated under us by a reset.
		snap, err := s.snapshots.Latest(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if snap.Height != s.height {
			return s.reloadLocked(ctx)
		}
		return nil
	}

	next := s.st
	want := s.height + 1
	var evs []event.Event
	for _, b := range batches {
		if b.Height != want || b.Reset {
			s.log.WithFields(logrus.Fields{"height": s.height, "batch": b.Height}).
				Debug("batch log does not continue local height; reloading snapshot")
			return s.reloadLocked(ctx)
		}
		next = state.Fold(next, b.Events)
		evs = append(evs, b.Events...)
		want++
	}
	s.applyLocked(storage.Commit{Height: want - 1, Events: evs, State: next})
	s.log.WithFields(logrus.Fields{"from": from, "to": s.height}).Debug("caught up")
	return nil
}

// onSignal reacts to other instances. Height signals trigger a catch-up;
// archive signals are passed to OnArchiveChange listeners.
func (s *Store) onSignal(sig signal.Signal) {
	switch sig.Type {
	case signal.KindHeight:
		s.Mu.Lock()
		stale := sig.Height > s.height || len(s.pending) > 0
		closed := s.closed
		s.Mu.Unlock()
		if !stale || closed {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
		defer cancel()
		if err := s.CatchUp(ctx); err != nil && !errors.Is(err, ErrClosed) {
			s.log.WithError(err).WithField("origin", sig.Origin).Warn("catch-up after signal failed")
		}
	case signal.KindAdded, signal.KindDeleted:
		s.notifyArchive(sig)
	}
}

// announce tells other instances about a new durable height.
func (s *Store) announce(ctx context.Context, height int64) {
	err := s.bus.Emit(ctx, signal.Signal{Type: signal.KindHeight, Height: height, Timestamp: s.clock().UnixMilli()})
	if err != nil {
		s.log.WithError(err).WithField("height", height).Warn("height signal not sent")
	}
}

// Close stops listening for signals and makes one last attempt to persist
// queued batches. The bus and backends belong to the caller.
func (s *Store) Close() error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.unsub != nil {
		s.unsub()
	}
	if len(s.pending) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()
	if err := s.flushPendingLocked(ctx, true); err != nil {
		s.log.WithError(err).WithField("queued", len(s.pending)).Error("closing with batches not persisted")
		return err
	}
	return nil
}
