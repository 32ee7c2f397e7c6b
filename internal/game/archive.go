package game

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/scorecard/internal/archive"
	"github.com/jason-s-yu/scorecard/internal/event"
	"github.com/jason-s-yu/scorecard/internal/signal"
	"github.com/jason-s-yu/scorecard/internal/state"
	"github.com/jason-s-yu/scorecard/internal/storage"
)

// ArchiveCurrentGameAndReset freezes the live game into a record and starts a
// new game at the next height. With no events since the last reset it returns
// ErrNothingToArchive, so repeating the call never produces a second record.
func (s *Store) ArchiveCurrentGameAndReset(ctx context.Context, meta archive.Meta) (archive.GameRecord, error) {
	if !s.Ready() {
		return archive.GameRecord{}, ErrNotReady
	}
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.closed {
		return archive.GameRecord{}, ErrClosed
	}
	if err := s.catchUpLocked(ctx); err != nil {
		s.log.WithError(err).Warn("archiving without catch-up")
	}

	for attempt := 0; ; attempt++ {
		if len(s.events) == 0 {
			return archive.GameRecord{}, ErrNothingToArchive
		}
		rec := archive.Build(meta, s.st, s.events, s.height, s.clock())
		// Retries overwrite the same record.
		meta.ID = rec.ID
		if err := s.putRecord(ctx, rec); err != nil {
			return archive.GameRecord{}, err
		}

		c := storage.Commit{Height: s.height + 1, State: state.Initial(), Reset: true}
		if len(s.pending) > 0 {
			s.queueLocked(c, nil)
			s.log.WithField("game", rec.ID).Warn("game archived; reset not yet persisted")
			s.publishArchive(ctx, signal.KindAdded, rec.ID)
			return rec, nil
		}

		err := s.snapshots.Commit(ctx, c)
		switch {
		case err == nil:
			s.applyLocked(c)
			s.announce(ctx, c.Height)
			s.publishArchive(ctx, signal.KindAdded, rec.ID)
			s.log.WithFields(logrus.Fields{"game": rec.ID, "height": c.Height}).Info("game archived")
			return rec, nil
		case errors.Is(err, storage.ErrHeightConflict):
			if attempt >= s.maxRetries {
				if derr := s.records.DeleteRecord(ctx, rec.ID); derr != nil && !errors.Is(derr, storage.ErrNotFound) {
					s.log.WithError(derr).WithField("game", rec.ID).Warn("orphaned archive record")
				}
				return archive.GameRecord{}, fmt.Errorf("game: archive reset at height %d: %w", c.Height, err)
			}
			if err := s.catchUpLocked(ctx); err != nil {
				return archive.GameRecord{}, err
			}
		case ctx.Err() != nil:
			return archive.GameRecord{}, ctx.Err()
		default:
			s.log.WithError(err).WithField("game", rec.ID).Warn("game archived; reset kept in memory")
			s.queueLocked(c, nil)
			s.publishArchive(ctx, signal.KindAdded, rec.ID)
			return rec, nil
		}
	}
}

// SoftImport merges a bundle into the live game. Events already applied are
// skipped, so importing the same bundle twice changes nothing.
func (s *Store) SoftImport(ctx context.Context, b archive.Bundle) (Result, error) {
	return s.AppendMany(ctx, b.Events)
}

// ImportRecord stores a bundle as a new archived game without touching the
// live game.
func (s *Store) ImportRecord(ctx context.Context, b archive.Bundle, meta archive.Meta) (archive.GameRecord, error) {
	for _, ev := range b.Events {
		if err := event.Validate(ev); err != nil {
			return archive.GameRecord{}, err
		}
	}
	if len(b.Events) == 0 {
		return archive.GameRecord{}, ErrNothingToArchive
	}
	height := b.LatestSeq
	if height == 0 {
		height = int64(len(b.Events))
	}
	rec := archive.Build(meta, state.Replay(b.Events), b.Events, height, s.clock())
	if err := s.putRecord(ctx, rec); err != nil {
		return archive.GameRecord{}, err
	}
	s.publishArchive(ctx, signal.KindAdded, rec.ID)
	s.log.WithFields(logrus.Fields{"game": rec.ID, "events": len(b.Events)}).Info("bundle imported as archive")
	return rec, nil
}

// Archives lists readable archived games, newest first. Records that fail to
// decode are skipped.
func (s *Store) Archives(ctx context.Context) ([]archive.GameRecord, error) {
	raw, err := s.records.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("game: list archives: %w", err)
	}
	out := make([]archive.GameRecord, 0, len(raw))
	for _, r := range raw {
		rec, err := archive.Decode(r.Data)
		if err != nil {
			s.log.WithError(err).WithField("game", r.ID).Warn("skipping unreadable archive")
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinishedAt != out[j].FinishedAt {
			return out[i].FinishedAt > out[j].FinishedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// LoadArchive reads one archived game. A newer LoadArchive call supersedes an
// older one still in flight, which then returns archive.ErrSuperseded.
func (s *Store) LoadArchive(ctx context.Context, id string) (archive.GameRecord, error) {
	return s.loader.Load(ctx, id)
}

func (s *Store) fetchRecord(ctx context.Context, id string) (archive.GameRecord, error) {
	data, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return archive.GameRecord{}, fmt.Errorf("game: archive %s: %w", id, err)
	}
	rec, err := archive.Decode(data)
	if err != nil {
		s.log.WithError(err).WithField("game", id).Warn("archive record is corrupt")
		return archive.GameRecord{}, fmt.Errorf("game: archive %s: %w", id, err)
	}
	return rec, nil
}

// DeleteArchive removes an archived game.
func (s *Store) DeleteArchive(ctx context.Context, id string) error {
	if err := s.records.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("game: delete archive %s: %w", id, err)
	}
	s.publishArchive(ctx, signal.KindDeleted, id)
	return nil
}

// OnArchiveChange registers fn for archive additions and deletions made by
// this or any other instance. Calling the returned function unregisters it.
func (s *Store) OnArchiveChange(fn func(signal.Signal)) func() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.listenMu.Lock()
		defer s.listenMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) putRecord(ctx context.Context, rec archive.GameRecord) error {
	data, err := archive.Encode(rec)
	if err != nil {
		return err
	}
	if err := s.records.PutRecord(ctx, rec.ID, data); err != nil {
		return fmt.Errorf("game: store archive %s: %w", rec.ID, err)
	}
	return nil
}

// publishArchive tells local listeners and other instances about an archive
// change.
func (s *Store) publishArchive(ctx context.Context, kind signal.Kind, id string) {
	sig := signal.Signal{Type: kind, GameID: id, Timestamp: s.clock().UnixMilli(), Origin: s.instanceID}
	if err := s.bus.Emit(ctx, sig); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"type": kind, "game": id}).Warn("archive signal not sent")
	}
	s.notifyArchive(sig)
}

func (s *Store) notifyArchive(sig signal.Signal) {
	s.listenMu.Lock()
	fns := make([]func(signal.Signal), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenMu.Unlock()
	for _, fn := range fns {
		fn(sig)
	}
}
