package storage

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process backend. Several stores sharing one Memory behave
// like instances sharing a durable scope.
type Memory struct {
	mu       sync.Mutex
	snapshot *Snapshot
	batches  []Batch
	records  map[string]Record

	// FailCommits makes Commit fail with the returned error when non-nil.
	FailCommits func(Commit) error
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{records: map[string]Record{}}
}

func (m *Memory) Commit(ctx context.Context, c Commit) error {
	if err := validCommit(c); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommits != nil {
		if err := m.FailCommits(c); err != nil {
			return err
		}
	}

	var cur int64
	if m.snapshot != nil {
		cur = m.snapshot.Height
	}
	if c.Height != cur+1 {
		return ErrHeightConflict
	}
	if c.Reset {
		m.batches = m.batches[:0]
	}
	m.batches = append(m.batches, Batch{Height: c.Height, Events: slices.Clone(c.Events), Reset: c.Reset})
	m.snapshot = &Snapshot{ID: SnapshotID, Height: c.Height, State: c.State.Clone()}
	return nil
}

func (m *Memory) Latest(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return Snapshot{}, ErrNotFound
	}
	s := *m.snapshot
	s.State = s.State.Clone()
	return s, nil
}

func (m *Memory) Batches(ctx context.Context, after int64) ([]Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Batch
	for _, b := range m.batches {
		if b.Height > after {
			b.Events = slices.Clone(b.Events)
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Memory) PutRecord(ctx context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = Record{ID: id, Data: slices.Clone(data), UpdatedAt: time.Now().UnixMilli()}
	return nil
}

func (m *Memory) GetRecord(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(r.Data), nil
}

func (m *Memory) ListRecords(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		r.Data = slices.Clone(r.Data)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteRecord(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
