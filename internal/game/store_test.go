package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/scorecard/engine"
	"github.com/jason-s-yu/scorecard/internal/archive"
	"github.com/jason-s-yu/scorecard/internal/event"
	"github.com/jason-s-yu/scorecard/internal/signal"
	"github.com/jason-s-yu/scorecard/internal/state"
	"github.com/jason-s-yu/scorecard/internal/storage"
)

// flakySnapshots fails commits while fail is set, for one instance only.
type flakySnapshots struct {
	storage.Snapshots
	fail atomic.Bool
}

func (f *flakySnapshots) Commit(ctx context.Context, c storage.Commit) error {
	if f.fail.Load() {
		return errors.New("disk full")
	}
	return f.Snapshots.Commit(ctx, c)
}

// signalRecorder captures archive signals delivered to a listener.
type signalRecorder struct {
	mu   sync.Mutex
	sigs []signal.Signal
}

func (r *signalRecorder) record(s signal.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sigs = append(r.sigs, s)
}

func (r *signalRecorder) all() []signal.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]signal.Signal(nil), r.sigs...)
}

func quietLogger() (*logrus.Logger, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

// openStore opens a store over snaps and mem's records, attached to hub.
func openStore(t *testing.T, snaps storage.Snapshots, mem *storage.Memory, hub *signal.Hub, id string) *Store {
	t.Helper()
	log, _ := quietLogger()
	s, err := New(Options{
		Snapshots:  snaps,
		Records:    mem,
		Bus:        hub.Connect(id),
		Logger:     log,
		InstanceID: id,
		Clock:      func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	})
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func addPlayer(id, name string) event.Event {
	return event.New(event.PlayerAdded{ID: id, Name: name})
}

func TestStoreNotReadyBeforeOpen(t *testing.T) {
	s, err := New(Options{Snapshots: storage.NewMemory()})
	require.NoError(t, err)

	_, err = s.Append(context.Background(), addPlayer("p1", "Ana"))
	assert.ErrorIs(t, err, ErrNotReady)
	_, _, err = s.State()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, s.Ready())
}

func TestNewNeedsSnapshots(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestAppendPersistsAndDedupes(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := openStore(t, mem, mem, signal.NewHub(nil), "a")

	ev := addPlayer("p1", "Ana")
	res, err := s.AppendMany(ctx, []event.Event{ev, ev})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Height)
	assert.Equal(t, 1, res.Applied)
	assert.Nil(t, res.Warning)

	res, err = s.Append(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Height)
	assert.Zero(t, res.Applied)

	snap, err := mem.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Height)
	assert.Equal(t, "Ana", snap.State.Players["p1"])
}

func TestAppendRejectsInvalidBatch(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := openStore(t, mem, mem, signal.NewHub(nil), "a")

	bad := event.New(event.PlayerAdded{ID: "", Name: "Ana"})
	_, err := s.AppendMany(ctx, []event.Event{addPlayer("p1", "Ana"), bad})
	assert.ErrorIs(t, err, event.ErrSchema)

	st, h, err := s.State()
	require.NoError(t, err)
	assert.Zero(t, h)
	assert.Empty(t, st.Players)
}

func TestOpenRehydrates(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	hub := signal.NewHub(nil)
	a := openStore(t, mem, mem, hub, "a")
	first := addPlayer("p1", "Ana")
	_, err := a.AppendMany(ctx, []event.Event{first, addPlayer("p2", "Ben")})
	require.NoError(t, err)

	b := openStore(t, mem, mem, hub, "b")
	st, h, err := b.State()
	require.NoError(t, err)
	assert.Equal(t, int64(1), h)
	assert.Equal(t, []string{"p1", "p2"}, st.Order)

	bundle, err := b.Bundle()
	require.NoError(t, err)
	assert.Len(t, bundle.Events, 2)

	// The rehydrated instance knows the ids already applied.
	res, err := b.Append(ctx, first)
	require.NoError(t, err)
	assert.Zero(t, res.Applied)
}

func TestInstancesConvergeThroughSignals(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	hub := signal.NewHub(nil)
	a := openStore(t, mem, mem, hub, "a")
	b := openStore(t, mem, mem, hub, "b")

	_, err := a.Append(ctx, addPlayer("p1", "Ana"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, h, err := b.State()
		return err == nil && h == 1 && st.Players["p1"] == "Ana"
	}, time.Second, 5*time.Millisecond)

	_, err = b.Append(ctx, addPlayer("p2", "Ben"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, h, _ := a.State()
		return h == 2
	}, time.Second, 5*time.Millisecond)
}

func TestLostHeightRaceCatchesUpAndRetries(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	// Separate hubs: b never hears about a's commit.
	a := openStore(t, mem, mem, signal.NewHub(nil), "a")
	b := openStore(t, mem, mem, signal.NewHub(nil), "b")

	_, err := a.Append(ctx, addPlayer("p1", "Ana"))
	require.NoError(t, err)

	res, err := b.Append(ctx, addPlayer("p2", "Ben"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Height)

	st, _, err := b.State()
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, st.Order)

	snap, err := mem.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, snap.State.Order)
}

func TestConcurrentAppendsLandOnDistinctHeights(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	hub := signal.NewHub(nil)
	stores := []*Store{openStore(t, mem, mem, hub, "a"), openStore(t, mem, mem, hub, "b"), openStore(t, mem, mem, hub, "c")}

	var wg sync.WaitGroup
	for i, s := range stores {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(s *Store, id string) {
				defer wg.Done()
				_, err := s.Append(ctx, addPlayer(id, id))
				assert.NoError(t, err)
			}(s, fmt.Sprintf("p%d-%d", i, j))
		}
	}
	wg.Wait()

	snap, err := mem.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), snap.Height)
	assert.Len(t, snap.State.Players, 6)
}

func TestPersistFailureKeepsBatchInMemory(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	flaky := &flakySnapshots{Snapshots: mem}
	log, hook := quietLogger()
	s, err := New(Options{Snapshots: flaky, Records: mem, Logger: log})
	require.NoError(t, err)
	require.NoError(t, s.Open(ctx))

	flaky.fail.Store(true)
	res, err := s.Append(ctx, addPlayer("p1", "Ana"))
	require.NoError(t, err)
	var derr *DurabilityError
	require.ErrorAs(t, res.Warning, &derr)
	assert.Equal(t, int64(1), derr.Height)
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	st, h, err := s.State()
	require.NoError(t, err)
	assert.Equal(t, int64(1), h)
	assert.Equal(t, "Ana", st.Players["p1"])

	// Queued behind the failure, a second batch keeps its order.
	res, err = s.Append(ctx, addPlayer("p2", "Ben"))
	require.NoError(t, err)
	assert.Error(t, res.Warning)
	assert.Equal(t, 2, s.Pending())

	flaky.fail.Store(false)
	res, err = s.Append(ctx, addPlayer("p3", "Cy"))
	require.NoError(t, err)
	assert.Nil(t, res.Warning)
	assert.Equal(t, int64(3), res.Height)
	assert.Zero(t, s.Pending())

	snap, err := mem.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, snap.State.Order)
}

func TestQueuedBatchRebasesOverRemoteCommit(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	flaky := &flakySnapshots{Snapshots: mem}
	a := openStore(t, flaky, mem, signal.NewHub(nil), "a")
	b := openStore(t, mem, mem, signal.NewHub(nil), "b")

	flaky.fail.Store(true)
	res, err := a.Append(ctx, addPlayer("p1", "Ana"))
	require.NoError(t, err)
	require.Error(t, res.Warning)

	// b takes height 1 while a's batch is stuck.
	_, err = b.Append(ctx, addPlayer("p2", "Ben"))
	require.NoError(t, err)

	flaky.fail.Store(false)
	require.NoError(t, a.CatchUp(ctx))
	assert.Zero(t, a.Pending())

	st, h, err := a.State()
	require.NoError(t, err)
	assert.Equal(t, int64(2), h)
	assert.Equal(t, []string{"p2", "p1"}, st.Order)

	snap, err := mem.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Height)
	assert.Equal(t, []string{"p2", "p1"}, snap.State.Order)
}

func scoredRound(t *testing.T) []event.Event {
	t.Helper()
	made := true
	return []event.Event{
		addPlayer("p1", "Ana"),
		addPlayer("p2", "Ben"),
		event.New(event.BidSet{Round: 1, PlayerID: "p1", Bid: 2}),
		event.New(event.BidSet{Round: 1, PlayerID: "p2", Bid: 0}),
		event.New(event.MadeSet{Round: 1, PlayerID: "p1", Made: &made}),
		event.New(event.MadeSet{Round: 1, PlayerID: "p2", Made: &made}),
		event.New(event.RoundFinalize{Round: 1}),
	}
}

func TestArchiveAndReset(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	hub := signal.NewHub(nil)
	a := openStore(t, mem, mem, hub, "a")
	b := openStore(t, mem, mem, hub, "b")

	local, remote := &signalRecorder{}, &signalRecorder{}
	defer a.OnArchiveChange(local.record)()
	defer b.OnArchiveChange(remote.record)()

	_, err := a.AppendMany(ctx, scoredRound(t))
	require.NoError(t, err)

	rec, err := a.ArchiveCurrentGameAndReset(ctx, archive.Meta{Title: "Friday"})
	require.NoError(t, err)
	assert.Equal(t, "Friday", rec.Title)
	assert.Equal(t, int64(1), rec.LastSeq)
	assert.Equal(t, map[string]int{"p1": 7, "p2": 5}, rec.Summary.Scores)
	assert.Len(t, rec.Bundle.Events, 7)

	st, h, err := a.State()
	require.NoError(t, err)
	assert.Equal(t, int64(2), h)
	assert.Equal(t, state.Initial(), st)

	_, err = a.ArchiveCurrentGameAndReset(ctx, archive.Meta{})
	assert.ErrorIs(t, err, ErrNothingToArchive)

	list, err := a.Archives(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)

	require.Len(t, local.all(), 1)
	assert.Equal(t, signal.KindAdded, local.all()[0].Type)
	require.Eventually(t, func() bool { return len(remote.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, rec.ID, remote.all()[0].GameID)

	// The other instance follows the reset.
	require.Eventually(t, func() bool {
		st, h, _ := b.State()
		return h == 2 && len(st.Players) == 0
	}, time.Second, 5*time.Millisecond)

	// A fresh instance rehydrates into the new game with no history.
	c := openStore(t, mem, mem, hub, "c")
	bundle, err := c.Bundle()
	require.NoError(t, err)
	assert.Empty(t, bundle.Events)
	assert.Equal(t, int64(2), bundle.LatestSeq)
}

func TestArchivesSkipCorruptRecords(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := openStore(t, mem, mem, signal.NewHub(nil), "a")

	_, err := s.AppendMany(ctx, scoredRound(t))
	require.NoError(t, err)
	good, err := s.ArchiveCurrentGameAndReset(ctx, archive.Meta{})
	require.NoError(t, err)
	require.NoError(t, mem.PutRecord(ctx, "broken", []byte("{not a record")))

	list, err := s.Archives(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, good.ID, list[0].ID)

	_, err = s.LoadArchive(ctx, "broken")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, err, archive.ErrCorrupt)

	loaded, err := s.LoadArchive(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, good.Summary, loaded.Summary)
}

func TestImportRecordLeavesLiveGame(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := openStore(t, mem, mem, signal.NewHub(nil), "a")

	bundle := archive.Bundle{Events: scoredRound(t)}
	rec, err := s.ImportRecord(ctx, bundle, archive.Meta{ID: "imported"})
	require.NoError(t, err)
	assert.Equal(t, "imported", rec.ID)
	assert.Equal(t, int64(7), rec.LastSeq)
	assert.Equal(t, []string{"p1"}, rec.Summary.Winners)

	_, h, err := s.State()
	require.NoError(t, err)
	assert.Zero(t, h)

	_, err = s.ImportRecord(ctx, archive.Bundle{}, archive.Meta{})
	assert.ErrorIs(t, err, ErrNothingToArchive)
}

func TestSoftImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := openStore(t, mem, mem, signal.NewHub(nil), "a")
	bundle := archive.Bundle{Events: scoredRound(t)}

	res, err := s.SoftImport(ctx, bundle)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Applied)
	first, _, _ := s.State()

	res, err = s.SoftImport(ctx, bundle)
	require.NoError(t, err)
	assert.Zero(t, res.Applied)
	assert.Equal(t, int64(1), res.Height)
	again, _, _ := s.State()
	assert.Equal(t, first, again)
}

func TestDeleteArchiveNotifiesOthers(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	hub := signal.NewHub(nil)
	a := openStore(t, mem, mem, hub, "a")
	b := openStore(t, mem, mem, hub, "b")
	remote := &signalRecorder{}
	defer b.OnArchiveChange(remote.record)()

	rec, err := a.ImportRecord(ctx, archive.Bundle{Events: scoredRound(t)}, archive.Meta{})
	require.NoError(t, err)
	require.NoError(t, a.DeleteArchive(ctx, rec.ID))

	require.Eventually(t, func() bool { return len(remote.all()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, signal.KindDeleted, remote.all()[1].Type)

	_, err = b.LoadArchive(ctx, rec.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestViewHidesOtherHands(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := openStore(t, mem, mem, signal.NewHub(nil), "a")

	deal, err := engine.DealRound(42, 2, []string{"p1", "p2", "p3"}, "p1")
	require.NoError(t, err)
	_, err = s.AppendMany(ctx, []event.Event{
		addPlayer("p1", "Ana"),
		addPlayer("p2", "Ben"),
		addPlayer("p3", "Cy"),
		event.New(event.SPDeal{
			RoundNo:   2,
			DealerID:  deal.DealerID,
			Order:     deal.Order,
			Trump:     deal.Trump,
			TrumpCard: deal.TrumpCard,
			Hands:     deal.Hands,
		}),
	})
	require.NoError(t, err)

	v, err := s.View("p2")
	require.NoError(t, err)
	assert.Equal(t, event.PhaseBidding, v.Phase)
	assert.Equal(t, "p2", v.CurrentPlayerID)
	require.Len(t, v.Seats, 3)
	for _, seat := range v.Seats {
		assert.Equal(t, 9, seat.HandSize, seat.PlayerID)
		if seat.PlayerID == "p2" {
			assert.Equal(t, deal.Hands["p2"], seat.RevealedHand)
			assert.True(t, seat.IsCurrentTurn)
		} else {
			assert.Empty(t, seat.RevealedHand, seat.PlayerID)
		}
	}
}
