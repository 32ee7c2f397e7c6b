package archive

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/scorecard/internal/event"
	"github.com/jason-s-yu/scorecard/internal/state"
	"github.com/jason-s-yu/scorecard/internal/storage"
)

func finishedGame(t *testing.T) (state.AppState, []event.Event) {
	t.Helper()
	made := true
	missed := false
	evs := []event.Event{
		event.NewAt("1", 100, event.PlayerAdded{ID: "p1", Name: "Ana"}),
		event.NewAt("2", 101, event.PlayerAdded{ID: "p2", Name: "Ben"}),
		event.NewAt("3", 102, event.RosterCreated{RosterID: "r1", Name: "Friday", Kind: event.RosterScorecard, PlayerIDs: []string{"p1", "p2"}}),
		event.NewAt("4", 103, event.RosterActivated{RosterID: "r1", Mode: event.RosterScorecard}),
		event.NewAt("5", 104, event.BidSet{Round: 1, PlayerID: "p1", Bid: 3}),
		event.NewAt("6", 105, event.BidSet{Round: 1, PlayerID: "p2", Bid: 2}),
		event.NewAt("7", 106, event.MadeSet{Round: 1, PlayerID: "p1", Made: &made}),
		event.NewAt("8", 107, event.MadeSet{Round: 1, PlayerID: "p2", Made: &missed}),
		event.NewAt("9", 108, event.RoundFinalize{Round: 1}),
	}
	return state.Replay(evs), evs
}

func TestBuildSummary(t *testing.T) {
	s, evs := finishedGame(t)
	now := time.UnixMilli(5000)
	rec := Build(Meta{ID: "g1"}, s, evs, 4, now)

	assert.Equal(t, "g1", rec.ID)
	assert.Equal(t, int64(100), rec.CreatedAt)
	assert.Equal(t, int64(5000), rec.FinishedAt)
	assert.Equal(t, int64(4), rec.LastSeq)
	assert.Equal(t, int64(4), rec.Bundle.LatestSeq)
	assert.Len(t, rec.Bundle.Events, len(evs))
	assert.Contains(t, rec.Title, "Scorecard game")

	sum := rec.Summary
	assert.Equal(t, event.RosterScorecard, sum.Mode)
	assert.Equal(t, map[string]int{"p1": 8, "p2": -7}, sum.Scores)
	assert.Equal(t, []string{"p1"}, sum.Winners)
	assert.Equal(t, 1, sum.RoundsScored)
	require.NotNil(t, sum.Roster)
	assert.Equal(t, "r1", sum.Roster.ID)
	assert.Nil(t, sum.SP)
	assert.Equal(t, []Slot{{1, "p1", "Ana"}, {2, "p2", "Ben"}}, sum.SlotMapping.Slots)
}

func TestCodecRoundTrip(t *testing.T) {
	s, evs := finishedGame(t)
	rec := Build(Meta{ID: "g1", Title: "Friday night"}, s, evs, 4, time.UnixMilli(5000))

	data, err := Encode(rec)
	require.NoError(t, err)
	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, rec.Summary, back.Summary)
	assert.Equal(t, rec.Bundle.Events, back.Bundle.Events)
	assert.Equal(t, "Friday night", back.Title)
}

func TestDecodeCorrupt(t *testing.T) {
	s, evs := finishedGame(t)
	data, err := Encode(Build(Meta{ID: "g1"}, s, evs, 4, time.UnixMilli(5000)))
	require.NoError(t, err)

	tampered := []byte(string(data))
	for i := range tampered {
		if tampered[i] == 'A' {
			tampered[i] = 'B'
			break
		}
	}
	for name, input := range map[string][]byte{
		"tampered": tampered,
		"garbage":  []byte("not json"),
		"empty":    []byte(`{}`),
	} {
		_, err := Decode(input)
		assert.ErrorIs(t, err, ErrCorrupt, name)
		assert.ErrorIs(t, err, storage.ErrNotFound, name)
	}
}

func TestResolvePrecedence(t *testing.T) {
	sum := Summary{
		Players: map[string]string{"p1": "Ana", "p2": "p1", "p3": "Player 1"},
		SlotMapping: SlotMapping{Slots: []Slot{
			{Slot: 1, ID: "p1", Name: "Ana"},
			{Slot: 2, ID: "p2", Name: "p1"},
			{Slot: 3, ID: "p3", Name: "Player 1"},
		}},
	}
	tests := []struct {
		token string
		id    string
		match Match
	}{
		{"P1", "p1", MatchID},          // id beats p2's name "p1"
		{"  ana ", "p1", MatchName},    // names ignore case and space
		{"player 1", "p3", MatchName},  // a real name beats the alias
		{"Player 2", "p2", MatchAlias}, // positional
		{"player #3", "p3", MatchAlias},
		{"player 9", "", MatchNone},
		{"nobody", "", MatchNone},
		{"", "", MatchNone},
	}
	for _, tt := range tests {
		id, m := Resolve(sum, tt.token)
		assert.Equal(t, tt.id, id, "token %q", tt.token)
		assert.Equal(t, tt.match, m, "token %q", tt.token)
	}
}

func TestResolveSurvivesRename(t *testing.T) {
	s, evs := finishedGame(t)
	sum := Build(Meta{}, s, evs, 4, time.Now()).Summary

	// Renaming after the fact does not touch the frozen summary.
	renamed := state.Reduce(s, event.New(event.PlayerRenamed{ID: "p1", Name: "Anastasia"}))
	assert.Equal(t, "Anastasia", renamed.Players["p1"])

	id, m := Resolve(sum, "ana")
	assert.Equal(t, "p1", id)
	assert.Equal(t, MatchName, m)
}

func TestLoaderDiscardsSupersededResult(t *testing.T) {
	release := map[string]chan struct{}{"slow": make(chan struct{}), "fast": make(chan struct{})}
	l := NewLoader(func(ctx context.Context, id string) (GameRecord, error) {
		<-release[id]
		return GameRecord{ID: id}, nil
	})

	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		slowErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, slowErr = l.Load(ctx, "slow")
	}()
	require.Eventually(t, func() bool { return !l.isLatest(0) }, time.Second, time.Millisecond)

	fastDone := make(chan GameRecord, 1)
	go func() {
		rec, err := l.Load(ctx, "fast")
		assert.NoError(t, err)
		fastDone <- rec
	}()
	require.Eventually(t, func() bool { return l.isLatest(2) }, time.Second, time.Millisecond)

	// The slow fetch finishes last but must not win.
	close(release["fast"])
	rec := <-fastDone
	assert.Equal(t, "fast", rec.ID)
	close(release["slow"])
	wg.Wait()
	assert.ErrorIs(t, slowErr, ErrSuperseded)
}

func TestLoaderSharesFetch(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	l := NewLoader(func(ctx context.Context, id string) (GameRecord, error) {
		calls.Add(1)
		<-gate
		return GameRecord{ID: id}, nil
	})

	errs := make(chan error, 2)
	go func() { _, err := l.Load(context.Background(), "g"); errs <- err }()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	go func() { _, err := l.Load(context.Background(), "g"); errs <- err }()
	require.Eventually(t, func() bool { return l.isLatest(2) }, time.Second, time.Millisecond)
	close(gate)

	got := []error{<-errs, <-errs}
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, errors.Is(got[0], ErrSuperseded) || errors.Is(got[1], ErrSuperseded))
	assert.True(t, got[0] == nil || got[1] == nil)
}
