package signal

import (
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records delivered signals.
type collector struct {
	mu  sync.Mutex
	got []Signal
}

func (c *collector) handle(s Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, s)
}

func (c *collector) signals() []Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Signal(nil), c.got...)
}

func (c *collector) waitFor(t *testing.T, n int) []Signal {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.signals()) >= n }, 2*time.Second, 5*time.Millisecond)
	return c.signals()
}

func TestHubSkipsOwnSignals(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Connect("tab-a")
	b := hub.Connect("tab-b")
	defer a.Close()
	defer b.Close()

	var fromA, fromB collector
	a.Subscribe(fromA.handle)
	b.Subscribe(fromB.handle)

	require.NoError(t, a.Emit(context.Background(), Signal{Type: KindDeleted, GameID: "g1"}))

	got := fromB.waitFor(t, 1)
	assert.Equal(t, KindDeleted, got[0].Type)
	assert.Equal(t, "g1", got[0].GameID)
	assert.Equal(t, "tab-a", got[0].Origin)
	assert.NotZero(t, got[0].Timestamp)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, fromA.signals(), "an instance must not hear itself")
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Connect("a")
	b := hub.Connect("b")
	defer a.Close()
	defer b.Close()

	var c collector
	cancel := b.Subscribe(c.handle)
	require.NoError(t, a.Emit(context.Background(), Signal{Type: KindHeight, Height: 1}))
	c.waitFor(t, 1)

	cancel()
	cancel()
	require.NoError(t, a.Emit(context.Background(), Signal{Type: KindHeight, Height: 2}))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.signals(), 1)
}

func TestHubEmitAfterClose(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Connect("a")
	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Emit(context.Background(), Signal{Type: KindAdded}), ErrClosed)
}

func TestSlowSubscriberDropsWithWarning(t *testing.T) {
	logger, hook := test.NewNullLogger()
	hub := NewHub(logger)
	a := hub.Connect("a")
	b := hub.Connect("b")
	defer a.Close()
	defer b.Close()

	release := make(chan struct{})
	b.Subscribe(func(Signal) { <-release })

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, a.Emit(context.Background(), Signal{Type: KindHeight, Height: int64(i + 1)}))
	}
	close(release)

	var dropped int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "dropped") {
			dropped++
		}
	}
	assert.Positive(t, dropped)
}

func TestRelayFansOut(t *testing.T) {
	relay := NewRelay(nil)
	srv := httptest.NewServer(relay)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := DialWS(ctx, url, "a", nil)
	require.NoError(t, err)
	defer a.Close()
	b, err := DialWS(ctx, url, "b", nil)
	require.NoError(t, err)
	defer b.Close()
	require.Eventually(t, func() bool { return relay.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	var fromA, fromB collector
	a.Subscribe(fromA.handle)
	b.Subscribe(fromB.handle)

	require.NoError(t, a.Emit(ctx, Signal{Type: KindAdded, GameID: "g7"}))
	got := fromB.waitFor(t, 1)
	assert.Equal(t, "g7", got[0].GameID)
	assert.Equal(t, "a", got[0].Origin)
	assert.Empty(t, fromA.signals())
}

func TestRedisBus(t *testing.T) {
	addr := os.Getenv("SCORECARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SCORECARD_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	a, err := NewRedisBus(ctx, client, "scorecard-test-signals", "a", nil)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisBus(ctx, client, "scorecard-test-signals", "b", nil)
	require.NoError(t, err)
	defer b.Close()

	var c collector
	b.Subscribe(c.handle)
	require.NoError(t, a.Emit(ctx, Signal{Type: KindHeight, Height: 12}))
	got := c.waitFor(t, 1)
	assert.Equal(t, int64(12), got[0].Height)
}
