package archive

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrSuperseded is returned to a Load whose result was discarded because a
// later Load started before it finished.
var ErrSuperseded = errors.New("archive: load superseded")

// FetchFunc reads one record.
type FetchFunc func(ctx context.Context, id string) (GameRecord, error)

// Loader serves "open this archived game" requests where only the newest
// request matters. Every Load takes a ticket; starting a new Load cancels the
// previous one, and a result is returned only if its ticket is still the
// latest when it arrives. Concurrent loads of the same id share one fetch.
type Loader struct {
	fetch FetchFunc
	group singleflight.Group

	mu     sync.Mutex
	ticket uint64
	cancel context.CancelFunc
}

// NewLoader wraps fetch.
func NewLoader(fetch FetchFunc) *Loader {
	return &Loader{fetch: fetch}
}

// Load fetches id on behalf of a new request and supersedes any earlier one.
func (l *Loader) Load(ctx context.Context, id string) (GameRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.ticket++
	ticket := l.ticket
	if l.cancel != nil {
		l.cancel()
	}
	l.cancel = cancel
	l.mu.Unlock()
	defer cancel()

	// The shared fetch outlives any single waiter; a superseded request must
	// not cancel a fetch a newer request is also waiting on.
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(id, func() (any, error) {
		return l.fetch(fetchCtx, id)
	})

	select {
	case <-ctx.Done():
		if !l.isLatest(ticket) {
			return GameRecord{}, ErrSuperseded
		}
		return GameRecord{}, ctx.Err()
	case res := <-ch:
		if !l.isLatest(ticket) {
			return GameRecord{}, ErrSuperseded
		}
		if res.Err != nil {
			return GameRecord{}, res.Err
		}
		return res.Val.(GameRecord), nil
	}
}

func (l *Loader) isLatest(ticket uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticket == ticket
}
