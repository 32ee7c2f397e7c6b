// Package signal announces changes between instances that share a storage
// scope. Signals are cache-invalidation hints: receivers re-read durable state
// and never act on the payload alone.
package signal

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind is the signal type.
type Kind string

const (
	KindAdded   Kind = "added"   // an archived game was added
	KindDeleted Kind = "deleted" // an archived game was deleted
	KindHeight  Kind = "height"  // the live store reached a new height
)

// Signal is the broadcast message.
type Signal struct {
	Type      Kind   `json:"type"`
	GameID    string `json:"gameId,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Height    int64  `json:"height,omitempty"`
	Origin    string `json:"origin"`
}

// Handler receives signals from other instances.
type Handler func(Signal)

// Bus is a best-effort, at-most-once broadcast channel.
type Bus interface {
	// Emit stamps the signal with this instance as origin and publishes it.
	Emit(ctx context.Context, s Signal) error
	// Subscribe registers h for signals from other instances. Calling the
	// returned function unsubscribes.
	Subscribe(h Handler) (cancel func())
	Close() error
}

// subscriberBuffer bounds how far a slow handler may fall behind before
// signals for it are dropped.
const subscriberBuffer = 32

type subscriber struct {
	ch   chan Signal
	done chan struct{}
}

// dispatcher fans received signals out to local handlers. Every bus
// implementation embeds one.
type dispatcher struct {
	instanceID string
	log        logrus.FieldLogger

	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	closed bool
}

func newDispatcher(instanceID string, log logrus.FieldLogger) *dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &dispatcher{
		instanceID: instanceID,
		log:        log.WithField("instance", instanceID),
		subs:       map[int]*subscriber{},
	}
}

// stamp fills in origin and timestamp before publishing.
func (d *dispatcher) stamp(s Signal) Signal {
	s.Origin = d.instanceID
	if s.Timestamp == 0 {
		s.Timestamp = time.Now().UnixMilli()
	}
	return s
}

// Subscribe starts a goroutine that feeds h in arrival order.
func (d *dispatcher) Subscribe(h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return func() {}
	}
	id := d.nextID
	d.nextID++
	sub := &subscriber{ch: make(chan Signal, subscriberBuffer), done: make(chan struct{})}
	d.subs[id] = sub

	go func() {
		for {
			select {
			case s := <-sub.ch:
				h(s)
			case <-sub.done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if _, ok := d.subs[id]; ok {
				delete(d.subs, id)
				close(sub.done)
			}
		})
	}
}

// deliver hands s to every handler unless this instance sent it.
func (d *dispatcher) deliver(s Signal) {
	if s.Origin == d.instanceID {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.subs {
		select {
		case sub.ch <- s:
		default:
			d.log.WithFields(logrus.Fields{"type": s.Type, "origin": s.Origin}).
				Warn("signal dropped: subscriber buffer full")
		}
	}
}

// closeSubs stops every handler goroutine. Later deliveries are ignored.
func (d *dispatcher) closeSubs() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, sub := range d.subs {
		close(sub.done)
		delete(d.subs, id)
	}
}
