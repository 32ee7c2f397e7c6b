package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

const relayWriteTimeout = 5 * time.Second

// Relay is an http.Handler that fans every signal it receives out to every
// other connected client. It does not filter or store anything.
type Relay struct {
	log logrus.FieldLogger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewRelay returns an idle relay. A nil logger uses the logrus standard logger.
func NewRelay(log logrus.FieldLogger) *Relay {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Relay{log: log, conns: map[*websocket.Conn]struct{}{}}
}

// ServeHTTP upgrades the request and relays until the client goes away.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		r.log.WithError(err).Warn("relay: accept failed")
		return
	}
	r.mu.Lock()
	r.conns[conn] = struct{}{}
	n := len(r.conns)
	r.mu.Unlock()
	r.log.WithField("clients", n).Debug("relay: client connected")

	defer func() {
		r.mu.Lock()
		delete(r.conns, conn)
		r.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := req.Context()
	for {
		var s Signal
		if err := wsjson.Read(ctx, conn, &s); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				r.log.WithError(err).Debug("relay: read ended")
			}
			return
		}
		r.broadcast(ctx, conn, s)
	}
}

// broadcast writes s to every connection except from. A client that cannot
// keep up misses the signal.
func (r *Relay) broadcast(ctx context.Context, from *websocket.Conn, s Signal) {
	r.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(r.conns))
	for c := range r.conns {
		if c != from {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()

	for _, c := range targets {
		wctx, cancel := context.WithTimeout(ctx, relayWriteTimeout)
		if err := wsjson.Write(wctx, c, s); err != nil {
			r.log.WithError(err).WithField("type", s.Type).Warn("relay: dropped signal for client")
		}
		cancel()
	}
}

// Clients returns the number of connected clients.
func (r *Relay) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// WSBus is a client of a Relay.
type WSBus struct {
	*dispatcher
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// DialWS connects to a relay at url (ws:// or wss://).
func DialWS(ctx context.Context, url, instanceID string, log logrus.FieldLogger) (*WSBus, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws bus: dial %s: %w", url, err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	b := &WSBus{
		dispatcher: newDispatcher(instanceID, log),
		conn:       conn,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go b.loop(runCtx)
	return b, nil
}

func (b *WSBus) loop(ctx context.Context) {
	defer close(b.done)
	for {
		var s Signal
		if err := wsjson.Read(ctx, b.conn, &s); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				b.log.WithError(err).Warn("ws bus: connection lost")
			}
			return
		}
		b.deliver(s)
	}
}

func (b *WSBus) Emit(ctx context.Context, s Signal) error {
	if err := wsjson.Write(ctx, b.conn, b.stamp(s)); err != nil {
		return fmt.Errorf("ws bus: write: %w", err)
	}
	return nil
}

func (b *WSBus) Close() error {
	err := b.conn.Close(websocket.StatusNormalClosure, "")
	b.cancel()
	<-b.done
	b.closeSubs()
	return err
}
