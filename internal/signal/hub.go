package signal

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrClosed is returned when emitting on a closed bus.
var ErrClosed = errors.New("signal bus closed")

// Hub connects buses living in the same process.
type Hub struct {
	log logrus.FieldLogger

	mu    sync.RWMutex
	buses map[*HubBus]struct{}
}

// NewHub returns an empty hub. A nil logger uses the logrus standard logger.
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{log: log, buses: map[*HubBus]struct{}{}}
}

// Connect attaches a new instance to the hub.
func (h *Hub) Connect(instanceID string) *HubBus {
	b := &HubBus{hub: h, dispatcher: newDispatcher(instanceID, h.log)}
	h.mu.Lock()
	h.buses[b] = struct{}{}
	h.mu.Unlock()
	return b
}

func (h *Hub) publish(s Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for b := range h.buses {
		b.deliver(s)
	}
}

// HubBus is one instance's view of a Hub.
type HubBus struct {
	*dispatcher
	hub *Hub
}

func (b *HubBus) Emit(ctx context.Context, s Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.hub.mu.RLock()
	_, ok := b.hub.buses[b]
	b.hub.mu.RUnlock()
	if !ok {
		return ErrClosed
	}
	b.hub.publish(b.stamp(s))
	return nil
}

func (b *HubBus) Close() error {
	b.hub.mu.Lock()
	delete(b.hub.buses, b)
	b.hub.mu.Unlock()
	b.closeSubs()
	return nil
}
