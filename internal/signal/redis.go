package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBus publishes signals on a redis pub/sub channel so instances in
// different processes can see each other.
type RedisBus struct {
	*dispatcher
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRedisBus subscribes to channel and starts delivering signals. The client
// stays owned by the caller.
func NewRedisBus(ctx context.Context, client *redis.Client, channel, instanceID string, log logrus.FieldLogger) (*RedisBus, error) {
	ps := client.Subscribe(ctx, channel)
	// Wait for the subscription to be confirmed so no early publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis bus: subscribe %s: %w", channel, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		dispatcher: newDispatcher(instanceID, log),
		client:     client,
		channel:    channel,
		pubsub:     ps,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go b.loop(runCtx)
	return b, nil
}

func (b *RedisBus) loop(ctx context.Context) {
	defer close(b.done)
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var s Signal
			if err := json.Unmarshal([]byte(msg.Payload), &s); err != nil {
				b.log.WithError(err).Warn("redis bus: ignoring malformed signal")
				continue
			}
			b.deliver(s)
		}
	}
}

func (b *RedisBus) Emit(ctx context.Context, s Signal) error {
	data, err := json.Marshal(b.stamp(s))
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis bus: publish: %w", err)
	}
	return nil
}

func (b *RedisBus) Close() error {
	b.cancel()
	err := b.pubsub.Close()
	<-b.done
	b.closeSubs()
	return err
}
