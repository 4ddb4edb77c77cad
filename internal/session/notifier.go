package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const authEventChannel = "auth_events"

// Notifier broadcasts auth events to every subscriber in this process.
// With redis configured, events travel through a pub/sub channel so that
// sign-ins and sign-outs made against any instance reach all of them;
// without redis it degrades to in-process fanout.
type Notifier struct {
	redis  *redis.Client
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewNotifier(redisClient *redis.Client, logger *zap.Logger) *Notifier {
	return &Notifier{
		redis:  redisClient,
		logger: logger,
		subs:   make(map[int]chan Event),
	}
}

// Start begins draining the redis subscription. No-op without redis.
func (n *Notifier) Start(ctx context.Context) {
	if n.redis == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})

	sub := n.redis.Subscribe(ctx, authEventChannel)
	go func() {
		defer close(n.done)
		defer sub.Close()
		channel := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-channel:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					n.logger.Warn("auth event decode failed", zap.Error(err))
					continue
				}
				n.deliver(event)
			}
		}
	}()
}

// Publish sends the event to all subscribers. Through redis when
// configured, directly otherwise.
func (n *Notifier) Publish(ctx context.Context, event Event) error {
	if n.redis == nil {
		n.deliver(event)
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.redis.Publish(ctx, authEventChannel, payload).Err()
}

// Subscribe registers a buffered event channel. Delivery never blocks:
// a slow consumer loses intermediate events, which is acceptable because
// every event carries the full session snapshot.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	channel := make(chan Event, 16)
	if n.closed {
		close(channel)
		return channel, func() {}
	}
	n.subs[id] = channel

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return channel, cancel
}

func (n *Notifier) deliver(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		select {
		case sub <- event:
		default:
		}
	}
}

func (n *Notifier) Close() {
	if n.cancel != nil {
		n.cancel()
		<-n.done
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, sub := range n.subs {
		delete(n.subs, id)
		close(sub)
	}
}
