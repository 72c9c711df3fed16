package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rentwise/rentwise/pkg/logger"
	"github.com/rentwise/rentwise/pkg/metrics"
)

// DefaultRelayChannelPrefix prefixes the per-user pub/sub channel.
const DefaultRelayChannelPrefix = "rentwise:realtime:user:"

const (
	relayPublishTimeout = 2 * time.Second
	// DefaultRelayQueueSize bounds events waiting to be published.
	DefaultRelayQueueSize = 256
)

// LocalBroadcaster delivers a message to the connections held by this process.
type LocalBroadcaster interface {
	Broadcast(userID string, message Message) int
}

type relayEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type relayOutbound struct {
	userID  string
	event   string
	payload []byte
}

// RedisRelay fans events out across server instances. EmitToUser queues the
// event for the user's channel, Run publishes the queue and re-broadcasts
// everything received to local connections. Delivery stays best-effort: events
// that do not fit in the queue are dropped.
type RedisRelay struct {
	client *redis.Client
	local  LocalBroadcaster
	prefix string
	queue  chan relayOutbound
	log    *zap.Logger

	subscribed atomic.Bool
}

// RelayOption customises a RedisRelay.
type RelayOption func(*RedisRelay)

// WithRelayQueueSize sets how many events may wait for publication.
func WithRelayQueueSize(size int) RelayOption {
	return func(r *RedisRelay) {
		if size > 0 {
			r.queue = make(chan relayOutbound, size)
		}
	}
}

// NewRedisRelay constructs a relay over client delivering into local.
func NewRedisRelay(client *redis.Client, local LocalBroadcaster, channelPrefix string, opts ...RelayOption) (*RedisRelay, error) {
	if client == nil {
		return nil, errors.New("realtime relay: redis client is required")
	}
	if local == nil {
		return nil, errors.New("realtime relay: local broadcaster is required")
	}
	if strings.TrimSpace(channelPrefix) == "" {
		channelPrefix = DefaultRelayChannelPrefix
	}
	relay := &RedisRelay{
		client: client,
		local:  local,
		prefix: channelPrefix,
		queue:  make(chan relayOutbound, DefaultRelayQueueSize),
		log:    logger.WithModule("realtime.relay"),
	}
	for _, opt := range opts {
		opt(relay)
	}
	return relay, nil
}

// EmitToUser queues the event for every instance and returns without waiting
// on Redis. A full queue drops the event.
func (r *RedisRelay) EmitToUser(userID, event string, data any) {
	if strings.TrimSpace(userID) == "" {
		return
	}

	envelope := relayEnvelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			metrics.RelayMessages.WithLabelValues("failed").Inc()
			r.log.Warn("encode relay payload failed", logger.UserID(userID), zap.String("event", event), zap.Error(err))
			return
		}
		envelope.Data = raw
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		metrics.RelayMessages.WithLabelValues("failed").Inc()
		r.log.Warn("encode relay envelope failed", logger.UserID(userID), zap.Error(err))
		return
	}

	select {
	case r.queue <- relayOutbound{userID: userID, event: event, payload: payload}:
	default:
		metrics.RelayMessages.WithLabelValues("dropped").Inc()
		r.log.Warn("relay queue full; event dropped", logger.UserID(userID), zap.String("event", event))
	}
}

// Run publishes queued events, subscribes to every user channel and broadcasts
// received events locally until ctx is cancelled. ready, when non-nil, is
// closed once the subscription is live.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	ctx, cancel := context.WithCancel(ctx)
	var publisher sync.WaitGroup
	publisher.Add(1)
	go func() {
		defer publisher.Done()
		r.publishQueued(ctx)
	}()
	defer publisher.Wait()
	defer cancel()

	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	if ready != nil {
		close(ready)
	}
	r.log.Info("relay subscribed", zap.String("pattern", r.prefix+"*"))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.dispatch(msg)
		}
	}
}

// Subscribed reports whether Run holds its pattern subscription.
func (r *RedisRelay) Subscribed() bool {
	return r.subscribed.Load()
}

// Pending returns the number of events waiting to be published.
func (r *RedisRelay) Pending() int {
	return len(r.queue)
}

func (r *RedisRelay) publishQueued(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-r.queue:
			r.publish(ctx, out)
		}
	}
}

func (r *RedisRelay) publish(ctx context.Context, out relayOutbound) {
	ctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.prefix+out.userID, out.payload).Err(); err != nil {
		metrics.RelayMessages.WithLabelValues("failed").Inc()
		r.log.Warn("relay publish failed", logger.UserID(out.userID), zap.String("event", out.event), zap.Error(err))
		return
	}
	metrics.RelayMessages.WithLabelValues("published").Inc()
}

func (r *RedisRelay) dispatch(msg *redis.Message) {
	userID := strings.TrimPrefix(msg.Channel, r.prefix)
	if userID == "" || userID == msg.Channel {
		return
	}

	var envelope relayEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
		metrics.RelayMessages.WithLabelValues("failed").Inc()
		r.log.Warn("decode relay envelope failed", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	metrics.RelayMessages.WithLabelValues("received").Inc()

	message := Message{Event: envelope.Event}
	if len(envelope.Data) > 0 {
		message.Data = envelope.Data
	}
	r.local.Broadcast(userID, message)
}
