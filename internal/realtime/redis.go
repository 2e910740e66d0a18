package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/oficios-registry/internal/slot"
)

// DefaultChannel is the Redis pub/sub channel used when none is configured.
const DefaultChannel = "registry:changes"

type envelope struct {
	Origin string      `json:"origin"`
	Change slot.Change `json:"change"`
}

// RedisBridge relays broker changes between instances sharing one Redis
// server. Messages carry the publishing instance id so a bridge never
// redelivers its own changes.
type RedisBridge struct {
	rdb     *redis.Client
	broker  *Broker
	channel string
	origin  string
	logger  *slog.Logger
}

// RedisBridgeOption configures a RedisBridge.
type RedisBridgeOption func(*RedisBridge)

// WithChannel overrides the pub/sub channel name.
func WithChannel(name string) RedisBridgeOption {
	return func(r *RedisBridge) {
		if name = strings.TrimSpace(name); name != "" {
			r.channel = name
		}
	}
}

// WithOrigin overrides the generated instance id.
func WithOrigin(origin string) RedisBridgeOption {
	return func(r *RedisBridge) {
		if origin != "" {
			r.origin = origin
		}
	}
}

// WithBridgeLogger sets the bridge logger.
func WithBridgeLogger(logger *slog.Logger) RedisBridgeOption {
	return func(r *RedisBridge) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRedisBridge wires rdb to broker. Call Run to start relaying inbound
// messages; outbound relaying starts once the bridge is set on the broker.
func NewRedisBridge(rdb *redis.Client, broker *Broker, opts ...RedisBridgeOption) *RedisBridge {
	r := &RedisBridge{
		rdb:     rdb,
		broker:  broker,
		channel: DefaultChannel,
		origin:  uuid.NewString(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Origin returns the instance id stamped on outbound messages.
func (r *RedisBridge) Origin() string {
	return r.origin
}

// Relay publishes change to the shared channel.
func (r *RedisBridge) Relay(ctx context.Context, change slot.Change) error {
	payload, err := r.encode(change)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, payload).Err()
}

// Run consumes the shared channel until ctx is cancelled, delivering changes
// from other instances to the local broker.
func (r *RedisBridge) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.InfoContext(ctx, "realtime bridge subscribed", "channel", r.channel, "origin", r.origin)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *RedisBridge) handle(ctx context.Context, payload string) {
	change, origin, err := r.decode(payload)
	if err != nil {
		r.logger.WarnContext(ctx, "realtime bridge dropped malformed message", "error", err)
		return
	}
	if origin == r.origin {
		return
	}
	r.broker.Deliver(change)
}

func (r *RedisBridge) encode(change slot.Change) (string, error) {
	raw, err := json.Marshal(envelope{Origin: r.origin, Change: change})
	if err != nil {
		return "", fmt.Errorf("encode change: %w", err)
	}
	return string(raw), nil
}

func (r *RedisBridge) decode(payload string) (slot.Change, string, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return slot.Change{}, "", fmt.Errorf("decode change: %w", err)
	}
	if _, err := slot.ParseChangeType(string(env.Change.Type)); err != nil {
		return slot.Change{}, "", err
	}
	return env.Change, env.Origin, nil
}
