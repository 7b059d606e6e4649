package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const roomChannelPrefix = "rooms:"

// Emitter delivers an event to the connections a process holds for a room.
// realtime.Hub satisfies it.
type Emitter interface {
	EmitToRoom(ctx context.Context, room, event string, payload any, timeout time.Duration) (int, error)
}

type relayMessage struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Timeout time.Duration   `json:"timeout_ns,omitempty"`
}

// RoomRelay fans room events out through Redis pub/sub so that a socket held
// by any API replica can be reached from any process. A relay without a local
// emitter only publishes.
type RoomRelay struct {
	rdb    *redis.Client
	local  Emitter
	logger *slog.Logger
}

func NewRoomRelay(rdb *redis.Client, local Emitter, logger *slog.Logger) *RoomRelay {
	return &RoomRelay{rdb: rdb, local: local, logger: logger.With("component", "room_relay")}
}

// EmitToRoom publishes the event on rooms:<room>. The returned count is the
// number of subscribed processes, not sockets; per-socket delivery happens in
// each subscriber's Run loop under the same timeout.
func (r *RoomRelay) EmitToRoom(ctx context.Context, room, event string, payload any, timeout time.Duration) (int, error) {
	body, err := encodeRelayMessage(room, event, payload, timeout)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n, err := r.rdb.Publish(ctx, roomChannelPrefix+room, body).Result()
	if err != nil {
		return 0, fmt.Errorf("publish to %s: %w", room, err)
	}
	return int(n), nil
}

// Run subscribes to every room channel and hands messages to the local
// emitter until ctx is done.
func (r *RoomRelay) Run(ctx context.Context) error {
	if r.local == nil {
		return fmt.Errorf("room relay has no local emitter")
	}

	sub := r.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe room channels: %w", err)
	}
	r.logger.Info("room relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Channel, msg.Payload)
		}
	}
}

func (r *RoomRelay) deliver(ctx context.Context, channel, body string) {
	m, err := decodeRelayMessage(body)
	if err != nil {
		r.logger.Warn("dropping malformed relay message", "channel", channel, "err", err)
		return
	}
	if want := strings.TrimPrefix(channel, roomChannelPrefix); want != m.Room {
		r.logger.Warn("relay room mismatch", "channel", channel, "room", m.Room)
		return
	}

	n, err := r.local.EmitToRoom(ctx, m.Room, m.Event, m.Payload, m.Timeout)
	if err != nil {
		r.logger.Warn("local delivery failed", "room", m.Room, "event", m.Event, "delivered", n, "err", err)
		return
	}
	if n > 0 {
		r.logger.Debug("relayed event", "room", m.Room, "event", m.Event, "delivered", n)
	}
}

func encodeRelayMessage(room, event string, payload any, timeout time.Duration) ([]byte, error) {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(relayMessage{Room: room, Event: event, Payload: raw, Timeout: timeout})
}

func decodeRelayMessage(body string) (relayMessage, error) {
	var m relayMessage
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return m, err
	}
	if m.Room == "" || m.Event == "" {
		return m, fmt.Errorf("relay message missing room or event")
	}
	if m.Timeout <= 0 {
		m.Timeout = 5 * time.Second
	}
	return m, nil
}
