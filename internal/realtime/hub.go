package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrDeliveryTimeout = errors.New("live delivery timed out")

// Envelope is the frame every connection receives.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client is one live connection's outbound queue.
type Client struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewClient(buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{send: make(chan []byte, buffer), done: make(chan struct{})}
}

func (c *Client) Messages() <-chan []byte { return c.send }
func (c *Client) Done() <-chan struct{} { return c.done }

// Close stops delivery to the client. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Hub maps room keys to the clients joined to them. Rooms are created on first
// join and dropped when the last client leaves.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger.With("component", "realtime"),
	}
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

// LeaveAll removes c from every room and closes it.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	for room := range h.rooms {
		h.leaveLocked(c, room)
	}
	h.mu.Unlock()
	c.Close()
}

func (h *Hub) leaveLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// EmitToRoom queues the event on every client in room and returns how many
// accepted it. A client whose queue stays full past timeout is skipped and
// the call reports ErrDeliveryTimeout alongside the partial count.
func (h *Hub) EmitToRoom(ctx context.Context, room, event string, payload any, timeout time.Duration) (int, error) {
	frame, err := encode(event, payload)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	delivered, timedOut := 0, 0
	for _, c := range targets {
		select {
		case c.send <- frame:
			delivered++
			continue
		default:
		}

		select {
		case c.send <- frame:
			delivered++
		case <-c.done:
		case <-ctx.Done():
			timedOut++
		}
	}

	if timedOut > 0 {
		return delivered, fmt.Errorf("%w: room %s, %d of %d connections", ErrDeliveryTimeout, room, timedOut, len(targets))
	}
	return delivered, nil
}

func encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		data = b
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
