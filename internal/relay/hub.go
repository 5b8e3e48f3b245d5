// Package relay is the broadcast channel between whiteboard participants.
//
// Participants connect to /ws/:roomId. Every frame a participant sends is
// validated, published to the room bus and delivered to every other
// participant of the room, on this node or any other node sharing the bus.
// The relay never interprets drawing state; durable room state lives behind
// the REST rooms API.
package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"blackboard/internal/bus"
	"blackboard/internal/config"
	"blackboard/internal/logging"
	"blackboard/internal/metrics"
)

// Participant colors for visual distinction in participant lists.
var participantColors = []string{
	"#e74c3c", "#3498db", "#2ecc71", "#f39c12",
	"#9b59b6", "#1abc9c", "#e67e22", "#34495e",
}

// Participant describes a connected client.
type Participant struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

// Room is the set of local clients of one whiteboard room.
type Room struct {
	ID      string
	clients map[*Client]bool
	cancel  context.CancelFunc
	mu      sync.RWMutex
}

// Hub manages all rooms and clients of this node.
type Hub struct {
	cfg   config.RelayConfig
	bus   *bus.Bus
	rooms map[string]*Room
	mu    sync.Mutex

	colorIndex int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub publishing through b.
func NewHub(cfg config.RelayConfig, b *bus.Bus) *Hub {
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4 << 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:    cfg,
		bus:    b,
		rooms:  make(map[string]*Room),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Serve blocks until ctx is done, then disconnects every client.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()
	h.Shutdown()
	return ctx.Err()
}

func (h *Hub) String() string {
	return "relay-hub"
}

// Shutdown stops every room subscription and closes every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.RLock()
		for c := range r.clients {
			c.close()
		}
		r.mu.RUnlock()
	}
	h.cancel()
}

func (h *Hub) nextColor() string {
	color := participantColors[h.colorIndex%len(participantColors)]
	h.colorIndex++
	return color
}

// join adds c to roomID, subscribing the room to the bus when c is its
// first local client.
func (h *Hub) join(roomID string, c *Client) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx.Err() != nil {
		return nil, fmt.Errorf("relay is shutting down")
	}

	r, ok := h.rooms[roomID]
	if !ok {
		ctx, cancel := context.WithCancel(h.ctx)
		frames, err := h.bus.Subscribe(ctx, roomID)
		if err != nil {
			cancel()
			return nil, err
		}
		r = &Room{ID: roomID, clients: make(map[*Client]bool), cancel: cancel}
		h.rooms[roomID] = r
		metrics.RelayRooms.Inc()
		go r.deliver(frames)
		logging.Debug().Str("room", roomID).Msg("room opened")
	}

	c.Color = h.nextColor()
	c.room = r
	r.mu.Lock()
	r.clients[c] = true
	r.mu.Unlock()
	return r, nil
}

// leave removes c and closes the room once it is empty.
func (h *Hub) leave(c *Client) {
	r := c.room
	if r == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	r.mu.Lock()
	delete(r.clients, c)
	empty := len(r.clients) == 0
	r.mu.Unlock()

	if empty && h.rooms[r.ID] == r {
		delete(h.rooms, r.ID)
		r.cancel()
		metrics.RelayRooms.Dec()
		logging.Debug().Str("room", r.ID).Msg("room closed")
	}
}

// Room returns the local room with the given id, or nil.
func (h *Hub) Room(roomID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[roomID]
}

// RoomCount returns the number of rooms with local clients.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Participants lists the room's local clients ordered by id.
func (r *Room) Participants() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]Participant, 0, len(r.clients))
	for c := range r.clients {
		users = append(users, Participant{ID: c.ID, Color: c.Color})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (r *Room) deliver(frames <-chan bus.Frame) {
	for f := range frames {
		r.Broadcast(f.Payload, f.SenderID)
	}
}

// Broadcast sends frame to every client in the room except the sender
// connection. A client whose send queue is full is disconnected.
func (r *Room) Broadcast(frame []byte, senderConn string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.clients {
		if c.connID == senderConn {
			continue
		}
		if !c.enqueue(frame) {
			metrics.RecordDrop(metrics.DropSlowConsumer)
			logging.Warn().Str("room", r.ID).Str("participant", c.ID).Msg("dropping slow participant")
			c.close()
		}
	}
}
