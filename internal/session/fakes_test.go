package session

import (
	"context"
	"errors"
	"sync"

	"blackboard/internal/protocol"
)

// hub is an in-memory, synchronous room channel that never echoes to the sender.
type hub struct {
	mu      sync.Mutex
	rooms   map[string]map[*member]struct{}
	joinErr error
}

func newHub() *hub {
	return &hub{rooms: make(map[string]map[*member]struct{})}
}

type member struct {
	hub     *hub
	room    string
	handler Handler
	sendErr error
}

func (h *hub) Join(_ context.Context, roomID string, handler Handler) (Channel, error) {
	if h.joinErr != nil {
		return nil, h.joinErr
	}
	m := &member{hub: h, room: roomID, handler: handler}
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*member]struct{})
	}
	h.rooms[roomID][m] = struct{}{}
	h.mu.Unlock()
	return m, nil
}

func (h *hub) members(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

func (m *member) Broadcast(msg protocol.Message) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	m.hub.mu.Lock()
	var peers []*member
	for p := range m.hub.rooms[m.room] {
		if p != m {
			peers = append(peers, p)
		}
	}
	m.hub.mu.Unlock()

	for _, p := range peers {
		decoded, err := protocol.Decode(frame)
		if err != nil {
			return err
		}
		p.handler(decoded)
	}
	return nil
}

func (m *member) Leave() error {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	if _, ok := m.hub.rooms[m.room][m]; !ok {
		return errors.New("not a member")
	}
	delete(m.hub.rooms[m.room], m)
	return nil
}

// observer joins a room directly and records everything it receives.
type observer struct {
	mu   sync.Mutex
	msgs []protocol.Message
	ch   Channel
}

func observe(h *hub, roomID string) *observer {
	o := &observer{}
	ch, _ := h.Join(context.Background(), roomID, func(msg protocol.Message) {
		o.mu.Lock()
		o.msgs = append(o.msgs, msg)
		o.mu.Unlock()
	})
	o.ch = ch
	return o
}

func (o *observer) kinds() []protocol.Kind {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]protocol.Kind, len(o.msgs))
	for i, m := range o.msgs {
		out[i] = m.Kind
	}
	return out
}

func (o *observer) last(kind protocol.Kind) (protocol.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].Kind == kind {
			return o.msgs[i], true
		}
	}
	return protocol.Message{}, false
}

func (o *observer) reset() {
	o.mu.Lock()
	o.msgs = nil
	o.mu.Unlock()
}

// memoryPersistence records flushes synchronously.
type memoryPersistence struct {
	mu      sync.Mutex
	rooms   map[string][]string
	flushes int
}

func newMemoryPersistence() *memoryPersistence {
	return &memoryPersistence{rooms: make(map[string][]string)}
}

func (p *memoryPersistence) Load(_ context.Context, roomID string) ([]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pages, ok := p.rooms[roomID]
	return append([]string(nil), pages...), ok
}

func (p *memoryPersistence) Flush(roomID string, pages []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[roomID] = append([]string(nil), pages...)
	p.flushes++
}

func (p *memoryPersistence) get(roomID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rooms[roomID]
}
