package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"blackboard/internal/bus"
	"blackboard/internal/logging"
	"blackboard/internal/protocol"
	"blackboard/internal/session"
)

// Bus joins rooms directly on a room bus.
type Bus struct {
	bus *bus.Bus
}

var _ session.Transport = (*Bus)(nil)

// NewBus returns a transport over b.
func NewBus(b *bus.Bus) *Bus {
	return &Bus{bus: b}
}

// Join implements session.Transport. Every join gets its own sender id, so
// frames published through the returned channel are never delivered back to it.
func (t *Bus) Join(ctx context.Context, roomID string, handler session.Handler) (session.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(context.Background())
	frames, err := t.bus.Subscribe(subCtx, roomID)
	if err != nil {
		cancel()
		return nil, err
	}
	c := &busChannel{
		bus:     t.bus,
		roomID:  roomID,
		id:      uuid.NewString(),
		cancel:  cancel,
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go c.collect(frames)
	go c.dispatch()
	return c, nil
}

// busChannel queues inbound frames without bound; the bus subscription never
// waits on the handler.
type busChannel struct {
	bus     *bus.Bus
	roomID  string
	id      string
	cancel  context.CancelFunc
	handler session.Handler

	mu    sync.Mutex
	queue [][]byte
	wake  chan struct{}
	done  chan struct{}
}

func (c *busChannel) Broadcast(msg protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.bus.Publish(c.roomID, c.id, frame)
}

func (c *busChannel) Leave() error {
	c.cancel()
	return nil
}

func (c *busChannel) collect(frames <-chan bus.Frame) {
	defer close(c.done)
	for f := range frames {
		if f.SenderID == c.id {
			continue
		}
		c.mu.Lock()
		c.queue = append(c.queue, f.Payload)
		c.mu.Unlock()
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

func (c *busChannel) dispatch() {
	log := logging.With().Str("component", "bus-transport").Str("room", c.roomID).Logger()
	for {
		select {
		case <-c.wake:
		case <-c.done:
			return
		}
		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			frame := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()

			select {
			case <-c.done:
				return
			default:
			}
			msg, err := protocol.Decode(frame)
			if err != nil {
				log.Debug().Err(err).Msg("dropping invalid frame")
				continue
			}
			c.handler(msg)
		}
	}
}
