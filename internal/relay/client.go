package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"blackboard/internal/bus"
	"blackboard/internal/logging"
	"blackboard/internal/metrics"
	"blackboard/internal/protocol"
)

// Client is one participant connection.
type Client struct {
	// ID is the participant identity; one participant may hold several
	// connections.
	ID    string
	Color string

	connID  string
	conn    *websocket.Conn
	room    *Room
	hub     *Hub
	send    chan []byte
	limiter *rate.Limiter

	closed bool
	mu     sync.Mutex
}

func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close stops the write pump, which closes the connection.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump pumps frames from the send queue to the websocket connection.
func (c *Client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps frames from the websocket connection to the room bus.
func (c *Client) readPump(b *bus.Bus) {
	log := logging.With().Str("room", c.room.ID).Str("participant", c.ID).Logger()
	defer func() {
		c.close()
		c.hub.leave(c)
		c.conn.Close()
		metrics.RelayConnections.Dec()
		log.Info().Msg("participant left room")
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				metrics.RecordDrop(metrics.DropOversized)
				log.Warn().Int64("limit", cfg.MaxMessageSize).Msg("frame exceeds read limit, disconnecting")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure):
				log.Warn().Err(err).Msg("websocket error")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.RecordDrop(metrics.DropRateLimited)
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			metrics.RecordDrop(metrics.DropInvalid)
			log.Debug().Err(err).Msg("dropping invalid frame")
			continue
		}
		if err := b.Publish(c.room.ID, c.connID, data); err != nil {
			metrics.RecordDrop(metrics.DropPublishFailed)
			log.Warn().Err(err).Str("kind", string(msg.Kind)).Msg("publish failed")
			continue
		}
		metrics.RecordFrame(string(msg.Kind), len(data))
	}
}
