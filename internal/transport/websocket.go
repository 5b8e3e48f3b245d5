// Package transport provides the participant side of room channels.
//
// WebSocket connects to a relay node; Bus joins the room bus directly and
// is used by participants running inside a relay process and in tests.
// Neither reconnects: a dropped connection leaves the session without peers
// until it joins again.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"blackboard/internal/logging"
	"blackboard/internal/protocol"
	"blackboard/internal/session"
)

var (
	// ErrClosed is returned by Broadcast after Leave or a lost connection.
	ErrClosed = errors.New("channel closed")
	// ErrBackpressure is returned when the send queue is full; the frame is dropped.
	ErrBackpressure = errors.New("send queue full")
)

// WebSocket dials a relay's /ws endpoint.
type WebSocket struct {
	// URL is the relay's websocket root, e.g. ws://host:8080/ws.
	URL string
	// Token is sent as a bearer token when set.
	Token string
	// UserID is passed as the userId query parameter when no token is used.
	UserID     string
	SendBuffer int
	WriteWait  time.Duration
	Dialer     *websocket.Dialer
}

var _ session.Transport = (*WebSocket)(nil)

// Join implements session.Transport.
func (t *WebSocket) Join(ctx context.Context, roomID string, handler session.Handler) (session.Channel, error) {
	u, err := url.Parse(strings.TrimRight(t.URL, "/") + "/" + url.PathEscape(roomID))
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	if t.UserID != "" {
		q := u.Query()
		q.Set("userId", t.UserID)
		u.RawQuery = q.Encode()
	}
	header := http.Header{}
	if t.Token != "" {
		header.Set("Authorization", "Bearer "+t.Token)
	}
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial relay: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	buf := t.SendBuffer
	if buf <= 0 {
		buf = 256
	}
	wait := t.WriteWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	c := &wsChannel{
		conn:      conn,
		handler:   handler,
		send:      make(chan []byte, buf),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		writeWait: wait,
		log:       logging.With().Str("component", "ws-transport").Str("room", roomID).Logger(),
	}
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

type wsChannel struct {
	conn      *websocket.Conn
	handler   session.Handler
	send      chan []byte
	quit      chan struct{}
	done      chan struct{}
	once      sync.Once
	writeWait time.Duration
	log       zerolog.Logger
}

func (c *wsChannel) Broadcast(msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.quit:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.quit:
		return ErrClosed
	default:
		return ErrBackpressure
	}
}

// Leave closes the connection. Frames still queued are dropped; once Leave
// returns nothing more is written.
func (c *wsChannel) Leave() error {
	c.shutdown()
	<-c.done
	return nil
}

func (c *wsChannel) shutdown() {
	c.once.Do(func() { close(c.quit) })
}

func (c *wsChannel) writeLoop() {
	defer close(c.done)
	defer c.conn.Close()
	for {
		select {
		case frame := <-c.send:
			select {
			case <-c.quit:
				c.writeClose()
				return
			default:
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn().Err(err).Msg("write to relay failed")
				c.shutdown()
				return
			}
		case <-c.quit:
			c.writeClose()
			return
		}
	}
}

func (c *wsChannel) writeClose() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeWait))
}

func (c *wsChannel) readLoop() {
	defer c.shutdown()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.quit:
			default:
				c.log.Warn().Err(err).Msg("relay connection lost")
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping invalid frame from relay")
			continue
		}
		c.handler(msg)
	}
}
