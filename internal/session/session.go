// Package session implements a participant's side of the whiteboard sync
// protocol: it owns the canvas surface and page store, turns local drawing
// into broadcasts and applies what peers broadcast.
//
// Consistency is last full snapshot wins. Segments are fire-and-forget and
// only painted on the page they target; image messages replace a page
// wholesale and are the convergence mechanism. A joiner asks for the current
// state with sync-request and any synced peer answers on the shared channel.
//
// One mutex serializes local input and inbound application. Broadcasts are
// sent after it is released, so a slow or failing channel never blocks drawing.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"blackboard/internal/canvas"
	"blackboard/internal/logging"
	"blackboard/internal/pages"
	"blackboard/internal/protocol"
)

// ErrNotJoined is returned by operations that need a room.
var ErrNotJoined = errors.New("session not joined to a room")

// State is the connection state of a session.
type State int

const (
	Disconnected State = iota
	Joining
	Synced
)

func (s State) String() string {
	switch s {
	case Joining:
		return "joining"
	case Synced:
		return "synced"
	}
	return "disconnected"
}

// Channel is a joined room broadcast channel. It never delivers a
// participant's own broadcasts back to it.
type Channel interface {
	Broadcast(msg protocol.Message) error
	Leave() error
}

// Handler receives inbound messages, in per-sender order.
type Handler func(protocol.Message)

// Transport opens room channels.
type Transport interface {
	Join(ctx context.Context, roomID string, handler Handler) (Channel, error)
}

// Persistence loads and stores a room's pages. Load reports found=false for
// unknown rooms and for load errors alike. Flush must not block.
type Persistence interface {
	Load(ctx context.Context, roomID string) (pages []string, found bool)
	Flush(roomID string, pages []string)
}

// Config tunes a session.
type Config struct {
	Canvas canvas.Config
	// CommitQuality is the JPEG quality of image broadcasts after a local commit.
	CommitQuality float64
	// SyncQuality is the quality of answers to sync-request.
	SyncQuality float64
	// StoreQuality is the quality of snapshots kept in the page store and persisted.
	StoreQuality float64
	// SyncOnNavigate sends a sync-request after every page change.
	SyncOnNavigate bool
	// MaxPages caps the page store; peers cannot grow it further.
	MaxPages int
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Canvas:        canvas.Config{Width: canvas.DefaultWidth, Height: canvas.DefaultHeight, Theme: canvas.ThemeGreen, ThicknessScale: 1},
		CommitQuality: 0.35,
		SyncQuality:   0.4,
		StoreQuality:  0.6,
		MaxPages:      pages.DefaultLimit,
	}
}

// Session is one participant's whiteboard.
type Session struct {
	cfg       Config
	transport Transport
	persist   Persistence
	log       zerolog.Logger

	mu      sync.Mutex
	surface *canvas.Surface
	store   *pages.Store
	state   State
	roomID  string
	channel Channel
	gen     uint64
}

// New creates a disconnected session with one blank page. persist may be nil.
func New(cfg Config, transport Transport, persist Persistence) *Session {
	def := DefaultConfig()
	if cfg.CommitQuality <= 0 {
		cfg.CommitQuality = def.CommitQuality
	}
	if cfg.SyncQuality <= 0 {
		cfg.SyncQuality = def.SyncQuality
	}
	if cfg.StoreQuality <= 0 {
		cfg.StoreQuality = def.StoreQuality
	}
	return &Session{
		cfg:       cfg,
		transport: transport,
		persist:   persist,
		log:       logging.With().Str("component", "session").Logger(),
		surface:   canvas.New(cfg.Canvas),
		store:     pages.NewLimited(cfg.MaxPages),
	}
}

// State returns the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomID returns the joined room, or "" when disconnected.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// VirtualSize returns the surface resolution.
func (s *Session) VirtualSize() (int, int) {
	return s.surface.Width(), s.surface.Height()
}

// Join loads the room's persisted pages, subscribes to its channel and asks
// peers for their current state. Joining while in another room leaves it first.
func (s *Session) Join(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errors.New("join: empty room id")
	}
	if s.transport == nil {
		return errors.New("join: no transport configured")
	}
	if err := s.Leave(); err != nil {
		s.log.Warn().Err(err).Msg("leaving previous room failed")
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = Joining
	s.roomID = roomID
	s.mu.Unlock()

	var loaded []string
	if s.persist != nil {
		if p, found := s.persist.Load(ctx, roomID); found {
			loaded = p
		}
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return fmt.Errorf("join %s: superseded", roomID)
	}
	s.store.Load(loaded)
	s.repaintLocked()
	s.mu.Unlock()

	ch, err := s.transport.Join(ctx, roomID, func(msg protocol.Message) { s.receive(gen, msg) })
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.state = Disconnected
			s.roomID = ""
		}
		s.mu.Unlock()
		return fmt.Errorf("join %s: %w", roomID, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = ch.Leave()
		return fmt.Errorf("join %s: superseded", roomID)
	}
	s.channel = ch
	s.state = Synced
	s.mu.Unlock()

	s.log.Info().Str("room", roomID).Int("pages", len(loaded)).Msg("joined room")
	s.send(ch, protocol.SyncRequestMessage())
	return nil
}

// Leave unsubscribes from the current room. Local pages are kept. Leaving
// while disconnected is a no-op.
func (s *Session) Leave() error {
	s.mu.Lock()
	ch, room := s.channel, s.roomID
	s.gen++
	s.channel = nil
	s.state = Disconnected
	s.roomID = ""
	s.mu.Unlock()

	if ch == nil {
		return nil
	}
	s.log.Info().Str("room", room).Msg("left room")
	if err := ch.Leave(); err != nil {
		return fmt.Errorf("leave %s: %w", room, err)
	}
	return nil
}

// CurrentPage returns the displayed page index.
func (s *Session) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Current()
}

// PageCount returns the number of pages.
func (s *Session) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Len()
}

// Pages returns a copy of the stored page snapshots.
func (s *Session) Pages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Pages()
}

// Image returns a copy of the committed surface pixels.
func (s *Session) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Image()
}

// ExportPNG writes the displayed page, previews included, as PNG.
func (s *Session) ExportPNG(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.ExportPNG(w)
}

// ExportPage writes page i as PNG. The displayed page is exported live,
// previews included; other pages are rendered from their snapshots.
func (s *Session) ExportPage(i int, w io.Writer) error {
	s.mu.Lock()
	if i == s.store.Current() {
		defer s.mu.Unlock()
		return s.surface.ExportPNG(w)
	}
	data, err := s.store.Snapshot(i)
	theme := s.surface.Theme()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	cfg := s.cfg.Canvas
	cfg.Theme = theme
	return canvas.ExportSnapshot(cfg, data, w)
}

// repaintLocked redraws the surface from the current page's snapshot.
func (s *Session) repaintLocked() {
	data := s.store.CurrentSnapshot()
	if err := s.surface.Restore(data); err != nil {
		s.log.Warn().Err(err).Int("page", s.store.Current()).Msg("stored page failed to decode, showing blank")
		s.surface.Clear()
	}
}

// send broadcasts on ch. Failures are logged, never returned.
func (s *Session) send(ch Channel, msgs ...protocol.Message) {
	if ch == nil {
		return
	}
	for _, msg := range msgs {
		if err := ch.Broadcast(msg); err != nil {
			s.log.Warn().Err(err).Str("kind", string(msg.Kind)).Msg("broadcast failed")
		}
	}
}
