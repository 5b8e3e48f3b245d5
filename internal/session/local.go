package session

import (
	"image"

	"blackboard/internal/canvas"
	"blackboard/internal/protocol"
)

type pendingFlush struct {
	roomID string
	pages  []string
}

// syncedChannelLocked returns the channel to broadcast on, or nil when the
// session is not synced.
func (s *Session) syncedChannelLocked() Channel {
	if s.state != Synced {
		return nil
	}
	return s.channel
}

func (s *Session) flushLocked() *pendingFlush {
	if s.roomID == "" || s.persist == nil {
		return nil
	}
	return &pendingFlush{roomID: s.roomID, pages: s.store.Pages()}
}

func (s *Session) flush(f *pendingFlush) {
	if f != nil {
		s.persist.Flush(f.roomID, f.pages)
	}
}

// commitLocked stores the current page and prepares its image broadcast.
func (s *Session) commitLocked() []protocol.Message {
	page := s.store.Current()
	stored, err := s.surface.Snapshot(s.cfg.StoreQuality)
	if err != nil {
		s.log.Warn().Err(err).Int("page", page).Msg("snapshot for page store failed")
		return nil
	}
	_ = s.store.Replace(page, stored)

	if s.state != Synced {
		return nil
	}
	wire, err := s.surface.Snapshot(s.cfg.CommitQuality)
	if err != nil {
		s.log.Warn().Err(err).Int("page", page).Msg("snapshot for broadcast failed")
		return nil
	}
	return []protocol.Message{protocol.ImageMessage(page, wire)}
}

// finish releases the lock, then broadcasts and flushes.
func (s *Session) finish(out []protocol.Message, f *pendingFlush) {
	ch := s.syncedChannelLocked()
	s.mu.Unlock()
	s.send(ch, out...)
	s.flush(f)
}

// DrawSegment paints one stroke segment on the current page and broadcasts it.
func (s *Session) DrawSegment(seg protocol.Segment) error {
	s.mu.Lock()
	seg.PageIndex = s.store.Current()
	if err := s.surface.DrawSegment(seg); err != nil {
		s.mu.Unlock()
		return err
	}
	ch := s.syncedChannelLocked()
	s.mu.Unlock()

	s.send(ch, protocol.SegmentMessage(seg))
	return nil
}

// PreviewShape redraws the local shape preview. Nothing is broadcast.
func (s *Session) PreviewShape(tool protocol.Tool, a, b protocol.Point, style canvas.ShapeStyle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.PreviewShape(tool, a, b, style)
}

// CommitShape draws the final shape locally. Peers get it with the next Commit.
func (s *Session) CommitShape(tool protocol.Tool, a, b protocol.Point, style canvas.ShapeStyle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.CommitShape(tool, a, b, style)
}

// StampText draws free text locally.
func (s *Session) StampText(pos protocol.Point, text string, style canvas.TextStyle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.StampText(pos, text, style)
}

// StampSticky draws a sticky note locally.
func (s *Session) StampSticky(pos protocol.Point, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.StampSticky(pos, text)
}

// Commit snapshots the current page into the page store, broadcasts it as
// an image and hands the pages to persistence.
func (s *Session) Commit() error {
	s.mu.Lock()
	out := s.commitLocked()
	s.finish(out, s.flushLocked())
	return nil
}

// Blit draws an external raster on the current page, scaled to fit, and
// commits. fillBackground paints the theme background first.
func (s *Session) Blit(img image.Image, fillBackground bool) error {
	s.mu.Lock()
	if fillBackground {
		s.surface.FillBackground()
	}
	s.surface.BlitImage(img, canvas.FitContain)
	out := s.commitLocked()
	s.finish(out, s.flushLocked())
	return nil
}

// GoToPage commits the current page, moves to page i (clamped) and tells
// peers. It returns the page now displayed.
func (s *Session) GoToPage(i int) int {
	s.mu.Lock()
	out := s.commitLocked()
	idx := s.store.SetCurrent(i)
	s.repaintLocked()
	out = append(out, protocol.PageNavMessage(idx))
	if s.cfg.SyncOnNavigate {
		out = append(out, protocol.SyncRequestMessage())
	}
	s.finish(out, s.flushLocked())
	return idx
}

// AddPage commits the current page, appends a blank page and moves to it.
// Peers receive page-add followed by page-nav. At the page limit nothing is
// appended and pages.ErrFull is returned with the current page index.
func (s *Session) AddPage() (int, error) {
	s.mu.Lock()
	out := s.commitLocked()
	idx, err := s.store.AppendBlank()
	if err != nil {
		s.finish(out, s.flushLocked())
		return idx, err
	}
	s.repaintLocked()
	out = append(out, protocol.PageAddMessage(), protocol.PageNavMessage(idx))
	s.finish(out, s.flushLocked())
	return idx, nil
}

// ClearPage blanks the current page locally and on peers.
func (s *Session) ClearPage() {
	s.mu.Lock()
	page := s.store.Current()
	_ = s.store.Clear(page)
	s.surface.Clear()
	s.finish([]protocol.Message{protocol.ClearMessage(page)}, s.flushLocked())
}

// RequestSync asks peers to broadcast their current page.
func (s *Session) RequestSync() error {
	s.mu.Lock()
	ch := s.syncedChannelLocked()
	s.mu.Unlock()
	if ch == nil {
		return ErrNotJoined
	}
	s.send(ch, protocol.SyncRequestMessage())
	return nil
}

// SetTheme switches the local background and repaints. Themes are not shared.
func (s *Session) SetTheme(t canvas.Theme) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.SetTheme(t)
	s.repaintLocked()
}
