package session

import (
	"blackboard/internal/pages"
	"blackboard/internal/protocol"
)

// receive applies one inbound message if it belongs to the current join.
func (s *Session) receive(gen uint64, msg protocol.Message) {
	if err := protocol.Validate(&msg); err != nil {
		s.log.Debug().Err(err).Msg("dropping invalid inbound message")
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	out := s.applyLocked(msg)
	ch := s.syncedChannelLocked()
	s.mu.Unlock()

	s.send(ch, out...)
}

func (s *Session) applyLocked(msg protocol.Message) []protocol.Message {
	current := s.store.Current()
	page := msg.Page()

	switch msg.Kind {
	case protocol.KindSegment:
		if page != current {
			return nil
		}
		seg, err := msg.Segment()
		if err == nil {
			err = s.surface.DrawSegment(seg)
		}
		if err != nil {
			s.log.Debug().Err(err).Msg("inbound segment not drawn")
		}

	case protocol.KindImage:
		var err error
		if page == current {
			err = s.surface.Restore(msg.ImageData)
		} else {
			err = s.surface.CheckSnapshot(msg.ImageData)
		}
		if err != nil {
			s.log.Warn().Err(err).Int("page", page).Msg("inbound image failed to decode")
			return nil
		}
		if err := s.store.Replace(page, msg.ImageData); err != nil {
			s.log.Debug().Err(err).Int("page", page).Msg("inbound image not stored")
		}

	case protocol.KindClear:
		if err := s.store.Replace(page, pages.Blank); err != nil {
			s.log.Debug().Err(err).Int("page", page).Msg("inbound clear ignored")
			return nil
		}
		if page == current {
			s.surface.Clear()
		}

	case protocol.KindPageNav:
		s.store.SetCurrent(page)
		s.repaintLocked()
		if s.cfg.SyncOnNavigate && s.state == Synced {
			return []protocol.Message{protocol.SyncRequestMessage()}
		}

	case protocol.KindPageAdd:
		if _, err := s.store.AppendBlankKeepCursor(); err != nil {
			s.log.Debug().Err(err).Msg("inbound page-add ignored")
		}

	case protocol.KindSyncRequest:
		if s.state != Synced {
			return nil
		}
		snap, err := s.surface.Snapshot(s.cfg.SyncQuality)
		if err != nil {
			s.log.Warn().Err(err).Msg("snapshot for sync reply failed")
			return nil
		}
		return []protocol.Message{protocol.ImageMessage(current, snap)}
	}
	return nil
}
