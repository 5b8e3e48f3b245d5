package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"blackboard/internal/logging"
)

// Bridge connects a session to a Store. Loads are best effort and flushes
// are fire-and-forget: a background writer keeps only the latest pending
// page list per room, so a burst of commits costs one write.
type Bridge struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string][]string
	closed  bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// NewBridge starts a bridge over store. timeout bounds each write.
func NewBridge(store Store, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b := &Bridge{
		store:   store,
		timeout: timeout,
		now:     time.Now,
		log:     logging.With().Str("component", "persistence").Logger(),
		pending: make(map[string][]string),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Load returns a room's pages. Unknown rooms and load failures both report
// found=false so the caller starts with a blank page.
func (b *Bridge) Load(ctx context.Context, roomID string) ([]string, bool) {
	rec, err := b.store.Get(ctx, roomID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.log.Warn().Err(err).Str("room", roomID).Msg("load failed, starting blank")
		}
		return nil, false
	}
	return rec.Pages, true
}

// Flush queues a wholesale write of the room's pages and returns at once.
func (b *Bridge) Flush(roomID string, pages []string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.log.Debug().Str("room", roomID).Msg("flush after close dropped")
		return
	}
	b.pending[roomID] = append([]string(nil), pages...)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Close writes whatever is pending and stops the writer.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.quit)
	<-b.done
	return nil
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case <-b.wake:
			b.writePending()
		case <-b.quit:
			b.writePending()
			return
		}
	}
}

func (b *Bridge) writePending() {
	b.mu.Lock()
	batch := b.pending
	b.pending = make(map[string][]string)
	b.mu.Unlock()

	for roomID, pages := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		err := b.store.Put(ctx, &Record{RoomID: roomID, Pages: pages, UpdatedAt: b.now().UTC()})
		cancel()
		if err != nil {
			// No retry queue: the next commit flushes again.
			b.log.Warn().Err(err).Str("room", roomID).Msg("flush failed")
			continue
		}
		b.log.Debug().Str("room", roomID).Int("pages", len(pages)).Msg("flushed room")
	}
}
