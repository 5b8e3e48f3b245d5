// Package persist stores whiteboard rooms and bridges a live session to
// that storage.
//
// Records are written wholesale: every flush replaces the room's full page
// list. Backends:
//
//   - BadgerStore: embedded key-value store, used by the relay and as the
//     participant's local cache
//   - RemoteStore: the relay's REST rooms API, behind a circuit breaker
//   - TieredStore: remote first with a local cache fallback
package persist

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown rooms.
var ErrNotFound = errors.New("room not found")

// Record is one room's durable state.
type Record struct {
	RoomID    string    `json:"roomId"`
	Pages     []string  `json:"pages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Normalize guarantees at least one page.
func (r *Record) Normalize() {
	if len(r.Pages) == 0 {
		r.Pages = []string{""}
	}
}

// Store is a room record backend.
type Store interface {
	Get(ctx context.Context, roomID string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
}

// Catalog is a Store that can also enumerate and remove rooms.
type Catalog interface {
	Store
	List(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, roomID string) (bool, error)
	Delete(ctx context.Context, roomID string) error
}
