package persist

import (
	"context"
	"errors"
)

// TieredStore reads and writes the remote store, keeping a local copy of
// every room it sees. When the remote is unavailable, reads fall back to
// the local copy.
type TieredStore struct {
	remote Store
	local  Store
}

// NewTieredStore layers remote over local.
func NewTieredStore(remote, local Store) *TieredStore {
	return &TieredStore{remote: remote, local: local}
}

// Get prefers the remote record and refreshes the local copy with it.
func (s *TieredStore) Get(ctx context.Context, roomID string) (*Record, error) {
	rec, err := s.remote.Get(ctx, roomID)
	if err == nil {
		_ = s.local.Put(ctx, rec)
		return rec, nil
	}
	local, lerr := s.local.Get(ctx, roomID)
	if lerr == nil {
		return local, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	return nil, err
}

// Put writes the local copy and the remote, returning both errors joined.
func (s *TieredStore) Put(ctx context.Context, rec *Record) error {
	lerr := s.local.Put(ctx, rec)
	rerr := s.remote.Put(ctx, rec)
	return errors.Join(rerr, lerr)
}
