package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"blackboard/internal/logging"
	"blackboard/internal/metrics"
)

const roomKeyPrefix = "room:"

// OpenBadger opens a badger database at path, or in memory.
func OpenBadger(path string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(logging.NewBadgerAdapter("room-store"))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return db, nil
}

// BadgerStore keeps room records in badger under "room:<id>".
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open database. The caller owns db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Get loads a room.
func (s *BadgerStore) Get(_ context.Context, roomID string) (rec *Record, err error) {
	defer func(start time.Time) {
		if errors.Is(err, ErrNotFound) {
			metrics.RecordStoreOp("get", time.Since(start), nil)
			return
		}
		metrics.RecordStoreOp("get", time.Since(start), err)
	}(time.Now())

	rec = &Record{}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(roomKeyPrefix + roomID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get room: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, rec)
		})
	})
	if err != nil {
		return nil, err
	}
	rec.Normalize()
	return rec, nil
}

// Put replaces a room.
func (s *BadgerStore) Put(_ context.Context, rec *Record) (err error) {
	defer func(start time.Time) { metrics.RecordStoreOp("put", time.Since(start), err) }(time.Now())

	if rec.RoomID == "" {
		return errors.New("put room: empty room id")
	}
	rec.Normalize()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(roomKeyPrefix+rec.RoomID), data)
	})
}

var _ Catalog = (*BadgerStore)(nil)

// Exists reports whether a room is stored.
func (s *BadgerStore) Exists(ctx context.Context, roomID string) (bool, error) {
	_, err := s.Get(ctx, roomID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	}
	return false, err
}

// Delete removes a room. Deleting an unknown room is not an error.
func (s *BadgerStore) Delete(_ context.Context, roomID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(roomKeyPrefix + roomID))
	})
}

// List returns every stored room id.
func (s *BadgerStore) List(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(roomKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), roomKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return ids, nil
}
