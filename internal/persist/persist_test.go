package persist

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

func newTestBadger(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db)
}

func TestBadgerStore(t *testing.T) {
	ctx := context.Background()
	s := newTestBadger(t)

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(unknown) error = %v, want ErrNotFound", err)
	}

	rec := &Record{RoomID: "r1", Pages: []string{"data:image/jpeg;base64,AA", ""}, UpdatedAt: time.Unix(1700000000, 0).UTC()}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Pages) != 2 || got.Pages[0] != rec.Pages[0] || !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("Get() = %+v", got)
	}

	// Wholesale overwrite.
	if err := s.Put(ctx, &Record{RoomID: "r1", Pages: []string{"x"}}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, "r1")
	if len(got.Pages) != 1 || got.Pages[0] != "x" {
		t.Errorf("after overwrite Pages = %v", got.Pages)
	}

	if err := s.Put(ctx, &Record{RoomID: "r2"}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, "r2")
	if len(got.Pages) != 1 {
		t.Errorf("empty record not normalized: %v", got.Pages)
	}

	ids, err := s.List(ctx)
	if err != nil || len(ids) != 2 {
		t.Errorf("List() = %v, %v", ids, err)
	}
	if ok, _ := s.Exists(ctx, "r2"); !ok {
		t.Error("Exists(r2) = false")
	}
	if err := s.Delete(ctx, "r2"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, "r2"); ok {
		t.Error("Exists(r2) = true after Delete")
	}
	if err := s.Put(ctx, &Record{}); err == nil {
		t.Error("Put without room id succeeded")
	}
}

// roomsAPI is a minimal stand-in for the relay's rooms endpoints.
type roomsAPI struct {
	mu    sync.Mutex
	rooms map[string]Record
	fail  bool
	auth  string
	calls int
}

func (a *roomsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.auth = r.Header.Get("Authorization")
	if a.fail {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/rooms":
		rec := Record{RoomID: "new-room", Pages: []string{""}}
		a.rooms[rec.RoomID] = rec
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rec)
	case r.Method == http.MethodGet:
		rec, ok := a.rooms[id]
		if !ok {
			http.Error(w, `{"error":"room not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(rec)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		var rec Record
		if err := json.Unmarshal(body, &rec); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		a.rooms[id] = rec
		_ = json.NewEncoder(w).Encode(rec)
	default:
		http.Error(w, "no route", http.StatusMethodNotAllowed)
	}
}

func (a *roomsAPI) snapshot() (calls int, auth string, rooms map[string]Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rooms = make(map[string]Record, len(a.rooms))
	for k, v := range a.rooms {
		rooms[k] = v
	}
	return a.calls, a.auth, rooms
}

func newRemote(t *testing.T, api *roomsAPI) *RemoteStore {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewRemoteStore(RemoteConfig{BaseURL: srv.URL + "/api/", Token: "tok", FailureThreshold: 2, OpenTimeout: time.Minute})
}

func TestRemoteStore(t *testing.T) {
	ctx := context.Background()
	api := &roomsAPI{rooms: map[string]Record{}}
	s := newRemote(t, api)

	created, err := s.Create(ctx)
	if err != nil || created.RoomID != "new-room" || len(created.Pages) != 1 {
		t.Fatalf("Create() = %+v, %v", created, err)
	}
	if _, auth, _ := api.snapshot(); auth != "Bearer tok" {
		t.Errorf("Authorization = %q", auth)
	}
	if err := s.Put(ctx, &Record{RoomID: "r1", Pages: []string{"a", "b"}}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, "r1")
	if err != nil || len(got.Pages) != 2 {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
	// Not-found answers must not trip the breaker.
	for i := 0; i < 5; i++ {
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
		}
	}
	if _, err := s.Get(ctx, "r1"); err != nil {
		t.Errorf("breaker tripped by not-found responses: %v", err)
	}
}

func TestRemoteStoreBreakerOpens(t *testing.T) {
	ctx := context.Background()
	api := &roomsAPI{rooms: map[string]Record{}, fail: true}
	s := newRemote(t, api)

	for i := 0; i < 2; i++ {
		if _, err := s.Get(ctx, "r1"); err == nil {
			t.Fatal("expected server error")
		}
	}
	before, _, _ := api.snapshot()
	_, err := s.Get(ctx, "r1")
	if err == nil {
		t.Fatal("expected breaker error")
	}
	if after, _, _ := api.snapshot(); after != before {
		t.Errorf("open breaker still reached the server")
	}
}

func TestTieredStoreFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	api := &roomsAPI{rooms: map[string]Record{}}
	remote := newRemote(t, api)
	local := newTestBadger(t)
	s := NewTieredStore(remote, local)

	if err := s.Put(ctx, &Record{RoomID: "r1", Pages: []string{"p"}}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, _, rooms := api.snapshot(); rooms["r1"].RoomID != "r1" {
		t.Error("remote not written")
	}

	api.mu.Lock()
	api.fail = true
	api.mu.Unlock()
	got, err := s.Get(ctx, "r1")
	if err != nil || got.Pages[0] != "p" {
		t.Fatalf("Get() with remote down = %+v, %v", got, err)
	}
	if err := s.Put(ctx, &Record{RoomID: "r1", Pages: []string{"q"}}); err == nil {
		t.Error("Put() hid the remote failure")
	}
	got, _ = local.Get(ctx, "r1")
	if got.Pages[0] != "q" {
		t.Error("local copy not written while remote is down")
	}
	if _, err := s.Get(ctx, "never"); err == nil {
		t.Error("Get(never) succeeded")
	}
}

// gatedStore blocks the first Put until released.
type gatedStore struct {
	mu    sync.Mutex
	puts  []Record
	gate  chan struct{}
	first chan struct{}
	once  sync.Once
	err   error
}

func newGatedStore() *gatedStore {
	return &gatedStore{gate: make(chan struct{}), first: make(chan struct{})}
}

func (s *gatedStore) Get(_ context.Context, roomID string) (*Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return nil, ErrNotFound
}

func (s *gatedStore) Put(_ context.Context, rec *Record) error {
	s.once.Do(func() {
		close(s.first)
		<-s.gate
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, *rec)
	return s.err
}

func (s *gatedStore) snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.puts...)
}

func TestBridgeCoalescesFlushes(t *testing.T) {
	store := newGatedStore()
	b := NewBridge(store, time.Second)

	b.Flush("r1", []string{"v1"})
	<-store.first
	for _, v := range []string{"v2", "v3", "v4"} {
		b.Flush("r1", []string{v})
	}
	close(store.gate)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	puts := store.snapshot()
	if len(puts) != 2 {
		t.Fatalf("puts = %d, want 2 (first write and the coalesced latest)", len(puts))
	}
	if puts[1].Pages[0] != "v4" || puts[1].RoomID != "r1" || puts[1].UpdatedAt.IsZero() {
		t.Errorf("last put = %+v, want v4", puts[1])
	}
}

func TestBridgeFlushDoesNotBlock(t *testing.T) {
	store := newGatedStore()
	b := NewBridge(store, time.Second)
	b.Flush("r1", []string{"a"})
	<-store.first

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Flush("r1", []string{"b"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Flush blocked behind a slow store")
	}
	close(store.gate)
	_ = b.Close()
	b.Flush("r1", []string{"after-close"})
	for _, p := range store.snapshot() {
		if p.Pages[0] == "after-close" {
			t.Error("flush after close was written")
		}
	}
}

func TestBridgeLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestBadger(t)
	_ = s.Put(ctx, &Record{RoomID: "r1", Pages: []string{"a", "b"}})
	b := NewBridge(s, time.Second)
	defer b.Close()

	pages, found := b.Load(ctx, "r1")
	if !found || len(pages) != 2 {
		t.Errorf("Load(r1) = %v, %v", pages, found)
	}
	if _, found := b.Load(ctx, "unknown"); found {
		t.Error("Load(unknown) found = true")
	}

	failing := newGatedStore()
	failing.err = errors.New("disk on fire")
	fb := NewBridge(failing, time.Second)
	defer fb.Close()
	if _, found := fb.Load(ctx, "r1"); found {
		t.Error("failed load reported found")
	}
}

func TestBridgeFlushFailureIsSwallowed(t *testing.T) {
	store := newGatedStore()
	store.err = errors.New("quota exceeded")
	close(store.gate)
	b := NewBridge(store, time.Second)
	b.Flush("r1", []string{"a"})
	_ = b.Close()
	if len(store.snapshot()) != 1 {
		t.Errorf("puts = %d, want 1 attempt", len(store.snapshot()))
	}
}
