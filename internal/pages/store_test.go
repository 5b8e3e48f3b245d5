package pages

import (
	"errors"
	"testing"
)

func blank(s *Store, i int) bool {
	data, err := s.Snapshot(i)
	return err == nil && data == Blank
}

func TestNewHasOneBlankPage(t *testing.T) {
	s := New()
	if s.Len() != 1 || s.Current() != 0 || !blank(s, 0) {
		t.Fatalf("New() = len %d current %d blank %v", s.Len(), s.Current(), blank(s, 0))
	}
	if s.Limit() != DefaultLimit {
		t.Errorf("Limit() = %d, want %d", s.Limit(), DefaultLimit)
	}
}

func TestLoad(t *testing.T) {
	s := New()
	s.Load([]string{"a", "b", "c"})
	s.SetCurrent(2)
	s.Load(nil)
	if s.Len() != 1 || s.Current() != 0 {
		t.Errorf("Load(nil): len %d current %d, want 1 0", s.Len(), s.Current())
	}

	src := []string{"x", "y"}
	s.Load(src)
	src[0] = "mutated"
	if got, _ := s.Snapshot(0); got != "x" {
		t.Errorf("Load kept a reference to the caller's slice: %q", got)
	}

	small := NewLimited(2)
	small.Load([]string{"a", "b", "c"})
	if small.Len() != 2 {
		t.Errorf("Load past the limit: len %d, want 2", small.Len())
	}
}

func TestSetCurrentClamps(t *testing.T) {
	s := New()
	s.Load([]string{"a", "b", "c"})
	tests := []struct {
		in, want int
	}{
		{1, 1},
		{-5, 0},
		{3, 2},
		{100, 2},
		{0, 0},
	}
	for _, tt := range tests {
		if got := s.SetCurrent(tt.in); got != tt.want || s.Current() != tt.want {
			t.Errorf("SetCurrent(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAppendBlank(t *testing.T) {
	s := New()
	s.Load([]string{"a", "b"})
	for n := 2; n < 6; n++ {
		idx, err := s.AppendBlank()
		if err != nil {
			t.Fatalf("AppendBlank() error = %v", err)
		}
		if s.Len() != n+1 {
			t.Fatalf("Len() = %d, want %d", s.Len(), n+1)
		}
		if idx != n || s.Current() != n || !blank(s, n) {
			t.Fatalf("AppendBlank(): idx %d current %d blank %v", idx, s.Current(), blank(s, n))
		}
	}
}

func TestAppendBlankKeepCursor(t *testing.T) {
	s := New()
	idx, err := s.AppendBlankKeepCursor()
	if err != nil || idx != 1 || s.Current() != 0 || s.Len() != 2 {
		t.Errorf("AppendBlankKeepCursor(): idx %d current %d len %d err %v", idx, s.Current(), s.Len(), err)
	}
}

func TestLimit(t *testing.T) {
	s := NewLimited(3)
	for range 2 {
		if _, err := s.AppendBlank(); err != nil {
			t.Fatalf("AppendBlank() error = %v", err)
		}
	}
	if idx, err := s.AppendBlank(); !errors.Is(err, ErrFull) || idx != 2 || s.Len() != 3 {
		t.Errorf("AppendBlank() at the limit = %d, %v; len %d", idx, err, s.Len())
	}
	if _, err := s.AppendBlankKeepCursor(); !errors.Is(err, ErrFull) {
		t.Errorf("AppendBlankKeepCursor() at the limit error = %v, want ErrFull", err)
	}
	if err := s.Replace(3, "x"); !errors.Is(err, ErrFull) {
		t.Errorf("Replace(3) at the limit error = %v, want ErrFull", err)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestReplace(t *testing.T) {
	s := New()
	if err := s.Replace(0, "zero"); err != nil {
		t.Fatal(err)
	}
	if err := s.Replace(1, "one"); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d after Replace(1), want 2", s.Len())
	}
	for i, want := range []string{"zero", "one"} {
		if got, _ := s.Snapshot(i); got != want {
			t.Errorf("page %d = %q, want %q", i, got, want)
		}
	}
	if s.Current() != 0 {
		t.Errorf("Replace moved the cursor to %d", s.Current())
	}
	for _, i := range []int{-1, 3, 1_000_000} {
		if err := s.Replace(i, "x"); !errors.Is(err, ErrIndex) {
			t.Errorf("Replace(%d) error = %v, want ErrIndex", i, err)
		}
	}
	if s.Len() != 2 {
		t.Errorf("rejected Replace grew the store to %d pages", s.Len())
	}
}

func TestClear(t *testing.T) {
	s := New()
	s.Load([]string{"a", "b"})
	if err := s.Clear(1); err != nil {
		t.Fatal(err)
	}
	if !blank(s, 1) || blank(s, 0) {
		t.Error("Clear(1) blanked the wrong page")
	}
	if err := s.Clear(2); !errors.Is(err, ErrIndex) {
		t.Errorf("Clear(2) error = %v, want ErrIndex", err)
	}
}

func TestPagesIsACopy(t *testing.T) {
	s := New()
	p := s.Pages()
	p[0] = "changed"
	if !blank(s, 0) {
		t.Error("Pages() exposed internal storage")
	}
}

func TestSnapshotOutOfRange(t *testing.T) {
	s := New()
	if _, err := s.Snapshot(1); !errors.Is(err, ErrIndex) {
		t.Errorf("Snapshot(1) error = %v, want ErrIndex", err)
	}
}
