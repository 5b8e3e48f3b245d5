// Package pages holds a room's ordered page snapshots and the current page cursor.
package pages

import (
	"errors"
	"fmt"
)

var (
	// ErrIndex is returned for indices outside the store.
	ErrIndex = errors.New("page index out of range")
	// ErrFull is returned when a store already holds its page limit.
	ErrFull = errors.New("page limit reached")
)

// Blank is the snapshot of a page with nothing drawn on it.
const Blank = ""

// DefaultLimit is the page limit of New.
const DefaultLimit = 500

// Store is an ordered, never empty sequence of at most Limit page snapshots.
// It is not safe for concurrent use.
type Store struct {
	pages   []string
	current int
	limit   int
}

// New returns a store holding one blank page, limited to DefaultLimit pages.
func New() *Store {
	return NewLimited(DefaultLimit)
}

// NewLimited returns a store holding one blank page and at most limit pages.
// A limit below one means DefaultLimit.
func NewLimited(limit int) *Store {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Store{pages: []string{Blank}, limit: limit}
}

// Limit is the maximum number of pages.
func (s *Store) Limit() int { return s.limit }

// Load replaces every page and resets the cursor to the first page.
// An empty sequence loads as one blank page; pages past the limit are dropped.
func (s *Store) Load(pages []string) {
	if len(pages) == 0 {
		s.pages = []string{Blank}
	} else {
		s.pages = append([]string(nil), pages[:min(len(pages), s.limit)]...)
	}
	s.current = 0
}

// Len is the number of pages, always at least one.
func (s *Store) Len() int { return len(s.pages) }

// Current is the index of the displayed page.
func (s *Store) Current() int { return s.current }

// SetCurrent moves the cursor, clamping into [0, Len()-1], and returns the
// resulting index.
func (s *Store) SetCurrent(i int) int {
	s.current = max(0, min(i, len(s.pages)-1))
	return s.current
}

// Snapshot returns one page's snapshot.
func (s *Store) Snapshot(i int) (string, error) {
	if i < 0 || i >= len(s.pages) {
		return "", fmt.Errorf("%w: %d of %d", ErrIndex, i, len(s.pages))
	}
	return s.pages[i], nil
}

// CurrentSnapshot returns the displayed page's snapshot.
func (s *Store) CurrentSnapshot() string {
	return s.pages[s.current]
}

// Replace overwrites one page. Index Len() appends the page, so a peer's
// page can be stored before its page-add arrives; anything further out is
// rejected with ErrIndex.
func (s *Store) Replace(i int, imageData string) error {
	if i < 0 || i > len(s.pages) {
		return fmt.Errorf("%w: %d of %d", ErrIndex, i, len(s.pages))
	}
	if i == len(s.pages) {
		if err := s.grow(); err != nil {
			return err
		}
	}
	s.pages[i] = imageData
	return nil
}

// Clear blanks one page.
func (s *Store) Clear(i int) error {
	if i < 0 || i >= len(s.pages) {
		return fmt.Errorf("%w: %d of %d", ErrIndex, i, len(s.pages))
	}
	s.pages[i] = Blank
	return nil
}

func (s *Store) grow() error {
	if len(s.pages) >= s.limit {
		return fmt.Errorf("%w: %d", ErrFull, s.limit)
	}
	s.pages = append(s.pages, Blank)
	return nil
}

// AppendBlank adds a blank page, makes it current and returns its index.
func (s *Store) AppendBlank() (int, error) {
	if err := s.grow(); err != nil {
		return s.current, err
	}
	s.current = len(s.pages) - 1
	return s.current, nil
}

// AppendBlankKeepCursor adds a blank page without moving the cursor.
func (s *Store) AppendBlankKeepCursor() (int, error) {
	if err := s.grow(); err != nil {
		return len(s.pages) - 1, err
	}
	return len(s.pages) - 1, nil
}

// Pages returns a copy of every snapshot.
func (s *Store) Pages() []string {
	return append([]string(nil), s.pages...)
}
