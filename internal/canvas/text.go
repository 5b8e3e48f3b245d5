package canvas

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"

	"blackboard/internal/protocol"
)

// Sticky note geometry.
const (
	StickySize       = 220.0
	StickyFill       = "#fef08a"
	StickyInk        = "#1e293b"
	StickyFontSize   = 18.0
	StickyLineBudget = 20
	StickyLineHeight = 25.0
	StickyTextOffset = 40.0
)

// Align is the horizontal anchor of stamped text.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

func (a Align) anchor() float64 {
	switch a {
	case AlignCenter:
		return 0.5
	case AlignRight:
		return 1
	}
	return 0
}

// TextStyle styles free-form text. Size is in virtual units.
type TextStyle struct {
	Color string
	Size  float64
	Align Align
}

var (
	boldOnce   sync.Once
	boldSource *text.FontSource
	boldErr    error
)

func boldFace(size float64) (text.Face, error) {
	boldOnce.Do(func() {
		boldSource, boldErr = text.NewFontSource(gobold.TTF)
	})
	if boldErr != nil {
		return nil, fmt.Errorf("load bold font: %w", boldErr)
	}
	return boldSource.Face(size), nil
}

// StampText draws text with its baseline at pos. Newlines start new lines.
func (s *Surface) StampText(pos protocol.Point, value string, style TextStyle) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if style.Size <= 0 {
		style.Size = 14
	}
	face, err := boldFace(style.Size)
	if err != nil {
		return err
	}
	s.dc.SetFont(face)
	s.dc.SetHexColor(style.Color)
	y := pos.Y
	for _, line := range strings.Split(value, "\n") {
		s.dc.DrawStringAnchored(line, pos.X, y, style.Align.anchor(), 0)
		y += style.Size * 1.25
	}
	return nil
}

// StampSticky draws a sticky note centred on pos with the wrapped text on it.
func (s *Surface) StampSticky(pos protocol.Point, value string) error {
	half := StickySize / 2
	s.dc.SetHexColor(StickyFill)
	s.dc.DrawRectangle(pos.X-half, pos.Y-half, StickySize, StickySize)
	if err := s.dc.Fill(); err != nil {
		return fmt.Errorf("fill sticky: %w", err)
	}

	face, err := boldFace(StickyFontSize)
	if err != nil {
		return err
	}
	s.dc.SetFont(face)
	s.dc.SetHexColor(StickyInk)
	y := pos.Y - StickyTextOffset
	for _, line := range WrapSticky(value) {
		s.dc.DrawStringAnchored(line, pos.X, y, 0.5, 0)
		y += StickyLineHeight
	}
	return nil
}

// WrapSticky splits text into sticky note lines. Words accumulate on a line
// until it exceeds StickyLineBudget characters, then the line is emitted.
func WrapSticky(value string) []string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Split(value, " ") {
		line.WriteString(word)
		line.WriteByte(' ')
		if utf8.RuneCountInString(line.String()) > StickyLineBudget {
			lines = append(lines, strings.TrimSpace(line.String()))
			line.Reset()
		}
	}
	if rest := strings.TrimSpace(line.String()); rest != "" {
		lines = append(lines, rest)
	}
	return lines
}
