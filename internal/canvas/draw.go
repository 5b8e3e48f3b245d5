package canvas

import (
	"fmt"
	"math"

	"github.com/gogpu/gg"

	"blackboard/internal/protocol"
)

// Stroke styling.
const (
	HighlighterAlpha = 0.35
	EraserMultiplier = 6.0
)

// DrawSegment applies one stroke segment. Only pen, highlighter and eraser
// draw segments; other tools are rejected.
func (s *Surface) DrawSegment(seg protocol.Segment) error {
	tool := seg.Tool.Canonical()
	if !tool.IsStroke() {
		return fmt.Errorf("draw segment: tool %q is not a stroke tool", tool)
	}

	width := s.lineWidth(seg.Thickness)
	color := gg.Hex(seg.Color)
	switch tool {
	case protocol.ToolHighlighter:
		color.A = HighlighterAlpha
	case protocol.ToolEraser:
		// The eraser paints the theme background so erased areas stay opaque.
		color = s.Background()
		width *= EraserMultiplier
	}

	s.dc.SetRGBA(color.R, color.G, color.B, color.A)
	if seg.Start == seg.End {
		s.dc.DrawCircle(seg.Start.X, seg.Start.Y, width/2)
		return s.dc.Fill()
	}
	s.dc.SetLineWidth(width)
	s.dc.SetLineCap(gg.LineCapRound)
	s.dc.SetLineJoin(gg.LineJoinRound)
	s.dc.DrawLine(seg.Start.X, seg.Start.Y, seg.End.X, seg.End.Y)
	return s.dc.Stroke()
}

// ShapeStyle is the stroke style of a rectangle or circle.
type ShapeStyle struct {
	Color     string
	Thickness float64
}

// PreviewShape replaces the overlay with a shape from anchor a to point b.
func (s *Surface) PreviewShape(tool protocol.Tool, a, b protocol.Point, style ShapeStyle) error {
	s.overlay.Clear()
	s.preview = true
	return s.strokeShape(s.overlay, tool, a, b, style)
}

// CommitShape drops the preview and draws the final shape on the surface once.
func (s *Surface) CommitShape(tool protocol.Tool, a, b protocol.Point, style ShapeStyle) error {
	s.ClearPreview()
	return s.strokeShape(s.dc, tool, a, b, style)
}

// ClearPreview discards the overlay.
func (s *Surface) ClearPreview() {
	if s.preview {
		s.overlay.Clear()
		s.preview = false
	}
}

// HasPreview reports whether a shape preview is pending.
func (s *Surface) HasPreview() bool { return s.preview }

func (s *Surface) strokeShape(dc *gg.Context, tool protocol.Tool, a, b protocol.Point, style ShapeStyle) error {
	dc.SetHexColor(style.Color)
	dc.SetLineWidth(s.lineWidth(style.Thickness))
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	switch tool.Canonical() {
	case protocol.ToolRect:
		x, y := math.Min(a.X, b.X), math.Min(a.Y, b.Y)
		dc.DrawRectangle(x, y, math.Abs(b.X-a.X), math.Abs(b.Y-a.Y))
	case protocol.ToolCircle:
		dc.DrawCircle(a.X, a.Y, math.Hypot(b.X-a.X, b.Y-a.Y))
	default:
		return fmt.Errorf("draw shape: tool %q is not a shape tool", tool)
	}
	return dc.Stroke()
}
