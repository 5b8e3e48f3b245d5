// Package input turns pointer and keyboard events into drawing operations.
//
// Pointer coordinates arrive in display pixels and are rescaled per axis into
// the board's virtual space before anything is drawn, so the same relative
// position on any screen lands on the same virtual point.
package input

import (
	"strings"

	"blackboard/internal/canvas"
	"blackboard/internal/protocol"
)

// TextSizeFactor scales tool thickness into free text size.
const TextSizeFactor = 7

// Board is what the controller draws on. The sync session implements it:
// every call paints locally and handles broadcasting.
type Board interface {
	CurrentPage() int
	DrawSegment(seg protocol.Segment) error
	PreviewShape(tool protocol.Tool, a, b protocol.Point, style canvas.ShapeStyle) error
	CommitShape(tool protocol.Tool, a, b protocol.Point, style canvas.ShapeStyle) error
	StampText(pos protocol.Point, text string, style canvas.TextStyle) error
	StampSticky(pos protocol.Point, text string) error
	Commit() error
}

// Viewport is the display size in pixels.
type Viewport struct {
	Width  float64
	Height float64
}

// Settings are the active tool settings.
type Settings struct {
	Tool      protocol.Tool
	Color     string
	Thickness float64
	TextAlign canvas.Align
}

// DefaultSettings is a white pen, matching the default green board.
func DefaultSettings() Settings {
	return Settings{Tool: protocol.ToolPen, Color: "#ffffff", Thickness: 4}
}

// TextCapture is a pending text or sticky note anchored at a virtual point.
type TextCapture struct {
	Pos    protocol.Point
	Sticky bool
}

// Controller tracks one participant's pointer. It is not safe for concurrent use.
type Controller struct {
	board    Board
	virtualW float64
	virtualH float64
	viewport Viewport
	settings Settings

	active  bool
	anchor  protocol.Point
	last    protocol.Point
	pending *TextCapture
}

// New creates a controller for a board of the given virtual size. The
// viewport starts equal to the virtual size.
func New(board Board, virtualW, virtualH int) *Controller {
	return &Controller{
		board:    board,
		virtualW: float64(virtualW),
		virtualH: float64(virtualH),
		viewport: Viewport{Width: float64(virtualW), Height: float64(virtualH)},
		settings: DefaultSettings(),
	}
}

// Resize records a new display size. Strokes in progress keep their virtual geometry.
func (c *Controller) Resize(vp Viewport) {
	if vp.Width > 0 && vp.Height > 0 {
		c.viewport = vp
	}
}

// ToVirtual rescales a display point into virtual coordinates, each axis
// by virtual/display.
func (c *Controller) ToVirtual(x, y float64) protocol.Point {
	return protocol.Point{
		X: x * c.virtualW / c.viewport.Width,
		Y: y * c.virtualH / c.viewport.Height,
	}
}

// Settings returns the active settings.
func (c *Controller) Settings() Settings { return c.settings }

// SetTool switches tools. Any pending text capture is dropped.
func (c *Controller) SetTool(t protocol.Tool) {
	c.settings.Tool = t.Canonical()
	c.pending = nil
}

// SetColor sets the stroke and text color.
func (c *Controller) SetColor(color string) { c.settings.Color = color }

// SetThickness sets the nominal stroke thickness.
func (c *Controller) SetThickness(th float64) {
	if th > 0 {
		c.settings.Thickness = th
	}
}

// SetTextAlign sets the alignment of free text.
func (c *Controller) SetTextAlign(a canvas.Align) { c.settings.TextAlign = a }

// Drawing reports whether a stroke or shape is in progress.
func (c *Controller) Drawing() bool { return c.active }

// Pending returns the open text capture, if any.
func (c *Controller) Pending() *TextCapture { return c.pending }

// PointerDown starts a stroke or shape at a display point. For text tools it
// opens and returns a text capture instead.
func (c *Controller) PointerDown(x, y float64) *TextCapture {
	p := c.ToVirtual(x, y)
	if c.settings.Tool.IsText() {
		c.pending = &TextCapture{Pos: p, Sticky: c.settings.Tool == protocol.ToolSticky}
		return c.pending
	}
	c.active = true
	c.anchor, c.last = p, p
	return nil
}

// PointerMove extends the active stroke by one segment, or redraws the
// shape preview.
func (c *Controller) PointerMove(x, y float64) error {
	if !c.active {
		return nil
	}
	p := c.ToVirtual(x, y)
	tool := c.settings.Tool
	switch {
	case tool.IsStroke():
		seg := protocol.Segment{
			Tool:      tool,
			Color:     c.settings.Color,
			Thickness: c.settings.Thickness,
			Start:     c.last,
			End:       p,
			PageIndex: c.board.CurrentPage(),
		}
		c.last = p
		return c.board.DrawSegment(seg)
	case tool.IsShape():
		c.last = p
		return c.board.PreviewShape(tool, c.anchor, p, c.shapeStyle())
	}
	return nil
}

// PointerUp ends the gesture. Shapes are committed once; every gesture ends
// with a local commit of the page.
func (c *Controller) PointerUp(x, y float64) error {
	if !c.active {
		return nil
	}
	c.active = false
	p := c.ToVirtual(x, y)
	if tool := c.settings.Tool; tool.IsShape() {
		if err := c.board.CommitShape(tool, c.anchor, p, c.shapeStyle()); err != nil {
			return err
		}
	}
	return c.board.Commit()
}

// Abort drops the gesture in progress without committing.
func (c *Controller) Abort() {
	c.active = false
	c.pending = nil
}

// SubmitText stamps the pending capture and commits. Blank text just closes
// the capture. It reports whether anything was stamped.
func (c *Controller) SubmitText(value string) (bool, error) {
	capture := c.pending
	c.pending = nil
	if capture == nil || strings.TrimSpace(value) == "" {
		return false, nil
	}
	var err error
	if capture.Sticky {
		err = c.board.StampSticky(capture.Pos, value)
	} else {
		err = c.board.StampText(capture.Pos, value, canvas.TextStyle{
			Color: c.settings.Color,
			Size:  c.settings.Thickness * TextSizeFactor,
			Align: c.settings.TextAlign,
		})
	}
	if err != nil {
		return false, err
	}
	return true, c.board.Commit()
}

// CancelText closes the pending capture without drawing.
func (c *Controller) CancelText() { c.pending = nil }

func (c *Controller) shapeStyle() canvas.ShapeStyle {
	return canvas.ShapeStyle{Color: c.settings.Color, Thickness: c.settings.Thickness}
}
