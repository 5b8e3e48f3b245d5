// Package protocol defines the whiteboard wire envelope exchanged between
// participants of a room.
//
// Every frame is one JSON object with a "kind" discriminator:
//
//	{"kind":"segment","tool":"pen","color":"#000000","thickness":4,"start":{"x":100,"y":100},"end":{"x":200,"y":100},"pageIndex":0}
//	{"kind":"image","pageIndex":0,"imageData":"data:image/jpeg;base64,..."}
//	{"kind":"clear","pageIndex":0}
//	{"kind":"page-nav","pageIndex":1}
//	{"kind":"page-add"}
//	{"kind":"sync-request"}
//
// Messages never carry a room id; the channel they travel on scopes them.
package protocol

// Kind discriminates the message union.
type Kind string

const (
	KindSegment     Kind = "segment"
	KindImage       Kind = "image"
	KindClear       Kind = "clear"
	KindPageNav     Kind = "page-nav"
	KindPageAdd     Kind = "page-add"
	KindSyncRequest Kind = "sync-request"
)

// Tool is a drawing tool.
type Tool string

const (
	ToolPen         Tool = "pen"
	ToolHighlighter Tool = "highlighter"
	ToolEraser      Tool = "eraser"
	ToolRect        Tool = "rect"
	ToolCircle      Tool = "circle"
	ToolText        Tool = "text"
	ToolSticky      Tool = "sticky"
)

var toolAliases = map[Tool]Tool{
	"rectangle":   ToolRect,
	"sticky-note": ToolSticky,
}

// Canonical maps accepted aliases onto their canonical tool name.
func (t Tool) Canonical() Tool {
	if c, ok := toolAliases[t]; ok {
		return c
	}
	return t
}

// IsStroke reports whether the tool draws incremental segments.
func (t Tool) IsStroke() bool {
	switch t.Canonical() {
	case ToolPen, ToolHighlighter, ToolEraser:
		return true
	}
	return false
}

// IsShape reports whether the tool draws an anchored preview shape.
func (t Tool) IsShape() bool {
	switch t.Canonical() {
	case ToolRect, ToolCircle:
		return true
	}
	return false
}

// IsText reports whether the tool opens a text capture on pointer down.
func (t Tool) IsText() bool {
	switch t.Canonical() {
	case ToolText, ToolSticky:
		return true
	}
	return false
}

// MaxPageIndex is the largest page index a frame may carry.
const MaxPageIndex = 9999

// Point is a position in virtual canvas coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is one slice of a freehand stroke.
type Segment struct {
	Tool      Tool
	Color     string
	Thickness float64
	Start     Point
	End       Point
	PageIndex int
}

// Message is the flat wire envelope. Fields not used by Kind are omitted.
type Message struct {
	Kind      Kind    `json:"kind" validate:"required,oneof=segment image clear page-nav page-add sync-request"`
	Tool      Tool    `json:"tool,omitempty" validate:"omitempty,oneof=pen highlighter eraser rect circle text sticky"`
	Color     string  `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Thickness float64 `json:"thickness,omitempty" validate:"gte=0,lte=512"`
	Start     *Point  `json:"start,omitempty"`
	End       *Point  `json:"end,omitempty"`
	PageIndex *int    `json:"pageIndex,omitempty" validate:"omitempty,gte=0,lte=9999"`
	ImageData string  `json:"imageData,omitempty" validate:"omitempty,startswith=data:image/"`
}

// Page returns the target page index, or -1 when the message has none.
func (m *Message) Page() int {
	if m.PageIndex == nil {
		return -1
	}
	return *m.PageIndex
}

// Segment extracts the stroke carried by a segment message.
func (m *Message) Segment() (Segment, error) {
	if m.Kind != KindSegment {
		return Segment{}, invalidf("kind %q carries no segment", m.Kind)
	}
	if err := Validate(m); err != nil {
		return Segment{}, err
	}
	return Segment{
		Tool:      m.Tool.Canonical(),
		Color:     m.Color,
		Thickness: m.Thickness,
		Start:     *m.Start,
		End:       *m.End,
		PageIndex: *m.PageIndex,
	}, nil
}

func intPtr(i int) *int { return &i }

// SegmentMessage wraps a stroke segment.
func SegmentMessage(seg Segment) Message {
	start, end := seg.Start, seg.End
	return Message{
		Kind:      KindSegment,
		Tool:      seg.Tool.Canonical(),
		Color:     seg.Color,
		Thickness: seg.Thickness,
		Start:     &start,
		End:       &end,
		PageIndex: intPtr(seg.PageIndex),
	}
}

// ImageMessage carries a full page snapshot.
func ImageMessage(page int, imageData string) Message {
	return Message{Kind: KindImage, PageIndex: intPtr(page), ImageData: imageData}
}

// ClearMessage blanks one page.
func ClearMessage(page int) Message {
	return Message{Kind: KindClear, PageIndex: intPtr(page)}
}

// PageNavMessage moves peers' page cursor.
func PageNavMessage(page int) Message {
	return Message{Kind: KindPageNav, PageIndex: intPtr(page)}
}

// PageAddMessage appends a blank page on peers.
func PageAddMessage() Message {
	return Message{Kind: KindPageAdd}
}

// SyncRequestMessage asks peers to broadcast their current page.
func SyncRequestMessage() Message {
	return Message{Kind: KindSyncRequest}
}
