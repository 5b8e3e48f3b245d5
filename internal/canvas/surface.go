// Package canvas implements the whiteboard raster surface.
//
// A Surface is allocated at a fixed virtual resolution; every coordinate it
// accepts is in that virtual space, whatever the size of the display that
// produced it. Shape tools preview on a transparent overlay that is composited
// only on export and is never part of a snapshot.
//
// A Surface is not safe for concurrent use. Its owner (the sync session)
// serializes access.
package canvas

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/gogpu/gg"
)

// Default virtual resolution.
const (
	DefaultWidth  = 2000
	DefaultHeight = 1500
)

// ErrDecode is returned when snapshot data cannot be decoded.
var ErrDecode = errors.New("decode snapshot")

// Theme selects the board background.
type Theme string

const (
	ThemeGreen Theme = "green"
	ThemeBlack Theme = "black"
	ThemeWhite Theme = "white"
)

var themeFills = map[Theme]string{
	ThemeGreen: "#064e3b",
	ThemeBlack: "#0f172a",
	ThemeWhite: "#ffffff",
}

// Fill returns the background color of the theme as a hex string.
// Unknown themes fall back to green.
func (t Theme) Fill() string {
	if f, ok := themeFills[t]; ok {
		return f
	}
	return themeFills[ThemeGreen]
}

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	t := Theme(s)
	if _, ok := themeFills[t]; !ok {
		return "", fmt.Errorf("unknown theme %q", s)
	}
	return t, nil
}

// Config sizes a surface.
type Config struct {
	Width  int
	Height int
	Theme  Theme
	// ThicknessScale multiplies every nominal stroke thickness.
	ThicknessScale float64
}

// Surface is a fixed-resolution drawing surface.
type Surface struct {
	width, height  int
	theme          Theme
	thicknessScale float64

	dc      *gg.Context
	overlay *gg.Context
	preview bool
}

// New allocates a surface filled with the theme background.
func New(cfg Config) *Surface {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.ThicknessScale <= 0 {
		cfg.ThicknessScale = 1
	}
	if _, ok := themeFills[cfg.Theme]; !ok {
		cfg.Theme = ThemeGreen
	}
	s := &Surface{
		width:          cfg.Width,
		height:         cfg.Height,
		theme:          cfg.Theme,
		thicknessScale: cfg.ThicknessScale,
		dc:             gg.NewContext(cfg.Width, cfg.Height),
		overlay:        gg.NewContext(cfg.Width, cfg.Height),
	}
	s.Clear()
	return s
}

// Width is the virtual width.
func (s *Surface) Width() int { return s.width }

// Height is the virtual height.
func (s *Surface) Height() int { return s.height }

// Theme is the active theme.
func (s *Surface) Theme() Theme { return s.theme }

// Background is the active theme's fill color.
func (s *Surface) Background() gg.RGBA { return gg.Hex(s.theme.Fill()) }

// Clear resets the surface to the theme background and drops any preview.
func (s *Surface) Clear() {
	s.dc.ClearWithColor(s.Background())
	s.ClearPreview()
}

// SetTheme switches the background used by Clear, the eraser and restores.
// Existing pixels are left alone; callers repaint from the page store.
func (s *Surface) SetTheme(t Theme) {
	if _, ok := themeFills[t]; ok {
		s.theme = t
	}
}

// Image returns a copy of the committed surface pixels.
func (s *Surface) Image() *image.RGBA {
	return toRGBA(s.dc.Image())
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}

// Composite returns the committed surface with the shape preview on top.
func (s *Surface) Composite() image.Image {
	if !s.preview {
		return s.dc.Image()
	}
	out := gg.NewContextForImage(s.dc.Image())
	out.DrawImageEx(gg.ImageBufFromImage(s.overlay.Image()), gg.DrawImageOptions{
		Interpolation: gg.InterpNearest,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	})
	return out.Image()
}

func (s *Surface) lineWidth(thickness float64) float64 {
	return thickness * s.thicknessScale
}
