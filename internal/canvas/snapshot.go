package canvas

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // restore decodes jpeg snapshots
	_ "image/png"  // and png ones
	"io"
	"math"
	"strings"

	"github.com/gogpu/gg"
)

const (
	jpegDataURLPrefix = "data:image/jpeg;base64,"
	dataURLScheme     = "data:image/"

	// maxSnapshotScale bounds decoded snapshots to this multiple of the
	// surface size on each axis.
	maxSnapshotScale = 2
)

// FitMode controls how BlitImage scales a source raster.
type FitMode int

const (
	// FitContain scales to fit inside the surface, keeping aspect ratio, centred.
	FitContain FitMode = iota
	// FitStretch scales to exactly the surface size.
	FitStretch
)

// BlitImage draws img onto the surface.
func (s *Surface) BlitImage(img image.Image, mode FitMode) {
	b := img.Bounds()
	if b.Empty() {
		return
	}
	w, h := float64(s.width), float64(s.height)
	opts := gg.DrawImageOptions{
		DstWidth:      w,
		DstHeight:     h,
		Interpolation: gg.InterpBilinear,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	}
	if mode == FitContain {
		ratio := math.Min(w/float64(b.Dx()), h/float64(b.Dy()))
		opts.DstWidth = float64(b.Dx()) * ratio
		opts.DstHeight = float64(b.Dy()) * ratio
		opts.X = (w - opts.DstWidth) / 2
		opts.Y = (h - opts.DstHeight) / 2
	}
	if b.Dx() == int(opts.DstWidth) && b.Dy() == int(opts.DstHeight) {
		opts.Interpolation = gg.InterpNearest
	}
	s.dc.DrawImageEx(gg.ImageBufFromImage(img), opts)
}

// Snapshot encodes the committed surface as a JPEG data URL.
// quality is in (0,1]; out-of-range values are clamped.
func (s *Surface) Snapshot(quality float64) (string, error) {
	q := int(math.Round(quality * 100))
	q = max(1, min(100, q))

	var buf bytes.Buffer
	buf.WriteString(jpegDataURLPrefix)
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	if err := s.dc.EncodeJPEG(enc, q); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.String(), nil
}

// Restore replaces the surface with a snapshot, stretched to the full
// surface over a fresh background. The empty string restores a blank page.
// The data is fully decoded before anything is painted, so on ErrDecode the
// surface is unchanged.
func (s *Surface) Restore(imageData string) error {
	if imageData == "" {
		s.Clear()
		return nil
	}
	img, err := s.decode(imageData)
	if err != nil {
		return err
	}
	s.Clear()
	s.BlitImage(img, FitStretch)
	return nil
}

// CheckSnapshot decodes imageData exactly as Restore would, without painting.
// It returns ErrDecode for anything Restore would reject.
func (s *Surface) CheckSnapshot(imageData string) error {
	if imageData == "" {
		return nil
	}
	_, err := s.decode(imageData)
	return err
}

func (s *Surface) decode(imageData string) (image.Image, error) {
	return DecodeDataURL(imageData, s.width*maxSnapshotScale, s.height*maxSnapshotScale)
}

// FillBackground paints the whole surface with the theme background,
// keeping any preview.
func (s *Surface) FillBackground() {
	s.dc.ClearWithColor(s.Background())
}

// ExportPNG writes the composited surface, preview included, as PNG.
func (s *Surface) ExportPNG(w io.Writer) error {
	out := gg.NewContextForImage(s.Composite())
	if err := out.EncodePNG(w); err != nil {
		return fmt.Errorf("export png: %w", err)
	}
	return nil
}

// ExportSnapshot renders a stored page snapshot on a fresh surface and
// writes it as PNG.
func ExportSnapshot(cfg Config, imageData string, w io.Writer) error {
	s := New(cfg)
	if err := s.Restore(imageData); err != nil {
		return err
	}
	return s.ExportPNG(w)
}

// DecodeDataURL decodes a base64 image data URL of at most maxWidth by
// maxHeight pixels. The size is read from the image header before any pixel
// buffer is allocated.
func DecodeDataURL(imageData string, maxWidth, maxHeight int) (image.Image, error) {
	if !strings.HasPrefix(imageData, dataURLScheme) {
		return nil, fmt.Errorf("%w: not an image data url", ErrDecode)
	}
	_, payload, ok := strings.Cut(imageData, ";base64,")
	if !ok {
		return nil, fmt.Errorf("%w: data url is not base64", ErrDecode)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width > maxWidth || cfg.Height > maxHeight {
		return nil, fmt.Errorf("%w: %dx%d image exceeds %dx%d", ErrDecode, cfg.Width, cfg.Height, maxWidth, maxHeight)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}
