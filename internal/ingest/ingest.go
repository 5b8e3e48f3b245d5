// Package ingest puts uploaded images and rendered PDF pages onto the
// current whiteboard page.
//
// Bulk content always reaches peers as a full page image: the target paints
// the raster and performs a local commit, never a segment replay.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"blackboard/internal/logging"
)

// ErrUnsupported is returned for content that is neither an image nor a PDF.
var ErrUnsupported = errors.New("unsupported content type")

// Target receives rasters. The sync session implements it: Blit paints the
// image scaled to fit and commits the page.
type Target interface {
	Blit(img image.Image, fillBackground bool) error
}

// Pager is a Target that can append pages, needed to ingest a page range.
type Pager interface {
	Target
	AddPage() (int, error)
}

// Rasterizer renders one page (1-based) of a PDF document.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc []byte, page int) (image.Image, error)
}

// PageCounter is implemented by rasterizers that can count document pages.
type PageCounter interface {
	PageCount(ctx context.Context, doc []byte) (int, error)
}

// Ingester feeds a Target.
type Ingester struct {
	target Target
	raster Rasterizer
}

// New creates an ingester. raster may be nil when PDFs are not supported.
func New(target Target, raster Rasterizer) *Ingester {
	return &Ingester{target: target, raster: raster}
}

// IngestImage decodes an image and blits it onto the current page.
func (in *Ingester) IngestImage(_ context.Context, data []byte) error {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	logging.Debug().Str("format", format).Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).Msg("ingesting image")
	return in.target.Blit(img, false)
}

// IngestPDFPage renders one page of doc and blits it over a fresh background.
func (in *Ingester) IngestPDFPage(ctx context.Context, doc []byte, page int) error {
	if in.raster == nil {
		return fmt.Errorf("%w: no PDF rasterizer configured", ErrUnsupported)
	}
	if page < 1 {
		return fmt.Errorf("pdf page %d: pages start at 1", page)
	}
	img, err := in.raster.Rasterize(ctx, doc, page)
	if err != nil {
		return fmt.Errorf("rasterize pdf page %d: %w", page, err)
	}
	return in.target.Blit(img, true)
}

// PageCount returns the number of pages in doc.
func (in *Ingester) PageCount(ctx context.Context, doc []byte) (int, error) {
	pc, ok := in.raster.(PageCounter)
	if !ok {
		return 0, fmt.Errorf("%w: rasterizer cannot count pages", ErrUnsupported)
	}
	n, err := pc.PageCount(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return n, nil
}

// IngestPDFPages renders pages first through last of doc. The first page goes
// onto the current board page, every further one onto a newly appended board
// page. last of 0 means the final page of the document. It returns the number
// of pages ingested, which is short of the range only alongside an error.
func (in *Ingester) IngestPDFPages(ctx context.Context, doc []byte, first, last int) (int, error) {
	if first < 1 {
		return 0, fmt.Errorf("pdf page %d: pages start at 1", first)
	}
	if last == 0 || last > first {
		total, err := in.PageCount(ctx, doc)
		if err != nil {
			return 0, err
		}
		if last == 0 {
			last = total
		}
		if last > total {
			return 0, fmt.Errorf("pdf pages %d-%d: document has %d pages", first, last, total)
		}
	}
	if last < first {
		return 0, fmt.Errorf("pdf pages %d-%d: empty range", first, last)
	}
	pager, ok := in.target.(Pager)
	if !ok && last > first {
		return 0, errors.New("target cannot append pages for a pdf range")
	}

	for page := first; page <= last; page++ {
		if page > first {
			if _, err := pager.AddPage(); err != nil {
				return page - first, fmt.Errorf("append board page for pdf page %d: %w", page, err)
			}
		}
		if err := in.IngestPDFPage(ctx, doc, page); err != nil {
			return page - first, err
		}
		logging.Debug().Int("page", page).Int("last", last).Msg("ingested pdf page")
	}
	return last - first + 1, nil
}

// IsPDF reports whether data sniffs as a PDF document.
func IsPDF(data []byte) bool {
	return mimetype.Detect(data).Is("application/pdf")
}

// IngestFile sniffs data and dispatches to IngestImage or IngestPDFPage.
// page is ignored for images.
func (in *Ingester) IngestFile(ctx context.Context, data []byte, page int) error {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return in.IngestPDFPage(ctx, data, page)
	case strings.HasPrefix(mt.String(), "image/"):
		return in.IngestImage(ctx, data)
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, mt.String())
}
