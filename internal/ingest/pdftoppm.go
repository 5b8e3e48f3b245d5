package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultPDFScale renders PDF pages at three times their natural size.
const DefaultPDFScale = 3.0

// PdftoppmRasterizer renders PDF pages with poppler's pdftoppm and counts
// them with pdfinfo.
type PdftoppmRasterizer struct {
	// Binary defaults to "pdftoppm" on PATH.
	Binary string
	// InfoBinary defaults to "pdfinfo" on PATH.
	InfoBinary string
	// Scale multiplies the 72 DPI page size.
	Scale float64
}

// Available reports whether the binary can be found.
func (r PdftoppmRasterizer) Available() bool {
	_, err := exec.LookPath(r.binary())
	return err == nil
}

func (r PdftoppmRasterizer) binary() string {
	if r.Binary != "" {
		return r.Binary
	}
	return "pdftoppm"
}

func (r PdftoppmRasterizer) infoBinary() string {
	if r.InfoBinary != "" {
		return r.InfoBinary
	}
	return "pdfinfo"
}

// PageCount implements PageCounter.
func (r PdftoppmRasterizer) PageCount(ctx context.Context, doc []byte) (int, error) {
	dir, err := os.MkdirTemp("", "blackboard-pdf-")
	if err != nil {
		return 0, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, doc, 0o600); err != nil {
		return 0, fmt.Errorf("write pdf: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.infoBinary(), in)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("pdfinfo: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return parsePages(stdout.String())
}

// parsePages reads the "Pages:" line of pdfinfo output.
func parsePages(info string) (int, error) {
	for _, line := range strings.Split(info, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "Pages" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 {
			return 0, fmt.Errorf("pdfinfo: bad page count %q", strings.TrimSpace(value))
		}
		return n, nil
	}
	return 0, errors.New("pdfinfo: no page count")
}

// Rasterize implements Rasterizer.
func (r PdftoppmRasterizer) Rasterize(ctx context.Context, doc []byte, page int) (image.Image, error) {
	scale := r.Scale
	if scale <= 0 {
		scale = DefaultPDFScale
	}
	dir, err := os.MkdirTemp("", "blackboard-pdf-")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, doc, 0o600); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	out := filepath.Join(dir, "page")
	p := strconv.Itoa(page)
	dpi := strconv.Itoa(int(math.Round(72 * scale)))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary(), "-f", p, "-l", p, "-r", dpi, "-png", "-singlefile", in, out)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	f, err := os.Open(out + ".png")
	if err != nil {
		return nil, fmt.Errorf("open rendered page: %w", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	return img, nil
}
