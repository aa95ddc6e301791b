package raster

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// Poppler renders PDF pages with the pdftoppm binary. The document is streamed
// on stdin and the PNG is read from stdout.
type Poppler struct {
	path string
}

// NewPoppler returns an engine running the pdftoppm binary at path, or the one
// found on PATH when path is empty.
func NewPoppler(path string) *Poppler {
	if path == "" {
		path = "pdftoppm"
	}
	return &Poppler{path: path}
}

func (e *Poppler) Name() string { return "poppler" }

func (e *Poppler) Rasterize(ctx context.Context, req Request) (*models.Page, error) {
	if req.Document.Format != models.FormatPDF {
		return nil, ErrUnsupported
	}
	bin, err := exec.LookPath(e.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not available: %w", ErrUnsupported, e.path, err)
	}
	dpi := req.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	pageNr := strconv.Itoa(req.PageIndex + 1)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"-f", pageNr, "-l", pageNr,
		"-r", strconv.Itoa(dpi),
		"-gray", "-png", "-singlefile",
		"-", // read the document from stdin, write the page to stdout
	)
	cmd.Stdin = bytes.NewReader(req.Document.Content())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("pdftoppm failed on page %s: %w: %s", pageNr, err, strings.TrimSpace(stderr.String()))
	}

	data := stdout.Bytes()
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("pdftoppm produced an unreadable image for page %s: %w", pageNr, err)
	}
	payload, err := req.Space.Store(pageKey(req.PageIndex), data)
	if err != nil {
		return nil, fmt.Errorf("failed to store raster: %w", err)
	}
	return &models.Page{
		Index:   req.PageIndex,
		DPI:     dpi,
		Format:  models.FormatPNG,
		Width:   cfg.Width,
		Height:  cfg.Height,
		Payload: payload,
	}, nil
}
