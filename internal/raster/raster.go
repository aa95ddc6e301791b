// Package raster converts document pages into grayscale PNG rasters held in a
// scratch space.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"golang.org/x/image/draw"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/scratch"
)

// DefaultDPI is the rendering resolution used when none is requested.
const DefaultDPI = 300

// ErrUnsupported is returned by an engine that cannot handle a document or
// page at all, as opposed to one that tried and failed.
var ErrUnsupported = errors.New("unsupported by rasterization engine")

// Request identifies the page to rasterize.
type Request struct {
	Document  *models.Document
	PageIndex int
	DPI       int
	Space     scratch.Space
}

// Engine renders one page. The returned Page's payload lives in req.Space and
// is owned by the caller.
type Engine interface {
	Name() string
	Rasterize(ctx context.Context, req Request) (*models.Page, error)
}

// Releaser is implemented by engines that keep per-document state across
// pages. Release is called once no page of doc will be rasterized again.
type Releaser interface {
	Release(doc *models.Document)
}

// New builds the engine chain named by names, in order.
func New(names []string, pdftoppmPath string) (Engine, error) {
	var engines []Engine
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "image":
			engines = append(engines, NewImage())
		case "pdfimages":
			engines = append(engines, NewPDFImages())
		case "poppler", "pdftoppm":
			engines = append(engines, NewPoppler(pdftoppmPath))
		default:
			return nil, fmt.Errorf("unknown rasterization engine %q", name)
		}
	}
	if len(engines) == 0 {
		return nil, errors.New("no rasterization engines configured")
	}
	if len(engines) == 1 {
		return engines[0], nil
	}
	return NewMulti(engines...), nil
}

func pageKey(index int) string {
	return fmt.Sprintf("page-%05d", index)
}

// storeGray converts img to 8-bit grayscale at the given size, encodes it as
// PNG and stores it in space.
func storeGray(space scratch.Space, index, dpi int, img image.Image, width, height int) (*models.Page, error) {
	gray := image.NewGray(image.Rect(0, 0, width, height))
	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.BiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("failed to encode raster: %w", err)
	}
	payload, err := space.Store(pageKey(index), buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to store raster: %w", err)
	}
	return &models.Page{
		Index:   index,
		DPI:     dpi,
		Format:  models.FormatPNG,
		Width:   width,
		Height:  height,
		Payload: payload,
	}, nil
}
