package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// Image rasterizes single-page image documents at their native resolution.
type Image struct{}

func NewImage() *Image { return &Image{} }

func (e *Image) Name() string { return "image" }

func (e *Image) Rasterize(ctx context.Context, req Request) (*models.Page, error) {
	if !req.Document.Format.IsImage() {
		return nil, ErrUnsupported
	}
	if req.PageIndex != 0 {
		return nil, fmt.Errorf("image documents have a single page, got index %d", req.PageIndex)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(req.Document.Content()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	if cfg.Width > maxSide || cfg.Height > maxSide || cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("image of %dx%d pixels exceeds the raster limit", cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(req.Document.Content()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	return storeGray(req.Space, req.PageIndex, 0, img, b.Dx(), b.Dy())
}
