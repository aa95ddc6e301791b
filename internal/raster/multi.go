package raster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

var (
	_ Engine   = &Multi{}
	_ Releaser = &Multi{}
)

// Multi tries its engines in order and returns the first page rendered.
type Multi struct {
	engines []Engine
}

func NewMulti(engine ...Engine) *Multi {
	return &Multi{
		engines: engine,
	}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.engines))
	for i, e := range m.engines {
		names[i] = e.Name()
	}
	return strings.Join(names, "+")
}

func (m *Multi) Rasterize(ctx context.Context, req Request) (*models.Page, error) {
	var errs []error
	for _, e := range m.engines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := e.Rasterize(ctx, req)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %s page %d", ErrUnsupported, req.Document.Format, req.PageIndex)
	}
	return nil, errors.Join(errs...)
}

// Release forwards to every engine that keeps per-document state.
func (m *Multi) Release(doc *models.Document) {
	for _, e := range m.engines {
		if r, ok := e.(Releaser); ok {
			r.Release(doc)
		}
	}
}
