// Package ocr defines the recognition engine used for page rasters.
//
// An engine is treated as an opaque oracle: identical image bytes and options
// produce identical output, and an empty Text is a valid result rather than a
// failure.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// ErrRefused is returned when an engine declines to transcribe an image.
var ErrRefused = errors.New("recognition refused")

type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (*Output, error)
}

// Input is one page raster plus recognition hints.
type Input struct {
	PageIndex   int
	Image       []byte
	Format      models.Format
	DPI         int
	Languages   []string
	PageSegMode int
}

// Output is the recognized text. Confidence is in [0,1], or nil when the
// engine cannot report one.
type Output struct {
	Text       string
	Confidence *float64
}

type limitedEngine struct {
	limiter *rate.Limiter
	engine  Engine
}

// NewLimited wraps e so that every call first waits on l.
func NewLimited(l *rate.Limiter, e Engine) Engine {
	return &limitedEngine{
		limiter: l,
		engine:  e,
	}
}

func (e *limitedEngine) Name() string { return e.engine.Name() }

func (e *limitedEngine) Recognize(ctx context.Context, in Input) (*Output, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	return e.engine.Recognize(ctx, in)
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// NormalizeText trims trailing whitespace on each line and surrounding blank lines.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
