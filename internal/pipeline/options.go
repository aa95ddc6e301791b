package pipeline

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/raster"
	"github.com/Lllllllleong/ocrflow/internal/textlayer"
)

// DefaultConfidenceThreshold is the page confidence below which a page is
// reported as low_confidence.
const DefaultConfidenceThreshold = 0.6

// Options configures one pipeline run. It is always passed explicitly.
type Options struct {
	DPI                 int
	Concurrency         int
	PageTimeout         time.Duration // zero disables the per-page timeout
	DocumentTimeout     time.Duration // zero disables the document timeout
	ConfidenceThreshold float64
	Languages           []string
	PageSegMode         int

	// TextLayer reads the embedded text of PDF pages first and only falls
	// back to OCR for pages with fewer than TextLayerMinChars characters.
	TextLayer         bool
	TextLayerMinChars int
}

func DefaultOptions() Options {
	return Options{
		DPI:                 raster.DefaultDPI,
		Concurrency:         2 * runtime.NumCPU(),
		PageTimeout:         2 * time.Minute,
		DocumentTimeout:     10 * time.Minute,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		Languages:           []string{"eng"},
		TextLayerMinChars:   textlayer.DefaultMinChars,
	}
}

// Merge returns o with the non-zero fields of r applied.
func (o Options) Merge(r *models.RecognizeOptions) Options {
	if r == nil {
		return o
	}
	if r.DPI > 0 {
		o.DPI = r.DPI
	}
	if r.Concurrency > 0 {
		o.Concurrency = r.Concurrency
	}
	if r.PageTimeoutSeconds > 0 {
		o.PageTimeout = time.Duration(r.PageTimeoutSeconds) * time.Second
	}
	if r.DocumentTimeoutSeconds > 0 {
		o.DocumentTimeout = time.Duration(r.DocumentTimeoutSeconds) * time.Second
	}
	if r.ConfidenceThreshold != nil {
		o.ConfidenceThreshold = *r.ConfidenceThreshold
	}
	if len(r.Languages) > 0 {
		o.Languages = append([]string(nil), r.Languages...)
	}
	if r.PageSegMode > 0 {
		o.PageSegMode = r.PageSegMode
	}
	if r.TextLayer != nil {
		o.TextLayer = *r.TextLayer
	}
	if r.TextLayerMinChars > 0 {
		o.TextLayerMinChars = r.TextLayerMinChars
	}
	return o
}

// ErrInvalidOptions is wrapped by Validate failures.
var ErrInvalidOptions = errors.New("invalid pipeline options")

func (o Options) Validate() error {
	switch {
	case o.DPI < 1 || o.DPI > 1200:
		return fmt.Errorf("%w: dpi %d outside [1, 1200]", ErrInvalidOptions, o.DPI)
	case o.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidOptions, o.Concurrency)
	case o.PageTimeout < 0 || o.DocumentTimeout < 0:
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidOptions)
	case o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1:
		return fmt.Errorf("%w: confidence threshold %.2f outside [0, 1]", ErrInvalidOptions, o.ConfidenceThreshold)
	case o.PageSegMode < 0 || o.PageSegMode > 13:
		return fmt.Errorf("%w: page segmentation mode %d outside [0, 13]", ErrInvalidOptions, o.PageSegMode)
	case o.TextLayerMinChars < 0:
		return fmt.Errorf("%w: text layer minimum must not be negative, got %d", ErrInvalidOptions, o.TextLayerMinChars)
	}
	return nil
}
