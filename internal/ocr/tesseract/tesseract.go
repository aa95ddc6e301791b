// Package tesseract implements ocr.Engine with the Tesseract library through
// gosseract. Importing it registers the "tesseract" engine.
package tesseract

import (
	"context"
	"fmt"
	"strconv"

	"github.com/otiai10/gosseract/v2"

	"github.com/Lllllllleong/ocrflow/internal/ocr"
)

func init() {
	ocr.Register("tesseract", func() ocr.Engine { return New() })
}

// Engine runs each recognition on a fresh gosseract client. Clients are not
// safe for concurrent use and carry per-image state.
type Engine struct {
	clientFactory func() *gosseract.Client
}

func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (*ocr.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(in.Image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(in.DPI)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	if in.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(in.PageSegMode)); err != nil {
			return nil, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ocr.Output{
		Text:       ocr.NormalizeText(text),
		Confidence: meanWordConfidence(c),
	}, nil
}

// meanWordConfidence averages word confidences, or returns nil when Tesseract
// found no words.
func meanWordConfidence(c *gosseract.Client) *float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	conf := ocr.ClampConfidence(sum / float64(len(boxes)))
	return &conf
}
