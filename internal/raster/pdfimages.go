package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

const (
	pointsPerInch = 72.0
	maxSide       = 14000
	maxPixels     = 64 << 20
)

var _ Releaser = &PDFImages{}

// PDFImages rasterizes scanned PDF pages by extracting the page's dominant
// embedded image and resampling it to the requested DPI. Pages without an
// embedded image are reported as ErrUnsupported.
//
// Each document is parsed once and shared by all of its pages until Release.
type PDFImages struct {
	mu   sync.Mutex
	docs map[*models.Document]*parsedPDF
}

// parsedPDF is one document's pdfcpu context. pdfcpu decodes streams into the
// context's object table, so extraction is serialized.
type parsedPDF struct {
	once sync.Once
	err  error
	dims []types.Dim

	mu  sync.Mutex
	ctx *model.Context
}

func NewPDFImages() *PDFImages {
	return &PDFImages{docs: make(map[*models.Document]*parsedPDF)}
}

func (e *PDFImages) Name() string { return "pdfimages" }

// Release drops the parsed form of doc.
func (e *PDFImages) Release(doc *models.Document) {
	e.mu.Lock()
	delete(e.docs, doc)
	e.mu.Unlock()
}

func (e *PDFImages) parse(doc *models.Document) *parsedPDF {
	e.mu.Lock()
	p, ok := e.docs[doc]
	if !ok {
		p = &parsedPDF{}
		e.docs[doc] = p
	}
	e.mu.Unlock()

	p.once.Do(func() {
		// A configuration per document: pdfcpu writes to it while reading.
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		conf.Cmd = model.EXTRACTIMAGES

		ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc.Content()), conf)
		if err != nil {
			p.err = fmt.Errorf("failed to read pdf: %w", err)
			return
		}
		p.ctx = ctx
		dims, err := ctx.PageDims()
		if err != nil {
			slog.Warn("Page dimensions unavailable, keeping native image resolution.", "documentId", doc.ID, "error", err)
		}
		p.dims = dims
	})
	return p
}

// pageImage returns the raw bytes and type of the largest image on page pageNr.
func (p *parsedPDF) pageImage(pageNr int) ([]byte, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	images, err := pdfcpu.ExtractPageImages(p.ctx, pageNr, false)
	if err != nil {
		return nil, "", fmt.Errorf("failed to extract images from page %d: %w", pageNr, err)
	}
	var (
		best  model.Image
		found bool
	)
	for _, img := range images {
		if !found || img.Width*img.Height > best.Width*best.Height {
			best, found = img, true
		}
	}
	if !found || best.Reader == nil {
		return nil, "", fmt.Errorf("%w: page %d has no embedded image", ErrUnsupported, pageNr)
	}
	data, err := io.ReadAll(best.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s image on page %d: %w", best.FileType, pageNr, err)
	}
	return data, best.FileType, nil
}

func (e *PDFImages) Rasterize(ctx context.Context, req Request) (*models.Page, error) {
	if req.Document.Format != models.FormatPDF {
		return nil, ErrUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dpi := req.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	pageNr := req.PageIndex + 1

	parsed := e.parse(req.Document)
	if parsed.err != nil {
		return nil, parsed.err
	}
	data, fileType, err := parsed.pageImage(pageNr)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image header on page %d: %w", fileType, pageNr, err)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%s image on page %d has %dx%d pixels, over the raster limit", fileType, pageNr, cfg.Width, cfg.Height)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image on page %d: %w", fileType, pageNr, err)
	}

	b := src.Bounds()
	width, height := b.Dx(), b.Dy()
	effectiveDPI := 0
	if i := req.PageIndex; i < len(parsed.dims) && parsed.dims[i].Width > 0 && parsed.dims[i].Height > 0 {
		width = int(math.Round(parsed.dims[i].Width / pointsPerInch * float64(dpi)))
		height = int(math.Round(parsed.dims[i].Height / pointsPerInch * float64(dpi)))
		effectiveDPI = dpi
	}
	if width > maxSide || height > maxSide {
		scale := float64(maxSide) / math.Max(float64(width), float64(height))
		width = int(float64(width) * scale)
		height = int(float64(height) * scale)
		if effectiveDPI > 0 {
			effectiveDPI = int(float64(effectiveDPI) * scale)
		}
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("page %d renders to an empty raster", pageNr)
	}

	return storeGray(req.Space, req.PageIndex, effectiveDPI, src, width, height)
}
