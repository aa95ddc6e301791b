// Package loader turns raw document bytes into a models.Document with a
// known page count.
package loader

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// Limits on image documents. Decoding allocates the full pixel grid, so
// larger images are rejected before any page work starts.
const (
	MaxImageSide   = 14000
	MaxImagePixels = 64 << 20
)

// Loader validates documents and enumerates their pages. It is safe for
// concurrent use.
type Loader struct {
	maxPages int
}

// New returns a Loader. maxPages bounds the accepted page count; zero disables the limit.
func New(maxPages int) *Loader {
	return &Loader{maxPages: maxPages}
}

// Load builds a Document from data. declared is a MIME type or a filename;
// when it is empty or generic the format is sniffed from the content. An empty
// id is replaced by a generated one.
func (l *Loader) Load(id, name string, data []byte, declared string) (*models.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: document is empty", models.ErrCorruptDocument)
	}
	format, err := DetectFormat(data, declared)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	var pageCount int
	if format == models.FormatPDF {
		pageCount, err = l.pdfPageCount(data)
	} else {
		pageCount, err = imagePageCount(data)
	}
	if err != nil {
		return nil, err
	}
	if l.maxPages > 0 && pageCount > l.maxPages {
		return nil, fmt.Errorf("%w: %d pages exceeds the limit of %d", models.ErrCorruptDocument, pageCount, l.maxPages)
	}
	return models.NewDocument(id, name, format, pageCount, data), nil
}

func (l *Loader) pdfPageCount(data []byte) (int, error) {
	// pdfcpu writes to its configuration, so each call gets its own.
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to enumerate pages: %w", models.ErrCorruptDocument, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: document has no pages", models.ErrCorruptDocument)
	}
	return n, nil
}

func imagePageCount(data []byte) (int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to decode image header: %w", models.ErrCorruptDocument, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return 0, fmt.Errorf("%w: image has no pixels", models.ErrCorruptDocument)
	}
	if cfg.Width > MaxImageSide || cfg.Height > MaxImageSide || cfg.Width*cfg.Height > MaxImagePixels {
		return 0, fmt.Errorf("%w: image of %dx%d pixels exceeds the %d pixel limit", models.ErrCorruptDocument, cfg.Width, cfg.Height, MaxImagePixels)
	}
	return 1, nil
}

var extensions = map[string]models.Format{
	".pdf":  models.FormatPDF,
	".png":  models.FormatPNG,
	".jpg":  models.FormatJPEG,
	".jpeg": models.FormatJPEG,
	".gif":  models.FormatGIF,
	".tif":  models.FormatTIFF,
	".tiff": models.FormatTIFF,
	".bmp":  models.FormatBMP,
	".webp": models.FormatWebP,
}

var mimeTypes = map[string]models.Format{
	"application/pdf":   models.FormatPDF,
	"application/x-pdf": models.FormatPDF,
	"image/png":         models.FormatPNG,
	"image/jpeg":        models.FormatJPEG,
	"image/jpg":         models.FormatJPEG,
	"image/gif":         models.FormatGIF,
	"image/tiff":        models.FormatTIFF,
	"image/bmp":         models.FormatBMP,
	"image/x-ms-bmp":    models.FormatBMP,
	"image/webp":        models.FormatWebP,
}

// DetectFormat resolves the document format from the declared type, falling
// back to sniffing the content.
func DetectFormat(data []byte, declared string) (models.Format, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		if strings.Contains(declared, "/") {
			mediaType, _, err := mime.ParseMediaType(declared)
			if err == nil {
				if f, ok := mimeTypes[strings.ToLower(mediaType)]; ok {
					return f, nil
				}
				if mediaType != "application/octet-stream" {
					return "", fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, mediaType)
				}
			}
		}
		if f, ok := extensions[strings.ToLower(filepath.Ext(declared))]; ok {
			return f, nil
		}
	}
	return sniff(data)
}

func sniff(data []byte) (models.Format, error) {
	if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
		return models.FormatTIFF, nil
	}
	detected := http.DetectContentType(data)
	mediaType, _, _ := mime.ParseMediaType(detected)
	if f, ok := mimeTypes[mediaType]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: detected %s", models.ErrUnsupportedFormat, detected)
}
