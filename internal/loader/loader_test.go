package loader_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/ocrflow/internal/loader"
	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/pdftest"
)

func TestLoad_PDF(t *testing.T) {
	doc, err := loader.New(0).Load("doc-1", "scan.pdf", pdftest.Scanned(3), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, models.FormatPDF, doc.Format)
	assert.Equal(t, 3, doc.PageCount())
	assert.Equal(t, 2, doc.Pages[2].Index)
}

func TestLoad_GeneratesID(t *testing.T) {
	doc, err := loader.New(0).Load("", "scan.pdf", pdftest.Scanned(1), "")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
}

func TestLoad_Image(t *testing.T) {
	png := pdftest.PNG(pdftest.TextImage("hello", 120, 40))

	doc, err := loader.New(0).Load("img", "hello.png", png, "hello.png")
	require.NoError(t, err)
	assert.Equal(t, models.FormatPNG, doc.Format)
	assert.Equal(t, 1, doc.PageCount())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     error
	}{
		{"empty", nil, "application/pdf", models.ErrCorruptDocument},
		{"zero pages", pdftest.Build(), "application/pdf", models.ErrCorruptDocument},
		{"truncated pdf", pdftest.Scanned(2)[:40], "application/pdf", models.ErrCorruptDocument},
		{"plain text", []byte("just some words, nothing to see"), "", models.ErrUnsupportedFormat},
		{"declared unsupported", []byte("a,b,c"), "text/csv", models.ErrUnsupportedFormat},
		{"bad image header", []byte("\x89PNG\r\n\x1a\ngarbage"), "image/png", models.ErrCorruptDocument},
		{"oversized image", pdftest.PNGHeader(40000, 40000), "image/png", models.ErrCorruptDocument},
		{"too many pixels", pdftest.PNGHeader(10000, 10000), "image/png", models.ErrCorruptDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.New(0).Load("doc", "", tt.data, tt.declared)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoad_MaxPages(t *testing.T) {
	_, err := loader.New(2).Load("doc", "", pdftest.Scanned(3), "")
	assert.ErrorIs(t, err, models.ErrCorruptDocument)
}

func TestDetectFormat(t *testing.T) {
	pdf := pdftest.Scanned(1)
	jpg := pdftest.JPEG(pdftest.TextImage("x", 20, 20))

	tests := []struct {
		name     string
		data     []byte
		declared string
		want     models.Format
	}{
		{"mime with params", pdf, "application/pdf; charset=binary", models.FormatPDF},
		{"filename", jpg, "photo.JPG", models.FormatJPEG},
		{"octet stream sniffs", pdf, "application/octet-stream", models.FormatPDF},
		{"unknown extension sniffs", jpg, "upload.bin", models.FormatJPEG},
		{"tiff magic", []byte("II*\x00rest"), "", models.FormatTIFF},
		{"big endian tiff", []byte("MM\x00*rest"), "", models.FormatTIFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loader.DetectFormat(tt.data, tt.declared)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_ImageWithinLimits(t *testing.T) {
	doc, err := loader.New(0).Load("img", "scan.png", pdftest.PNGHeader(2480, 3508), "image/png")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.PageCount())
}

func TestLoad_Concurrent(t *testing.T) {
	l := loader.New(0)
	content := pdftest.Scanned(3)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := l.Load("", "scan.pdf", content, "application/pdf")
			if assert.NoError(t, err) {
				assert.Equal(t, 3, doc.PageCount())
			}
		}()
	}
	wg.Wait()
}
