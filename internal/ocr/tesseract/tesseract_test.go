package tesseract_test

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/ocr"
	"github.com/Lllllllleong/ocrflow/internal/ocr/tesseract"
	"github.com/Lllllllleong/ocrflow/internal/pdftest"
)

func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	img := pdftest.PNG(pdftest.TextImage("Hello PDF", 200, 80))
	out, err := tesseract.New().Recognize(context.Background(), ocr.Input{
		Image:     img,
		Format:    models.FormatPNG,
		DPI:       300,
		Languages: []string{"eng"},
	})
	require.NoError(t, err)

	got := strings.ToLower(out.Text)
	assert.Contains(t, got, "hello")
	require.NotNil(t, out.Confidence)
	assert.InDelta(t, 0.5, *out.Confidence, 0.5)
}

func TestRecognize_BlankImageIsEmptyText(t *testing.T) {
	ensureTesseractAvailable(t)

	img := pdftest.PNG(pdftest.TextImage("", 120, 60))
	out, err := tesseract.New().Recognize(context.Background(), ocr.Input{Image: img, Languages: []string{"eng"}})
	require.NoError(t, err)
	assert.Empty(t, out.Text)
	assert.Nil(t, out.Confidence)
}

func TestRegistered(t *testing.T) {
	e, err := ocr.Lookup("tesseract")
	require.NoError(t, err)
	assert.Equal(t, "tesseract", e.Name())
}
