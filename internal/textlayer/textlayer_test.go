package textlayer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/ocrflow/internal/pdftest"
	"github.com/Lllllllleong/ocrflow/internal/textlayer"
)

func TestPageText(t *testing.T) {
	doc, err := textlayer.Open(pdftest.Build(
		pdftest.DigitalPage("Invoice 2024-117 (final)"),
		pdftest.ScannedPage("scanned"),
	))
	require.NoError(t, err)

	text, err := doc.PageText(0)
	require.NoError(t, err)
	assert.Contains(t, text, "Invoice 2024-117")
	assert.Contains(t, text, "(final)")

	text, err = doc.PageText(1)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(text))

	_, err = doc.PageText(2)
	assert.Error(t, err)
}

func TestOpen_NotAPDF(t *testing.T) {
	_, err := textlayer.Open([]byte("plain words, no pdf here"))
	assert.Error(t, err)
}

func TestUsable(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		minChars int
		want     bool
	}{
		{"long enough", strings.Repeat("word ", 20), 50, true},
		{"too short", "short text", 50, false},
		{"whitespace only", "   \n\t  ", 0, false},
		{"spaces do not count", strings.Repeat("a ", 30), 50, false},
		{"control characters", strings.Repeat("\x01\x02\x03", 30), 50, false},
		{"zero minimum", "x", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, textlayer.Usable(tt.text, tt.minChars))
		})
	}
}
