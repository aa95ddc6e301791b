// Package textlayer reads the text embedded in digitally produced PDF pages so
// they can skip rasterization and OCR.
package textlayer

import (
	"bytes"
	"fmt"
	"sync"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// DefaultMinChars is the least embedded text, in non-space characters, a page
// needs before its text layer is trusted over OCR.
const DefaultMinChars = 50

// Document is a parsed PDF. It is safe for concurrent use.
type Document struct {
	mu     sync.Mutex
	reader *pdf.Reader
}

// Open parses data. The parser panics on some malformed files; those are
// reported as errors.
func Open(data []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}
	return &Document{reader: reader}, nil
}

// PageText returns the text drawn on the page with the given zero-based index.
func (d *Document) PageText(index int) (text string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to read text of page %d: %v", index, r)
		}
	}()

	if index < 0 || index >= d.reader.NumPage() {
		return "", fmt.Errorf("page %d out of range (document has %d pages)", index, d.reader.NumPage())
	}
	page := d.reader.Page(index + 1)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d not found", index)
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to read text of page %d: %w", index, err)
	}
	return text, nil
}

// Usable reports whether text holds at least minChars non-space characters,
// nearly all of them printable. Fonts without a usable encoding decode to
// control characters, which must not pass for a text layer.
func Usable(text string, minChars int) bool {
	total, printable := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsPrint(r) && r != unicode.ReplacementChar {
			printable++
		}
	}
	return total > 0 && total >= minChars && printable*10 >= total*9
}
