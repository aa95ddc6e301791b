package models

import (
	"strings"
	"time"
)

// Format identifies the encoding of a document or a page payload by MIME type.
type Format string

const (
	FormatPDF  Format = "application/pdf"
	FormatPNG  Format = "image/png"
	FormatJPEG Format = "image/jpeg"
	FormatGIF  Format = "image/gif"
	FormatTIFF Format = "image/tiff"
	FormatBMP  Format = "image/bmp"
	FormatWebP Format = "image/webp"
)

// IsImage reports whether the format is a single-page raster image.
func (f Format) IsImage() bool {
	return strings.HasPrefix(string(f), "image/")
}

// PageRef points at one page of a Document by its zero-based index.
type PageRef struct {
	Index int `json:"index"`
}

// Document is a loaded input whose pages can be enumerated. It is never
// modified after the loader returns it.
type Document struct {
	ID     string
	Name   string
	Format Format
	Pages  []PageRef

	content []byte
}

// NewDocument builds a Document with pages 0..pageCount-1.
func NewDocument(id, name string, format Format, pageCount int, content []byte) *Document {
	pages := make([]PageRef, pageCount)
	for i := range pages {
		pages[i] = PageRef{Index: i}
	}
	return &Document{
		ID:      id,
		Name:    name,
		Format:  format,
		Pages:   pages,
		content: content,
	}
}

// PageCount returns the number of pages in the document.
func (d *Document) PageCount() int { return len(d.Pages) }

// Content returns the raw document bytes. Callers must treat the slice as read-only.
func (d *Document) Content() []byte { return d.content }

// Payload is a page raster held in transient storage. Release reclaims the
// storage and is safe to call more than once.
type Payload interface {
	Bytes() ([]byte, error)
	Size() int64
	Release() error
}

// Page is the raster produced for one document page.
type Page struct {
	Index   int
	DPI     int // 0 means the native resolution of an image input
	Format  Format
	Width   int
	Height  int
	Payload Payload
}

// DocumentRecord is the Firestore record that tracks an uploaded document
// through recognition.
type DocumentRecord struct {
	ID                  string        `firestore:"-"`
	FileHash            string        `firestore:"fileHash,omitempty"`
	OriginalFilename    string        `firestore:"originalFilename,omitempty"`
	SourceURI           string        `firestore:"sourceUri,omitempty"`
	Status              DocumentState `firestore:"status,omitempty"`
	ErrorDetails        string        `firestore:"errorDetails,omitempty"`
	PageCount           int           `firestore:"pageCount,omitempty"`
	FailedPages         []int         `firestore:"failedPages,omitempty"`
	TranscriptURI       string        `firestore:"transcriptUri,omitempty"`
	WorkflowExecutionID string        `firestore:"workflowExecutionId,omitempty"` // For traceability
	CreatedAt           time.Time     `firestore:"createdAt,omitempty"`
	UpdatedAt           time.Time     `firestore:"updatedAt,omitempty"`
}
