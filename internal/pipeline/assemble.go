package pipeline

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// PageSeparator joins rendered pages.
const PageSeparator = "\n\n---\n\n"

// Assemble orders results by page index. A page with no collected result is
// recorded as cancelled; none is ever dropped.
func Assemble(documentID string, pageCount int, results map[int]models.RecognitionResult) *models.Transcript {
	pages := make([]models.RecognitionResult, pageCount)
	for i := range pages {
		r, ok := results[i]
		if !ok {
			r = models.FailedResult(i, fmt.Errorf("%w: page %d did not complete before processing stopped", models.ErrCancelled, i))
		}
		r.PageIndex = i
		pages[i] = r
	}
	return &models.Transcript{
		DocumentID: documentID,
		Status:     models.StateOf(pages),
		Pages:      pages,
	}
}

// Render returns the transcript as plain text. Page numbers in markers are
// 1-based.
func Render(t *models.Transcript) string {
	parts := make([]string, len(t.Pages))
	for i, p := range t.Pages {
		switch p.Status {
		case models.PageStatusFailed:
			parts[i] = fmt.Sprintf("[page %d unavailable: %s: %s]", p.PageIndex+1, p.Cause, p.Error)
		case models.PageStatusLowConfidence:
			conf := 0.0
			if p.Confidence != nil {
				conf = *p.Confidence
			}
			parts[i] = fmt.Sprintf("[page %d low confidence: %.2f]\n%s", p.PageIndex+1, conf, p.Text)
		default:
			parts[i] = p.Text
		}
	}
	return strings.Join(parts, PageSeparator)
}
