package models

// PageStatus is the outcome of recognizing one page.
type PageStatus string

const (
	PageStatusOK            PageStatus = "ok"
	PageStatusLowConfidence PageStatus = "low_confidence"
	PageStatusFailed        PageStatus = "failed"
)

// DocumentState tracks a document through the pipeline:
// LOADED -> PROCESSING -> {COMPLETED, PARTIALLY_COMPLETED, FAILED}.
type DocumentState string

const (
	StateReceived           DocumentState = "RECEIVED"
	StateLoaded             DocumentState = "LOADED"
	StateProcessing         DocumentState = "PROCESSING"
	StateCompleted          DocumentState = "COMPLETED"
	StatePartiallyCompleted DocumentState = "PARTIALLY_COMPLETED"
	StateFailed             DocumentState = "FAILED"
)

// RecognitionResult is the single result recorded for a page.
type RecognitionResult struct {
	PageIndex     int        `json:"pageIndex"`
	Text          string     `json:"text"`
	Confidence    *float64   `json:"confidence,omitempty"` // nil when the engine cannot report one
	Status        PageStatus `json:"status"`
	Cause         Cause      `json:"cause,omitempty"`
	Error         string     `json:"error,omitempty"`
	DPI           int        `json:"dpi,omitempty"`
	Engine        string     `json:"engine,omitempty"`
	ElapsedMillis int64      `json:"elapsedMs"`
}

// Succeeded reports whether the page produced usable text.
func (r RecognitionResult) Succeeded() bool {
	return r.Status == PageStatusOK || r.Status == PageStatusLowConfidence
}

// FailedResult builds the failed result for a page from a page-scoped error.
func FailedResult(pageIndex int, err error) RecognitionResult {
	res := RecognitionResult{
		PageIndex: pageIndex,
		Status:    PageStatusFailed,
		Cause:     CauseOf(err),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// Transcript is the ordered, per-page annotated output for a document.
type Transcript struct {
	DocumentID string              `json:"documentId"`
	Status     DocumentState       `json:"status"`
	Pages      []RecognitionResult `json:"pages"`
}

// FailedPages returns the indices of pages that failed, in order.
func (t *Transcript) FailedPages() []int {
	var failed []int
	for _, p := range t.Pages {
		if !p.Succeeded() {
			failed = append(failed, p.PageIndex)
		}
	}
	return failed
}

// SucceededPages counts pages with usable text.
func (t *Transcript) SucceededPages() int {
	n := 0
	for _, p := range t.Pages {
		if p.Succeeded() {
			n++
		}
	}
	return n
}

// StateOf derives the terminal document state from per-page results.
func StateOf(pages []RecognitionResult) DocumentState {
	if len(pages) == 0 {
		return StateFailed
	}
	ok := 0
	for _, p := range pages {
		if p.Succeeded() {
			ok++
		}
	}
	switch ok {
	case len(pages):
		return StateCompleted
	case 0:
		return StateFailed
	default:
		return StatePartiallyCompleted
	}
}
