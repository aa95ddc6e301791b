package models

// These structs define the JSON payloads exchanged with the recognizer
// functions and the downstream workflow.

// RecognizeOptions carries per-request overrides of the pipeline defaults.
// Zero values keep the configured default.
type RecognizeOptions struct {
	DPI                    int      `json:"dpi,omitempty"`
	Concurrency            int      `json:"concurrency,omitempty"`
	PageTimeoutSeconds     int      `json:"pageTimeoutSeconds,omitempty"`
	DocumentTimeoutSeconds int      `json:"documentTimeoutSeconds,omitempty"`
	ConfidenceThreshold    *float64 `json:"confidenceThreshold,omitempty"`
	Languages              []string `json:"languages,omitempty"`
	PageSegMode            int      `json:"pageSegMode,omitempty"`
	TextLayer              *bool    `json:"textLayer,omitempty"`
	TextLayerMinChars      int      `json:"textLayerMinChars,omitempty"`
}

// RecognizeRequest is the input for the document-recognizer function. Exactly
// one of Content or GCSUri must be set.
type RecognizeRequest struct {
	DocumentID  string            `json:"documentId,omitempty"`
	Filename    string            `json:"filename,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	Content     []byte            `json:"content,omitempty"` // base64 in JSON
	GCSUri      string            `json:"gcsUri,omitempty"`
	Options     *RecognizeOptions `json:"options,omitempty"`
}

// RecognizeResponse is the output of the document-recognizer function.
type RecognizeResponse struct {
	DocumentID  string              `json:"documentId"`
	Status      DocumentState       `json:"status"`
	PageCount   int                 `json:"pageCount"`
	FailedPages []int               `json:"failedPages,omitempty"`
	Text        string              `json:"text"`
	Pages       []RecognitionResult `json:"pages"`
}

// ErrorResponse is returned by the HTTP function on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WorkflowPayload is the argument passed to the downstream workflow once a
// transcript has been saved.
type WorkflowPayload struct {
	DocumentID    string        `json:"documentId"`
	Status        DocumentState `json:"status"`
	PageCount     int           `json:"pageCount"`
	FailedPages   []int         `json:"failedPages,omitempty"`
	TranscriptURI string        `json:"transcriptUri,omitempty"`
}
