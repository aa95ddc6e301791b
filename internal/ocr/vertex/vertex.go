// Package vertex implements ocr.Engine on a Gemini model served by Vertex AI.
package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/ocr"
)

const UserPrompt = `You will be provided with the image of a single scanned page.

Transcribe every piece of text on the page exactly as printed, in reading order.
Do not correct spelling, do not summarise, do not translate and do not describe images.
Keep line breaks where the page has them. If the page has no text, return an empty response.
Return only the transcription, without preamble and without code fences.`

// refusalPhrases mark a response where the model declined the task instead of
// transcribing the page.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// Generator is the subset of *genai.GenerativeModel used by the engine.
type Generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Engine transcribes page rasters with a generative model. The model reports
// no confidence, so Output.Confidence is always nil.
type Engine struct {
	model Generator
}

func New(model Generator) *Engine {
	return &Engine{model: model}
}

func (e *Engine) Name() string { return "vertex" }

func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (*ocr.Output, error) {
	format := in.Format
	if format == "" {
		format = models.FormatPNG
	}
	prompt := UserPrompt
	if len(in.Languages) > 0 {
		prompt += "\nThe page is expected to be in: " + strings.Join(in.Languages, ", ") + "."
	}

	resp, err := e.model.GenerateContent(ctx,
		genai.Blob{MIMEType: string(format), Data: in.Image},
		genai.Text(prompt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	if err := checkResponse(resp, in.PageIndex); err != nil {
		return nil, err
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		slog.Warn("Gemini stopped at the output token limit; the transcription may be truncated.", "page", in.PageIndex)
	}

	text, parts := extractText(resp)
	if parts > 1 {
		slog.Warn("Gemini response contained several text parts; they have been concatenated.", "page", in.PageIndex, "parts", parts)
	}
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return nil, fmt.Errorf("%w: gemini response for page %d: %q", ocr.ErrRefused, in.PageIndex, text)
		}
	}
	return &ocr.Output{Text: ocr.NormalizeText(text)}, nil
}

// checkResponse rejects responses that carry no transcription: a blocked
// prompt, a missing candidate or a candidate that stopped for any reason other
// than finishing or hitting the token limit. An empty page still comes back as
// a STOP candidate with no text.
func checkResponse(resp *genai.GenerateContentResponse, page int) error {
	if resp == nil {
		return fmt.Errorf("%w: gemini returned no response for page %d", ocr.ErrRefused, page)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockedReasonUnspecified {
		return fmt.Errorf("%w: gemini blocked the prompt for page %d: %s", ocr.ErrRefused, page, fb.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return fmt.Errorf("%w: gemini returned no candidates for page %d", ocr.ErrRefused, page)
	}
	switch reason := resp.Candidates[0].FinishReason; reason {
	case genai.FinishReasonStop, genai.FinishReasonMaxTokens:
		return nil
	default:
		return fmt.Errorf("%w: gemini stopped page %d with finish reason %s", ocr.ErrRefused, page, reason)
	}
}

// extractText concatenates the text parts of the first candidate and strips a
// surrounding code fence.
func extractText(resp *genai.GenerateContentResponse) (string, int) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", 0
	}

	var b strings.Builder
	parts := 0
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
			parts++
		}
	}

	s := strings.TrimSpace(b.String())
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " \t") {
			s = s[nl+1:] // drop the fence's language tag
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s), parts
}
