package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

const RecognizerSystemPrompt = "You are an optical character recognition engine. You transcribe the text printed on scanned document pages verbatim. You never correct, summarise, translate or interpret the text."

// VertexClient holds the generative model used for page recognition.
type VertexClient struct {
	RecognizerModel *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a client with a recognizer model configured for
// deterministic transcription.
func NewVertexClient(ctx context.Context, projectID, region, model string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	recognizerModel := baseClient.GenerativeModel(model)
	recognizerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(RecognizerSystemPrompt)},
	}
	recognizerModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "text/plain",
		Temperature:      genai.Ptr[float32](0.0), // identical pages must give identical text
	}
	recognizerModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		RecognizerModel: recognizerModel,
		baseClient:      baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
