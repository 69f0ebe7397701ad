package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements VisionModel using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini vision model
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Complete asks Gemini to describe the invoice image
func (g *Gemini) Complete(ctx context.Context, image []byte) (string, error) {
	// genai.ImageData takes the format suffix, not the MIME type
	parts := []genai.Part{
		genai.ImageData("png", image),
		genai.Text(invoicePrompt + "\n\n" + invoiceInstruction),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
