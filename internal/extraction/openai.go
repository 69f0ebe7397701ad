package extraction

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const openAIMaxTokens = 4000

// OpenAI implements VisionModel with the chat completions API in JSON mode.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI vision model. baseURL targets an
// OpenAI-compatible endpoint and may be empty.
func NewOpenAI(apiKey, model, baseURL string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = openai.GPT4o
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}

	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Complete sends the prompt with the image as a base64 data URL.
func (o *OpenAI) Complete(ctx context.Context, image []byte) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: openAIMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: invoicePrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: invoiceInstruction},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op.
func (o *OpenAI) Close() error {
	return nil
}
