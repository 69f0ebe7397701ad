package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama implements VisionModel against a local Ollama server.
// Vision models that read invoices reasonably well:
//   - llava:1.6
//   - qwen2-vl:7b
//   - llava-phi3 (smaller and faster, less accurate)
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama vision model
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Complete posts the prompt and image to /api/chat in JSON format mode
func (o *Ollama) Complete(ctx context.Context, image []byte) (string, error) {
	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: invoicePrompt,
			},
			{
				Role:    "user",
				Content: invoiceInstruction,
				Images:  []string{base64.StdEncoding.EncodeToString(image)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return chatResp.Message.Content, nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
