// Package extraction turns a stored invoice document into an unvalidated
// invoice record, either by pattern-matching recognized text or by asking a
// vision-language model for JSON.
package extraction

import (
	"context"
	"fmt"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// Strategy names accepted in Config.Strategy.
const (
	StrategyAuto       = "auto"
	StrategyPattern    = "pattern"
	StrategyGenerative = "generative"
)

// Extractor produces an invoice from a stored document. Failures are
// returned as *Failure.
type Extractor interface {
	Extract(ctx context.Context, path string) (*invoice.Invoice, error)
	Close() error
}

// DocumentReader reads stored documents.
type DocumentReader interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

// Config selects and configures an extraction strategy.
type Config struct {
	Strategy string

	Recognizer        string // tesseract or vision
	TesseractBin      string
	TesseractLang     string
	VisionCredentials string

	Model         string // openai, gemini or ollama
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiKey     string
	GeminiModel   string
	OllamaURL     string
	OllamaModel   string
}

// ResolveStrategy picks the concrete strategy. "auto" prefers the OpenAI
// vision model when a key is configured and falls back to pattern matching.
func (c Config) ResolveStrategy() (strategy, model string) {
	switch c.Strategy {
	case StrategyPattern:
		return StrategyPattern, ""
	case StrategyGenerative:
		if c.Model == "" {
			return StrategyGenerative, "openai"
		}
		return StrategyGenerative, c.Model
	default:
		if c.OpenAIKey != "" {
			return StrategyGenerative, "openai"
		}
		return StrategyPattern, ""
	}
}

// New builds the extractor described by cfg.
func New(ctx context.Context, cfg Config, docs DocumentReader) (Extractor, error) {
	strategy, model := cfg.ResolveStrategy()
	if strategy == StrategyPattern {
		recognizer, err := newRecognizer(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPatternExtractor(docs, recognizer), nil
	}

	vm, err := newVisionModel(ctx, model, cfg)
	if err != nil {
		return nil, err
	}
	return NewGenerativeExtractor(docs, vm)
}

func newRecognizer(ctx context.Context, cfg Config) (Recognizer, error) {
	switch cfg.Recognizer {
	case "", "tesseract":
		return NewTesseract(cfg.TesseractBin, WithLanguage(cfg.TesseractLang)), nil
	case "vision":
		return NewGoogleVision(ctx, cfg.VisionCredentials)
	default:
		return nil, fmt.Errorf("unknown recognizer %q", cfg.Recognizer)
	}
}

func newVisionModel(ctx context.Context, model string, cfg Config) (VisionModel, error) {
	switch model {
	case "openai":
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case "gemini":
		return NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
	case "ollama":
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("unknown vision model %q", model)
	}
}
