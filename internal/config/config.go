// Package config holds the settings shared by the daemon and the CLI and
// builds the pieces that depend on them.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/zombor/invoice-extractor/internal/apperr"
	"github.com/zombor/invoice-extractor/internal/extraction"
	"github.com/zombor/invoice-extractor/internal/storage"
)

// EnvPrefix prefixes every environment variable that mirrors a flag.
const EnvPrefix = "INVOICE_EXTRACTOR"

// Config is the assembled runtime configuration.
type Config struct {
	Port      int    `validate:"min=1,max=65535"`
	DBPath    string `validate:"required"`
	AuthUser  string
	AuthPass  string `validate:"required_with=AuthUser"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
	Seed      bool

	Storage     string `validate:"oneof=local s3"`
	StoragePath string `validate:"required_if=Storage local"`
	S3Bucket    string `validate:"required_if=Storage s3"`
	S3Endpoint  string `validate:"omitempty,url"`
	S3Region    string
	S3AccessKey string
	S3SecretKey string `validate:"required_with=S3AccessKey"`
	S3PathStyle bool

	Strategy          string `validate:"oneof=auto pattern generative"`
	Recognizer        string `validate:"oneof=tesseract vision"`
	TesseractBin      string
	TesseractLang     string
	VisionCredentials string
	Model             string `validate:"omitempty,oneof=openai gemini ollama"`
	OpenAIKey         string
	OpenAIModel       string
	OpenAIBaseURL     string `validate:"omitempty,url"`
	GeminiKey         string
	GeminiModel       string
	OllamaURL         string `validate:"omitempty,url"`
	OllamaModel       string
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:          8080,
		DBPath:        "invoices.db",
		LogLevel:      "info",
		LogFormat:     "text",
		Storage:       "local",
		StoragePath:   "./uploads",
		S3Region:      "us-east-1",
		Strategy:      "auto",
		Recognizer:    "tesseract",
		TesseractBin:  "tesseract",
		TesseractLang: "eng",
		OpenAIModel:   "gpt-4o",
		GeminiModel:   "gemini-2.5-pro",
		OllamaURL:     "http://localhost:11434",
		OllamaModel:   "llava",
	}
}

// ApplyEnvFallbacks fills credentials that were not given as flags from the
// conventional provider variables.
func (c *Config) ApplyEnvFallbacks(getenv func(string) string) {
	if c.OpenAIKey == "" {
		c.OpenAIKey = getenv("OPENAI_API_KEY")
	}
	if c.GeminiKey == "" {
		c.GeminiKey = getenv("GEMINI_API_KEY")
	}
	if c.VisionCredentials == "" {
		c.VisionCredentials = getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
}

// Validate checks the struct tags and the cross-field rules they cannot
// express.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: configuration: %s", apperr.ErrInvalidInput, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("validating configuration: %w", err)
	}

	if c.Strategy == extraction.StrategyGenerative {
		_, model := c.Extraction().ResolveStrategy()
		if model == "openai" && c.OpenAIKey == "" {
			return fmt.Errorf("%w: configuration: the openai model needs an API key", apperr.ErrInvalidInput)
		}
		if model == "gemini" && c.GeminiKey == "" {
			return fmt.Errorf("%w: configuration: the gemini model needs an API key", apperr.ErrInvalidInput)
		}
	}
	return nil
}

// Extraction returns the extraction settings.
func (c *Config) Extraction() extraction.Config {
	return extraction.Config{
		Strategy:          c.Strategy,
		Recognizer:        c.Recognizer,
		TesseractBin:      c.TesseractBin,
		TesseractLang:     c.TesseractLang,
		VisionCredentials: c.VisionCredentials,
		Model:             c.Model,
		OpenAIKey:         c.OpenAIKey,
		OpenAIModel:       c.OpenAIModel,
		OpenAIBaseURL:     c.OpenAIBaseURL,
		GeminiKey:         c.GeminiKey,
		GeminiModel:       c.GeminiModel,
		OllamaURL:         c.OllamaURL,
		OllamaModel:       c.OllamaModel,
	}
}

// OpenStorage builds the configured document store, creating the bucket or
// directory when it does not exist yet.
func (c *Config) OpenStorage(ctx context.Context, logger *slog.Logger) (storage.Storage, error) {
	if c.Storage != "s3" {
		return storage.NewLocalStorage(c.StoragePath)
	}

	s3, err := storage.NewS3Storage(ctx, storage.S3Config{
		Bucket:       c.S3Bucket,
		Endpoint:     c.S3Endpoint,
		Region:       c.S3Region,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		UsePathStyle: c.S3PathStyle,
		Prefix:       "uploads/",
	}, storage.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3, nil
}

// NewLogger builds the slog logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
