package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zombor/invoice-extractor/internal/config"
	"github.com/zombor/invoice-extractor/internal/store"
	"github.com/zombor/invoice-extractor/internal/version"
)

func main() {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// envOr returns the prefixed environment variable for flag, or def.
func envOr(flag, def string) string {
	key := config.EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	root := &cobra.Command{
		Use:   "invoicectl",
		Short: "Operator tool for the invoice extractor",
		Long: `invoicectl runs single-shot invoice operations against the same
database and extraction settings the daemon uses: extracting a document,
validating an invoice file, seeding master data and exporting invoices.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg.ApplyEnvFallbacks(os.Getenv)
			if err := cfg.Validate(); err != nil {
				return err
			}
			slog.SetDefault(cfg.NewLogger(cmd.ErrOrStderr()))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.DBPath, "db", envOr("db", cfg.DBPath), "Database file path")
	flags.StringVar(&cfg.LogLevel, "log-level", envOr("log-level", "warn"), "Log level: debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", envOr("log-format", cfg.LogFormat), "Log format: text or json")
	flags.StringVar(&cfg.Strategy, "strategy", envOr("strategy", cfg.Strategy), "Extraction strategy: auto, pattern or generative")
	flags.StringVar(&cfg.Recognizer, "recognizer", envOr("recognizer", cfg.Recognizer), "Text recognizer: tesseract or vision")
	flags.StringVar(&cfg.TesseractBin, "tesseract-bin", envOr("tesseract-bin", cfg.TesseractBin), "Tesseract executable")
	flags.StringVar(&cfg.TesseractLang, "tesseract-lang", envOr("tesseract-lang", cfg.TesseractLang), "Tesseract language")
	flags.StringVar(&cfg.VisionCredentials, "vision-credentials", envOr("vision-credentials", ""), "Google Cloud Vision credentials file")
	flags.StringVar(&cfg.Model, "model", envOr("model", ""), "Vision model: openai, gemini or ollama")
	flags.StringVar(&cfg.OpenAIKey, "openai-key", envOr("openai-key", ""), "OpenAI API key (or set OPENAI_API_KEY)")
	flags.StringVar(&cfg.OpenAIModel, "openai-model", envOr("openai-model", cfg.OpenAIModel), "OpenAI model name")
	flags.StringVar(&cfg.OpenAIBaseURL, "openai-base-url", envOr("openai-base-url", ""), "OpenAI-compatible API base URL")
	flags.StringVar(&cfg.GeminiKey, "gemini-key", envOr("gemini-key", ""), "Google Gemini API key (or set GEMINI_API_KEY)")
	flags.StringVar(&cfg.GeminiModel, "gemini-model", envOr("gemini-model", cfg.GeminiModel), "Google Gemini model name")
	flags.StringVar(&cfg.OllamaURL, "ollama-url", envOr("ollama-url", cfg.OllamaURL), "Ollama API base URL")
	flags.StringVar(&cfg.OllamaModel, "ollama-model", envOr("ollama-model", cfg.OllamaModel), "Ollama model name")

	root.AddCommand(
		newExtractCmd(cfg),
		newValidateCmd(cfg),
		newSeedCmd(cfg),
		newExportCmd(cfg),
	)
	return root
}

// openDB opens the configured database for one command.
func openDB(cfg *config.Config) (*store.BoltDB, error) {
	db, err := store.NewBoltDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}
	return db, nil
}
