package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-extractor/internal/config"
	"github.com/zombor/invoice-extractor/internal/extraction"
	"github.com/zombor/invoice-extractor/internal/jobs"
	"github.com/zombor/invoice-extractor/internal/server"
	"github.com/zombor/invoice-extractor/internal/service"
	"github.com/zombor/invoice-extractor/internal/store"
	"github.com/zombor/invoice-extractor/internal/validation"
	"github.com/zombor/invoice-extractor/internal/version"
)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version.Version)
			os.Exit(0)
		}
	}

	// A missing .env is normal outside development
	_ = godotenv.Load()

	def := config.Default()
	fs := ff.NewFlagSet("invoice-extractor")
	var (
		port      = fs.IntLong("port", def.Port, "HTTP server port")
		dbPath    = fs.StringLong("db", def.DBPath, "Database file path")
		authUser  = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass  = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel  = fs.StringLong("log-level", def.LogLevel, "Log level: debug, info, warn or error")
		logFormat = fs.StringLong("log-format", def.LogFormat, "Log format: text or json")
		seed      = fs.BoolLong("seed", "Seed the built-in master data on startup")

		storageType = fs.StringLong("storage", def.Storage, "Document storage: local or s3")
		storagePath = fs.StringLong("storage-path", def.StoragePath, "Local document directory")
		s3Bucket    = fs.StringLong("s3-bucket", "", "S3 bucket for documents")
		s3Endpoint  = fs.StringLong("s3-endpoint", "", "S3-compatible endpoint URL (e.g. MinIO)")
		s3Region    = fs.StringLong("s3-region", def.S3Region, "S3 region")
		s3AccessKey = fs.StringLong("s3-access-key", "", "S3 access key (default credential chain when empty)")
		s3SecretKey = fs.StringLong("s3-secret-key", "", "S3 secret key")
		s3PathStyle = fs.BoolLong("s3-path-style", "Use path-style S3 addressing")

		strategy          = fs.StringLong("strategy", def.Strategy, "Extraction strategy: auto, pattern or generative")
		recognizer        = fs.StringLong("recognizer", def.Recognizer, "Text recognizer for the pattern strategy: tesseract or vision")
		tesseractBin      = fs.StringLong("tesseract-bin", def.TesseractBin, "Tesseract executable")
		tesseractLang     = fs.StringLong("tesseract-lang", def.TesseractLang, "Tesseract language")
		visionCredentials = fs.StringLong("vision-credentials", "", "Google Cloud Vision credentials file (or set GOOGLE_APPLICATION_CREDENTIALS)")
		model             = fs.StringLong("model", "", "Vision model for the generative strategy: openai, gemini or ollama")
		openAIKey         = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openAIModel       = fs.StringLong("openai-model", def.OpenAIModel, "OpenAI model name")
		openAIBaseURL     = fs.StringLong("openai-base-url", "", "OpenAI-compatible API base URL")
		geminiKey         = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel       = fs.StringLong("gemini-model", def.GeminiModel, "Google Gemini model name")
		ollamaURL         = fs.StringLong("ollama-url", def.OllamaURL, "Ollama API base URL")
		ollamaModel       = fs.StringLong("ollama-model", def.OllamaModel, "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")

		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix(config.EnvPrefix),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version.Version)
		os.Exit(0)
	}

	cfg := &config.Config{
		Port:              *port,
		DBPath:            *dbPath,
		AuthUser:          *authUser,
		AuthPass:          *authPass,
		LogLevel:          *logLevel,
		LogFormat:         *logFormat,
		Seed:              *seed,
		Storage:           *storageType,
		StoragePath:       *storagePath,
		S3Bucket:          *s3Bucket,
		S3Endpoint:        *s3Endpoint,
		S3Region:          *s3Region,
		S3AccessKey:       *s3AccessKey,
		S3SecretKey:       *s3SecretKey,
		S3PathStyle:       *s3PathStyle,
		Strategy:          *strategy,
		Recognizer:        *recognizer,
		TesseractBin:      *tesseractBin,
		TesseractLang:     *tesseractLang,
		VisionCredentials: *visionCredentials,
		Model:             *model,
		OpenAIKey:         *openAIKey,
		OpenAIModel:       *openAIModel,
		OpenAIBaseURL:     *openAIBaseURL,
		GeminiKey:         *geminiKey,
		GeminiModel:       *geminiModel,
		OllamaURL:         *ollamaURL,
		OllamaModel:       *ollamaModel,
	}
	cfg.ApplyEnvFallbacks(os.Getenv)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Initializing database...", "path", cfg.DBPath)
	db, err := store.NewBoltDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if cfg.Seed {
		md, err := store.DefaultMasterData()
		if err != nil {
			return fmt.Errorf("loading master data: %w", err)
		}
		result, err := db.Seed(md)
		if err != nil {
			return fmt.Errorf("seeding master data: %w", err)
		}
		slog.Info("Master data seeded", "companies", result.Companies, "items", result.Items)
	}

	slog.Info("Initializing storage...", "type", cfg.Storage)
	docs, err := cfg.OpenStorage(ctx, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	extCfg := cfg.Extraction()
	strategy, model := extCfg.ResolveStrategy()
	slog.Info("Initializing extractor...", "strategy", strategy, "model", model, "recognizer", cfg.Recognizer)
	extractor, err := extraction.New(ctx, extCfg, docs)
	if err != nil {
		return fmt.Errorf("initializing extractor: %w", err)
	}
	defer extractor.Close()

	tracker := jobs.NewTracker(db, extractor, jobs.WithLogger(logger))
	validator := validation.New(db, validation.WithLogger(logger))
	invoiceService := service.NewService(db, docs, tracker, extractor, validator)

	basicAuth := server.BasicAuth{
		Username: cfg.AuthUser,
		Password: cfg.AuthPass,
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.NewServer(invoiceService, basicAuth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", httpServer.Addr))
	if cfg.AuthUser != "" {
		slog.Info("Basic auth enabled", "user", cfg.AuthUser)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping server", "error", err)
	}
	if err := tracker.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Extraction jobs still running at exit", "error", err)
	}
	return nil
}
