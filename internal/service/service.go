// Package service composes storage, extraction, job tracking, validation
// and persistence into the operations the HTTP server and CLI expose.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-extractor/internal/apperr"
	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/jobs"
	"github.com/zombor/invoice-extractor/internal/storage"
	"github.com/zombor/invoice-extractor/internal/validation"
)

// AllowedExtensions are the document types accepted for upload.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "pdf", "tiff", "tif", "heic", "heif"}

// UnsupportedTypeMessage is the user-facing text for a rejected upload.
const UnsupportedTypeMessage = "Invalid file type. Allowed types: png, jpg, jpeg, pdf, tiff, tif"

// ErrUnsupportedType is returned for uploads with a disallowed extension.
var ErrUnsupportedType = fmt.Errorf("%w: %s", apperr.ErrInvalidInput, UnsupportedTypeMessage)

// IDGenerator generates unique IDs for invoices and stored documents
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Store is the persistence the service needs.
type Store interface {
	validation.MasterData
	ListCompanies() ([]*invoice.Company, error)
	ListItems() ([]*invoice.Item, error)
	CreateInvoice(ctx context.Context, rec *invoice.Record) error
	GetInvoice(ctx context.Context, id string) (*invoice.Record, error)
	ListInvoices(ctx context.Context, page, perPage int) ([]*invoice.Record, int, error)
	AllInvoices(ctx context.Context) ([]*invoice.Record, error)
}

// Tracker runs background extraction jobs.
type Tracker interface {
	Submit(ctx context.Context, documentPath string) (string, error)
	Status(ctx context.Context, id string) (*jobs.StatusReport, error)
}

// Extractor extracts an invoice from a stored document.
type Extractor interface {
	Extract(ctx context.Context, path string) (*invoice.Invoice, error)
}

// Validator checks an invoice.
type Validator interface {
	Validate(inv *invoice.Invoice) (bool, *validation.Report)
}

// Service handles invoice operations
type Service struct {
	store       Store
	docs        storage.Storage
	tracker     Tracker
	extractor   Extractor
	validator   Validator
	idGenerator IDGenerator
	timeSource  TimeSource
	logger      *slog.Logger
}

// NewService creates a new Service with a uuid ID generator and the system clock
func NewService(store Store, docs storage.Storage, tracker Tracker, extractor Extractor, validator Validator) *Service {
	return NewServiceWithDeps(store, docs, tracker, extractor, validator, uuidGenerator{}, defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(store Store, docs storage.Storage, tracker Tracker, extractor Extractor, validator Validator, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		store:       store,
		docs:        docs,
		tracker:     tracker,
		extractor:   extractor,
		validator:   validator,
		idGenerator: idGen,
		timeSource:  timeSrc,
		logger:      slog.Default(),
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters from the base name and
// truncates it, keeping the extension
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "invoice"
	}
	return base + ext
}

// IsAllowedFile reports whether filename has an accepted document extension
func IsAllowedFile(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	return ext != "" && slices.Contains(AllowedExtensions, ext)
}

// saveDocument stores an upload as <id>_<sanitized name>
func (s *Service) saveDocument(ctx context.Context, filename string, data []byte) (string, error) {
	if !IsAllowedFile(filename) {
		return "", ErrUnsupportedType
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", apperr.ErrInvalidInput)
	}

	name := fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename))
	path, err := s.docs.Save(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("saving document: %w", err)
	}
	return path, nil
}

// Upload stores a document and starts background extraction. It returns
// the job id to poll.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	path, err := s.saveDocument(ctx, filename, data)
	if err != nil {
		return "", err
	}

	jobID, err := s.tracker.Submit(ctx, path)
	if err != nil {
		return "", fmt.Errorf("submitting job: %w", err)
	}
	return jobID, nil
}

// Status reports the progress of an extraction job
func (s *Service) Status(ctx context.Context, jobID string) (*jobs.StatusReport, error) {
	return s.tracker.Status(ctx, jobID)
}

// Validate checks an invoice without storing anything
func (s *Service) Validate(ctx context.Context, inv *invoice.Invoice) (bool, *validation.Report) {
	return s.validator.Validate(inv)
}

// ExtractSynchronously extracts an already stored document, bypassing the
// job tracker
func (s *Service) ExtractSynchronously(ctx context.Context, path string) (*invoice.Invoice, error) {
	inv, err := s.extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", path, err)
	}
	return inv, nil
}

// ExtractUpload stores a document and extracts it in the caller's goroutine
func (s *Service) ExtractUpload(ctx context.Context, filename string, data []byte) (*invoice.Invoice, error) {
	path, err := s.saveDocument(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	return s.ExtractSynchronously(ctx, path)
}
