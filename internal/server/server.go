// Package server exposes the invoice service as a JSON HTTP API.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/jobs"
	"github.com/zombor/invoice-extractor/internal/service"
	"github.com/zombor/invoice-extractor/internal/validation"
)

// InvoiceService is the application surface the handlers call.
type InvoiceService interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
	Status(ctx context.Context, jobID string) (*jobs.StatusReport, error)
	Validate(ctx context.Context, inv *invoice.Invoice) (bool, *validation.Report)
	SubmitInvoice(ctx context.Context, inv *invoice.Invoice, jobID string) (*invoice.Record, *validation.Report, error)
	ExtractUpload(ctx context.Context, filename string, data []byte) (*invoice.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*invoice.Record, error)
	ListInvoices(ctx context.Context, page, perPage int) (*service.InvoicePage, error)
	ListCompanies(ctx context.Context) ([]*invoice.Company, error)
	ListItems(ctx context.Context) ([]*invoice.Item, error)
	ExportInvoicesXLSX(ctx context.Context) ([]byte, error)
}

// Server handles HTTP requests for invoices
type Server struct {
	service   InvoiceService
	basicAuth BasicAuth
	mux       *http.ServeMux
	now       func() time.Time
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(svc InvoiceService, basicAuth BasicAuth) *Server {
	return NewServerWithMux(svc, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(svc InvoiceService, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   svc,
		basicAuth: basicAuth,
		mux:       mux,
		now:       time.Now,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Invoice Extractor"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/upload", s.requireAuth(s.handleUpload))
	s.mux.HandleFunc("GET /api/processing/{job_id}", s.requireAuth(s.handleProcessingStatus))
	s.mux.HandleFunc("POST /api/extract", s.requireAuth(s.handleExtract))

	s.mux.HandleFunc("POST /api/validate-invoice", s.requireAuth(s.handleValidateInvoice))
	s.mux.HandleFunc("POST /api/submit-invoice", s.requireAuth(s.handleSubmitInvoice))

	s.mux.HandleFunc("GET /api/invoices/export", s.requireAuth(s.handleExportInvoices))
	s.mux.HandleFunc("GET /api/invoices/{id}", s.requireAuth(s.handleGetInvoice))
	s.mux.HandleFunc("GET /api/invoices", s.requireAuth(s.handleListInvoices))

	s.mux.HandleFunc("GET /api/companies", s.requireAuth(s.handleListCompanies))
	s.mux.HandleFunc("GET /api/items", s.requireAuth(s.handleListItems))
}

// ServeHTTP sets CORS headers on every response and answers preflight
// requests before routing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}
