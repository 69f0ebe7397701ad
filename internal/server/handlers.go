package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zombor/invoice-extractor/internal/apperr"
	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/service"
)

// maxUploadSize bounds multipart uploads (50MB covers high-resolution scans)
const maxUploadSize = int64(50 << 20)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// invoiceRequest is an invoice as submitted by the review UI, with the
// optional fields that travel alongside it.
type invoiceRequest struct {
	invoice.Invoice
	JobID         string          `json:"job_id"`
	OCRConfidence json.RawMessage `json:"ocr_confidence,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// readUpload pulls the "file" part out of a multipart request, writing the
// error response itself when it fails.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Maximum size is 50MB.", http.StatusBadRequest)
			return "", nil, false
		}
		writeError(w, "No file provided", http.StatusBadRequest)
		return "", nil, false
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "No file provided", http.StatusBadRequest)
		return "", nil, false
	}
	defer f.Close()

	if header.Filename == "" {
		writeError(w, "No file selected", http.StatusBadRequest)
		return "", nil, false
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return "", nil, false
	}
	return header.Filename, data, true
}

// decodeInvoice reads a JSON invoice body. An empty body or object is
// reported as no data.
func decodeInvoice(w http.ResponseWriter, r *http.Request) (*invoiceRequest, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		writeError(w, "No data provided", http.StatusBadRequest)
		return nil, false
	}

	var req invoiceRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// handleUpload stores a document and starts extraction
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	filename, data, ok := readUpload(w, r)
	if !ok {
		return
	}
	if !service.IsAllowedFile(filename) {
		writeError(w, service.UnsupportedTypeMessage, http.StatusBadRequest)
		return
	}

	jobID, err := s.service.Upload(r.Context(), filename, data)
	if err != nil {
		slog.Error("Error uploading file", "filename", filename, "error", err)
		if errors.Is(err, apperr.ErrInvalidInput) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, "Error uploading file", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"job_id":  jobID,
		"message": "Invoice uploaded and processing started",
	})
}

// handleProcessingStatus reports an extraction job's progress
func (s *Server) handleProcessingStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Status(r.Context(), r.PathValue("job_id"))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, "Job not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting job status", "job_id", r.PathValue("job_id"), "error", err)
		writeError(w, "Error getting job status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleExtract extracts an uploaded document in the request
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	filename, data, ok := readUpload(w, r)
	if !ok {
		return
	}
	if !service.IsAllowedFile(filename) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": service.UnsupportedTypeMessage})
		return
	}

	inv, err := s.service.ExtractUpload(r.Context(), filename, data)
	if err != nil {
		slog.Error("Error extracting invoice", "filename", filename, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to extract data from the invoice",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    inv,
		"message": "Invoice processed",
	})
}

// handleValidateInvoice checks an invoice without storing it
func (s *Server) handleValidateInvoice(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeInvoice(w, r)
	if !ok {
		return
	}

	valid, report := s.service.Validate(r.Context(), &req.Invoice)
	resp := map[string]any{
		"valid":  valid,
		"errors": nil,
	}
	if !valid {
		resp["errors"] = report
	}
	if len(req.OCRConfidence) > 0 {
		resp["ocr_confidence"] = req.OCRConfidence
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSubmitInvoice validates and stores an invoice
func (s *Server) handleSubmitInvoice(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeInvoice(w, r)
	if !ok {
		return
	}

	rec, report, err := s.service.SubmitInvoice(r.Context(), &req.Invoice, req.JobID)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "Invalid invoice data",
			"validation_errors": report,
		})
		return
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, "Vendor or customer not found in master data", http.StatusBadRequest)
		return
	case errors.Is(err, apperr.ErrInvalidInput):
		writeError(w, "No data provided", http.StatusBadRequest)
		return
	default:
		slog.Error("Error submitting invoice", "invoice_number", req.InvoiceNumber, "error", err)
		writeError(w, "Error submitting invoice", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"message":    "Invoice submitted successfully",
		"invoice_id": rec.ID,
	})
}

// handleGetInvoice returns a single invoice
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, "Invoice not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting invoice", "id", r.PathValue("id"), "error", err)
		writeError(w, "Error getting invoice", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// queryInt reads an integer query parameter, falling back to def when it
// is missing or malformed
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// handleListInvoices returns one page of invoices
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.ListInvoices(r.Context(), queryInt(r, "page", 1), queryInt(r, "per_page", 10))
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		writeError(w, "Error getting invoices", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleExportInvoices returns every invoice as a spreadsheet
func (s *Server) handleExportInvoices(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportInvoicesXLSX(r.Context())
	if err != nil {
		slog.Error("Error exporting invoices", "error", err)
		writeError(w, "Error exporting invoices", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// handleListCompanies returns the master companies
func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.service.ListCompanies(r.Context())
	if err != nil {
		slog.Error("Error listing companies", "error", err)
		writeError(w, "Error getting companies", http.StatusInternalServerError)
		return
	}
	if companies == nil {
		companies = []*invoice.Company{}
	}
	writeJSON(w, http.StatusOK, companies)
}

// handleListItems returns the master items
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListItems(r.Context())
	if err != nil {
		slog.Error("Error listing items", "error", err)
		writeError(w, "Error getting items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []*invoice.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}
