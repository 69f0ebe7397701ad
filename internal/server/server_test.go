package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-extractor/internal/apperr"
	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/jobs"
	"github.com/zombor/invoice-extractor/internal/service"
	"github.com/zombor/invoice-extractor/internal/validation"
)

func TestServer(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Server Suite")
}

// mockService is a mock implementation of InvoiceService
type mockService struct {
	uploaded    []string
	uploadErr   error
	reports     map[string]*jobs.StatusReport
	report      *validation.Report
	submitErr   error
	submittedBy string
	extracted   *invoice.Invoice
	extractErr  error
	invoices    map[string]*invoice.Record
	page        *service.InvoicePage
	pageArgs    [2]int
	listErr     error
	companies   []*invoice.Company
	items       []*invoice.Item
	export      []byte
}

func newMockService() *mockService {
	return &mockService{
		reports:  make(map[string]*jobs.StatusReport),
		invoices: make(map[string]*invoice.Record),
		report:   &validation.Report{Fields: map[string]string{}},
	}
}

func (m *mockService) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	m.uploaded = append(m.uploaded, filename)
	return "job-1", nil
}

func (m *mockService) Status(ctx context.Context, jobID string) (*jobs.StatusReport, error) {
	r, ok := m.reports[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, apperr.ErrNotFound)
	}
	return r, nil
}

func (m *mockService) Validate(ctx context.Context, inv *invoice.Invoice) (bool, *validation.Report) {
	return m.report.OK(), m.report
}

func (m *mockService) SubmitInvoice(ctx context.Context, inv *invoice.Invoice, jobID string) (*invoice.Record, *validation.Report, error) {
	m.submittedBy = jobID
	if m.submitErr != nil {
		return nil, m.report, m.submitErr
	}
	return &invoice.Record{ID: "inv-1", InvoiceNumber: inv.InvoiceNumber}, m.report, nil
}

func (m *mockService) ExtractUpload(ctx context.Context, filename string, data []byte) (*invoice.Invoice, error) {
	return m.extracted, m.extractErr
}

func (m *mockService) GetInvoice(ctx context.Context, id string) (*invoice.Record, error) {
	rec, ok := m.invoices[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return rec, nil
}

func (m *mockService) ListInvoices(ctx context.Context, page, perPage int) (*service.InvoicePage, error) {
	m.pageArgs = [2]int{page, perPage}
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.page, nil
}

func (m *mockService) ListCompanies(ctx context.Context) ([]*invoice.Company, error) {
	return m.companies, m.listErr
}

func (m *mockService) ListItems(ctx context.Context) ([]*invoice.Item, error) {
	return m.items, m.listErr
}

func (m *mockService) ExportInvoicesXLSX(ctx context.Context) ([]byte, error) {
	return m.export, m.listErr
}

func multipartBody(field, filename string, content []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if field != "" {
		part, err := writer.CreateFormFile(field, filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(content)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeBody(resp *http.Response) map[string]any {
	defer resp.Body.Close()
	var out map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return out
}

const invoiceJSON = `{
	"vendor": {"name": "Apex Nova Pvt Ltd", "gstin": "27AAPCA1234F1Z2"},
	"customer": {"name": "Galaxy Supplies", "gstin": "27AABCG9999Q1Z5"},
	"invoice_number": "INV-25-100",
	"invoice_date": "2025-05-07",
	"subtotal": 5100,
	"tax_amount": "918.00",
	"total_amount": 6018,
	"line_items": [],
	"job_id": "job-7",
	"ocr_confidence": 87.5
}`

var _ = Describe("Server", func() {
	var (
		svc         *mockService
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		svc = newMockService()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		server := NewServerWithMux(svc, auth, http.NewServeMux())
		server.now = func() time.Time { return time.Date(2025, 5, 7, 10, 0, 0, 0, time.UTC) }
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	post := func(path, contentType string, body io.Reader) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+path, contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	get := func(path string) *http.Response {
		resp, err := http.Get(ghttpServer.URL() + path)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("handleHealth", func() {
		It("should report ok with a timestamp", func() {
			resp := get("/api/health")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(decodeBody(resp)).To(Equal(map[string]any{"status": "ok", "timestamp": "2025-05-07T10:00:00Z"}))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("should reject requests without credentials", func() {
			resp := get("/api/companies")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			resp.Body.Close()
		})

		It("should accept the configured credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/companies", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})

		It("should reject the wrong password", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/companies", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "nope")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("should leave health open", func() {
			resp := get("/api/health")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("preflight", func() {
		It("should answer OPTIONS with no content", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/upload", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
			resp.Body.Close()
		})
	})

	Describe("handleUpload", func() {
		It("should accept a document and return the job id", func() {
			body, ct := multipartBody("file", "invoice.png", []byte("png"))
			resp := post("/api/upload", ct, body)
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			out := decodeBody(resp)
			Expect(out["success"]).To(BeTrue())
			Expect(out["job_id"]).To(Equal("job-1"))
			Expect(svc.uploaded).To(Equal([]string{"invoice.png"}))
		})

		It("should reject a missing file", func() {
			body, ct := multipartBody("", "", nil)
			resp := post("/api/upload", ct, body)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decodeBody(resp)["error"]).To(Equal("No file provided"))
		})

		It("should reject a disallowed type", func() {
			body, ct := multipartBody("file", "invoice.docx", []byte("doc"))
			resp := post("/api/upload", ct, body)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decodeBody(resp)["error"]).To(Equal("Invalid file type. Allowed types: png, jpg, jpeg, pdf, tiff, tif"))
			Expect(svc.uploaded).To(BeEmpty())
		})

		It("should hide internal failures", func() {
			svc.uploadErr = errors.New("bucket gone")
			body, ct := multipartBody("file", "invoice.png", []byte("png"))
			resp := post("/api/upload", ct, body)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(decodeBody(resp)["error"]).NotTo(ContainSubstring("bucket"))
		})
	})

	Describe("handleProcessingStatus", func() {
		It("should return the job report", func() {
			msg := "no text"
			svc.reports["job-1"] = &jobs.StatusReport{Status: jobs.StatusError, Error: &msg}
			resp := get("/api/processing/job-1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			out := decodeBody(resp)
			Expect(out["status"]).To(Equal("error"))
			Expect(out["error"]).To(Equal("no text"))
		})

		It("should return 404 for an unknown job", func() {
			resp := get("/api/processing/missing")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(decodeBody(resp)).To(Equal(map[string]any{"error": "Job not found"}))
		})
	})

	Describe("handleValidateInvoice", func() {
		It("should report a valid invoice with null errors", func() {
			resp := post("/api/validate-invoice", "application/json", strings.NewReader(invoiceJSON))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			out := decodeBody(resp)
			Expect(out["valid"]).To(BeTrue())
			Expect(out).To(HaveKeyWithValue("errors", BeNil()))
			Expect(out["ocr_confidence"]).To(Equal(87.5))
		})

		It("should return field errors for an invalid invoice", func() {
			svc.report = &validation.Report{Fields: map[string]string{"invoice_date": "Invoice date is required"}}
			resp := post("/api/validate-invoice", "application/json", strings.NewReader(invoiceJSON))
			out := decodeBody(resp)
			Expect(out["valid"]).To(BeFalse())
			Expect(out["errors"]).To(HaveKeyWithValue("invoice_date", "Invoice date is required"))
		})

		DescribeTable("rejecting empty bodies",
			func(body string) {
				resp := post("/api/validate-invoice", "application/json", strings.NewReader(body))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeBody(resp)["error"]).To(Equal("No data provided"))
			},
			Entry("empty", ""),
			Entry("null", "null"),
			Entry("empty object", "{}"),
		)

		It("should reject malformed JSON", func() {
			resp := post("/api/validate-invoice", "application/json", strings.NewReader("{"))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("handleSubmitInvoice", func() {
		It("should return 201 with the invoice id", func() {
			resp := post("/api/submit-invoice", "application/json", strings.NewReader(invoiceJSON))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			out := decodeBody(resp)
			Expect(out["success"]).To(BeTrue())
			Expect(out["invoice_id"]).To(Equal("inv-1"))
			Expect(svc.submittedBy).To(Equal("job-7"))
		})

		It("should return validation errors", func() {
			svc.report = &validation.Report{Fields: map[string]string{"total_amount": "Total mismatch"}}
			svc.submitErr = apperr.ErrValidation
			resp := post("/api/submit-invoice", "application/json", strings.NewReader(invoiceJSON))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			out := decodeBody(resp)
			Expect(out["error"]).To(Equal("Invalid invoice data"))
			Expect(out["validation_errors"]).To(HaveKey("total_amount"))
		})

		It("should report unknown parties", func() {
			svc.submitErr = fmt.Errorf("resolving vendor: %w", apperr.ErrNotFound)
			resp := post("/api/submit-invoice", "application/json", strings.NewReader(invoiceJSON))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decodeBody(resp)["error"]).To(Equal("Vendor or customer not found in master data"))
		})

		It("should return 500 without an invoice id on persistence failure", func() {
			svc.submitErr = apperr.ErrPersistence
			resp := post("/api/submit-invoice", "application/json", strings.NewReader(invoiceJSON))
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(decodeBody(resp)).NotTo(HaveKey("invoice_id"))
		})
	})

	Describe("invoices", func() {
		It("should return a stored invoice", func() {
			svc.invoices["inv-1"] = &invoice.Record{ID: "inv-1", InvoiceNumber: "INV-25-100"}
			resp := get("/api/invoices/inv-1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decodeBody(resp)["invoice_number"]).To(Equal("INV-25-100"))
		})

		It("should return 404 for an unknown invoice", func() {
			resp := get("/api/invoices/missing")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(decodeBody(resp)["error"]).To(Equal("Invoice not found"))
		})

		It("should pass paging through", func() {
			svc.page = &service.InvoicePage{Items: []*invoice.Record{}, Page: 2, PerPage: 5, Total: 7, Pages: 2}
			resp := get("/api/invoices?page=2&per_page=5")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(svc.pageArgs).To(Equal([2]int{2, 5}))
			out := decodeBody(resp)
			Expect(out["pages"]).To(BeEquivalentTo(2))
			Expect(out["items"]).To(BeEmpty())
		})

		It("should default malformed paging", func() {
			svc.page = &service.InvoicePage{Items: []*invoice.Record{}, Page: 1, PerPage: 10}
			resp := get("/api/invoices?page=abc")
			resp.Body.Close()
			Expect(svc.pageArgs).To(Equal([2]int{1, 10}))
		})

		It("should serve the export as a spreadsheet", func() {
			svc.export = []byte("PK")
			resp := get("/api/invoices/export")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal(xlsxContentType))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("invoices.xlsx"))
		})
	})

	Describe("master data", func() {
		It("should return an empty array when there are no companies", func() {
			resp := get("/api/companies")
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(MatchJSON(`[]`))
		})

		It("should list items", func() {
			svc.items = []*invoice.Item{{ID: "i1", Name: "PVC Pipes (20mm)", HSNSAC: "3917"}}
			resp := get("/api/items")
			defer resp.Body.Close()
			var items []map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&items)).To(Succeed())
			Expect(items).To(HaveLen(1))
			Expect(items[0]["hsn_sac"]).To(Equal("3917"))
		})

		It("should hide store errors", func() {
			svc.listErr = errors.New("db closed")
			resp := get("/api/items")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			resp.Body.Close()
		})
	})

	Describe("handleExtract", func() {
		It("should return the extracted invoice", func() {
			inv := invoice.New()
			inv.InvoiceNumber = "INV-2025-001"
			svc.extracted = inv
			body, ct := multipartBody("file", "scan.jpg", []byte("jpg"))
			resp := post("/api/extract", ct, body)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			out := decodeBody(resp)
			Expect(out["success"]).To(BeTrue())
			Expect(out["data"]).To(HaveKeyWithValue("invoice_number", "INV-2025-001"))
		})

		It("should report extraction failures", func() {
			svc.extractErr = errors.New("no text")
			body, ct := multipartBody("file", "scan.jpg", []byte("jpg"))
			resp := post("/api/extract", ct, body)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(decodeBody(resp)["success"]).To(BeFalse())
		})
	})
})
