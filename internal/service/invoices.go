package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/zombor/invoice-extractor/internal/apperr"
	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/validation"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100

	statusCompleted = "completed"
)

// InvoicePage is one page of stored invoices
type InvoicePage struct {
	Items   []*invoice.Record `json:"items"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
	Total   int               `json:"total"`
	Pages   int               `json:"pages"`
}

// SubmitInvoice validates inv and, when it passes, stores it with its
// parties resolved against master data. The report is returned whenever
// validation ran, including on failure.
func (s *Service) SubmitInvoice(ctx context.Context, inv *invoice.Invoice, jobID string) (*invoice.Record, *validation.Report, error) {
	if inv == nil {
		return nil, nil, fmt.Errorf("%w: no invoice data", apperr.ErrInvalidInput)
	}

	ok, report := s.validator.Validate(inv)
	if !ok {
		return nil, report, fmt.Errorf("%w: invoice %s", apperr.ErrValidation, inv.InvoiceNumber)
	}

	vendor, err := s.store.FindCompanyByGSTIN(inv.Vendor.GSTIN)
	if err != nil {
		return nil, report, fmt.Errorf("resolving vendor: %w", err)
	}
	customer, err := s.store.FindCompanyByGSTIN(inv.Customer.GSTIN)
	if err != nil {
		return nil, report, fmt.Errorf("resolving customer: %w", err)
	}

	now := s.timeSource.Now()
	rec := &invoice.Record{
		ID:               s.idGenerator.Generate(),
		InvoiceNumber:    inv.InvoiceNumber,
		InvoiceDate:      inv.InvoiceDate,
		DueDate:          inv.DueDate,
		PONumber:         inv.PONumber,
		VendorID:         vendor.ID,
		CustomerID:       customer.ID,
		PlaceOfSupply:    inv.PlaceOfSupply,
		Subtotal:         inv.Subtotal.Decimal(),
		TaxAmount:        inv.TaxAmount.Decimal(),
		Discount:         inv.Discount.Decimal(),
		TotalAmount:      inv.TotalAmount.Decimal(),
		Terms:            inv.Terms,
		Confidence:       inv.Confidence,
		ProcessingStatus: statusCompleted,
		SourceJobID:      jobID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if rec.Terms == "" {
		rec.Terms = invoice.DefaultTerms
	}

	for _, line := range inv.LineItems {
		rl := invoice.RecordLine{
			ID:            s.idGenerator.Generate(),
			InvoiceID:     rec.ID,
			Description:   line.Description,
			HSNSAC:        line.HSNSAC,
			Quantity:      line.Quantity.Decimal(),
			Rate:          line.Rate.Decimal(),
			TaxPercentage: line.TaxPercentage.Decimal(),
			TaxAmount:     line.TaxAmount.Decimal(),
			Amount:        line.Amount.Decimal(),
		}
		if code := line.HSNSAC; code != "" {
			item, err := s.store.FindItemByHSN(code)
			switch {
			case err == nil:
				rl.ItemID = item.ID
			case !errors.Is(err, apperr.ErrNotFound):
				return nil, report, fmt.Errorf("resolving item %s: %w", code, err)
			}
		}
		rec.LineItems = append(rec.LineItems, rl)
	}

	if err := s.store.CreateInvoice(ctx, rec); err != nil {
		s.logger.Error("Failed to store invoice", "invoice_number", rec.InvoiceNumber, "error", err)
		return nil, report, err
	}

	s.logger.Info("Invoice stored", "invoice_id", rec.ID, "invoice_number", rec.InvoiceNumber, "job_id", jobID)
	return rec, report, nil
}

// GetInvoice returns a stored invoice with its line items
func (s *Service) GetInvoice(ctx context.Context, id string) (*invoice.Record, error) {
	return s.store.GetInvoice(ctx, id)
}

// ListInvoices returns one page of invoices, newest invoice date first.
// Out-of-range paging falls back to the first page of ten.
func (s *Service) ListInvoices(ctx context.Context, page, perPage int) (*InvoicePage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	items, total, err := s.store.ListInvoices(ctx, page, perPage)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	if items == nil {
		items = []*invoice.Record{}
	}

	return &InvoicePage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   (total + perPage - 1) / perPage,
	}, nil
}

// ListCompanies returns the master companies
func (s *Service) ListCompanies(ctx context.Context) ([]*invoice.Company, error) {
	companies, err := s.store.ListCompanies()
	if err != nil {
		return nil, fmt.Errorf("listing companies: %w", err)
	}
	return companies, nil
}

// ListItems returns the master items
func (s *Service) ListItems(ctx context.Context) ([]*invoice.Item, error) {
	items, err := s.store.ListItems()
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}
