package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

const exportSheet = "Invoices"

var exportHeaders = []string{
	"Invoice Number",
	"Invoice Date",
	"Due Date",
	"Vendor",
	"Vendor GSTIN",
	"Customer",
	"Customer GSTIN",
	"Place Of Supply",
	"Subtotal",
	"Tax Amount",
	"Discount",
	"Total Amount",
	"Line Items",
	"Terms",
}

// ExportInvoicesXLSX returns every stored invoice as an XLSX workbook, one
// row per invoice in listing order.
func (s *Service) ExportInvoicesXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	recs, err := s.store.AllInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}

	companies, err := s.store.ListCompanies()
	if err != nil {
		return nil, fmt.Errorf("listing companies: %w", err)
	}
	byID := make(map[string]*invoice.Company, len(companies))
	for _, c := range companies {
		byID[c.ID] = c
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	w := &sheetWriter{f: f, sheet: exportSheet}
	for i, h := range exportHeaders {
		w.set(i+1, 1, h)
	}

	for i, rec := range recs {
		row := i + 2
		vendor, customer := byID[rec.VendorID], byID[rec.CustomerID]

		w.set(1, row, rec.InvoiceNumber)
		w.set(2, row, rec.InvoiceDate)
		w.set(3, row, rec.DueDate)
		if vendor != nil {
			w.set(4, row, vendor.Name)
			w.set(5, row, vendor.GSTIN)
		}
		if customer != nil {
			w.set(6, row, customer.Name)
			w.set(7, row, customer.GSTIN)
		}
		w.set(8, row, rec.PlaceOfSupply)
		w.set(9, row, rec.Subtotal.InexactFloat64())
		w.set(10, row, rec.TaxAmount.InexactFloat64())
		w.set(11, row, rec.Discount.InexactFloat64())
		w.set(12, row, rec.TotalAmount.InexactFloat64())
		w.set(13, row, len(rec.LineItems))
		w.set(14, row, rec.Terms)
	}

	w.width("A", "A", 18)
	w.width("B", "C", 12)
	w.width("D", "D", 30)
	w.width("E", "E", 18)
	w.width("F", "F", 30)
	w.width("G", "G", 18)
	w.width("H", "H", 16)
	w.width("I", "L", 14)
	if w.err != nil {
		return nil, fmt.Errorf("filling workbook: %w", w.err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}

	s.logger.Info("Invoices exported", "rows", len(recs), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

// sheetWriter fills one sheet and keeps the first error it hits. Later calls
// are no-ops once an error is recorded.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) set(col, row int, v any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellValue(w.sheet, cell, v)
}

func (w *sheetWriter) width(startCol, endCol string, width float64) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetColWidth(w.sheet, startCol, endCol, width)
}
