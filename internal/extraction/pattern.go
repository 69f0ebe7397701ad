package extraction

import (
	"context"
	"regexp"
	"strings"

	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/normalize"
)

// Header and totals matchers, tried in this order on every line.
var (
	vendorPattern      = regexp.MustCompile(`(?i)^([A-Za-z0-9\s]+(?:Pvt|Private|Ltd|Limited|Co\.|Corporation|Industries|Technologies|Systems|Components)\s*(?:Ltd|Limited|LLP|Co\.|Corporation)?)`)
	gstinPattern       = regexp.MustCompile(`GSTIN:\s*([0-9A-Z]{15})`)
	invoiceNumPattern  = regexp.MustCompile(`(?i)Invoice\s*No\s*[.:]\s*(INV-[0-9-]+)`)
	invoiceDatePattern = regexp.MustCompile(`(?i)Invoice\s*Date\s*[.:]\s*(\d{4}-\d{2}-\d{2}|\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`)
	dueDatePattern     = regexp.MustCompile(`(?i)Due\s*Date\s*[.:]\s*(\d{4}-\d{2}-\d{2}|\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`)
	poPattern          = regexp.MustCompile(`(?i)P\.?O\.?\s*#?\s*[.:]\s*(PO-[0-9-]+)`)
	billToPattern      = regexp.MustCompile(`(?i)Bill\s*To\s*([A-Za-z0-9\s]+)`)
	shipToPattern      = regexp.MustCompile(`(?i)Ship\s*To\s*([A-Za-z0-9\s,]+)`)

	itemHeaderPattern = regexp.MustCompile(`(?i)#\s*Item\s*&\s*Description|HSN/SAC\s*Qty\s*Rate`)
	itemEndPattern    = regexp.MustCompile(`(?i)Subtotal|Total\s*Taxable`)
	itemRowCandidate  = regexp.MustCompile(`\d+\s+\S+`)
	itemRowPattern    = regexp.MustCompile(`(\d+)\s+([^0-9]+)\s+(\d+)\s+(\d+)\s+([0-9,.]+)\s+(\d+)%\s+([0-9,.]+)\s+([0-9,.]+)`)

	subtotalPattern = regexp.MustCompile(`(?i)Subtotal\s*([0-9,.]+)`)
	taxPattern      = regexp.MustCompile(`(?i)(?:GST|Tax|IGST)\s*(?:18%|18)\s*([0-9,.]+)`)
	discountPattern = regexp.MustCompile(`(?i)Discount\s*\([0-9%]+\)\s*-?([0-9,.]+)`)
	totalPattern    = regexp.MustCompile(`(?i)Total\s*([₹₨]?\s*[0-9,.]+)`)
)

// customerGSTINLookahead is how many lines after "Bill To" are searched for
// the customer's GSTIN.
const customerGSTINLookahead = 4

// PatternExtractor recognizes the document text and picks fields out of it
// with a fixed battery of line matchers.
type PatternExtractor struct {
	docs       DocumentReader
	recognizer Recognizer
}

// NewPatternExtractor creates a PatternExtractor.
func NewPatternExtractor(docs DocumentReader, recognizer Recognizer) *PatternExtractor {
	return &PatternExtractor{docs: docs, recognizer: recognizer}
}

// Extract reads the document at path, recognizes it and parses the text.
func (p *PatternExtractor) Extract(ctx context.Context, path string) (*invoice.Invoice, error) {
	const op = "PatternExtract"

	data, err := p.docs.Get(ctx, path)
	if err != nil {
		return nil, fail(op, ErrUnreadableDocument, err)
	}

	img, err := toPNG(data, contentTypeFor(path, data))
	if err != nil {
		return nil, fail(op, ErrUnreadableDocument, err)
	}

	rec, err := p.recognizer.Recognize(ctx, img)
	if err != nil {
		return nil, fail(op, ErrBackendUnavailable, err)
	}

	inv := ParseText(rec.Text)
	inv.Confidence = MeanConfidence(rec.Confidences)
	return inv, nil
}

// Close releases the recognizer.
func (p *PatternExtractor) Close() error {
	return p.recognizer.Close()
}

// MeanConfidence averages recognizer confidences, ignoring the -1 entries
// that mark non-word tokens. It is 0 when nothing remains.
func MeanConfidence(values []float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if v == -1 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ParseText extracts invoice fields from recognized text. A matcher only
// fires while its field is still empty, and a fired matcher consumes the
// line. Missing fields stay empty.
func ParseText(text string) *invoice.Invoice {
	inv := invoice.New()
	lines := strings.Split(text, "\n")

	var inItems bool
	var rows []string

	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if i < 5 && inv.Vendor.Name == "" {
			if m := vendorPattern.FindStringSubmatch(line); m != nil {
				inv.Vendor.Name = strings.TrimSpace(m[1])
				continue
			}
		}

		if m := gstinPattern.FindStringSubmatch(line); m != nil && inv.Vendor.GSTIN == "" {
			inv.Vendor.GSTIN = m[1]
			continue
		}
		if m := invoiceNumPattern.FindStringSubmatch(line); m != nil && inv.InvoiceNumber == "" {
			inv.InvoiceNumber = m[1]
			continue
		}
		if m := invoiceDatePattern.FindStringSubmatch(line); m != nil && inv.InvoiceDate == "" {
			inv.InvoiceDate = normalize.Date(m[1])
			continue
		}
		if m := dueDatePattern.FindStringSubmatch(line); m != nil && inv.DueDate == "" {
			inv.DueDate = normalize.Date(m[1])
			continue
		}
		if m := poPattern.FindStringSubmatch(line); m != nil && inv.PONumber == "" {
			inv.PONumber = m[1]
			continue
		}
		if m := billToPattern.FindStringSubmatch(line); m != nil && inv.Customer.Name == "" {
			inv.Customer.Name = strings.TrimSpace(m[1])
			for j := i + 1; j < len(lines) && j <= i+customerGSTINLookahead; j++ {
				if g := gstinPattern.FindStringSubmatch(lines[j]); g != nil {
					inv.Customer.GSTIN = g[1]
					break
				}
			}
			continue
		}
		if m := shipToPattern.FindStringSubmatch(line); m != nil && inv.Customer.Address == "" {
			inv.Customer.Address = strings.TrimSpace(m[1])
			continue
		}
		if strings.Contains(line, "Place Of Supply") && inv.PlaceOfSupply == "" {
			if parts := strings.Split(line, ":"); len(parts) > 1 {
				inv.PlaceOfSupply = strings.TrimSpace(parts[1])
			}
			continue
		}

		if itemHeaderPattern.MatchString(line) {
			inItems = true
			continue
		}
		if inItems && itemEndPattern.MatchString(line) {
			inItems = false
		}
		if inItems && itemRowCandidate.MatchString(line) {
			rows = append(rows, strings.TrimSpace(line))
		}

		if m := subtotalPattern.FindStringSubmatch(line); m != nil && inv.Subtotal.IsAbsent() {
			inv.Subtotal = normalize.Amount(m[1])
			continue
		}
		if m := taxPattern.FindStringSubmatch(line); m != nil && inv.TaxAmount.IsAbsent() {
			inv.TaxAmount = normalize.Amount(m[1])
			continue
		}
		if m := discountPattern.FindStringSubmatch(line); m != nil {
			if d := normalize.Amount(m[1]); !d.IsAbsent() {
				inv.Discount = d
			}
			continue
		}
		if m := totalPattern.FindStringSubmatch(line); m != nil && inv.TotalAmount.IsAbsent() && strings.Contains(line, "Balance Due") {
			inv.TotalAmount = normalize.Amount(m[1])
			continue
		}
	}

	for _, row := range rows {
		if item, ok := parseItemRow(row); ok {
			inv.LineItems = append(inv.LineItems, item)
		}
	}

	return inv
}

// parseItemRow reads one table row. Rows that do not fit the column layout
// are rejected.
func parseItemRow(row string) (invoice.LineItem, bool) {
	m := itemRowPattern.FindStringSubmatch(row)
	if m == nil {
		return invoice.LineItem{}, false
	}

	item := invoice.LineItem{
		Description:   strings.TrimSpace(m[2]),
		HSNSAC:        m[3],
		Quantity:      normalize.Amount(m[4]),
		Rate:          normalize.Amount(m[5]),
		TaxPercentage: normalize.Amount(m[6]),
		TaxAmount:     normalize.Amount(m[7]),
		Amount:        normalize.Amount(m[8]),
	}
	for _, n := range []invoice.Number{item.Quantity, item.Rate, item.TaxPercentage, item.TaxAmount, item.Amount} {
		if n.IsAbsent() {
			return invoice.LineItem{}, false
		}
	}
	return item, true
}
