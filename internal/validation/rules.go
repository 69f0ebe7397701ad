package validation

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

const (
	dateLayout = "2006-01-02"
	tolerance  = "0.05"
)

var (
	invoiceNumberPattern = regexp.MustCompile(`^INV-\d{2}-\d{3}$`)
	poNumberPattern      = regexp.MustCompile(`^PO-\d{2}-\d{3}$`)
	// 2 digits, 5 letters, 4 digits, 1 letter, 1 alphanumeric, literal Z, 1 alphanumeric
	gstinPattern = regexp.MustCompile(`^\d{2}[A-Z]{5}\d{4}[A-Z][A-Z\d]Z[A-Z\d]$`)
)

// textRule describes a string field of the invoice header.
type textRule struct {
	field    string
	required bool
	pattern  *regexp.Regexp
	date     bool
	message  string
	value    func(*invoice.Invoice) string
}

var textRules = []textRule{
	{
		field:    "invoice_number",
		required: true,
		pattern:  invoiceNumberPattern,
		message:  "Invoice number must be in format INV-XX-XXX",
		value:    func(inv *invoice.Invoice) string { return inv.InvoiceNumber },
	},
	{
		field:    "invoice_date",
		required: true,
		date:     true,
		message:  "Invoice date must be in format YYYY-MM-DD",
		value:    func(inv *invoice.Invoice) string { return inv.InvoiceDate },
	},
	{
		field:   "due_date",
		date:    true,
		message: "Due date must be in format YYYY-MM-DD",
		value:   func(inv *invoice.Invoice) string { return inv.DueDate },
	},
	{
		field:   "po_number",
		pattern: poNumberPattern,
		message: "PO number must be in format PO-XX-XXX",
		value:   func(inv *invoice.Invoice) string { return inv.PONumber },
	},
	{
		field:    "vendor_gstin",
		required: true,
		pattern:  gstinPattern,
		message:  "GSTIN must be a valid 15-character code",
		value:    func(inv *invoice.Invoice) string { return inv.Vendor.GSTIN },
	},
	{
		field:    "customer_gstin",
		required: true,
		pattern:  gstinPattern,
		message:  "GSTIN must be a valid 15-character code",
		value:    func(inv *invoice.Invoice) string { return inv.Customer.GSTIN },
	},
}

// amountRule describes a top-level amount that must be a non-negative number.
type amountRule struct {
	field    string
	required bool
	message  string
	value    func(*invoice.Invoice) invoice.Number
}

var amountRules = []amountRule{
	{
		field:    "subtotal",
		required: true,
		message:  "Subtotal must be a positive number",
		value:    func(inv *invoice.Invoice) invoice.Number { return inv.Subtotal },
	},
	{
		field:    "tax_amount",
		required: true,
		message:  "Tax amount must be a positive number",
		value:    func(inv *invoice.Invoice) invoice.Number { return inv.TaxAmount },
	},
	{
		field:    "total_amount",
		required: true,
		message:  "Total amount must be a positive number",
		value:    func(inv *invoice.Invoice) invoice.Number { return inv.TotalAmount },
	},
	{
		field:   "discount",
		message: "Discount must be a positive number",
		value:   func(inv *invoice.Invoice) invoice.Number { return inv.Discount },
	},
}

// lineItemRequired lists the line-item fields that must be supplied.
var lineItemRequired = []string{"description", "quantity", "rate", "tax_percentage", "amount"}

// lineItemNumbers lists the numeric line-item fields.
var lineItemNumbers = []struct {
	field string
	value func(invoice.LineItem) invoice.Number
}{
	{"quantity", func(li invoice.LineItem) invoice.Number { return li.Quantity }},
	{"rate", func(li invoice.LineItem) invoice.Number { return li.Rate }},
	{"tax_percentage", func(li invoice.LineItem) invoice.Number { return li.TaxPercentage }},
	{"tax_amount", func(li invoice.LineItem) invoice.Number { return li.TaxAmount }},
	{"amount", func(li invoice.LineItem) invoice.Number { return li.Amount }},
}

// label turns a field name into the title-cased form used in messages,
// e.g. "vendor_gstin" becomes "Vendor Gstin".
func label(field string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(field, "_", " "))
}
