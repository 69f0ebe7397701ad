package invoice

// DefaultTerms is used when an invoice does not state payment terms.
const DefaultTerms = "Immediate"

// Party is the vendor or customer block of an invoice.
type Party struct {
	Name    string `json:"name"`
	GSTIN   string `json:"gstin"`
	Address string `json:"address"`
}

// LineItem is one billed entry on an invoice
type LineItem struct {
	Description   string `json:"description"`
	HSNSAC        string `json:"hsn_sac"`
	Quantity      Number `json:"quantity"`
	Rate          Number `json:"rate"`
	TaxPercentage Number `json:"tax_percentage"`
	TaxAmount     Number `json:"tax_amount"`
	Amount        Number `json:"amount"`
}

// Invoice is the unvalidated record produced by extraction and submitted
// back, possibly edited, for validation.
type Invoice struct {
	Vendor        Party      `json:"vendor"`
	Customer      Party      `json:"customer"`
	InvoiceNumber string     `json:"invoice_number"`
	InvoiceDate   string     `json:"invoice_date"`
	DueDate       string     `json:"due_date"`
	PONumber      string     `json:"po_number"`
	PlaceOfSupply string     `json:"place_of_supply"`
	LineItems     []LineItem `json:"line_items"`
	Subtotal      Number     `json:"subtotal"`
	TaxAmount     Number     `json:"tax_amount"`
	Discount      Number     `json:"discount"`
	TotalAmount   Number     `json:"total_amount"`
	Terms         string     `json:"terms"`
	Confidence    float64    `json:"confidence"`
}

// New returns an empty invoice carrying the defaults every extraction starts from.
func New() *Invoice {
	return &Invoice{
		LineItems: []LineItem{},
		Discount:  NewNumber(0),
		Terms:     DefaultTerms,
	}
}
