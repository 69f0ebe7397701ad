package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCountry is assumed for master companies that do not state one.
const DefaultCountry = "India"

// Company is a master-data company keyed by its GSTIN.
type Company struct {
	ID        string    `json:"id" yaml:"-"`
	Name      string    `json:"name" yaml:"name" validate:"required"`
	GSTIN     string    `json:"gstin" yaml:"gstin" validate:"required,len=15,alphanum,uppercase"`
	Address   string    `json:"address" yaml:"address"`
	City      string    `json:"city" yaml:"city"`
	State     string    `json:"state" yaml:"state"`
	PinCode   string    `json:"pin_code" yaml:"pin_code" validate:"omitempty,numeric,len=6"`
	Country   string    `json:"country" yaml:"country"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// Item is a master-data product or service keyed by its HSN/SAC code.
type Item struct {
	ID          string    `json:"id" yaml:"-"`
	Name        string    `json:"name" yaml:"name" validate:"required"`
	HSNSAC      string    `json:"hsn_sac" yaml:"hsn_sac" validate:"required,numeric"`
	Description string    `json:"description" yaml:"description"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// Record is a validated invoice as persisted.
type Record struct {
	ID               string          `json:"id"`
	InvoiceNumber    string          `json:"invoice_number"`
	InvoiceDate      string          `json:"invoice_date"`
	DueDate          string          `json:"due_date,omitempty"`
	PONumber         string          `json:"po_number,omitempty"`
	VendorID         string          `json:"vendor_id"`
	CustomerID       string          `json:"customer_id"`
	PlaceOfSupply    string          `json:"place_of_supply,omitempty"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	Discount         decimal.Decimal `json:"discount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Terms            string          `json:"terms"`
	Confidence       float64         `json:"ocr_confidence"`
	ProcessingStatus string          `json:"processing_status"`
	Notes            string          `json:"notes,omitempty"`
	SourceJobID      string          `json:"source_job_id,omitempty"`
	LineItems        []RecordLine    `json:"line_items"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RecordLine is a persisted line item. ItemID is set when the HSN/SAC code
// resolved to a master item.
type RecordLine struct {
	ID            string          `json:"id"`
	InvoiceID     string          `json:"invoice_id"`
	ItemID        string          `json:"item_id,omitempty"`
	Description   string          `json:"description"`
	HSNSAC        string          `json:"hsn_sac,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	Rate          decimal.Decimal `json:"rate"`
	TaxPercentage decimal.Decimal `json:"tax_percentage"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Amount        decimal.Decimal `json:"amount"`
}
