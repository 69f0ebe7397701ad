package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// Generative maps a decoded vision-model response onto an invoice. The
// response is expected to be decoded with json.Decoder.UseNumber.
//
// Line-item numbers fall back to 0 when missing or unparseable. Top-level
// amounts that are missing stay absent, and top-level amounts that do not
// parse are kept raw so validation reports them.
func Generative(raw map[string]any) *invoice.Invoice {
	inv := invoice.New()

	inv.Vendor = Party(raw["vendor"])
	inv.Customer = Party(raw["customer"])

	inv.InvoiceNumber = text(raw["invoice_number"])
	inv.InvoiceDate = Date(text(raw["invoice_date"]))
	inv.DueDate = Date(text(raw["due_date"]))
	inv.PONumber = text(raw["po_number"])
	inv.PlaceOfSupply = text(raw["place_of_supply"])

	if items, ok := raw["line_items"].([]any); ok {
		for _, entry := range items {
			fields, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			inv.LineItems = append(inv.LineItems, invoice.LineItem{
				Description:   text(fields["description"]),
				HSNSAC:        text(fields["hsn_sac"]),
				Quantity:      numberOrZero(fields["quantity"]),
				Rate:          numberOrZero(fields["rate"]),
				TaxPercentage: numberOrZero(fields["tax_percentage"]),
				TaxAmount:     numberOrZero(fields["tax_amount"]),
				Amount:        numberOrZero(fields["amount"]),
			})
		}
	}

	inv.Subtotal = number(raw["subtotal"])
	inv.TaxAmount = number(raw["tax_amount"])
	inv.TotalAmount = number(raw["total_amount"])
	if discount := number(raw["discount"]); !discount.IsAbsent() {
		inv.Discount = discount
	}

	if terms := text(raw["terms"]); terms != "" {
		inv.Terms = terms
	}

	return inv
}

// Party accepts a vendor or customer given as an object, as a bare name, or
// not at all.
func Party(v any) invoice.Party {
	switch p := v.(type) {
	case map[string]any:
		return invoice.Party{
			Name:    text(p["name"]),
			GSTIN:   text(p["gstin"]),
			Address: text(p["address"]),
		}
	case string:
		return invoice.Party{Name: strings.TrimSpace(p)}
	default:
		return invoice.Party{}
	}
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprint(t)
	}
}

func number(v any) invoice.Number {
	switch n := v.(type) {
	case nil:
		return invoice.Number{}
	case json.Number:
		return invoice.NumberFromString(n.String())
	case float64:
		return invoice.NumberFromDecimal(decimal.NewFromFloat(n))
	case string:
		if strings.TrimSpace(n) == "" {
			return invoice.Number{}
		}
		if parsed := Amount(n); parsed.IsNumeric() {
			return parsed
		}
		return invoice.NumberFromString(n)
	default:
		return invoice.NumberFromString(fmt.Sprint(n))
	}
}

func numberOrZero(v any) invoice.Number {
	n := number(v)
	if !n.IsNumeric() {
		return invoice.NewNumber(0)
	}
	return n
}
