// Package validation checks an extracted or user-edited invoice against
// field rules, master data and its own arithmetic.
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-extractor/internal/apperr"
	"github.com/zombor/invoice-extractor/internal/invoice"
)

// MasterData resolves the reference records an invoice must point at.
// Lookups of unknown codes return an error wrapping apperr.ErrNotFound.
type MasterData interface {
	FindCompanyByGSTIN(gstin string) (*invoice.Company, error)
	FindItemByHSN(code string) (*invoice.Item, error)
}

// Validator applies the invoice rules. It only reads master data and is safe
// for concurrent use.
type Validator struct {
	master MasterData
	logger *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger used to report master-data lookup failures.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New creates a Validator backed by master.
func New(master MasterData, opts ...Option) *Validator {
	v := &Validator{
		master: master,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every rule category against inv and returns whether it
// passed along with the accumulated errors. Categories never short-circuit
// each other, except that the arithmetic reconciliation only runs when the
// amounts it depends on are individually valid.
func (v *Validator) Validate(inv *invoice.Invoice) (bool, *Report) {
	report := newReport()
	itemErrs := make([]map[string]string, len(inv.LineItems))
	for i := range itemErrs {
		itemErrs[i] = make(map[string]string)
	}

	checkPresence(inv, report)
	checkPatterns(inv, report)
	checkDates(inv, report)
	checkAmounts(inv, report)
	checkPlaceOfSupply(inv, report)
	v.checkMasterData(inv, report, itemErrs)
	checkLineItems(inv, report, itemErrs)

	for i, errs := range itemErrs {
		if len(errs) > 0 {
			report.LineItems = append(report.LineItems, ItemErrors{Index: i, Errors: errs})
		}
	}

	reconcile(inv, report)

	return report.OK(), report
}

func checkPresence(inv *invoice.Invoice, report *Report) {
	for _, rule := range textRules {
		if rule.required && strings.TrimSpace(rule.value(inv)) == "" {
			report.add(rule.field, label(rule.field)+" is required")
		}
	}
	for _, rule := range amountRules {
		if rule.required && rule.value(inv).IsAbsent() {
			report.add(rule.field, label(rule.field)+" is required")
		}
	}
}

func checkPatterns(inv *invoice.Invoice, report *Report) {
	for _, rule := range textRules {
		value := rule.value(inv)
		if rule.pattern == nil || value == "" || report.Has(rule.field) {
			continue
		}
		if !rule.pattern.MatchString(value) {
			report.add(rule.field, rule.message)
		}
	}
}

func checkDates(inv *invoice.Invoice, report *Report) {
	for _, rule := range textRules {
		value := rule.value(inv)
		if !rule.date || value == "" || report.Has(rule.field) {
			continue
		}
		if _, err := time.Parse(dateLayout, value); err != nil {
			report.add(rule.field, rule.message)
		}
	}
}

func checkAmounts(inv *invoice.Invoice, report *Report) {
	for _, rule := range amountRules {
		n := rule.value(inv)
		if n.IsAbsent() || report.Has(rule.field) {
			continue
		}
		switch {
		case !n.IsNumeric():
			report.add(rule.field, label(rule.field)+" must be a number")
		case n.Decimal().IsNegative():
			report.add(rule.field, rule.message)
		}
	}
}

func checkPlaceOfSupply(inv *invoice.Invoice, report *Report) {
	if inv.PlaceOfSupply != "" && !IsIndianState(inv.PlaceOfSupply) {
		report.add("place_of_supply", "Place of supply must be a valid Indian state")
	}
}

func (v *Validator) checkMasterData(inv *invoice.Invoice, report *Report, itemErrs []map[string]string) {
	if gstin := inv.Vendor.GSTIN; gstin != "" && !v.companyExists(gstin) {
		report.add("vendor", fmt.Sprintf("Vendor with GSTIN %s not found in master data", gstin))
	}
	if gstin := inv.Customer.GSTIN; gstin != "" && !v.companyExists(gstin) {
		report.add("customer", fmt.Sprintf("Customer with GSTIN %s not found in master data", gstin))
	}
	for i, item := range inv.LineItems {
		if item.HSNSAC != "" && !v.itemExists(item.HSNSAC) {
			itemErrs[i]["hsn_sac"] = fmt.Sprintf("HSN/SAC code %s not found in master data", item.HSNSAC)
		}
	}
}

// companyExists treats a failed lookup as a missing company.
func (v *Validator) companyExists(gstin string) bool {
	_, err := v.master.FindCompanyByGSTIN(gstin)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		v.logger.Error("Error looking up company", "gstin", gstin, "error", err)
	}
	return err == nil
}

func (v *Validator) itemExists(code string) bool {
	_, err := v.master.FindItemByHSN(code)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		v.logger.Error("Error looking up item", "hsn_sac", code, "error", err)
	}
	return err == nil
}

func checkLineItems(inv *invoice.Invoice, report *Report, itemErrs []map[string]string) {
	if len(inv.LineItems) == 0 {
		report.add("line_items", "At least one line item is required")
		return
	}

	for i, item := range inv.LineItems {
		errs := itemErrs[i]
		for _, field := range lineItemRequired {
			if lineItemMissing(item, field) {
				errs[field] = label(field) + " is required"
			}
		}
		for _, num := range lineItemNumbers {
			n := num.value(item)
			if n.IsAbsent() {
				continue
			}
			if _, failed := errs[num.field]; failed {
				continue
			}
			switch {
			case !n.IsNumeric():
				errs[num.field] = label(num.field) + " must be a number"
			case n.Decimal().IsNegative():
				errs[num.field] = label(num.field) + " must be a positive number"
			}
		}
	}
}

func lineItemMissing(item invoice.LineItem, field string) bool {
	if field == "description" {
		return strings.TrimSpace(item.Description) == ""
	}
	for _, num := range lineItemNumbers {
		if num.field == field {
			return num.value(item).IsAbsent()
		}
	}
	return false
}

// reconcile recomputes the totals from the line items and compares each with
// the submitted value.
func reconcile(inv *invoice.Invoice, report *Report) {
	for _, field := range []string{"line_items", "subtotal", "tax_amount", "total_amount", "discount"} {
		if report.Has(field) {
			return
		}
	}

	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, item := range inv.LineItems {
		subtotal = subtotal.Add(item.Amount.Decimal())
		tax = tax.Add(item.TaxAmount.Decimal())
	}
	total := subtotal.Sub(inv.Discount.Decimal()).Add(tax)

	limit := decimal.RequireFromString(tolerance)
	mismatch := func(field, name string, calculated decimal.Decimal, submitted invoice.Number) {
		if calculated.Sub(submitted.Decimal()).Abs().GreaterThan(limit) {
			report.add(field, fmt.Sprintf("Calculated %s (%s) doesn't match invoice %s (%s)",
				name, calculated.StringFixed(2), name, submitted.Decimal().StringFixed(2)))
		}
	}

	mismatch("subtotal", "subtotal", subtotal, inv.Subtotal)
	mismatch("tax_amount", "tax", tax, inv.TaxAmount)
	mismatch("total_amount", "total", total, inv.TotalAmount)
}
