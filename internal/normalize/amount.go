package normalize

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

var amountNoise = strings.NewReplacer(
	",", "",
	"₹", "",
	"₨", "",
	"$", "",
	"€", "",
	"£", "",
	" ", "",
	" ", "",
)

// cleanAmount strips thousands separators, currency glyphs and an Rs/INR prefix.
func cleanAmount(s string) string {
	v := strings.TrimSpace(s)
	upper := strings.ToUpper(v)
	for _, prefix := range []string{"RS.", "RS", "INR"} {
		if strings.HasPrefix(upper, prefix) {
			v = v[len(prefix):]
			break
		}
	}
	return amountNoise.Replace(v)
}

// Amount parses an amount as printed on a document. A value that still does
// not parse once separators and currency glyphs are removed is absent.
func Amount(s string) invoice.Number {
	d, err := decimal.NewFromString(cleanAmount(s))
	if err != nil {
		return invoice.Number{}
	}
	return invoice.NumberFromDecimal(d)
}
