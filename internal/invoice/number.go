package invoice

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Number is an amount as it was extracted or submitted. It is either absent,
// numeric, or a non-numeric raw value kept so validation can report it.
type Number struct {
	value   decimal.Decimal
	raw     string
	numeric bool
}

// NewNumber returns a numeric Number.
func NewNumber(f float64) Number {
	return Number{value: decimal.NewFromFloat(f), numeric: true}
}

// NumberFromDecimal returns a numeric Number holding d.
func NumberFromDecimal(d decimal.Decimal) Number {
	return Number{value: d, numeric: true}
}

// NumberFromString parses s as a decimal. Blank input is absent, and input
// that does not parse is kept as raw text.
func NumberFromString(s string) Number {
	s = strings.TrimSpace(s)
	if s == "" {
		return Number{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{raw: s}
	}
	return Number{value: d, numeric: true}
}

// IsAbsent reports whether no value was supplied at all.
func (n Number) IsAbsent() bool {
	return !n.numeric && n.raw == ""
}

// IsNumeric reports whether the value parsed as a number.
func (n Number) IsNumeric() bool {
	return n.numeric
}

// Decimal returns the numeric value, or zero when the value is not numeric.
func (n Number) Decimal() decimal.Decimal {
	if !n.numeric {
		return decimal.Zero
	}
	return n.value
}

// Float64 returns the numeric value as a float64.
func (n Number) Float64() float64 {
	f, _ := n.Decimal().Float64()
	return f
}

// Raw returns the original text of a non-numeric value.
func (n Number) Raw() string {
	return n.raw
}

func (n Number) String() string {
	if n.numeric {
		return n.value.String()
	}
	return n.raw
}

// MarshalJSON writes numbers as JSON numbers, absent values as null and
// non-numeric values as the original string.
func (n Number) MarshalJSON() ([]byte, error) {
	switch {
	case n.numeric:
		return []byte(n.value.String()), nil
	case n.raw == "":
		return []byte("null"), nil
	default:
		return json.Marshal(n.raw)
	}
}

// UnmarshalJSON accepts JSON numbers, numeric strings, null and anything else
// as a raw non-numeric value.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*n = Number{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumberFromString(s)
	default:
		d, err := decimal.NewFromString(string(data))
		if err != nil {
			*n = Number{raw: string(data)}
			return nil
		}
		*n = Number{value: d, numeric: true}
	}
	return nil
}
