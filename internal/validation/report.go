package validation

import "encoding/json"

// ItemErrors holds the field errors of one line item, identified by its
// position in the submitted record.
type ItemErrors struct {
	Index  int               `json:"index"`
	Errors map[string]string `json:"errors"`
}

// Report is the outcome of validating a record. Top-level problems are keyed
// by field name; line-item problems are listed in item order.
type Report struct {
	Fields    map[string]string
	LineItems []ItemErrors
}

func newReport() *Report {
	return &Report{Fields: make(map[string]string)}
}

// OK reports whether the record passed every rule.
func (r *Report) OK() bool {
	return len(r.Fields) == 0 && len(r.LineItems) == 0
}

// Has reports whether field already carries an error.
func (r *Report) Has(field string) bool {
	if field == "line_items" && len(r.LineItems) > 0 {
		return true
	}
	_, ok := r.Fields[field]
	return ok
}

func (r *Report) add(field, message string) {
	r.Fields[field] = message
}

// MarshalJSON renders the report as one object. line_items is either a
// message or the list of per-item errors.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	if len(r.LineItems) > 0 {
		out["line_items"] = r.LineItems
	}
	return json.Marshal(out)
}

