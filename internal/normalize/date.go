// Package normalize reconciles the shapes produced by the extraction
// strategies into one canonical invoice.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// month/day/year
	slashDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
	// day-month-year
	dashDate = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{2,4})$`)
)

// Date rewrites slash dates (M/D/Y) and dash dates (D-M-Y) to YYYY-MM-DD.
// Two-digit years are taken to be in the 2000s. Anything else, including
// dates already in ISO form, is returned unchanged so a caller can correct it.
func Date(s string) string {
	v := strings.TrimSpace(s)
	if m := slashDate.FindStringSubmatch(v); m != nil {
		return fmt.Sprintf("%s-%s-%s", century(m[3]), pad(m[1]), pad(m[2]))
	}
	if m := dashDate.FindStringSubmatch(v); m != nil {
		return fmt.Sprintf("%s-%s-%s", century(m[3]), pad(m[2]), pad(m[1]))
	}
	return s
}

func century(year string) string {
	if len(year) == 2 {
		return "20" + year
	}
	return year
}

func pad(part string) string {
	if len(part) == 1 {
		return "0" + part
	}
	return part
}
