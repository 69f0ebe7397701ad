package validation

// indianStates is the set of accepted place-of-supply names.
var indianStates = map[string]struct{}{
	"Andhra Pradesh":              {},
	"Arunachal Pradesh":           {},
	"Assam":                       {},
	"Bihar":                       {},
	"Chhattisgarh":                {},
	"Goa":                         {},
	"Gujarat":                     {},
	"Haryana":                     {},
	"Himachal Pradesh":            {},
	"Jharkhand":                   {},
	"Karnataka":                   {},
	"Kerala":                      {},
	"Madhya Pradesh":              {},
	"Maharashtra":                 {},
	"Manipur":                     {},
	"Meghalaya":                   {},
	"Mizoram":                     {},
	"Nagaland":                    {},
	"Odisha":                      {},
	"Punjab":                      {},
	"Rajasthan":                   {},
	"Sikkim":                      {},
	"Tamil Nadu":                  {},
	"Telangana":                   {},
	"Tripura":                     {},
	"Uttar Pradesh":               {},
	"Uttarakhand":                 {},
	"West Bengal":                 {},
	"Andaman and Nicobar Islands": {},
	"Chandigarh":                  {},
	"Dadra and Nagar Haveli":      {},
	"Daman and Diu":               {},
	"Delhi":                       {},
	"Jammu and Kashmir":           {},
	"Ladakh":                      {},
	"Lakshadweep":                 {},
	"Puducherry":                  {},
}

// IsIndianState reports whether name is an accepted place of supply.
func IsIndianState(name string) bool {
	_, ok := indianStates[name]
	return ok
}
