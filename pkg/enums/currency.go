package enums

import "strings"

// flutterwaveCurrencies is the set of currencies Flutterwave checkout accepts.
var flutterwaveCurrencies = map[string]struct{}{
	"NGN": {}, "USD": {}, "EUR": {}, "GBP": {}, "CAD": {}, "GHS": {},
	"KES": {}, "ZAR": {}, "TZS": {}, "UGX": {}, "RWF": {}, "XAF": {},
	"XOF": {}, "ZMW": {}, "MWK": {}, "SLL": {}, "MZN": {}, "AED": {},
	"EGP": {}, "MAD": {}, "INR": {}, "ETB": {}, "ILS": {}, "JPY": {},
	"KRW": {}, "MYR": {}, "PHP": {}, "SGD": {}, "THB": {}, "TRY": {},
	"VND": {}, "XCD": {}, "XPF": {}, "YER": {}, "BRL": {}, "ARS": {},
}

// IsFlutterwaveCurrency reports whether the provider supports the currency code.
func IsFlutterwaveCurrency(code string) bool {
	_, ok := flutterwaveCurrencies[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}
