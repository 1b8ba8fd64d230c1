package types

import "strings"

// currencyPrecision holds ISO 4217 minor units for currencies that do not use two
var currencyPrecision = map[string]int32{
	"jpy": 0,
	"krw": 0,
	"vnd": 0,
	"clp": 0,
	"isk": 0,
	"bhd": 3,
	"kwd": 3,
	"omr": 3,
	"jod": 3,
	"tnd": 3,
}

// DEFAULT_CURRENCY_PRECISION is the minor unit count used when a currency is unknown
const DEFAULT_CURRENCY_PRECISION int32 = 2

// GetCurrencyPrecision returns the number of decimal places amounts in the
// given currency are rounded to
func GetCurrencyPrecision(code string) int32 {
	if p, ok := currencyPrecision[strings.ToLower(code)]; ok {
		return p
	}
	return DEFAULT_CURRENCY_PRECISION
}

// IsMatchingCurrency compares two ISO codes case-insensitively
func IsMatchingCurrency(a, b string) bool {
	return strings.EqualFold(a, b)
}
