// Package currency converts between minor-unit integers and decimal major units.
//
// Payment platforms report money as integers in the smallest unit of the currency
// (cents for USD, yen for JPY, fils for KWD). Canonical records carry major units,
// so every amount passes through a Converter exactly once.
package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// InvalidCurrencyError is returned when a divisor cannot be determined for a code.
type InvalidCurrencyError struct {
	Code string
}

func (e *InvalidCurrencyError) Error() string {
	if e.Code == "" {
		return "invalid currency: code is empty"
	}
	return fmt.Sprintf("invalid currency: %q is not a recognized ISO-4217 code", e.Code)
}

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
	one      = decimal.NewFromInt(1)
)

// currencies the platform bills without a minor unit
var zeroDecimal = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

var threeDecimal = map[string]struct{}{
	"BHD": {}, "JOD": {}, "KWD": {}, "OMR": {}, "TND": {},
}

// Converter is stateless and safe for concurrent use.
type Converter struct{}

func NewConverter() Converter {
	return Converter{}
}

// Normalize upper-cases a currency code and checks it against ISO-4217.
func (Converter) Normalize(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) != 3 {
		return "", &InvalidCurrencyError{Code: code}
	}

	if _, err := currency.ParseISO(normalized); err != nil {
		return "", &InvalidCurrencyError{Code: code}
	}

	return normalized, nil
}

// Divisor returns how many minor units make up one major unit of the currency.
func (c Converter) Divisor(code string) (decimal.Decimal, error) {
	normalized, err := c.Normalize(code)
	if err != nil {
		return decimal.Zero, err
	}

	if _, ok := zeroDecimal[normalized]; ok {
		return one, nil
	}
	if _, ok := threeDecimal[normalized]; ok {
		return thousand, nil
	}

	return hundred, nil
}

// ToMajorUnits converts a minor-unit amount. A nil amount yields nil without
// consulting the currency.
func (c Converter) ToMajorUnits(minor *int64, code string) (*decimal.Decimal, error) {
	if minor == nil {
		return nil, nil
	}

	major, err := c.MinorToMajor(decimal.NewFromInt(*minor), code)
	if err != nil {
		return nil, err
	}

	return &major, nil
}

// MinorToMajor converts a minor-unit amount that may itself carry a fraction,
// such as a unit price expressed as a decimal string of cents.
func (c Converter) MinorToMajor(minor decimal.Decimal, code string) (decimal.Decimal, error) {
	divisor, err := c.Divisor(code)
	if err != nil {
		return decimal.Zero, err
	}

	return minor.Div(divisor), nil
}

// ToMinorUnits converts a major-unit amount back to the smallest unit, rounding
// half away from zero.
func (c Converter) ToMinorUnits(major decimal.Decimal, code string) (int64, error) {
	divisor, err := c.Divisor(code)
	if err != nil {
		return 0, err
	}

	return major.Mul(divisor).Round(0).IntPart(), nil
}
