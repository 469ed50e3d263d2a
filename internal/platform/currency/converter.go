// Package currency は固定レート表による通貨換算を提供します。
package currency

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnsupportedCurrency はレート表に存在しない通貨の場合に返却されます。
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// defaultRates は 1 USD あたりの各通貨の額です。
var defaultRates = map[string]string{
	"USD": "1.0",
	"EUR": "0.85",
	"GBP": "0.73",
	"INR": "83.0",
	"JPY": "110.0",
	"CAD": "1.25",
	"AUD": "1.35",
	"CHF": "0.92",
	"CNY": "6.45",
	"MXN": "20.0",
	"BRL": "5.2",
	"RUB": "75.0",
	"KRW": "1200.0",
	"SGD": "1.35",
	"HKD": "7.8",
	"NZD": "1.45",
	"NOK": "8.5",
	"SEK": "8.8",
	"DKK": "6.3",
	"PLN": "4.0",
	"CZK": "22.0",
	"HUF": "300.0",
	"RON": "4.2",
	"BGN": "1.66",
	"TRY": "8.5",
	"ILS": "3.2",
	"AED": "3.67",
	"SAR": "3.75",
	"QAR": "3.64",
	"KWD": "0.30",
	"BHD": "0.38",
	"OMR": "0.38",
	"EGP": "15.7",
	"ZAR": "15.0",
	"NGN": "410.0",
	"KES": "110.0",
	"MAD": "9.0",
}

// StaticConverter は USD 基準の固定レートで換算します。結果は小数第 2 位に丸めます。
type StaticConverter struct {
	rates map[string]decimal.Decimal
}

// NewStaticConverter は既定のレート表で StaticConverter を生成します。
func NewStaticConverter() *StaticConverter {
	rates := make(map[string]decimal.Decimal, len(defaultRates))
	for code, rate := range defaultRates {
		rates[code] = decimal.RequireFromString(rate)
	}
	return &StaticConverter{rates: rates}
}

// NewStaticConverterWithRates は与えられたレート表で StaticConverter を生成します。
// 0 以下のレートはエラーです。
func NewStaticConverterWithRates(rates map[string]decimal.Decimal) (*StaticConverter, error) {
	normalized := make(map[string]decimal.Decimal, len(rates))
	for code, rate := range rates {
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive", code)
		}
		normalized[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return &StaticConverter{rates: normalized}, nil
}

// Convert は amount を from から to へ換算します。
func (c *StaticConverter) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return amount, nil
	}

	rate, err := c.Rate(from, to)
	if err != nil {
		return decimal.Zero, err
	}

	return amount.Mul(rate).Round(2), nil
}

// Rate は from 1 単位あたりの to の額を返します。
func (c *StaticConverter) Rate(from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	fromRate, ok := c.rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", from, ErrUnsupportedCurrency)
	}
	toRate, ok := c.rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", to, ErrUnsupportedCurrency)
	}

	return toRate.DivRound(fromRate, 16), nil
}

// Supports は code がレート表に含まれるかを返します。
func (c *StaticConverter) Supports(code string) bool {
	_, ok := c.rates[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// Codes はレート表の通貨コードを昇順で返します。
func (c *StaticConverter) Codes() []string {
	codes := make([]string, 0, len(c.rates))
	for code := range c.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
