package wallet

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SupportedCurrencies is the currency picker list, in display order.
var SupportedCurrencies = []string{"USD", "EUR", "GBP", "JPY", "AUD", "CAD"}

// displayLocale is the locale every amount is formatted in.
var displayLocale = language.AmericanEnglish

// ExchangeRate is the static from->to multiplier shown next to the send form.
type ExchangeRate struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Rate decimal.Decimal `json:"rate"`
}

// Convert applies the rate to an amount. The result is cosmetic: the same
// rate is applied to every transaction regardless of its currency pair.
func (r ExchangeRate) Convert(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(r.Rate)
}

// IsSupportedCurrency reports whether code is in the picker list.
func IsSupportedCurrency(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// ParseAmount parses user input into a strictly positive decimal.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidInput)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", ErrInvalidInput, raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	return amount, nil
}

// FormatAmount renders an amount the way the balance and history are shown,
// e.g. "$1,000.00" or "¥1,000". Unknown codes fall back to "1,000.00 XYZ".
// Digits come from the decimal itself, so large amounts stay exact.
func FormatAmount(amount decimal.Decimal, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return groupDigits(amount.StringFixed(2)) + " " + code
	}

	scale, _ := currency.Standard.Rounding(unit)
	symbol := message.NewPrinter(displayLocale).Sprint(currency.Symbol(unit))
	return symbol + groupDigits(amount.StringFixed(int32(scale)))
}

// groupDigits inserts thousands separators into a plain decimal string such
// as "-1234567.80".
func groupDigits(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
