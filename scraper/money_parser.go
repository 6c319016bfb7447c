package scraper

import (
	"regexp"
	"strings"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/shopspring/decimal"
)

// Money is a parsed amount with an optional currency
type Money struct {
	Amount   decimal.Decimal
	Currency models.Currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

var (
	// 12,000원 / 12,000 원
	wonSuffixPattern = regexp.MustCompile(`(\d[\d.,]*)\s*원`)
	// ₩12,000 / $ 1,299.99
	symbolPrefixPattern = regexp.MustCompile(`([₩$€£])\s*(\d[\d.,]*)`)
	digitRunPattern     = regexp.MustCompile(`\d[\d.,]*`)
	// a final separator followed by one or two digits marks the fraction
	fractionPattern = regexp.MustCompile(`[.,](\d{1,2})$`)
)

var symbolCurrencies = map[string]models.Currency{
	"₩": models.CurrencyKRW,
	"$": models.CurrencyUSD,
	"€": models.CurrencyEUR,
	"£": models.CurrencyGBP,
}

// ParseMoney converts free-form text into an amount and currency.
// Rules are tried in order: a 원 suffix, a leading currency symbol, then the longest digit run.
func ParseMoney(text string) (Money, bool) {
	text = normalizeSpaces(text)
	if text == "" {
		return Money{}, false
	}

	if m := wonSuffixPattern.FindStringSubmatch(text); m != nil {
		if amount, ok := canonicalAmount(m[1]); ok {
			return Money{Amount: amount, Currency: models.CurrencyKRW}, true
		}
	}

	if m := symbolPrefixPattern.FindStringSubmatch(text); m != nil {
		if amount, ok := canonicalAmount(m[2]); ok {
			return Money{Amount: amount, Currency: symbolCurrencies[m[1]]}, true
		}
	}

	amount, ok := ParseDigitRun(text)
	if !ok {
		return Money{}, false
	}
	return Money{Amount: amount}, true
}

// ParseDigitRun picks the digit run with the most digits, breaking ties by the smaller value
func ParseDigitRun(text string) (decimal.Decimal, bool) {
	var (
		best       decimal.Decimal
		bestDigits int
		found      bool
	)
	for _, run := range digitRunPattern.FindAllString(normalizeSpaces(text), -1) {
		amount, ok := canonicalAmount(run)
		if !ok {
			continue
		}
		digits := countDigits(run)
		if !found || digits > bestDigits || (digits == bestDigits && amount.LessThan(best)) {
			best, bestDigits, found = amount, digits, true
		}
	}
	return best, found
}

// canonicalAmount turns a numeric run into a decimal rounded to two places.
// Only a final separator followed by 1-2 digits is a decimal point; all others group thousands.
func canonicalAmount(run string) (decimal.Decimal, bool) {
	run = strings.TrimRight(run, ".,")
	if run == "" {
		return decimal.Decimal{}, false
	}

	intPart, fracPart := run, ""
	if loc := fractionPattern.FindStringSubmatchIndex(run); loc != nil {
		intPart = run[:loc[0]]
		fracPart = run[loc[2]:loc[3]]
	}

	var b strings.Builder
	for _, r := range intPart {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		if fracPart == "" {
			return decimal.Decimal{}, false
		}
		b.WriteByte('0')
	}
	if fracPart != "" {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}

	amount, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Decimal{}, false
	}
	return amount.Round(2), true
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// normalizeSpaces folds non-breaking spaces so patterns with \s match rendered text
func normalizeSpaces(text string) string {
	text = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2009", " ").Replace(text)
	return strings.TrimSpace(text)
}
