package scraper

import (
	"testing"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		raw      string
		amount   string
		currency models.Currency
	}{
		{"12,000원", "12000", models.CurrencyKRW},
		{"1박당 152,000 원", "152000", models.CurrencyKRW},
		{"₩1,234,567", "1234567", models.CurrencyKRW},
		{"₩1.234.567", "1234567", models.CurrencyKRW},
		{"$1,299.99", "1299.99", models.CurrencyUSD},
		{"$ 49", "49", models.CurrencyUSD},
		{"€12,50", "12.5", models.CurrencyEUR},
		{"£7.5", "7.5", models.CurrencyGBP},
		{"Was 12,000 now 125,000", "125000", models.CurrencyUnset},
		{"total 89000", "89000", models.CurrencyUnset},
		{"12,000 원", "12000", models.CurrencyKRW},
		{"$19.999", "19999", models.CurrencyUSD},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseMoney(tt.raw)
			require.True(t, ok)
			assert.True(t, decimal.RequireFromString(tt.amount).Equal(got.Amount), "amount = %s", got.Amount)
			assert.Equal(t, tt.currency, got.Currency)
		})
	}
}

func TestParseMoneyNoNumber(t *testing.T) {
	for _, raw := range []string{"", "   ", "sold out", "원", "$", "가격 문의"} {
		_, ok := ParseMoney(raw)
		assert.False(t, ok, "ParseMoney(%q)", raw)
	}
}

func TestParseMoneyWonDigitsProperty(t *testing.T) {
	for _, n := range []int64{0, 7, 999, 1000, 45000, 1234567, 987654321} {
		raw := decimal.NewFromInt(n).String()
		for _, text := range []string{raw + "원", raw + " 원", groupThousands(raw) + "원"} {
			got, ok := ParseMoney(text)
			require.True(t, ok, text)
			assert.Equal(t, n, got.Amount.IntPart(), text)
			assert.Equal(t, models.CurrencyKRW, got.Currency, text)
		}
	}
}

func TestParseMoneySymbolProperty(t *testing.T) {
	symbols := map[string]models.Currency{
		"₩": models.CurrencyKRW,
		"$": models.CurrencyUSD,
		"€": models.CurrencyEUR,
		"£": models.CurrencyGBP,
	}
	for symbol, currency := range symbols {
		for _, n := range []int64{5, 1200, 30000, 2500000} {
			text := symbol + groupThousands(decimal.NewFromInt(n).String())
			got, ok := ParseMoney(text)
			require.True(t, ok, text)
			assert.Equal(t, n, got.Amount.IntPart(), text)
			assert.Equal(t, currency, got.Currency, text)
		}
	}
}

func TestParseDigitRunTieBreaksToSmaller(t *testing.T) {
	got, ok := ParseDigitRun("room 52,000 or 41,000 tonight")
	require.True(t, ok)
	assert.Equal(t, "41000", got.String())

	_, ok = ParseDigitRun("no digits here")
	assert.False(t, ok)
}

func groupThousands(digits string) string {
	var out []byte
	for i := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	return string(out)
}
