package models

import "github.com/shopspring/decimal"

// Candidate is an intermediate price produced by one strategy before a winner is picked.
// It lives only inside one extraction attempt.
type Candidate struct {
	RawText  string
	Amount   decimal.Decimal
	Currency Currency
	Score    float64
	Strategy Strategy
	// Detail names the selector group, card index or script that produced the value.
	Detail string
	Extra  map[string]any
}
