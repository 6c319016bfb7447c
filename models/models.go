package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code. Only the currencies the parsers can recognize are valid.
type Currency string

const (
	CurrencyUnset Currency = ""
	CurrencyKRW   Currency = "KRW"
	CurrencyUSD   Currency = "USD"
	CurrencyEUR   Currency = "EUR"
	CurrencyGBP   Currency = "GBP"
)

// ParseCurrency normalizes a currency code. Unknown codes map to CurrencyUnset.
func ParseCurrency(code string) Currency {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	switch c {
	case CurrencyKRW, CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return c
	default:
		return CurrencyUnset
	}
}

// IsSet returns true if the currency is one of the known codes
func (c Currency) IsSet() bool {
	return c != CurrencyUnset && ParseCurrency(string(c)) == c
}

// Valid returns true for a known code or the unset value
func (c Currency) Valid() bool {
	return c == CurrencyUnset || c.IsSet()
}

// Strategy is the provenance tag of an extracted price.
type Strategy string

const (
	StrategyVisual   Strategy = "visual"
	StrategyDOM      Strategy = "dom"
	StrategyDOMMulti Strategy = "dom-multi"
	StrategyLDJSON   Strategy = "ld+json"
	StrategyNextData Strategy = "__NEXT_DATA__"
	StrategyOCR      Strategy = "ocr"
)

// Observation is one extracted price point. It is built once and never updated.
type Observation struct {
	RunID          string              `json:"run_id,omitempty"`
	Site           string              `json:"site"`
	Item           string              `json:"item"`
	Region         Region              `json:"region"`
	Device         Device              `json:"device"`
	LoggedIn       bool                `json:"logged_in"`
	CartPopulated  bool                `json:"cart_populated"`
	CookiesCleared bool                `json:"cookies_cleared"`
	Price          decimal.NullDecimal `json:"price"`
	Currency       Currency            `json:"currency,omitempty"`
	RawText        string              `json:"raw_text"`
	Strategy       Strategy            `json:"strategy"`
	URL            string              `json:"url"`
	CollectedAt    time.Time           `json:"ts"`
	Meta           map[string]any      `json:"meta,omitempty"`
}

// HasPrice returns true if the observation carries a parsed price
func (o *Observation) HasPrice() bool {
	return o.Price.Valid
}

// PriceString formats the price with two fractional digits, or "" when absent
func (o *Observation) PriceString() string {
	if !o.Price.Valid {
		return ""
	}
	return o.Price.Decimal.StringFixed(2)
}

// ApplyProfile copies the environment labels onto the observation
func (o *Observation) ApplyProfile(p EnvironmentProfile) {
	o.Region = p.Region
	o.Device = p.Device
	o.LoggedIn = p.LoggedIn
	o.CartPopulated = p.CartPopulated
	o.CookiesCleared = p.CookiesCleared
}

// MetaJSON encodes the free-form annotation for row stores
func (o *Observation) MetaJSON() string {
	if len(o.Meta) == 0 {
		return "{}"
	}
	b, err := json.Marshal(o.Meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Validate checks the row invariants before it is persisted
func (o *Observation) Validate() error {
	if o.Site == "" {
		return fmt.Errorf("observation has no site")
	}
	if o.Item == "" {
		return fmt.Errorf("observation for %s has no item", o.Site)
	}
	if o.Price.Valid && o.Price.Decimal.IsNegative() {
		return fmt.Errorf("observation for %s/%s has negative price %s", o.Site, o.Item, o.Price.Decimal)
	}
	if !o.Currency.Valid() {
		return fmt.Errorf("observation for %s/%s has unknown currency %q", o.Site, o.Item, o.Currency)
	}
	return nil
}
