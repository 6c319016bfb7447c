package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chelsseeey/price-watcher/models"
	"github.com/shopspring/decimal"
)

// priceKeys are checked in this order at every object
var priceKeys = []string{"price", "priceAmount", "amount", "totalPrice", "finalPrice", "grandTotal", "value", "amountTotal"}

var currencyHintKeys = []string{"priceCurrency", "currency", "currencyCode"}

// StructuredPrice is a price found in an embedded JSON blob
type StructuredPrice struct {
	Money
	RawText string
	Key     string
}

// FindPrice walks the tree depth-first. At each object the price keys win, then "offers", then the other members in order.
func FindPrice(node *JSONNode) (StructuredPrice, bool) {
	if node == nil {
		return StructuredPrice{}, false
	}

	switch node.Kind {
	case JSONObject:
		for _, key := range priceKeys {
			value, ok := node.Get(key)
			if !ok {
				continue
			}
			price, ok := priceFromNode(value)
			if !ok {
				continue
			}
			price.Key = key
			if !price.Currency.IsSet() {
				price.Currency = currencyHint(node)
			}
			return price, true
		}

		if offers, ok := node.Get("offers"); ok {
			if price, ok := FindPrice(offers); ok {
				return price, true
			}
		}
		for _, f := range node.Fields {
			if f.Key == "offers" {
				continue
			}
			if price, ok := FindPrice(f.Value); ok {
				return price, true
			}
		}
	case JSONArray:
		for _, item := range node.Items {
			if price, ok := FindPrice(item); ok {
				return price, true
			}
		}
	}
	return StructuredPrice{}, false
}

func priceFromNode(value *JSONNode) (StructuredPrice, bool) {
	switch value.Kind {
	case JSONString:
		m, ok := ParseMoney(value.String)
		if !ok || m.IsZero() {
			return StructuredPrice{}, false
		}
		return StructuredPrice{Money: m, RawText: value.String}, true
	case JSONNumber:
		amount, err := decimal.NewFromString(value.Number.String())
		if err != nil || amount.Sign() <= 0 {
			return StructuredPrice{}, false
		}
		return StructuredPrice{Money: Money{Amount: amount.Round(2)}, RawText: value.Number.String()}, true
	}
	return StructuredPrice{}, false
}

func currencyHint(node *JSONNode) models.Currency {
	for _, key := range currencyHintKeys {
		if v, ok := node.Get(key); ok && v.Kind == JSONString {
			if c := models.ParseCurrency(v.String); c.IsSet() {
				return c
			}
		}
	}
	return models.CurrencyUnset
}

// ExtractStructuredData searches linked-data scripts first, then the Next.js hydration blob.
// Malformed blobs are skipped.
func ExtractStructuredData(html string) *models.Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	sources := []struct {
		strategy models.Strategy
		selector string
	}{
		{models.StrategyLDJSON, `script[type="application/ld+json"]`},
		{models.StrategyNextData, `script#__NEXT_DATA__, script[id*="__NEXT_DATA__"]`},
	}

	for _, src := range sources {
		var found *models.Candidate
		doc.Find(src.selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
			tree, err := DecodeJSONTree([]byte(strings.TrimSpace(s.Text())))
			if err != nil {
				return true
			}
			price, ok := FindPrice(tree)
			if !ok {
				return true
			}
			found = &models.Candidate{
				RawText:  price.RawText,
				Amount:   price.Amount,
				Currency: price.Currency,
				Strategy: src.strategy,
				Detail:   fmt.Sprintf("%s[%d].%s", src.strategy, i, price.Key),
			}
			return false
		})
		if found != nil {
			return found
		}
	}
	return nil
}
