package scraper

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/shopspring/decimal"
)

// Card field names understood by the extractor
const (
	FieldName          = "name"
	FieldBadges        = "badges"
	FieldPriceTotal    = "price_total"
	FieldPricePerNight = "price_per_night"
)

// DefaultAdWords mark sponsored cards
var DefaultAdWords = []string{"광고", "sponsored", "sponsor", "ad "}

var (
	cardPricePattern = regexp.MustCompile(`[₩$€£]\s*\d[\d.,]*|\d[\d.,]*\s*원`)
	totalMarkers     = []string{"total", "총", "합계", "세금", "포함", "final"}
	perNightMarkers  = []string{"1박", "/박", "박당", "per night", "/night"}
)

// CardRules filter the cards of a list page
type CardRules struct {
	AdWords       []string
	DiscountWords []string
	// Keyword keeps only cards mentioning it, e.g. a carrier name.
	Keyword string
}

// CardOffer is the price read from one card
type CardOffer struct {
	Index    int
	Name     string
	Badges   string
	Field    string
	RawText  string
	Amount   decimal.Decimal
	Currency models.Currency
}

// CardExtractor reads one offer per list card and keeps the lowest
type CardExtractor struct {
	Rules CardRules
}

// NewCardExtractor fills in the default lexicons
func NewCardExtractor(rules CardRules) *CardExtractor {
	if len(rules.AdWords) == 0 {
		rules.AdWords = DefaultAdWords
	}
	if len(rules.DiscountWords) == 0 {
		rules.DiscountWords = DefaultDiscountWords
	}
	return &CardExtractor{Rules: rules}
}

// Extract returns the lowest-priced card as a candidate, with every parsed offer attached
func (e *CardExtractor) Extract(ctx context.Context, page Page, q CardQuery, strategy models.Strategy) (*models.Candidate, error) {
	if q.Selector == "" {
		return nil, nil
	}
	cards, err := page.Cards(ctx, q)
	if err != nil {
		return nil, err
	}

	offers := e.Offers(cards)
	best, ok := SummarizeCards(offers)
	if !ok {
		return nil, nil
	}

	summaries := make([]map[string]any, 0, len(offers))
	for _, o := range offers {
		summaries = append(summaries, map[string]any{
			"index":    o.Index,
			"name":     o.Name,
			"badges":   o.Badges,
			"field":    o.Field,
			"price":    o.Amount.StringFixed(2),
			"currency": string(o.Currency),
		})
	}

	return &models.Candidate{
		RawText:  best.RawText,
		Amount:   best.Amount,
		Currency: best.Currency,
		Strategy: strategy,
		Detail:   fmt.Sprintf("card[%d]", best.Index),
		Extra: map[string]any{
			"card_index": best.Index,
			"name":       best.Name,
			"badges":     best.Badges,
			"offers":     summaries,
		},
	}, nil
}

// Offers parses every eligible card. Ads and cards missing the keyword are dropped.
func (e *CardExtractor) Offers(cards []CardSnapshot) []CardOffer {
	var offers []CardOffer
	for _, card := range cards {
		if containsFold(card.Text, e.Rules.AdWords) {
			continue
		}
		if e.Rules.Keyword != "" && !containsFold(card.Text, []string{e.Rules.Keyword}) {
			continue
		}
		offer, ok := e.readCard(card)
		if ok {
			offers = append(offers, offer)
		}
	}
	return offers
}

func (e *CardExtractor) readCard(card CardSnapshot) (CardOffer, bool) {
	offer := CardOffer{
		Index:  card.Index,
		Name:   first(card.Fields[FieldName]),
		Badges: joinBadges(card.Fields[FieldBadges]),
	}

	for _, field := range []string{FieldPriceTotal, FieldPricePerNight} {
		for _, raw := range card.Fields[field] {
			if containsFold(raw, e.Rules.DiscountWords) {
				continue
			}
			if m, ok := ParseMoney(raw); ok && !m.IsZero() {
				offer.Field, offer.RawText = field, raw
				offer.Amount, offer.Currency = m.Amount, m.Currency
				return offer, true
			}
		}
	}

	raw, ok := e.scanCardText(card.Text)
	if !ok {
		return CardOffer{}, false
	}
	m, ok := ParseMoney(raw)
	if !ok || m.IsZero() {
		return CardOffer{}, false
	}
	offer.Field, offer.RawText = "scan", raw
	offer.Amount, offer.Currency = m.Amount, m.Currency
	return offer, true
}

// scanCardText scores money-bearing lines: total markers +2, per-night markers +1. Earlier lines win ties.
func (e *CardExtractor) scanCardText(text string) (string, bool) {
	bestScore := -1
	best := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		match := cardPricePattern.FindString(line)
		if match == "" || containsFold(line, e.Rules.DiscountWords) {
			continue
		}
		score := 0
		if containsFold(line, totalMarkers) {
			score += 2
		}
		if containsFold(line, perNightMarkers) {
			score++
		}
		if score > bestScore {
			bestScore, best = score, match
		}
	}
	return best, bestScore >= 0
}

// SummarizeCards picks the lowest card total. Per-night and scanned prices are only
// compared when no card shows a total. Equal prices keep the earlier card.
func SummarizeCards(offers []CardOffer) (CardOffer, bool) {
	var totals []CardOffer
	for _, o := range offers {
		if o.Field == FieldPriceTotal {
			totals = append(totals, o)
		}
	}
	if len(totals) > 0 {
		offers = totals
	}
	if len(offers) == 0 {
		return CardOffer{}, false
	}
	best := offers[0]
	for _, o := range offers[1:] {
		if o.Amount.LessThan(best.Amount) {
			best = o
		}
	}
	return best, true
}

func joinBadges(badges []string) string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range badges {
		b = strings.TrimSpace(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	sort.Strings(out)
	return strings.Join(out, "|")
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
