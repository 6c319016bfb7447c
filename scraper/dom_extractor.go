package scraper

import (
	"context"
	"strings"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/shopspring/decimal"
)

const defaultGroupLimit = 40

// DefaultDiscountWords mark badges and coupon prices that are never the listing price
var DefaultDiscountWords = []string{"할인", "적용됨", "쿠폰", "리워드", "캐시백", "%", "즉시 할인", "coupon", "cashback"}

var (
	struckClassWords         = []string{"strike", "original", "before", "wasprice"}
	struckAncestorClassWords = []string{"strike", "original", "wasprice"}
)

// SelectorGroup is one ranked selector with its reading rules
type SelectorGroup struct {
	Tag             string  `yaml:"tag" json:"tag"`
	Selector        string  `yaml:"selector" json:"selector"`
	Attr            string  `yaml:"attr" json:"attr,omitempty"`
	Contains        string  `yaml:"contains" json:"contains,omitempty"`
	Limit           int     `yaml:"limit" json:"limit,omitempty"`
	RequireCurrency bool    `yaml:"require_currency" json:"require_currency,omitempty"`
	// MinAmount prefers amounts at or above it. A smaller amount is kept only when
	// no group yields a larger one.
	MinAmount float64 `yaml:"min_amount" json:"min_amount,omitempty"`
	// Fraction selects the cents of a price split into whole and fraction elements.
	// The first Selector match is joined with the first Fraction match.
	Fraction string `yaml:"fraction" json:"fraction,omitempty"`
}

// Name returns the provenance tag of the group
func (g SelectorGroup) Name() string {
	if g.Tag != "" {
		return g.Tag
	}
	return g.Selector
}

// ExclusionRules are the lexical filters applied to every candidate element
type ExclusionRules struct {
	DiscountWords []string
	UnitHints     []string
	ShipHints     []string
}

// DOMExtractor picks the first element surviving all exclusions from the first group that yields one
type DOMExtractor struct {
	Rules ExclusionRules
}

// NewDOMExtractor creates an extractor, using the default discount lexicon when none is given
func NewDOMExtractor(rules ExclusionRules) *DOMExtractor {
	if len(rules.DiscountWords) == 0 {
		rules.DiscountWords = DefaultDiscountWords
	}
	return &DOMExtractor{Rules: rules}
}

// Extract returns nil when no group yields a surviving element
func (e *DOMExtractor) Extract(ctx context.Context, page Page, groups []SelectorGroup, strategy models.Strategy) (*models.Candidate, error) {
	var small *models.Candidate
	for _, g := range groups {
		elements, err := e.query(ctx, page, g)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		for _, el := range elements {
			text := el.Text
			if g.Attr != "" {
				text = el.Attr
			}
			money, ok := e.accept(el, text, g)
			if !ok {
				continue
			}
			c := &models.Candidate{
				RawText:  text,
				Amount:   money.Amount,
				Currency: money.Currency,
				Strategy: strategy,
				Detail:   g.Name(),
			}
			if g.MinAmount > 0 && money.Amount.LessThan(decimal.NewFromFloat(g.MinAmount)) {
				if small == nil {
					small = c
				}
				continue
			}
			return c, nil
		}
	}
	return small, nil
}

func (e *DOMExtractor) query(ctx context.Context, page Page, g SelectorGroup) ([]ElementSnapshot, error) {
	limit := g.Limit
	if limit <= 0 {
		limit = defaultGroupLimit
	}
	elements, err := page.Query(ctx, ElementQuery{Selector: g.Selector, Attr: g.Attr, Contains: g.Contains, Limit: limit})
	if err != nil || g.Fraction == "" {
		return elements, err
	}
	if len(elements) == 0 {
		return nil, nil
	}

	fractions, err := page.Query(ctx, ElementQuery{Selector: g.Fraction, Limit: 1})
	if err != nil || len(fractions) == 0 {
		return nil, err
	}
	joined := elements[0]
	joined.Text = joinPriceParts(elements[0].Text, fractions[0].Text)
	return []ElementSnapshot{joined}, nil
}

// joinPriceParts turns "24." and "99" into "24.99"
func joinPriceParts(whole, fraction string) string {
	whole = strings.TrimRight(normalizeSpaces(whole), ". \t\r\n")
	fraction = strings.TrimSpace(normalizeSpaces(fraction))
	if whole == "" || fraction == "" {
		return whole
	}
	return whole + "." + fraction
}

func (e *DOMExtractor) accept(el ElementSnapshot, text string, g SelectorGroup) (Money, bool) {
	if text == "" || el.AriaHidden {
		return Money{}, false
	}
	if containsFold(el.Text, e.Rules.DiscountWords) || containsFold(text, e.Rules.DiscountWords) {
		return Money{}, false
	}
	if isStruck(el) {
		return Money{}, false
	}
	if containsFold(text, e.Rules.UnitHints) || containsFold(text, e.Rules.ShipHints) {
		return Money{}, false
	}

	money, ok := ParseMoney(text)
	if !ok {
		return Money{}, false
	}
	if g.RequireCurrency && !money.Currency.IsSet() {
		return Money{}, false
	}
	return money, true
}

func isStruck(el ElementSnapshot) bool {
	if el.LineThrough {
		return true
	}
	if containsFold(el.Class, struckClassWords) {
		return true
	}
	for _, c := range el.AncestorClass {
		if containsFold(c, struckAncestorClassWords) {
			return true
		}
	}
	return false
}

func containsFold(text string, words []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
