package scraper

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chelsseeey/price-watcher/models"
)

// PerNightBonus is added to elements labeled or surrounded by a per-night label
const PerNightBonus = 50

var (
	perNightLabels   = []string{"1박당", "1박 당", "per night"}
	perNightStripper = strings.NewReplacer("1박당", "", "1박 당", "")
)

// VisualScorer ranks visible money-like text by font size and proximity to a per-night label.
// Used for mobile layouts where selectors are unreliable.
type VisualScorer struct {
	DiscountWords []string
}

type scoredText struct {
	snap  ElementSnapshot
	money Money
	score float64
}

// NewVisualScorer uses the default discount lexicon when none is given
func NewVisualScorer(discountWords []string) *VisualScorer {
	if len(discountWords) == 0 {
		discountWords = DefaultDiscountWords
	}
	return &VisualScorer{DiscountWords: discountWords}
}

// Extract scans the visible elements of the page and returns the best candidate, or nil
func (v *VisualScorer) Extract(ctx context.Context, page Page) (*models.Candidate, error) {
	elements, err := page.ScanVisible(ctx)
	if err != nil {
		return nil, err
	}
	return v.Pick(elements), nil
}

// Pick sorts survivors by score descending, then amount ascending
func (v *VisualScorer) Pick(elements []ElementSnapshot) *models.Candidate {
	var scored []scoredText
	for _, el := range elements {
		if !el.Visible || el.AriaHidden || el.Text == "" {
			continue
		}
		if containsFold(el.Text, v.DiscountWords) || isStruck(el) {
			continue
		}
		// the "1" of a bare 1박당 label is not an amount
		text := perNightStripper.Replace(el.Text)
		money, ok := ParseMoney(text)
		if !ok || money.IsZero() {
			continue
		}
		score := el.FontSize
		if score <= 0 {
			score = defaultFontSize
		}
		if hasPerNightLabel(el) {
			score += PerNightBonus
		}
		scored = append(scored, scoredText{snap: el, money: money, score: score})
	}
	if len(scored) == 0 {
		return nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].money.Amount.LessThan(scored[j].money.Amount)
	})

	top := scored[0]
	return &models.Candidate{
		RawText:  top.snap.Text,
		Amount:   top.money.Amount,
		Currency: top.money.Currency,
		Score:    top.score,
		Strategy: models.StrategyVisual,
		Detail:   fmt.Sprintf("score=%.0f", top.score),
	}
}

func hasPerNightLabel(el ElementSnapshot) bool {
	if containsFold(el.Text, perNightLabels) {
		return true
	}
	for _, t := range el.AncestorText {
		if containsFold(t, perNightLabels) {
			return true
		}
	}
	return false
}
