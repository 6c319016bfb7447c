package scraper

import (
	"context"
	"testing"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roomCards = CardQuery{
	Selector: ".room",
	Limit:    20,
	Fields: []CardField{
		{Name: FieldName, Selector: ".name"},
		{Name: FieldBadges, Selector: ".badge", Multi: true},
		{Name: FieldPriceTotal, Selector: ".total"},
		{Name: FieldPricePerNight, Selector: ".night"},
	},
}

func TestCardExtractorLowestPriceWins(t *testing.T) {
	page := staticPage(t, `
		<div class="room"><span class="name">Deluxe</span><span class="total">₩210,000</span></div>
		<div class="room"><span class="name">Standard</span><span class="badge">무료 취소</span><span class="badge">조식 포함</span><span class="badge">무료 취소</span><span class="total">₩150,000</span></div>
		<div class="room"><span class="name">Suite</span><span class="total">₩480,000</span></div>`)

	c, err := NewCardExtractor(CardRules{}).Extract(context.Background(), page, roomCards, models.StrategyDOMMulti)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "150000", c.Amount.String())
	assert.Equal(t, models.CurrencyKRW, c.Currency)
	assert.Equal(t, "card[1]", c.Detail)
	assert.Equal(t, "Standard", c.Extra["name"])
	assert.Equal(t, "무료 취소|조식 포함", c.Extra["badges"])
	assert.Len(t, c.Extra["offers"], 3)
}

func TestCardExtractorSkipsAds(t *testing.T) {
	page := staticPage(t, `
		<div class="flight">광고 Budget Air ₩99,000</div>
		<div class="flight">Sponsored deal $45</div>
		<div class="flight">Royal Brunei ₩412,300</div>
		<div class="flight">Korean Air ₩455,000</div>`)

	c, err := NewCardExtractor(CardRules{}).Extract(context.Background(), page, CardQuery{Selector: ".flight"}, models.StrategyDOMMulti)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "412300", c.Amount.String())
}

func TestCardExtractorKeywordFilter(t *testing.T) {
	cards := []CardSnapshot{
		{Index: 0, Text: "Korean Air\n₩300,000"},
		{Index: 1, Text: "Royal Brunei\n₩412,300"},
		{Index: 2, Text: "royal brunei\n₩405,000"},
	}
	offers := NewCardExtractor(CardRules{Keyword: "Royal Brunei"}).Offers(cards)
	require.Len(t, offers, 2)

	best, ok := SummarizeCards(offers)
	require.True(t, ok)
	assert.Equal(t, 2, best.Index)
	assert.Equal(t, "405000", best.Amount.String())
}

func TestCardExtractorScanScoring(t *testing.T) {
	e := NewCardExtractor(CardRules{})

	t.Run("total line beats per-night line", func(t *testing.T) {
		offers := e.Offers([]CardSnapshot{{Text: "Twin room\n1박당 ₩120,000\n세금 포함 총 ₩264,000"}})
		require.Len(t, offers, 1)
		assert.Equal(t, "264000", offers[0].Amount.String())
		assert.Equal(t, "scan", offers[0].Field)
	})

	t.Run("earlier line wins ties", func(t *testing.T) {
		offers := e.Offers([]CardSnapshot{{Text: "₩88,000\n₩77,000"}})
		require.Len(t, offers, 1)
		assert.Equal(t, "88000", offers[0].Amount.String())
	})

	t.Run("discount lines are ignored", func(t *testing.T) {
		offers := e.Offers([]CardSnapshot{{Text: "쿠폰 적용 시 ₩50,000\n₩70,000"}})
		require.Len(t, offers, 1)
		assert.Equal(t, "70000", offers[0].Amount.String())
	})

	t.Run("no money line", func(t *testing.T) {
		assert.Empty(t, e.Offers([]CardSnapshot{{Text: "Sold out\n2 adults"}}))
	})
}

func TestSummarizeCardsMinimumProperty(t *testing.T) {
	e := NewCardExtractor(CardRules{})
	cards := []CardSnapshot{
		{Index: 0, Fields: map[string][]string{FieldPriceTotal: {"₩310,000"}}, Text: "A"},
		{Index: 1, Fields: map[string][]string{FieldPriceTotal: {"₩120,500"}}, Text: "sponsored B"},
		{Index: 2, Fields: map[string][]string{FieldPricePerNight: {"₩180,000"}}, Text: "C"},
		{Index: 3, Fields: map[string][]string{FieldPriceTotal: {"₩199,000"}}, Text: "D"},
	}
	best, ok := SummarizeCards(e.Offers(cards))
	require.True(t, ok)
	assert.Equal(t, "199000", best.Amount.String())
	assert.Equal(t, 3, best.Index)
	assert.Equal(t, FieldPriceTotal, best.Field)

	_, ok = SummarizeCards(nil)
	assert.False(t, ok)
}

func TestSummarizeCardsTotalsBeatPerNight(t *testing.T) {
	e := NewCardExtractor(CardRules{})

	t.Run("per-night card cannot undercut a total", func(t *testing.T) {
		cards := []CardSnapshot{
			{Index: 0, Fields: map[string][]string{FieldPriceTotal: {"₩300,000"}, FieldPricePerNight: {"₩150,000"}}},
			{Index: 1, Fields: map[string][]string{FieldPricePerNight: {"₩140,000"}}},
			{Index: 2, Text: "Suite\n1박당 ₩90,000"},
		}
		best, ok := SummarizeCards(e.Offers(cards))
		require.True(t, ok)
		assert.Equal(t, "300000", best.Amount.String())
		assert.Equal(t, 0, best.Index)
	})

	t.Run("per-night prices used when no card has a total", func(t *testing.T) {
		cards := []CardSnapshot{
			{Index: 0, Fields: map[string][]string{FieldPricePerNight: {"₩150,000"}}},
			{Index: 1, Fields: map[string][]string{FieldPricePerNight: {"₩140,000"}}},
		}
		best, ok := SummarizeCards(e.Offers(cards))
		require.True(t, ok)
		assert.Equal(t, "140000", best.Amount.String())
		assert.Equal(t, FieldPricePerNight, best.Field)
	})
}
