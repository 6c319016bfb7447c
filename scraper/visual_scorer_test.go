package scraper

import (
	"context"
	"testing"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisualScorerPrefersPerNightLabel(t *testing.T) {
	page := staticPage(t, `
		<div><section><article><div><div>
			<span>1박당</span><span style="font-size:20px">₩180,000</span>
		</div></div></article></section></div>
		<div><div><div><div>
			<span style="font-size:28px">₩250,000</span>
		</div></div></div></div>`)

	c, err := NewVisualScorer(nil).Extract(context.Background(), page)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "180000", c.Amount.String())
	assert.Equal(t, models.CurrencyKRW, c.Currency)
	assert.Equal(t, models.StrategyVisual, c.Strategy)
	assert.Equal(t, float64(20+PerNightBonus), c.Score)
	assert.Equal(t, "score=70", c.Detail)
}

func TestVisualScorerPick(t *testing.T) {
	v := NewVisualScorer(nil)

	t.Run("larger font wins without labels", func(t *testing.T) {
		c := v.Pick([]ElementSnapshot{
			{Text: "₩9,000", Visible: true, FontSize: 12},
			{Text: "₩99,000", Visible: true, FontSize: 24},
		})
		require.NotNil(t, c)
		assert.Equal(t, "99000", c.Amount.String())
	})

	t.Run("equal scores prefer the smaller amount", func(t *testing.T) {
		c := v.Pick([]ElementSnapshot{
			{Text: "₩130,000", Visible: true, FontSize: 18},
			{Text: "₩125,000", Visible: true, FontSize: 18},
		})
		require.NotNil(t, c)
		assert.Equal(t, "125000", c.Amount.String())
	})

	t.Run("filtered elements", func(t *testing.T) {
		c := v.Pick([]ElementSnapshot{
			{Text: "₩1,000", Visible: false, FontSize: 40},
			{Text: "₩2,000", Visible: true, AriaHidden: true, FontSize: 40},
			{Text: "쿠폰 ₩3,000", Visible: true, FontSize: 40},
			{Text: "₩4,000", Visible: true, LineThrough: true, FontSize: 40},
			{Text: "₩0", Visible: true, FontSize: 40},
			{Text: "1박당", Visible: true, FontSize: 40},
			{Text: "₩5,000", Visible: true, FontSize: 10},
		})
		require.NotNil(t, c)
		assert.Equal(t, "5000", c.Amount.String())
	})

	t.Run("nothing eligible", func(t *testing.T) {
		assert.Nil(t, v.Pick([]ElementSnapshot{{Text: "2 adults", Visible: false}}))
	})
}
