package repository

import (
	"time"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/shopspring/decimal"
)

var base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func price(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(v), Valid: true}
}

func sample(site, item string, region models.Region, device models.Device, at time.Duration) *models.Observation {
	return &models.Observation{
		RunID:       "run-1",
		Site:        site,
		Item:        item,
		Region:      region,
		Device:      device,
		Price:       price("12900"),
		Currency:    models.CurrencyKRW,
		RawText:     "12,900원",
		Strategy:    models.StrategyDOM,
		URL:         "https://www.coupang.com/vp/products/" + item,
		CollectedAt: base.Add(at),
	}
}
