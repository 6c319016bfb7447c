package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chelsseeey/price-watcher/models"
)

// SiteKind is the page shape a site renders prices in
type SiteKind string

const (
	KindHotelRoomGrid   SiteKind = "hotel-room-grid"
	KindFlightOfferList SiteKind = "flight-offer-list"
	KindSingleProduct   SiteKind = "single-product-price"
)

const defaultReadyPolls = 45

// ScrollPlan induces lazy-loaded content
type ScrollPlan struct {
	Steps int           `yaml:"steps" json:"steps"`
	Delta int           `yaml:"delta" json:"delta"`
	Pause time.Duration `yaml:"pause" json:"pause"`
}

// SiteConfig is the extraction configuration of one site
type SiteConfig struct {
	Name            string          `yaml:"name" json:"name"`
	Kind            SiteKind        `yaml:"kind" json:"kind"`
	DefaultCurrency models.Currency `yaml:"default_currency" json:"default_currency"`
	Referer         string          `yaml:"referer" json:"referer,omitempty"`
	ReadySelectors  []string        `yaml:"ready_selectors" json:"ready_selectors,omitempty"`
	ReadyPolls      int             `yaml:"ready_polls" json:"ready_polls"`
	Primary         []SelectorGroup `yaml:"primary" json:"primary,omitempty"`
	Backup          []SelectorGroup `yaml:"backup" json:"backup,omitempty"`
	Cards           *CardQuery      `yaml:"cards" json:"cards,omitempty"`
	CardKeyword     string          `yaml:"card_keyword" json:"card_keyword,omitempty"`
	VisualOnMobile  bool            `yaml:"visual_on_mobile" json:"visual_on_mobile"`
	DiscountWords   []string        `yaml:"discount_words" json:"discount_words,omitempty"`
	UnitHints       []string        `yaml:"unit_hints" json:"unit_hints,omitempty"`
	ShipHints       []string        `yaml:"ship_hints" json:"ship_hints,omitempty"`
	AdWords         []string        `yaml:"ad_words" json:"ad_words,omitempty"`
	Scroll          ScrollPlan      `yaml:"scroll" json:"scroll"`
	// LoginState names the saved cookie file used by logged-in profiles.
	LoginState string `yaml:"login_state" json:"login_state,omitempty"`
}

// Validate rejects configurations the orchestrator cannot run
func (s *SiteConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("site has no name")
	}
	switch s.Kind {
	case KindHotelRoomGrid, KindFlightOfferList, KindSingleProduct:
	default:
		return fmt.Errorf("site %s: unknown kind %q", s.Name, s.Kind)
	}
	if !s.DefaultCurrency.Valid() {
		return fmt.Errorf("site %s: unknown default currency %q", s.Name, s.DefaultCurrency)
	}
	if s.Kind == KindFlightOfferList && (s.Cards == nil || s.Cards.Selector == "") {
		return fmt.Errorf("site %s: %s needs a card selector", s.Name, s.Kind)
	}
	if s.Kind != KindFlightOfferList && len(s.Primary) == 0 && len(s.Backup) == 0 && s.Cards == nil {
		return fmt.Errorf("site %s: no selector groups", s.Name)
	}
	for _, g := range append(append([]SelectorGroup{}, s.Primary...), s.Backup...) {
		if g.Selector == "" {
			return fmt.Errorf("site %s: selector group %q has an empty selector", s.Name, g.Tag)
		}
	}
	return nil
}

// ReadySelectorList returns the selectors polled by the readiness gate
func (s *SiteConfig) ReadySelectorList() []string {
	if len(s.ReadySelectors) > 0 {
		return s.ReadySelectors
	}
	var out []string
	if s.Cards != nil && s.Cards.Selector != "" {
		out = append(out, s.Cards.Selector)
	}
	for _, g := range s.Primary {
		out = append(out, g.Selector)
	}
	for _, g := range s.Backup {
		out = append(out, g.Selector)
	}
	return out
}

// Polls returns the readiness poll budget
func (s *SiteConfig) Polls() int {
	if s.ReadyPolls > 0 {
		return s.ReadyPolls
	}
	return defaultReadyPolls
}

// Exclusions returns the lexical filters of the site
func (s *SiteConfig) Exclusions() ExclusionRules {
	return ExclusionRules{DiscountWords: s.DiscountWords, UnitHints: s.UnitHints, ShipHints: s.ShipHints}
}

// SiteStrategy supplies the site-specific extraction steps of the orchestrator
type SiteStrategy interface {
	Config() *SiteConfig
	// Primary runs the device and site specific heuristic.
	Primary(ctx context.Context, page Page, profile models.EnvironmentProfile) (*models.Candidate, error)
	// Backup runs the broader selector groups.
	Backup(ctx context.Context, page Page) (*models.Candidate, error)
}

// NewSiteStrategy picks the variant for the site kind
func NewSiteStrategy(cfg *SiteConfig) (SiteStrategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := baseStrategy{
		cfg:    cfg,
		dom:    NewDOMExtractor(cfg.Exclusions()),
		cards:  NewCardExtractor(CardRules{AdWords: cfg.AdWords, DiscountWords: cfg.DiscountWords, Keyword: cfg.CardKeyword}),
		visual: NewVisualScorer(cfg.DiscountWords),
	}
	switch cfg.Kind {
	case KindHotelRoomGrid:
		return &roomGridStrategy{base}, nil
	case KindFlightOfferList:
		return &offerListStrategy{base}, nil
	default:
		return &productStrategy{base}, nil
	}
}

type baseStrategy struct {
	cfg    *SiteConfig
	dom    *DOMExtractor
	cards  *CardExtractor
	visual *VisualScorer
}

func (b *baseStrategy) Config() *SiteConfig { return b.cfg }

func (b *baseStrategy) Backup(ctx context.Context, page Page) (*models.Candidate, error) {
	return b.dom.Extract(ctx, page, b.cfg.Backup, models.StrategyDOM)
}

func (b *baseStrategy) visualOnMobile(profile models.EnvironmentProfile) bool {
	return b.cfg.VisualOnMobile && profile.IsMobile()
}

// roomGridStrategy reads hotel room grids: visual scoring on mobile, room cards or selectors on desktop
type roomGridStrategy struct{ baseStrategy }

func (s *roomGridStrategy) Primary(ctx context.Context, page Page, profile models.EnvironmentProfile) (*models.Candidate, error) {
	if s.visualOnMobile(profile) {
		return s.visual.Extract(ctx, page)
	}
	if s.cfg.Cards != nil {
		c, err := s.cards.Extract(ctx, page, *s.cfg.Cards, models.StrategyDOMMulti)
		if c != nil || err != nil {
			return c, err
		}
	}
	return s.dom.Extract(ctx, page, s.cfg.Primary, models.StrategyDOM)
}

// offerListStrategy reads flight result cards and keeps the lowest fare
type offerListStrategy struct{ baseStrategy }

func (s *offerListStrategy) Primary(ctx context.Context, page Page, profile models.EnvironmentProfile) (*models.Candidate, error) {
	if s.visualOnMobile(profile) {
		if c, err := s.visual.Extract(ctx, page); c != nil || err != nil {
			return c, err
		}
	}
	return s.cards.Extract(ctx, page, *s.cfg.Cards, models.StrategyDOMMulti)
}

// productStrategy reads a single product price
type productStrategy struct{ baseStrategy }

func (s *productStrategy) Primary(ctx context.Context, page Page, profile models.EnvironmentProfile) (*models.Candidate, error) {
	if s.visualOnMobile(profile) {
		return s.visual.Extract(ctx, page)
	}
	return s.dom.Extract(ctx, page, s.cfg.Primary, models.StrategyDOM)
}
