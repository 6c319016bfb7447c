package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	defaultReadyInterval   = time.Second
	defaultStrategyTimeout = 30 * time.Second
	maxRawTextRunes        = 4000
)

// AttemptKey identifies the task an attempt state belongs to
type AttemptKey struct {
	Site    string
	Profile string
	Item    string
}

// Orchestrator runs the extraction protocol for one page: navigate, check for a block page,
// scroll, wait for content, then try each strategy until one yields a price.
type Orchestrator struct {
	Logger          zerolog.Logger
	Retry           RetryOptions
	Detector        *BotDetector
	OCR             *OCRFallback
	Artifacts       ArtifactSink
	ReadyInterval   time.Duration
	StrategyTimeout time.Duration
	// Sleep waits during scrolling and readiness polling.
	Sleep   func(ctx context.Context, d time.Duration) error
	Now     func() time.Time
	OnState func(key AttemptKey, state models.AttemptState)
}

// NewOrchestrator creates an orchestrator with default timings
func NewOrchestrator(ocr *OCRFallback, artifacts ArtifactSink) *Orchestrator {
	return &Orchestrator{
		Logger:          log.Logger,
		Retry:           DefaultRetryOptions(),
		Detector:        NewBotDetector(),
		OCR:             ocr,
		Artifacts:       artifacts,
		ReadyInterval:   defaultReadyInterval,
		StrategyTimeout: defaultStrategyTimeout,
		Sleep:           sleepContext,
		Now:             time.Now,
	}
}

type namedStep struct {
	name string
	run  func(ctx context.Context) (*models.Candidate, error)
}

// Extract renders item.URL on page and returns one Observation, or an *ExtractionError
func (o *Orchestrator) Extract(ctx context.Context, page Page, strategy SiteStrategy, profile models.EnvironmentProfile, item models.TargetItem) (*models.Observation, error) {
	site := strategy.Config()
	key := AttemptKey{Site: site.Name, Profile: profile.Key(), Item: item.Identifier("")}
	logger := o.Logger.With().Str("site", key.Site).Str("profile", key.Profile).Str("item", key.Item).Logger()
	fail := func(state models.AttemptState, err error) error {
		o.setState(key, state)
		return &ExtractionError{State: state, Site: key.Site, Profile: key.Profile, Item: key.Item, Err: err}
	}

	o.setState(key, models.AttemptNavigating)
	retry := o.Retry
	if retry.Sleep == nil {
		retry.Sleep = o.Sleep
	}
	if err := NavigateWithRetry(ctx, logger, page, item.URL, retry); err != nil {
		return nil, fail(models.AttemptNavigationFailed, err)
	}

	o.setState(key, models.AttemptLoading)
	if verdict := o.detectBlock(ctx, page); verdict.Blocked {
		logger.Warn().Str("reason", verdict.Reason).Float64("score", verdict.Score).Msg("🚫 block page detected")
		return nil, fail(models.AttemptBlocked, fmt.Errorf("%w: %s", ErrBlocked, verdict.Reason))
	}

	o.scroll(ctx, page, site.Scroll)
	if !o.waitReady(ctx, page, site) {
		logger.Debug().Int("polls", site.Polls()).Msg("readiness gate exhausted, scanning anyway")
	}

	o.setState(key, models.AttemptScanning)
	steps := []namedStep{
		{"primary", func(ctx context.Context) (*models.Candidate, error) { return strategy.Primary(ctx, page, profile) }},
		{"backup", func(ctx context.Context) (*models.Candidate, error) { return strategy.Backup(ctx, page) }},
		{"structured", func(ctx context.Context) (*models.Candidate, error) {
			html, err := page.HTML(ctx)
			if err != nil {
				return nil, err
			}
			return ExtractStructuredData(html), nil
		}},
		{"ocr", func(ctx context.Context) (*models.Candidate, error) {
			if o.OCR == nil {
				return nil, nil
			}
			png, err := page.Screenshot(ctx)
			if err != nil {
				return nil, err
			}
			return o.OCR.Extract(ctx, png), nil
		}},
	}

	var winner *models.Candidate
	for _, step := range steps {
		c, err := o.runStep(ctx, step)
		if err != nil {
			logger.Debug().Err(err).Str("step", step.name).Msg("strategy failed")
			continue
		}
		if c != nil {
			winner = c
			break
		}
	}

	if winner == nil {
		o.saveArtifacts(ctx, logger, page, fmt.Sprintf("%s_no_price_%s", key.Site, key.Profile))
		return nil, fail(models.AttemptNotFound, ErrPriceNotFound)
	}

	obs := o.buildObservation(page, site, profile, item, winner)
	o.setState(key, models.AttemptSucceeded)
	logger.Info().
		Str("price", obs.PriceString()).
		Str("currency", string(obs.Currency)).
		Str("strategy", string(obs.Strategy)).
		Msg("💰 price extracted")
	return obs, nil
}

func (o *Orchestrator) runStep(ctx context.Context, step namedStep) (*models.Candidate, error) {
	timeout := o.StrategyTimeout
	if timeout <= 0 {
		timeout = defaultStrategyTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return step.run(stepCtx)
}

func (o *Orchestrator) detectBlock(ctx context.Context, page Page) BlockVerdict {
	if o.Detector == nil {
		return BlockVerdict{}
	}
	body, err := page.BodyText(ctx)
	if err != nil {
		o.Logger.Debug().Err(err).Msg("could not read body text for block check")
	}
	title, _ := page.Title(ctx)
	return o.Detector.Detect(body, title, page.URL())
}

func (o *Orchestrator) scroll(ctx context.Context, page Page, plan ScrollPlan) {
	for i := 0; i < plan.Steps; i++ {
		if err := page.Scroll(ctx, plan.Delta); err != nil {
			o.Logger.Debug().Err(err).Msg("scroll failed")
		}
		if err := o.sleep(ctx, plan.Pause); err != nil {
			return
		}
	}
}

// waitReady polls until one ready selector matches or the poll budget runs out
func (o *Orchestrator) waitReady(ctx context.Context, page Page, site *SiteConfig) bool {
	selectors := site.ReadySelectorList()
	interval := o.ReadyInterval
	if interval <= 0 {
		interval = defaultReadyInterval
	}
	for i := 0; i < site.Polls(); i++ {
		for _, sel := range selectors {
			if n, err := page.Count(ctx, sel); err == nil && n > 0 {
				return true
			}
		}
		if err := o.sleep(ctx, interval); err != nil {
			return false
		}
	}
	return false
}

func (o *Orchestrator) saveArtifacts(ctx context.Context, logger zerolog.Logger, page Page, prefix string) {
	if o.Artifacts == nil {
		return
	}
	paths, err := o.Artifacts.Save(ctx, page, prefix)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to save diagnostic artifacts")
	}
	if len(paths) > 0 {
		logger.Info().Strs("paths", paths).Msg("📸 saved diagnostic artifacts")
	}
}

func (o *Orchestrator) buildObservation(page Page, site *SiteConfig, profile models.EnvironmentProfile, item models.TargetItem, c *models.Candidate) *models.Observation {
	pageURL := page.URL()
	if pageURL == "" {
		pageURL = item.URL
	}

	currency := c.Currency
	if !currency.IsSet() {
		currency = site.DefaultCurrency
	}

	meta := make(map[string]any)
	for k, v := range item.Meta {
		meta[k] = v
	}
	for k, v := range models.ParseURLMeta(pageURL) {
		if _, ok := meta[k]; ok && v == "" {
			continue
		}
		meta[k] = v
	}
	for k, v := range c.Extra {
		meta[k] = v
	}
	raw := []rune(c.RawText)
	if len(raw) > maxRawTextRunes {
		raw = raw[:maxRawTextRunes]
	}
	meta["raw_price_text"] = string(raw)
	meta["from"] = string(c.Strategy)
	meta["detail"] = c.Detail
	meta["url"] = pageURL

	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	obs := &models.Observation{
		Site:        site.Name,
		Item:        item.Identifier(pageURL),
		Price:       decimal.NullDecimal{Decimal: c.Amount.Round(2), Valid: true},
		Currency:    currency,
		RawText:     string(raw),
		Strategy:    c.Strategy,
		URL:         pageURL,
		CollectedAt: now(),
		Meta:        meta,
	}
	obs.ApplyProfile(profile)
	return obs
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (o *Orchestrator) setState(key AttemptKey, state models.AttemptState) {
	if state.IsTerminal() {
		o.Logger.Debug().
			Str("site", key.Site).
			Str("profile", key.Profile).
			Str("item", key.Item).
			Str("state", string(state)).
			Msg("attempt finished")
	}
	if o.OnState != nil {
		o.OnState(key, state)
	}
}
