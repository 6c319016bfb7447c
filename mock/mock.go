// Package mock provides function-field fakes of the scraper and repository collaborators.
package mock

import (
	"context"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/chelsseeey/price-watcher/repository"
	"github.com/chelsseeey/price-watcher/scraper"
)

var _ scraper.Page = (*Page)(nil)

// Page is a scraper.Page whose methods delegate to the Fn fields.
// A nil Fn returns the zero value.
type Page struct {
	NavigateFn    func(ctx context.Context, url string) error
	URLFn         func() string
	TitleFn       func(ctx context.Context) (string, error)
	HTMLFn        func(ctx context.Context) (string, error)
	BodyTextFn    func(ctx context.Context) (string, error)
	CountFn       func(ctx context.Context, selector string) (int, error)
	QueryFn       func(ctx context.Context, q scraper.ElementQuery) ([]scraper.ElementSnapshot, error)
	ScanVisibleFn func(ctx context.Context) ([]scraper.ElementSnapshot, error)
	CardsFn       func(ctx context.Context, q scraper.CardQuery) ([]scraper.CardSnapshot, error)
	ScrollFn      func(ctx context.Context, dy int) error
	ScreenshotFn  func(ctx context.Context) ([]byte, error)
	CloseFn       func() error
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.NavigateFn == nil {
		return nil
	}
	return p.NavigateFn(ctx, url)
}

func (p *Page) URL() string {
	if p.URLFn == nil {
		return ""
	}
	return p.URLFn()
}

func (p *Page) Title(ctx context.Context) (string, error) {
	if p.TitleFn == nil {
		return "", nil
	}
	return p.TitleFn(ctx)
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if p.HTMLFn == nil {
		return "", nil
	}
	return p.HTMLFn(ctx)
}

func (p *Page) BodyText(ctx context.Context) (string, error) {
	if p.BodyTextFn == nil {
		return "", nil
	}
	return p.BodyTextFn(ctx)
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	if p.CountFn == nil {
		return 0, nil
	}
	return p.CountFn(ctx, selector)
}

func (p *Page) Query(ctx context.Context, q scraper.ElementQuery) ([]scraper.ElementSnapshot, error) {
	if p.QueryFn == nil {
		return nil, nil
	}
	return p.QueryFn(ctx, q)
}

func (p *Page) ScanVisible(ctx context.Context) ([]scraper.ElementSnapshot, error) {
	if p.ScanVisibleFn == nil {
		return nil, nil
	}
	return p.ScanVisibleFn(ctx)
}

func (p *Page) Cards(ctx context.Context, q scraper.CardQuery) ([]scraper.CardSnapshot, error) {
	if p.CardsFn == nil {
		return nil, nil
	}
	return p.CardsFn(ctx, q)
}

func (p *Page) Scroll(ctx context.Context, dy int) error {
	if p.ScrollFn == nil {
		return nil
	}
	return p.ScrollFn(ctx, dy)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if p.ScreenshotFn == nil {
		return nil, scraper.ErrNoRaster
	}
	return p.ScreenshotFn(ctx)
}

func (p *Page) Close() error {
	if p.CloseFn == nil {
		return nil
	}
	return p.CloseFn()
}

var _ scraper.SessionFactory = (*SessionFactory)(nil)

// SessionFactory opens pages through OpenFn
type SessionFactory struct {
	OpenFn func(ctx context.Context, site *scraper.SiteConfig, profile models.EnvironmentProfile) (scraper.Page, error)
}

func (f *SessionFactory) Open(ctx context.Context, site *scraper.SiteConfig, profile models.EnvironmentProfile) (scraper.Page, error) {
	return f.OpenFn(ctx, site, profile)
}

var _ scraper.OCRClient = (*OCRClient)(nil)

// OCRClient recognizes images through RecognizeFn
type OCRClient struct {
	RecognizeFn func(ctx context.Context, image []byte, lang string) (string, error)
}

func (c *OCRClient) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	return c.RecognizeFn(ctx, image, lang)
}

// ObservationStore records appended batches through AppendObservationsFn
type ObservationStore struct {
	AppendObservationsFn func(ctx context.Context, obs []*models.Observation) error
}

func (s *ObservationStore) AppendObservations(ctx context.Context, obs []*models.Observation) error {
	return s.AppendObservationsFn(ctx, obs)
}

// ObservationReader lists observations through ListObservationsFn
type ObservationReader struct {
	ListObservationsFn func(ctx context.Context, f repository.ObservationFilter) ([]*models.Observation, error)
}

func (r *ObservationReader) ListObservations(ctx context.Context, f repository.ObservationFilter) ([]*models.Observation, error) {
	return r.ListObservationsFn(ctx, f)
}

// ArtifactSink saves artifacts through SaveFn
type ArtifactSink struct {
	SaveFn func(ctx context.Context, page scraper.Page, prefix string) ([]string, error)
}

func (s *ArtifactSink) Save(ctx context.Context, page scraper.Page, prefix string) ([]string, error) {
	return s.SaveFn(ctx, page, prefix)
}

// Extractor runs extractions through ExtractFn
type Extractor struct {
	ExtractFn func(ctx context.Context, page scraper.Page, strategy scraper.SiteStrategy, profile models.EnvironmentProfile, item models.TargetItem) (*models.Observation, error)
}

func (e *Extractor) Extract(ctx context.Context, page scraper.Page, strategy scraper.SiteStrategy, profile models.EnvironmentProfile, item models.TargetItem) (*models.Observation, error) {
	return e.ExtractFn(ctx, page, strategy, profile, item)
}
