package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chelsseeey/price-watcher/config"
	"github.com/chelsseeey/price-watcher/handlers"
	"github.com/chelsseeey/price-watcher/mock"
	"github.com/chelsseeey/price-watcher/models"
	"github.com/chelsseeey/price-watcher/repository"
	"github.com/chelsseeey/price-watcher/scheduler"
	"github.com/chelsseeey/price-watcher/scraper"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
sites:
  - { name: coupang, kind: single-product-price, default_currency: KRW, primary: [{ selector: ".total-price" }] }
  - { name: amazon, kind: single-product-price, default_currency: USD, primary: [{ selector: ".a-offscreen" }] }
profiles:
  - { id: KR_pc, region: KR, device: pc }
items:
  - { id: tissue, site: coupang, url: "https://www.coupang.com/vp/products/1" }
`

type server struct {
	router   *mux.Router
	manager  *scheduler.RunManager
	lastSeen repository.ObservationFilter
}

func newServer(t *testing.T, listErr error) *server {
	t.Helper()
	catalog, err := config.ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	sessions := &mock.SessionFactory{
		OpenFn: func(ctx context.Context, site *scraper.SiteConfig, profile models.EnvironmentProfile) (scraper.Page, error) {
			return &mock.Page{}, nil
		},
	}
	extractor := &mock.Extractor{
		ExtractFn: func(ctx context.Context, page scraper.Page, strategy scraper.SiteStrategy, profile models.EnvironmentProfile, item models.TargetItem) (*models.Observation, error) {
			obs := &models.Observation{
				Site:     item.Site,
				Item:     item.ID,
				Price:    decimal.NullDecimal{Decimal: decimal.NewFromInt(12900), Valid: true},
				Currency: models.CurrencyKRW,
				Strategy: models.StrategyDOM,
				URL:      item.URL,
			}
			obs.ApplyProfile(profile)
			return obs, nil
		},
	}
	store := &mock.ObservationStore{
		AppendObservationsFn: func(ctx context.Context, obs []*models.Observation) error { return nil },
	}
	coord := scheduler.NewCoordinator(sessions, extractor, store)
	coord.Logger = zerolog.Nop()

	s := &server{manager: scheduler.NewRunManager(scheduler.NewRunStore(), catalog, coord)}
	reader := &mock.ObservationReader{
		ListObservationsFn: func(ctx context.Context, f repository.ObservationFilter) ([]*models.Observation, error) {
			s.lastSeen = f
			if listErr != nil {
				return nil, listErr
			}
			return []*models.Observation{{
				Site:        "coupang",
				Item:        "tissue",
				Region:      models.RegionKR,
				Device:      models.DevicePC,
				Price:       decimal.NullDecimal{Decimal: decimal.NewFromInt(12900), Valid: true},
				Currency:    models.CurrencyKRW,
				Strategy:    models.StrategyDOM,
				CollectedAt: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
			}}, nil
		},
	}

	s.router = mux.NewRouter()
	handlers.NewHandlers(s.manager, reader, catalog).Register(s.router)
	return s
}

func (s *server) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do(t, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestCatalogRoutes(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, "GET", "/api/v1/sites", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sites := decode[[]scraper.SiteConfig](t, rec)
	require.Len(t, sites, 2)
	assert.Equal(t, "coupang", sites[0].Name)

	rec = s.do(t, "GET", "/api/v1/profiles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	profiles := decode[[]models.EnvironmentProfile](t, rec)
	require.Len(t, profiles, 1)
	assert.Equal(t, "KR_pc", profiles[0].ID)

	rec = s.do(t, "GET", "/api/v1/items/coupang", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]models.TargetItem](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "tissue", items[0].ID)

	rec = s.do(t, "GET", "/api/v1/items/amazon", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = s.do(t, "GET", "/api/v1/items/ebay", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunLifecycle(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, "POST", "/api/v1/runs", `{"sites":["coupang"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	run := decode[models.Run](t, rec)
	assert.Equal(t, models.RunStatusCreated, run.Status)

	rec = s.do(t, "POST", "/api/v1/runs/"+run.ID+"/start", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.manager.Wait()

	rec = s.do(t, "GET", "/api/v1/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.Run](t, rec)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 1, got.Succeeded)
	assert.Equal(t, 100, got.Progress)

	rec = s.do(t, "POST", "/api/v1/runs/"+run.ID+"/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "POST", "/api/v1/runs/"+run.ID+"/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "GET", "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Run](t, rec), 1)

	rec = s.do(t, "GET", "/api/v1/runs/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]interface{}](t, rec)
	assert.EqualValues(t, 1, stats["total_runs"])
}

func TestCreateRunLogsOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(zerolog.SyncWriter(&buf))
	t.Cleanup(func() { log.Logger = prev })

	s := newServer(t, nil)
	rec := s.do(t, "POST", "/api/v1/runs", `{"sites":["coupang"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	run := decode[models.Run](t, rec)

	assert.Equal(t, 1, strings.Count(buf.String(), "run created"), buf.String())
	assert.Contains(t, buf.String(), run.ID)
}

func TestRunErrors(t *testing.T) {
	s := newServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"empty body selects everything", "POST", "/api/v1/runs", "", http.StatusCreated},
		{"malformed body", "POST", "/api/v1/runs", "{", http.StatusBadRequest},
		{"unknown site", "POST", "/api/v1/runs", `{"sites":["ebay"]}`, http.StatusBadRequest},
		{"unknown run", "GET", "/api/v1/runs/nope", "", http.StatusNotFound},
		{"start unknown run", "POST", "/api/v1/runs/nope/start", "", http.StatusNotFound},
		{"stop unknown run", "POST", "/api/v1/runs/nope/stop", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want >= 400 {
				assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
			}
		})
	}
}

func TestListObservations(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, "GET", "/api/v1/observations?site=coupang&region=KR&device=pc&limit=10&since=2025-03-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "coupang", s.lastSeen.Site)
	assert.Equal(t, "KR", s.lastSeen.Region)
	assert.Equal(t, "pc", s.lastSeen.Device)
	assert.Equal(t, 10, s.lastSeen.Limit)
	assert.True(t, s.lastSeen.Since.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "12900", rows[0]["price"])
	assert.Equal(t, "KRW", rows[0]["currency"])

	for _, query := range []string{"limit=abc", "limit=0", "since=yesterday"} {
		rec = s.do(t, "GET", "/api/v1/observations?"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestListObservationsStoreFailure(t *testing.T) {
	s := newServer(t, errors.New("connection refused"))
	rec := s.do(t, "GET", "/api/v1/observations", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
