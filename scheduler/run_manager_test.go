package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chelsseeey/price-watcher/config"
	"github.com/chelsseeey/price-watcher/mock"
	"github.com/chelsseeey/price-watcher/models"
	"github.com/chelsseeey/price-watcher/scheduler"
	"github.com/chelsseeey/price-watcher/scraper"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const managerCatalog = `
sites:
  - { name: coupang, kind: single-product-price, default_currency: KRW, primary: [{ selector: ".total-price" }] }
  - { name: amazon, kind: single-product-price, default_currency: USD, primary: [{ selector: ".a-offscreen" }] }
profiles:
  - { id: KR_pc, region: KR, device: pc }
  - { id: US_pc, region: US, device: pc }
items:
  - { id: tissue, site: coupang, url: "https://www.coupang.com/vp/products/1" }
  - { id: tissue, site: amazon, url: "https://www.amazon.com/dp/B1" }
  - { id: towel, site: amazon, url: "https://www.amazon.com/dp/B2" }
`

func newManager(t *testing.T, extract func(ctx context.Context, profile models.EnvironmentProfile, item models.TargetItem) (*models.Observation, error)) (*scheduler.RunManager, *recordingStore) {
	t.Helper()
	catalog, err := config.ParseCatalog([]byte(managerCatalog))
	require.NoError(t, err)

	store := &recordingStore{}
	extractor := &mock.Extractor{
		ExtractFn: func(ctx context.Context, page scraper.Page, strategy scraper.SiteStrategy, profile models.EnvironmentProfile, item models.TargetItem) (*models.Observation, error) {
			return extract(ctx, profile, item)
		},
	}
	c := scheduler.NewCoordinator((&closeCounter{}).sessions(), extractor, store.mock())
	c.Logger = zerolog.Nop()
	return scheduler.NewRunManager(scheduler.NewRunStore(), catalog, c), store
}

func succeed(ctx context.Context, profile models.EnvironmentProfile, item models.TargetItem) (*models.Observation, error) {
	obs := observation(profile, item)
	obs.Site = item.Site
	return obs, nil
}

func TestRunManagerRunNow(t *testing.T) {
	m, store := newManager(t, succeed)

	summary, err := m.RunNow(context.Background(), models.RunRequest{Sites: []string{"amazon"}, Profiles: []string{"US_pc"}})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	require.Len(t, store.batches, 1)

	run, ok := m.Store().Get(summary.RunID)
	require.True(t, ok)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 100, run.Progress)
	assert.Equal(t, 2, run.Succeeded)
}

func TestRunManagerCreateRejectsUnknownNames(t *testing.T) {
	m, _ := newManager(t, succeed)

	_, err := m.Create(models.RunRequest{Sites: []string{"ebay"}})
	assert.ErrorContains(t, err, `site "ebay" not in catalog`)

	_, err = m.Create(models.RunRequest{Profiles: []string{"JP_pc"}})
	assert.ErrorContains(t, err, "profile")

	_, err = m.Create(models.RunRequest{Sites: []string{"coupang"}, Items: []string{"towel"}})
	assert.ErrorContains(t, err, "no tasks")

	assert.Empty(t, m.Store().List())
}

func TestRunManagerStartInBackground(t *testing.T) {
	m, _ := newManager(t, func(ctx context.Context, profile models.EnvironmentProfile, item models.TargetItem) (*models.Observation, error) {
		if item.Site == "coupang" {
			return nil, scraper.ErrPriceNotFound
		}
		return succeed(ctx, profile, item)
	})

	run, err := m.Create(models.RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCreated, run.Status)

	require.NoError(t, m.Start(run.ID))
	assert.ErrorIs(t, m.Start(run.ID), scheduler.ErrRunStarted)
	m.Wait()

	got, ok := m.Store().Get(run.ID)
	require.True(t, ok)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 6, got.Total)
	assert.Equal(t, 4, got.Succeeded)
	assert.Equal(t, 2, got.Failed)
	assert.Len(t, got.Failures, 2)
	assert.Equal(t, scraper.KindNotFound, got.Failures[0].Kind)
}

func TestRunManagerStopSkipsUnstartedTasks(t *testing.T) {
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	m, _ := newManager(t, func(ctx context.Context, profile models.EnvironmentProfile, item models.TargetItem) (*models.Observation, error) {
		started <- struct{}{}
		<-release
		return succeed(ctx, profile, item)
	})

	run, err := m.Create(models.RunRequest{Sites: []string{"amazon"}, Serial: true})
	require.NoError(t, err)
	require.NoError(t, m.Start(run.ID))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first task never started")
	}
	require.NoError(t, m.Stop(run.ID))
	close(release)
	m.Wait()

	got, _ := m.Store().Get(run.ID)
	assert.Equal(t, models.RunStatusStopped, got.Status)
	assert.Equal(t, 4, got.Total)
	assert.Equal(t, 1, got.Succeeded)
	assert.Zero(t, got.Failed)
}

func TestRunManagerStopErrors(t *testing.T) {
	m, _ := newManager(t, succeed)
	assert.ErrorIs(t, m.Stop("missing"), scheduler.ErrRunNotFound)
	assert.ErrorIs(t, m.Start("missing"), scheduler.ErrRunNotFound)

	run, err := m.Create(models.RunRequest{})
	require.NoError(t, err)
	assert.ErrorIs(t, m.Stop(run.ID), scheduler.ErrRunNotStarted)
}

func TestRunManagerConcurrentStartRunsOnce(t *testing.T) {
	var calls atomic.Int32
	m, _ := newManager(t, func(ctx context.Context, profile models.EnvironmentProfile, item models.TargetItem) (*models.Observation, error) {
		calls.Add(1)
		return succeed(ctx, profile, item)
	})

	run, err := m.Create(models.RunRequest{Sites: []string{"amazon"}, Profiles: []string{"US_pc"}})
	require.NoError(t, err)

	const callers = 16
	errs := make([]error, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = m.Start(run.ID)
		}(i)
	}
	close(start)
	wg.Wait()
	m.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, scheduler.ErrRunStarted)
	}
	assert.Equal(t, 1, winners)
	assert.EqualValues(t, 2, calls.Load())

	got, ok := m.Store().Get(run.ID)
	require.True(t, ok)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 2, got.Succeeded)
}
