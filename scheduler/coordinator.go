package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/chelsseeey/price-watcher/scraper"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const defaultMaxConcurrency = 2

// Task is one (site, profile, item) combination of a run
type Task struct {
	Strategy scraper.SiteStrategy
	Profile  models.EnvironmentProfile
	Item     models.TargetItem
}

// Key identifies the task in logs and failure reports
func (t Task) Key() scraper.AttemptKey {
	return scraper.AttemptKey{Site: t.Strategy.Config().Name, Profile: t.Profile.Key(), Item: t.Item.Identifier("")}
}

// BuildTasks returns the cross product of sites, profiles and the items of each site
func BuildTasks(sites []*scraper.SiteConfig, profiles []models.EnvironmentProfile, items []models.TargetItem) ([]Task, error) {
	var tasks []Task
	for _, site := range sites {
		strategy, err := scraper.NewSiteStrategy(site)
		if err != nil {
			return nil, err
		}
		for _, profile := range profiles {
			for _, item := range items {
				if item.Site != site.Name {
					continue
				}
				tasks = append(tasks, Task{Strategy: strategy, Profile: profile, Item: item})
			}
		}
	}
	return tasks, nil
}

// Extractor runs the extraction protocol on an open page
type Extractor interface {
	Extract(ctx context.Context, page scraper.Page, strategy scraper.SiteStrategy, profile models.EnvironmentProfile, item models.TargetItem) (*models.Observation, error)
}

// ObservationStore persists a batch of observations
type ObservationStore interface {
	AppendObservations(ctx context.Context, obs []*models.Observation) error
}

// RunSummary reports the outcome of one run
type RunSummary struct {
	RunID      string               `json:"run_id"`
	Total      int                  `json:"total"`
	Succeeded  int                  `json:"succeeded"`
	Failed     int                  `json:"failed"`
	Skipped    int                  `json:"skipped"`
	Failures   []models.TaskFailure `json:"failures,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Coordinator executes the tasks of a run, each in its own rendering session, under a concurrency cap
type Coordinator struct {
	Sessions  scraper.SessionFactory
	Extractor Extractor
	Store     ObservationStore
	Logger    zerolog.Logger

	MaxConcurrency int
	// Serial runs one task at a time.
	Serial bool
	// StartInterval spaces task starts; zero starts them as slots free up.
	StartInterval time.Duration
	// OnTask is called after every finished task with its failure, or nil on success.
	OnTask func(failure *models.TaskFailure)
}

// NewCoordinator creates a coordinator with the default cap of two sessions
func NewCoordinator(sessions scraper.SessionFactory, extractor Extractor, store ObservationStore) *Coordinator {
	return &Coordinator{
		Sessions:       sessions,
		Extractor:      extractor,
		Store:          store,
		Logger:         log.Logger,
		MaxConcurrency: defaultMaxConcurrency,
	}
}

// Run executes every task and appends the successful observations in one batch.
// Cancelling ctx skips tasks that have not started; started tasks run to completion.
// The returned error is only set when the batch could not be persisted.
func (c *Coordinator) Run(ctx context.Context, runID string, tasks []Task) (*RunSummary, error) {
	logger := c.Logger.With().Str("run_id", runID).Logger()
	summary := &RunSummary{RunID: runID, Total: len(tasks), StartedAt: time.Now()}

	limit := c.MaxConcurrency
	if limit <= 0 {
		limit = defaultMaxConcurrency
	}
	if c.Serial {
		limit = 1
	}
	var limiter *rate.Limiter
	if c.StartInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(c.StartInterval), 1)
	}

	logger.Info().Int("tasks", len(tasks)).Int("concurrency", limit).Msg("🚀 starting collection run")

	var (
		mu           sync.Mutex
		observations []*models.Observation
	)
	taskCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(limit)
	skip := func(n int) {
		mu.Lock()
		summary.Skipped += n
		mu.Unlock()
	}
	for i, task := range tasks {
		task := task
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				skip(len(tasks) - i)
				break
			}
		}
		if ctx.Err() != nil {
			skip(len(tasks) - i)
			break
		}

		g.Go(func() error {
			// a slot may free up only after the run was stopped
			if ctx.Err() != nil {
				skip(1)
				return nil
			}
			obs, err := c.runTask(taskCtx, task)
			failure := c.report(logger, task, obs, err)

			mu.Lock()
			if failure == nil {
				obs.RunID = runID
				observations = append(observations, obs)
				summary.Succeeded++
			} else {
				summary.Failed++
				summary.Failures = append(summary.Failures, *failure)
			}
			mu.Unlock()

			if c.OnTask != nil {
				c.OnTask(failure)
			}
			return nil
		})
	}
	_ = g.Wait()
	summary.FinishedAt = time.Now()

	logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("🏁 collection run finished")

	if len(observations) > 0 && c.Store != nil {
		if err := c.Store.AppendObservations(taskCtx, observations); err != nil {
			return summary, fmt.Errorf("failed to persist %d observations: %w", len(observations), err)
		}
		logger.Info().Int("rows", len(observations)).Msg("💾 observations saved")
	}
	return summary, nil
}

// runTask opens a fresh session, extracts, and closes the session
func (c *Coordinator) runTask(ctx context.Context, task Task) (obs *models.Observation, err error) {
	defer func() {
		if r := recover(); r != nil {
			obs, err = nil, fmt.Errorf("task panicked: %v", r)
		}
	}()

	page, err := c.Sessions.Open(ctx, task.Strategy.Config(), task.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			c.Logger.Debug().Err(cerr).Msg("failed to close session")
		}
	}()

	return c.Extractor.Extract(ctx, page, task.Strategy, task.Profile, task.Item)
}

// report logs the task outcome once and returns its failure record
func (c *Coordinator) report(logger zerolog.Logger, task Task, obs *models.Observation, err error) *models.TaskFailure {
	key := task.Key()
	if err == nil && obs == nil {
		err = scraper.ErrPriceNotFound
	}
	if err == nil {
		err = obs.Validate()
	}
	if err == nil {
		logger.Info().
			Str("site", key.Site).Str("profile", key.Profile).Str("item", key.Item).
			Str("price", obs.PriceString()).Str("currency", string(obs.Currency)).
			Msg("✅ task succeeded")
		return nil
	}

	kind := scraper.FailureKind(err)
	logger.Error().
		Err(err).
		Str("site", key.Site).Str("profile", key.Profile).Str("item", key.Item).
		Str("kind", kind).
		Msg("❌ task failed")
	return &models.TaskFailure{Site: key.Site, Profile: key.Profile, Item: key.Item, Kind: kind, Error: err.Error()}
}
