package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chelsseeey/price-watcher/config"
	"github.com/chelsseeey/price-watcher/models"
	"github.com/chelsseeey/price-watcher/scraper"
	"github.com/rs/zerolog/log"
)

var (
	ErrRunNotFound   = errors.New("run not found")
	ErrRunNotStarted = errors.New("run is not running")
	ErrRunStarted    = errors.New("run already started")
)

// RunManager creates runs from requests and executes them through the coordinator
type RunManager struct {
	store       *RunStore
	catalog     *config.Catalog
	coordinator *Coordinator

	mutex   sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunManager creates a manager over an injected run store
func NewRunManager(store *RunStore, catalog *config.Catalog, coordinator *Coordinator) *RunManager {
	return &RunManager{
		store:       store,
		catalog:     catalog,
		coordinator: coordinator,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Store returns the run store
func (m *RunManager) Store() *RunStore {
	return m.store
}

// Create validates the request against the catalog and registers a run
func (m *RunManager) Create(req models.RunRequest) (*models.Run, error) {
	if _, err := m.tasksFor(req); err != nil {
		return nil, err
	}
	return m.store.Create(req), nil
}

// Start executes a created run in the background. Of concurrent calls for one run only
// the first starts it; the rest get ErrRunStarted.
func (m *RunManager) Start(id string) error {
	run, ok := m.store.Get(id)
	if !ok {
		return ErrRunNotFound
	}
	tasks, err := m.tasksFor(run.Request)
	if err != nil {
		return err
	}

	started := false
	err = m.store.Update(id, func(r *models.Run) {
		if r.Status != models.RunStatusCreated {
			return
		}
		r.Start(len(tasks))
		started = true
	})
	if err != nil {
		return ErrRunNotFound
	}
	if !started {
		return ErrRunStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.mutex.Lock()
	m.cancels[id] = cancel
	m.mutex.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.forget(id)
		m.execute(ctx, id, run.Request, tasks)
	}()
	return nil
}

// Stop cancels the tasks of a run that have not started yet. Running tasks finish.
func (m *RunManager) Stop(id string) error {
	if _, ok := m.store.Get(id); !ok {
		return ErrRunNotFound
	}
	m.mutex.Lock()
	cancel, ok := m.cancels[id]
	m.mutex.Unlock()
	if !ok {
		return ErrRunNotStarted
	}
	cancel()
	log.Info().Str("run_id", id).Msg("🛑 stop requested")
	return nil
}

// RunNow creates and executes a run synchronously
func (m *RunManager) RunNow(ctx context.Context, req models.RunRequest) (*RunSummary, error) {
	tasks, err := m.tasksFor(req)
	if err != nil {
		return nil, err
	}
	run := m.store.Create(req)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mutex.Lock()
	m.cancels[run.ID] = cancel
	m.mutex.Unlock()
	defer m.forget(run.ID)

	m.store.Update(run.ID, func(r *models.Run) { r.Start(len(tasks)) })
	return m.execute(ctx, run.ID, req, tasks)
}

// Wait blocks until every background run has finished
func (m *RunManager) Wait() {
	m.wg.Wait()
}

func (m *RunManager) execute(ctx context.Context, id string, req models.RunRequest, tasks []Task) (*RunSummary, error) {
	coord := *m.coordinator
	coord.Serial = coord.Serial || req.Serial
	coord.OnTask = func(failure *models.TaskFailure) {
		m.store.Update(id, func(r *models.Run) { r.RecordTask(failure) })
	}

	summary, err := coord.Run(ctx, id, tasks)
	m.store.Update(id, func(r *models.Run) {
		switch {
		case err != nil:
			r.Fail(err.Error())
		case summary.Skipped > 0:
			r.Stop()
		default:
			r.Complete()
		}
	})
	return summary, err
}

func (m *RunManager) forget(id string) {
	m.mutex.Lock()
	delete(m.cancels, id)
	m.mutex.Unlock()
}

// tasksFor selects the catalog subset named by the request. Empty lists select everything.
func (m *RunManager) tasksFor(req models.RunRequest) ([]Task, error) {
	sites, err := pick(m.catalog.Sites, req.Sites, func(s *scraper.SiteConfig) string { return s.Name })
	if err != nil {
		return nil, fmt.Errorf("site %w", err)
	}
	profiles, err := pick(m.catalog.Profiles, req.Profiles, models.EnvironmentProfile.Key)
	if err != nil {
		return nil, fmt.Errorf("profile %w", err)
	}
	items, err := pick(m.catalog.Items, req.Items, func(it models.TargetItem) string { return it.Identifier("") })
	if err != nil {
		return nil, fmt.Errorf("item %w", err)
	}

	tasks, err := BuildTasks(sites, profiles, items)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("request selects no tasks")
	}
	return tasks, nil
}

func pick[T any](all []T, names []string, key func(T) string) ([]T, error) {
	if len(names) == 0 {
		return all, nil
	}
	var out []T
	for _, name := range names {
		found := false
		for _, v := range all {
			if key(v) == name {
				out = append(out, v)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%q not in catalog", name)
		}
	}
	return out, nil
}
