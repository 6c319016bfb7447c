package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RunStore keeps the state of collection runs in memory, keyed by run ID
type RunStore struct {
	runs  map[string]*models.Run
	mutex sync.RWMutex
}

// NewRunStore creates an empty run store
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*models.Run)}
}

// Create registers a new run for the request
func (s *RunStore) Create(req models.RunRequest) *models.Run {
	run := models.NewRun(uuid.New().String(), req)

	s.mutex.Lock()
	s.runs[run.ID] = run
	s.mutex.Unlock()

	log.Info().Str("run_id", run.ID).Msg("📝 run created")
	return run.Clone()
}

// Get returns a copy of a run by ID
func (s *RunStore) Get(id string) (*models.Run, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, false
	}
	return run.Clone(), true
}

// List returns copies of all runs, newest first
func (s *RunStore) List() []*models.Run {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	runs := make([]*models.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run.Clone())
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

// Update applies fn to the stored run under the store lock
func (s *RunStore) Update(id string, fn func(run *models.Run)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	run, exists := s.runs[id]
	if !exists {
		return fmt.Errorf("run %s not found", id)
	}
	fn(run)
	return nil
}

// Active returns copies of the running runs
func (s *RunStore) Active() []*models.Run {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var active []*models.Run
	for _, run := range s.runs {
		if run.IsActive() {
			active = append(active, run.Clone())
		}
	}
	return active
}

// CleanupFinished removes finished runs created before maxAge ago and returns how many were removed
func (s *RunStore) CleanupFinished(maxAge time.Duration) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, run := range s.runs {
		if run.IsCompleted() && run.CreatedAt.Before(cutoff) {
			delete(s.runs, id)
			removed++
			log.Debug().Str("run_id", id).Msg("🧹 cleaned up old run")
		}
	}
	return removed
}

// Stats returns run counts by status
func (s *RunStore) Stats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	statusCounts := make(map[string]int)
	for _, run := range s.runs {
		statusCounts[string(run.Status)]++
	}
	return map[string]interface{}{
		"total_runs":     len(s.runs),
		"runs_by_status": statusCounts,
	}
}
