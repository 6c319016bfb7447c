package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// RunFunc executes one collection pass
type RunFunc func(ctx context.Context, req models.RunRequest) (*RunSummary, error)

// CollectionScheduler triggers a full collection pass on a cron schedule
type CollectionScheduler struct {
	cron    *cron.Cron
	spec    string
	run     RunFunc
	running atomic.Bool
	passes  sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCollectionScheduler creates a scheduler for a six-field (seconds first) cron spec
func NewCollectionScheduler(spec string, run RunFunc) *CollectionScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &CollectionScheduler{
		cron:   cron.New(cron.WithSeconds()),
		spec:   spec,
		run:    run,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start schedules the passes and runs the first one immediately
func (s *CollectionScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.Collect); err != nil {
		return err
	}

	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		s.collect()
	}()

	s.cron.Start()
	log.Info().Str("spec", s.spec).Msg("⏰ collection scheduled")
	return nil
}

// Stop stops scheduling, skips the unstarted tasks of a running pass and waits for it to return
func (s *CollectionScheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.passes.Wait()
}

// Collect runs one pass unless the previous one is still running
func (s *CollectionScheduler) Collect() {
	s.passes.Add(1)
	defer s.passes.Done()
	s.collect()
}

func (s *CollectionScheduler) collect() {
	if !s.running.CompareAndSwap(false, true) {
		log.Warn().Msg("⏭️ previous collection pass still running, skipping")
		return
	}
	defer s.running.Store(false)

	summary, err := s.run(s.ctx, models.RunRequest{})
	if err != nil {
		log.Error().Err(err).Msg("scheduled collection failed")
		return
	}
	log.Info().
		Str("run_id", summary.RunID).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("scheduled collection done")
}
