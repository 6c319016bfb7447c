package models

import (
	"encoding/json"
	"time"
)

// RunStatus represents the status of a collection run
type RunStatus string

const (
	RunStatusCreated   RunStatus = "created"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusStopped   RunStatus = "stopped"
)

// AttemptState is the state of one extraction attempt
type AttemptState string

const (
	AttemptNavigating       AttemptState = "navigating"
	AttemptLoading          AttemptState = "loading"
	AttemptScanning         AttemptState = "scanning"
	AttemptSucceeded        AttemptState = "succeeded"
	AttemptBlocked          AttemptState = "blocked"
	AttemptNotFound         AttemptState = "not_found"
	AttemptNavigationFailed AttemptState = "navigation_failed"
)

// IsTerminal returns true if no further transition can follow
func (s AttemptState) IsTerminal() bool {
	switch s {
	case AttemptSucceeded, AttemptBlocked, AttemptNotFound, AttemptNavigationFailed:
		return true
	}
	return false
}

// RunRequest selects the subset of the catalog a run covers. Empty lists mean everything.
type RunRequest struct {
	Sites    []string `json:"sites,omitempty"`
	Profiles []string `json:"profiles,omitempty"`
	Items    []string `json:"items,omitempty"`
	Serial   bool     `json:"serial"`
}

// TaskFailure records one failed (site, profile, item) task
type TaskFailure struct {
	Site    string `json:"site"`
	Profile string `json:"profile"`
	Item    string `json:"item"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

// Run represents one collection pass over the cross product of sites, profiles and items
type Run struct {
	ID          string        `json:"id"`
	Request     RunRequest    `json:"request"`
	Status      RunStatus     `json:"status"`
	Progress    int           `json:"progress"` // 0-100
	Message     string        `json:"message"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Failures    []TaskFailure `json:"failures,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// NewRun creates a run in the created state
func NewRun(id string, req RunRequest) *Run {
	return &Run{
		ID:        id,
		Request:   req,
		Status:    RunStatusCreated,
		Message:   "Run created",
		CreatedAt: time.Now(),
	}
}

// Start marks the run as running
func (r *Run) Start(total int) {
	r.Status = RunStatusRunning
	r.Total = total
	r.Progress = 0
	r.Message = "Collecting prices..."
	now := time.Now()
	r.StartedAt = &now
}

// RecordTask counts one finished task and updates the progress
func (r *Run) RecordTask(failure *TaskFailure) {
	if failure == nil {
		r.Succeeded++
	} else {
		r.Failed++
		r.Failures = append(r.Failures, *failure)
	}
	if r.Total > 0 {
		r.Progress = (r.Succeeded + r.Failed) * 100 / r.Total
	}
}

// Complete marks the run as completed
func (r *Run) Complete() {
	r.Status = RunStatusCompleted
	r.Progress = 100
	r.Message = "Run completed"
	now := time.Now()
	r.CompletedAt = &now
}

// Fail marks the run as failed with error
func (r *Run) Fail(err string) {
	r.Status = RunStatusFailed
	r.Message = "Run failed"
	r.Error = err
	now := time.Now()
	r.CompletedAt = &now
}

// Stop marks the run as stopped
func (r *Run) Stop() {
	r.Status = RunStatusStopped
	r.Message = "Run stopped"
	now := time.Now()
	r.CompletedAt = &now
}

// IsCompleted returns true if the run is in a final state
func (r *Run) IsCompleted() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed || r.Status == RunStatusStopped
}

// IsActive returns true if the run is still running
func (r *Run) IsActive() bool {
	return r.Status == RunStatusRunning
}

// Duration returns the duration of the run
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}

	endTime := time.Now()
	if r.CompletedAt != nil {
		endTime = *r.CompletedAt
	}

	return endTime.Sub(*r.StartedAt)
}

// MarshalJSON adds the elapsed time of the run in milliseconds
func (r Run) MarshalJSON() ([]byte, error) {
	type plain Run
	return json.Marshal(struct {
		plain
		DurationMs int64 `json:"duration_ms"`
	}{plain(r), r.Duration().Milliseconds()})
}

// Clone returns a deep copy safe to hand out of a store
func (r *Run) Clone() *Run {
	c := *r
	c.Request.Sites = append([]string(nil), r.Request.Sites...)
	c.Request.Profiles = append([]string(nil), r.Request.Profiles...)
	c.Request.Items = append([]string(nil), r.Request.Items...)
	c.Failures = append([]TaskFailure(nil), r.Failures...)
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
