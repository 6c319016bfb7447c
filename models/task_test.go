package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptStateIsTerminal(t *testing.T) {
	tests := []struct {
		state AttemptState
		want  bool
	}{
		{AttemptNavigating, false},
		{AttemptLoading, false},
		{AttemptScanning, false},
		{AttemptSucceeded, true},
		{AttemptBlocked, true},
		{AttemptNotFound, true},
		{AttemptNavigationFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.IsTerminal())
		})
	}
}

func TestRunDuration(t *testing.T) {
	started := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)

	t.Run("not started", func(t *testing.T) {
		assert.Zero(t, NewRun("r1", RunRequest{}).Duration())
	})

	t.Run("finished", func(t *testing.T) {
		r := NewRun("r1", RunRequest{})
		r.StartedAt = &started
		r.CompletedAt = &finished
		assert.Equal(t, 90*time.Second, r.Duration())
	})

	t.Run("running", func(t *testing.T) {
		r := NewRun("r1", RunRequest{})
		r.Start(3)
		assert.GreaterOrEqual(t, r.Duration(), time.Duration(0))
		assert.Nil(t, r.CompletedAt)
	})
}

func TestRunJSONIncludesDuration(t *testing.T) {
	started := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)

	r := NewRun("r1", RunRequest{Sites: []string{"coupang"}})
	r.Start(2)
	r.StartedAt = &started
	r.Complete()
	r.CompletedAt = &finished

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.EqualValues(t, 1500, body["duration_ms"])
	assert.Equal(t, "r1", body["id"])
	assert.Equal(t, "completed", body["status"])

	var back Run
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, r.ID, back.ID)
	assert.Equal(t, 2, back.Total)
}
