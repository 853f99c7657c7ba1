package agent

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTool = errors.New("store down")

func TestToolFailureTracker_AlertsOnceAtThreshold(t *testing.T) {
	tracker := NewToolFailureTracker(3, time.Minute)

	assert.False(t, tracker.Record("save_memories", "u1", errTool))
	assert.False(t, tracker.Record("save_memories", "u2", errTool))
	assert.True(t, tracker.Record("save_memories", "u1", errTool))
	assert.False(t, tracker.Record("save_memories", "u1", errTool), "already alerted")
	assert.Equal(t, 4, tracker.Count("save_memories"))
	assert.Zero(t, tracker.Count("update_pain"))
}

func TestToolFailureTracker_WindowSlides(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewToolFailureTracker(2, time.Minute)
	tracker.now = func() time.Time { return now }

	tracker.Record("update_pain", "u1", errTool)
	now = now.Add(2 * time.Minute)
	assert.Zero(t, tracker.Count("update_pain"))
	assert.False(t, tracker.Record("update_pain", "u1", errTool), "old failure expired")
}

func TestToolFailureTracker_Defaults(t *testing.T) {
	tracker := NewToolFailureTracker(0, 0)
	for i := 0; i < 9; i++ {
		assert.False(t, tracker.Record("create_pain", "u1", errTool))
	}
	assert.True(t, tracker.Record("create_pain", "u1", errTool))

	var nilTracker *ToolFailureTracker
	assert.False(t, nilTracker.Record("x", "u", errTool))
}
