package agent

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ToolFailureTracker counts tool callback failures per tool inside a sliding
// window and logs one operator alert when a tool crosses the threshold. It
// never changes run behavior: a failing callback still fails its run.
type ToolFailureTracker struct {
	mu        sync.Mutex
	tools     map[string]*toolFailureRecord
	threshold int
	window    time.Duration
	now       func() time.Time
}

type toolFailureRecord struct {
	failures []time.Time
	alerted  bool
}

// NewToolFailureTracker returns a tracker. threshold <= 0 defaults to 10;
// window <= 0 defaults to 5 minutes.
func NewToolFailureTracker(threshold int, window time.Duration) *ToolFailureTracker {
	if threshold <= 0 {
		threshold = 10
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &ToolFailureTracker{
		tools:     make(map[string]*toolFailureRecord),
		threshold: threshold,
		window:    window,
		now:       time.Now,
	}
}

// Record notes a failure of toolName during userID's run and reports whether
// the alert threshold was just crossed.
func (t *ToolFailureTracker) Record(toolName, userID string, err error) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.tools[toolName]
	if !ok {
		rec = &toolFailureRecord{}
		t.tools[toolName] = rec
	}
	now := t.now()
	rec.failures = append(filterAfter(rec.failures, now.Add(-t.window)), now)

	if len(rec.failures) >= t.threshold {
		if rec.alerted {
			return false
		}
		rec.alerted = true
		log.Warn().
			Str("tool", toolName).
			Str("last_user_id", userID).
			AnErr("last_error", err).
			Int("failure_count", len(rec.failures)).
			Dur("window", t.window).
			Msg("tool_failure_threshold_exceeded")
		return true
	}
	rec.alerted = false
	return false
}

// Count returns the failures of toolName inside the window.
func (t *ToolFailureTracker) Count(toolName string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.tools[toolName]
	if !ok {
		return 0
	}
	return len(filterAfter(rec.failures, t.now().Add(-t.window)))
}

func filterAfter(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0]
	for _, x := range ts {
		if x.After(cutoff) {
			out = append(out, x)
		}
	}
	return out
}
