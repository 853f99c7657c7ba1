package trigger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/quota"
)

func TestRegister_AddsEntries(t *testing.T) {
	s := NewScheduler()
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Register("a", "0 9 * * *", noop))
	require.NoError(t, s.Register("b", "0 17 * * *", noop))
	assert.Equal(t, 2, s.Entries())
}

func TestRegister_InvalidCron(t *testing.T) {
	s := NewScheduler()
	err := s.Register("bad", "not a valid cron", func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Zero(t, s.Entries())
}

func TestRegisterRetention(t *testing.T) {
	store, err := memory.NewStore(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	s := NewScheduler()
	require.NoError(t, s.RegisterRetention("0 3 * * *", store, 0))
	assert.Zero(t, s.Entries(), "disabled retention registers nothing")
	require.NoError(t, s.RegisterRetention("0 3 * * *", store, 180))
	assert.Equal(t, 1, s.Entries())
}

func TestRegisterQuotaPrune(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.RegisterQuotaPrune(quota.NewManager(2), time.Hour))
	assert.Equal(t, 1, s.Entries())
}

func TestStartStop_RunsJobs(t *testing.T) {
	s := NewScheduler()
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Register("tick", "@every 10ms", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))
	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
