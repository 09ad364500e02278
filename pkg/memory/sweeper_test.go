package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct {
	calls  atomic.Int32
	policy atomic.Value
	err    error
}

func (c *countingCleaner) Cleanup(ctx context.Context, policy RetentionPolicy) (CleanupReport, error) {
	c.calls.Add(1)
	c.policy.Store(policy)
	return CleanupReport{MessagesDeleted: 1}, c.err
}

func TestNewSweeper_RejectsInvalidSchedule(t *testing.T) {
	_, err := NewSweeper(&countingCleaner{}, SweeperOptions{Schedule: "every day please"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSweeper_DueFollowsSchedule(t *testing.T) {
	s, err := NewSweeper(&countingCleaner{}, SweeperOptions{})
	require.NoError(t, err)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	s.advance(day.Add(3*time.Hour + 59*time.Minute))
	assert.Equal(t, day.Add(4*time.Hour), s.NextRun())

	assert.False(t, s.due(day.Add(3*time.Hour+59*time.Minute+30*time.Second)))
	assert.True(t, s.due(day.Add(4*time.Hour+30*time.Second)))
	assert.False(t, s.due(day.Add(4*time.Hour+time.Minute)))
	assert.Equal(t, day.Add(28*time.Hour), s.NextRun())

	// A late tick runs once, not once per missed slot.
	assert.True(t, s.due(day.Add(75*time.Hour)))
	assert.False(t, s.due(day.Add(75*time.Hour+time.Minute)))
}

func TestSweeper_StartRunsImmediately(t *testing.T) {
	cleaner := &countingCleaner{}
	s, err := NewSweeper(cleaner, SweeperOptions{
		Policy: RetentionPolicy{RawDays: 7},
		Poll:   10 * time.Millisecond,
	})
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return cleaner.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	policy := cleaner.policy.Load().(RetentionPolicy)
	assert.Equal(t, 7, policy.RawDays)
	assert.Equal(t, DefaultRetention.SummaryDays, policy.SummaryDays)
	assert.False(t, s.NextRun().IsZero())
}

func TestSweeper_RunOnceReturnsCleanupError(t *testing.T) {
	cleaner := &countingCleaner{err: errors.New("disk gone")}
	s, err := NewSweeper(cleaner, SweeperOptions{})
	require.NoError(t, err)

	report, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 1, report.MessagesDeleted)
}

func TestSweeper_DrivesRealStore(t *testing.T) {
	store, clock := newTestStore(t)
	seedRetentionData(t, store, clock.Now())

	s, err := NewSweeper(store, SweeperOptions{})
	require.NoError(t, err)
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, report.MessagesDeleted)
}
