package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/dotsetgreg/rumi/pkg/logger"
)

// DefaultRetentionSchedule runs the sweep daily at 04:00 UTC.
const DefaultRetentionSchedule = "0 4 * * *"

// Cleaner is the store surface the sweeper drives.
type Cleaner interface {
	Cleanup(ctx context.Context, policy RetentionPolicy) (CleanupReport, error)
}

// SweeperOptions configures a Sweeper. Zero values take defaults.
type SweeperOptions struct {
	Policy   RetentionPolicy
	Schedule string
	// Poll is how often the schedule is checked.
	Poll time.Duration
	Now  func() time.Time
}

// Sweeper runs retention cleanup on a cron schedule, plus once at start.
// A tick that arrives late runs the sweep once; missed slots are not
// replayed.
type Sweeper struct {
	cleaner  Cleaner
	policy   RetentionPolicy
	schedule string
	poll     time.Duration
	now      func() time.Time

	mu   sync.Mutex
	next time.Time

	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

func NewSweeper(cleaner Cleaner, opts SweeperOptions) (*Sweeper, error) {
	if opts.Schedule == "" {
		opts.Schedule = DefaultRetentionSchedule
	}
	if !gronx.New().IsValid(opts.Schedule) {
		return nil, fmt.Errorf("new sweeper: %w: invalid schedule %q", ErrInvalidInput, opts.Schedule)
	}
	if opts.Poll <= 0 {
		opts.Poll = time.Minute
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{
		cleaner:  cleaner,
		policy:   opts.Policy.withDefaults(),
		schedule: opts.Schedule,
		poll:     opts.Poll,
		now:      opts.Now,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start runs one sweep immediately and then follows the schedule until ctx
// is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.loop(ctx)
	})
}

// Stop halts the background loop and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	s.closeOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	_, _ = s.RunOnce(ctx)
	s.advance(s.now())

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.due(s.now()) {
				_, _ = s.RunOnce(ctx)
			}
		}
	}
}

// due reports whether the next scheduled slot has passed, and if so moves
// the slot forward past now.
func (s *Sweeper) due(now time.Time) bool {
	s.mu.Lock()
	next := s.next
	s.mu.Unlock()
	if next.IsZero() || now.Before(next) {
		return false
	}
	s.advance(now)
	return true
}

func (s *Sweeper) advance(after time.Time) {
	next, err := gronx.NextTickAfter(s.schedule, after, false)
	if err != nil {
		logger.ErrorCF("memory", "Retention schedule evaluation failed", map[string]any{
			"schedule": s.schedule,
			"error":    err.Error(),
		})
		return
	}
	s.mu.Lock()
	s.next = next
	s.mu.Unlock()
}

// NextRun returns the next scheduled sweep, zero before Start.
func (s *Sweeper) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// RunOnce performs one sweep now.
func (s *Sweeper) RunOnce(ctx context.Context) (CleanupReport, error) {
	runID := uuid.NewString()
	started := time.Now()
	logger.InfoCF("memory", "Retention sweep started", map[string]any{
		"run_id":       runID,
		"raw_days":     s.policy.RawDays,
		"summary_days": s.policy.SummaryDays,
	})
	report, err := s.cleaner.Cleanup(ctx, s.policy)
	fields := map[string]any{
		"run_id":      runID,
		"duration_ms": time.Since(started).Milliseconds(),
		"messages":    report.MessagesDeleted,
		"summaries":   report.SummariesDeleted,
	}
	if err != nil {
		fields["error"] = err.Error()
		logger.ErrorCF("memory", "Retention sweep failed", fields)
		return report, err
	}
	logger.InfoCF("memory", "Retention sweep completed", fields)
	return report, nil
}
