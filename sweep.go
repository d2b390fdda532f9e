package filedock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultSweepInterval      = 5 * time.Minute
	DefaultSweepDeletingAfter = 15 * time.Minute
	DefaultSweepBatchSize     = 100
)

// SweepConfig holds configuration options for Sweeper.
type SweepConfig struct {
	Interval time.Duration // Time between background runs (default: 5m)

	// DeletingAfter is how long a record may stay DELETING before the sweep
	// re-issues the object delete and confirms the removal itself.
	DeletingAfter time.Duration

	// AbandonAfter is how long a record may stay PENDING before it is marked
	// FAILED. Zero disables the phase.
	AbandonAfter time.Duration

	BatchSize      int
	CleanupTimeout time.Duration // Timeout for each object delete (default: 30s)
	Now            func() time.Time
}

// SweepResult is the outcome of one sweep run.
type SweepResult struct {
	// Confirmed is the number of DELETING records moved to DELETED.
	Confirmed int
	// Abandoned is the number of PENDING records moved to FAILED.
	Abandoned int
	// Errors is the number of records that could not be processed.
	Errors   int
	Duration time.Duration
}

// Sweeper finishes work that storage notifications never confirmed: object
// deletes that failed or whose removal event was lost, and uploads that
// never arrived.
type Sweeper struct {
	records RecordStore
	objects ObjectStore
	cfg     SweepConfig
	now     func() time.Time
	logger  *slog.Logger

	mu     sync.Mutex // serializes RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(records RecordStore, objects ObjectStore, cfg SweepConfig, logger *slog.Logger) (*Sweeper, error) {
	if records == nil || objects == nil {
		return nil, errors.New("new sweeper: record store and object store are required")
	}
	if cfg.AbandonAfter < 0 {
		return nil, fmt.Errorf("new sweeper: invalid abandon_after: %s", cfg.AbandonAfter)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.DeletingAfter <= 0 {
		cfg.DeletingAfter = DefaultSweepDeletingAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweepBatchSize
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = DefaultCleanupTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		records: records,
		objects: objects,
		cfg:     cfg,
		now:     now,
		logger:  logger.With(slog.String("component", "sweep")),
	}, nil
}

// Start runs the sweep immediately and then on every interval until Stop
// is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(sweepCtx)

	s.logger.Info("sweep started",
		slog.String("interval", s.cfg.Interval.String()),
		slog.String("deleting_after", s.cfg.DeletingAfter.String()),
		slog.String("abandon_after", s.cfg.AbandonAfter.String()),
	)
}

// Stop cancels the background loop and waits for the current run to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("sweep stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep:
//  1. DELETING records older than DeletingAfter: re-delete the object and
//     move the record to DELETED
//  2. PENDING records older than AbandonAfter, when enabled: move the
//     record to FAILED and remove any partial object
//
// Per-record failures are logged and counted; the run continues.
func (s *Sweeper) RunOnce(ctx context.Context) SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var result SweepResult
	sweepRunsTotal.Inc()

	now := s.now().UTC()

	s.forEachStale(ctx, StatusDeleting, now.Add(-s.cfg.DeletingAfter), &result, func(rec FileRecord) (bool, error) {
		if err := s.deleteObject(ctx, rec); err != nil {
			return false, err
		}
		return s.transition(ctx, rec, EventObjectConfirmedRemoved, now)
	}, &result.Confirmed)

	if s.cfg.AbandonAfter > 0 {
		s.forEachStale(ctx, StatusPending, now.Add(-s.cfg.AbandonAfter), &result, func(rec FileRecord) (bool, error) {
			ok, err := s.transition(ctx, rec, EventUploadAbandoned, now)
			if err != nil || !ok {
				return ok, err
			}
			if delErr := s.deleteObject(ctx, rec); delErr != nil {
				s.logger.Warn("remove abandoned object failed",
					slog.String("id", rec.ID.String()),
					slog.Any("error", delErr),
				)
			}
			return true, nil
		}, &result.Abandoned)
	}

	result.Duration = time.Since(start)
	sweepDurationSeconds.Observe(result.Duration.Seconds())
	sweepRecordsTotal.WithLabelValues(string(StatusDeleted)).Add(float64(result.Confirmed))
	sweepRecordsTotal.WithLabelValues(string(StatusFailed)).Add(float64(result.Abandoned))
	sweepErrorsTotal.Add(float64(result.Errors))

	s.logger.Info("sweep finished",
		slog.Int("confirmed", result.Confirmed),
		slog.Int("abandoned", result.Abandoned),
		slog.Int("errors", result.Errors),
		slog.String("duration", result.Duration.String()),
	)

	return result
}

// forEachStale pages through records in status since before cutoff and
// calls fn for each. counter is incremented when fn reports a transition.
func (s *Sweeper) forEachStale(ctx context.Context, status Status, cutoff time.Time, result *SweepResult, fn func(FileRecord) (bool, error), counter *int) {
	cursor := ""
	for {
		if ctx.Err() != nil {
			return
		}

		page, err := s.records.ListStale(ctx, StaleQuery{
			Status: status,
			Before: cutoff,
			Limit:  s.cfg.BatchSize,
			Cursor: cursor,
		})
		if err != nil {
			result.Errors++
			s.logger.Error("list stale records failed",
				slog.String("status", string(status)),
				slog.Any("error", err),
			)
			return
		}

		for _, rec := range page.Items {
			ok, fnErr := fn(rec)
			if fnErr != nil {
				result.Errors++
				s.logger.Warn("sweep record failed",
					slog.String("id", rec.ID.String()),
					slog.String("status", string(rec.Status)),
					slog.Any("error", fnErr),
				)
				continue
			}
			if ok {
				*counter++
			}
		}

		if page.NextCursor == "" {
			return
		}
		cursor = page.NextCursor
	}
}

func (s *Sweeper) deleteObject(ctx context.Context, rec FileRecord) error {
	deleteCtx, cancel := context.WithTimeout(ctx, s.cfg.CleanupTimeout)
	defer cancel()

	err := s.objects.Delete(deleteCtx, rec.ObjectKey())
	if err != nil && !errors.Is(err, ErrNotFound) {
		objectDeleteFailuresTotal.WithLabelValues("sweep").Inc()
		return fmt.Errorf("delete object %s: %w", rec.ObjectKey(), err)
	}
	return nil
}

// transition applies ev to rec with a status-guarded update. It reports
// false when the record moved on since it was listed.
func (s *Sweeper) transition(ctx context.Context, rec FileRecord, ev Event, now time.Time) (bool, error) {
	t, err := Next(rec.Status, ev)
	if err != nil {
		return false, err
	}

	rows, err := s.records.ConditionalUpdate(ctx, rec.ID, rec.OwnerID, []Status{t.From}, t.Patch(now, rec.Size))
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", ev, rec.ID, err)
	}
	return rows == 1, nil
}
