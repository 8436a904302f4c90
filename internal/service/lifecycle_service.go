package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campusline/placement-api/internal/models"
)

type lifecycleRoundRepository interface {
	ListDue(ctx context.Context, now time.Time) ([]models.Round, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
}

type lifecycleApplicationRepository interface {
	ListInProcessByRound(ctx context.Context, roundID string) ([]models.Application, error)
}

// LifecycleService sweeps rounds whose scheduled time has passed, rejecting
// absentees from attendance-mandatory rounds and promoting attendees where
// the round auto-advances. Each write is an independent single-row update,
// so a crash mid-sweep leaves per-application state consistent and the next
// sweep picks up where this one stopped.
type LifecycleService struct {
	rounds      lifecycleRoundRepository
	apps        lifecycleApplicationRepository
	progression *ProgressionService
	metrics     *MetricsService
	interval    time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLifecycleService constructs the sweep scheduler.
func NewLifecycleService(rounds lifecycleRoundRepository, apps lifecycleApplicationRepository, progression *ProgressionService, metrics *MetricsService, interval time.Duration, logger *zap.Logger) *LifecycleService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		rounds:      rounds,
		apps:        apps,
		progression: progression,
		metrics:     metrics,
		interval:    interval,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the periodic sweep. Calling Start on a running service is
// a no-op.
func (s *LifecycleService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		// Sweep once at startup so rounds that came due while the
		// service was down are not delayed a full interval.
		s.Sweep(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
	s.logger.Info("lifecycle sweep started", zap.Duration("interval", s.interval))
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *LifecycleService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("lifecycle sweep stopped")
}

// Sweep processes every due round once. A failing round is logged and
// skipped; it stays unprocessed and is retried on the next tick.
func (s *LifecycleService) Sweep(ctx context.Context) {
	now := s.now()
	due, err := s.rounds.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("failed to list due rounds", zap.Error(err))
		return
	}
	for i := range due {
		if ctx.Err() != nil {
			return
		}
		round := due[i]
		if err := s.sweepRound(ctx, &round); err != nil {
			s.logger.Error("round sweep failed",
				zap.String("round_id", round.ID),
				zap.Error(err))
			continue
		}
		if s.metrics != nil {
			s.metrics.ObserveSweptRound()
		}
	}
}

func (s *LifecycleService) sweepRound(ctx context.Context, round *models.Round) error {
	apps, err := s.apps.ListInProcessByRound(ctx, round.ID)
	if err != nil {
		return err
	}

	var rejected, promoted, failed int
	for i := range apps {
		app := &apps[i]
		entry := app.RoundProgress.Find(round.ID)
		if entry == nil {
			continue
		}
		switch {
		case !entry.Attendance && round.AttendanceMandatory:
			if err := s.progression.RejectForAbsence(ctx, app, round); err != nil {
				s.logger.Warn("failed to reject absentee",
					zap.String("application_id", app.ID),
					zap.Error(err))
				failed++
				continue
			}
			rejected++
		case entry.Attendance && round.AutoAdvance && entry.Result == models.ResultPending:
			if err := s.progression.PromotePending(ctx, app, round.ID); err != nil {
				s.logger.Warn("failed to promote attendee",
					zap.String("application_id", app.ID),
					zap.Error(err))
				failed++
				continue
			}
			promoted++
		}
	}

	// The round stays due until every application in it settles, so a
	// transient save failure is retried on the next tick instead of
	// being dropped.
	if failed > 0 {
		return fmt.Errorf("%d of %d applications failed", failed, len(apps))
	}

	if err := s.rounds.MarkProcessed(ctx, round.ID, s.now()); err != nil {
		return err
	}
	s.logger.Info("round swept",
		zap.String("round_id", round.ID),
		zap.String("job_id", round.JobID),
		zap.Int("applications", len(apps)),
		zap.Int("rejected", rejected),
		zap.Int("promoted", promoted))
	return nil
}
