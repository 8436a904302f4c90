package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusline/placement-api/internal/models"
	appErrors "github.com/campusline/placement-api/pkg/errors"
)

type syncRoundRepository interface {
	ListByJob(ctx context.Context, jobID string) ([]models.Round, error)
	Create(ctx context.Context, round *models.Round) error
	Update(ctx context.Context, round *models.Round) error
	Archive(ctx context.Context, id string) error
}

type syncJobRepository interface {
	FindByID(ctx context.Context, id string) (*models.Job, error)
}

// RoundSyncService reconciles a job's persisted rounds against an
// admin-supplied target list. Matching is positional: spec i maps to the
// round with sequence i+1. Existing round ids are preserved so ledger
// entries keep resolving; surplus rounds are archived, never deleted.
type RoundSyncService struct {
	rounds    syncRoundRepository
	jobs      syncJobRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoundSyncService constructs the synchronizer.
func NewRoundSyncService(rounds syncRoundRepository, jobs syncJobRepository, validate *validator.Validate, logger *zap.Logger) *RoundSyncService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoundSyncService{rounds: rounds, jobs: jobs, validator: validate, logger: logger}
}

// Sync reconciles the job's rounds and returns the resulting full list,
// archived rounds included.
func (s *RoundSyncService) Sync(ctx context.Context, jobID string, specs []models.RoundSpec) ([]models.Round, error) {
	if _, err := s.jobs.FindByID(ctx, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}
	for i := range specs {
		if err := s.validator.Struct(specs[i]); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid round definition")
		}
	}

	existing, err := s.rounds.ListByJob(ctx, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rounds")
	}

	var created, updated, archived int
	for i, spec := range specs {
		seq := i + 1
		if i < len(existing) {
			round := &existing[i]
			applySpec(round, spec, seq)
			// A previously archived round re-entering the target range
			// comes back as scheduled.
			if round.Status == models.RoundStatusArchived {
				round.Status = models.RoundStatusScheduled
			}
			if err := s.rounds.Update(ctx, round); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update round")
			}
			updated++
			continue
		}
		round := &models.Round{JobID: jobID}
		applySpec(round, spec, seq)
		if err := s.rounds.Create(ctx, round); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create round")
		}
		created++
	}
	for i := len(specs); i < len(existing); i++ {
		if existing[i].Status == models.RoundStatusArchived {
			continue
		}
		if err := s.rounds.Archive(ctx, existing[i].ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive round")
		}
		archived++
	}

	s.logger.Info("rounds synchronized",
		zap.String("job_id", jobID),
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("archived", archived))

	return s.rounds.ListByJob(ctx, jobID)
}

// List returns a job's rounds in sequence order.
func (s *RoundSyncService) List(ctx context.Context, jobID string) ([]models.Round, error) {
	rounds, err := s.rounds.ListByJob(ctx, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rounds")
	}
	return rounds, nil
}

func applySpec(round *models.Round, spec models.RoundSpec, seq int) {
	round.Sequence = seq
	round.RoundName = spec.RoundName
	round.Type = spec.Type
	round.Mode = spec.Mode
	round.ScheduledAt = spec.ScheduledAt
	round.Venue = spec.Venue
	round.Instructions = spec.Instructions
	round.AttendanceMandatory = spec.AttendanceMandatory
	round.AutoAdvance = spec.AutoAdvance
}
