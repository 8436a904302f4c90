package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusline/placement-api/internal/models"
	"github.com/campusline/placement-api/internal/repository"
	appErrors "github.com/campusline/placement-api/pkg/errors"
)

// applicationSaveRetries bounds optimistic-concurrency retry loops on
// ledger mutations.
const applicationSaveRetries = 3

const absenceRejectionReason = "Absent from round"

type engineApplicationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindByStudentAndJob(ctx context.Context, studentID, jobID string) (*models.Application, error)
	FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	Create(ctx context.Context, app *models.Application) error
	Save(ctx context.Context, app *models.Application) error
}

type engineRoundRepository interface {
	FindByID(ctx context.Context, id string) (*models.Round, error)
	FirstRound(ctx context.Context, jobID string) (*models.Round, error)
	AppendAttendance(ctx context.Context, roundID, studentID string, at time.Time) error
}

type engineJobRepository interface {
	FindByID(ctx context.Context, id string) (*models.Job, error)
	IsStudentEligible(ctx context.Context, jobID, studentID string) (bool, error)
}

type engineUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByRollNo(ctx context.Context, rollNo string) (*models.User, error)
	PushRejection(ctx context.Context, rec *models.RejectionRecord) error
	PullRejection(ctx context.Context, userID, applicationID, roundID string) error
	ListRejections(ctx context.Context, userID string) ([]models.RejectionRecord, error)
}

// MarkAttendanceRequest is the admin attendance override payload.
type MarkAttendanceRequest struct {
	RoundID  string `json:"roundId" validate:"required"`
	Attended *bool  `json:"attended" validate:"required"`
}

// AdvanceRequest promotes an application into the next round.
type AdvanceRequest struct {
	NextRoundID string `json:"nextRoundId" validate:"required"`
}

// FinalizeRequest records the terminal outcome of an application.
type FinalizeRequest struct {
	Outcome string  `json:"outcome" validate:"required,oneof=placed rejected"`
	RoundID string  `json:"roundId"`
	Notes   *string `json:"notes"`
}

// BulkAdvanceRequest moves a batch of students between two rounds of a job.
type BulkAdvanceRequest struct {
	FromRoundID string `json:"fromRoundId" validate:"required"`
	ToRoundID   string `json:"toRoundId" validate:"required"`
	Emails      string `json:"emails"`
	RollNos     string `json:"rollNos"`
}

// BulkAdvanceFailure reports one identifier that could not be advanced.
type BulkAdvanceFailure struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
	Reason     string `json:"reason"`
}

// BulkAdvanceResult summarises a bulk advance run.
type BulkAdvanceResult struct {
	SuccessCount int                  `json:"successCount"`
	FailureCount int                  `json:"failureCount"`
	Failures     []BulkAdvanceFailure `json:"failures"`
}

// ProgressionService owns every transition on an application's
// round-progress ledger.
type ProgressionService struct {
	apps      engineApplicationRepository
	rounds    engineRoundRepository
	jobs      engineJobRepository
	users     engineUserRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewProgressionService constructs the engine.
func NewProgressionService(apps engineApplicationRepository, rounds engineRoundRepository, jobs engineJobRepository, users engineUserRepository, validate *validator.Validate, logger *zap.Logger) *ProgressionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressionService{
		apps:      apps,
		rounds:    rounds,
		jobs:      jobs,
		users:     users,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Apply creates an application for a student, seeding the ledger with the
// job's first round. Entering round one is unconditional, so the seed entry
// is already selected.
func (s *ProgressionService) Apply(ctx context.Context, studentID, jobID string) (*models.ApplicationDetail, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusPublic {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "job is not open for applications")
	}

	first, err := s.rounds.FirstRound(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "job has no rounds configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load first round")
	}

	eligible, err := s.jobs.IsStudentEligible(ctx, jobID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check eligibility")
	}
	if !eligible {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not eligible for this job")
	}

	if _, err := s.apps.FindByStudentAndJob(ctx, studentID, jobID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application already exists for this job")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing application")
	}

	now := s.now()
	seq := first.Sequence
	app := &models.Application{
		StudentID:    studentID,
		JobID:        jobID,
		CurrentRound: &first.ID,
		CurrentSeq:   &seq,
		FinalStatus:  models.FinalInProcess,
		RoundProgress: models.RoundProgressList{{
			RoundID:   first.ID,
			Result:    models.ResultSelected,
			DecidedAt: &now,
		}},
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	s.logger.Info("application created",
		zap.String("application_id", app.ID),
		zap.String("student_id", studentID),
		zap.String("job_id", jobID))
	return s.detail(ctx, app.ID)
}

// MarkAttendance is the administrative override of the check-in path.
// Marking a student absent from an attendance-mandatory round rejects the
// application immediately.
func (s *ProgressionService) MarkAttendance(ctx context.Context, applicationID string, req MarkAttendanceRequest) (*models.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	attended := *req.Attended

	round, err := s.loadRound(ctx, req.RoundID)
	if err != nil {
		return nil, err
	}

	var appID string
	err = s.withRetry(ctx, applicationID, func(app *models.Application) error {
		if app.Closed() {
			return appErrors.Clone(appErrors.ErrApplicationClosed, "application already finalized")
		}
		if round.JobID != app.JobID {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "round does not belong to the application's job")
		}
		entry := app.RoundProgress.Find(round.ID)
		if entry == nil {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "round is not part of the application")
		}

		now := s.now()
		entry.AttendanceMethod = models.MethodAdminToggle
		if attended {
			entry.Attendance = true
			entry.AttendanceAt = &now
			if entry.Result == models.ResultPending {
				entry.Result = models.ResultSelected
				entry.DecidedAt = &now
			}
		} else {
			entry.Attendance = false
			entry.AttendanceAt = nil
			if round.AttendanceMandatory {
				s.rejectEntry(app, entry, now)
			}
		}
		appID = app.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload application")
	}
	if attended {
		if err := s.rounds.AppendAttendance(ctx, round.ID, app.StudentID, s.now()); err != nil {
			s.logger.Warn("failed to append round attendance", zap.Error(err))
		}
		if err := s.users.PullRejection(ctx, app.StudentID, app.ID, round.ID); err != nil {
			s.logger.Warn("failed to retract rejection history", zap.Error(err))
		}
	} else if round.AttendanceMandatory {
		s.pushRejection(ctx, app, round.ID, absenceRejectionReason)
	}

	return s.detail(ctx, appID)
}

// Advance manually promotes an application into nextRound, retroactively
// marking the vacated round attended and selected.
func (s *ProgressionService) Advance(ctx context.Context, applicationID string, req AdvanceRequest) (*models.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid advance payload")
	}

	nextRound, err := s.loadRound(ctx, req.NextRoundID)
	if err != nil {
		return nil, err
	}

	err = s.withRetry(ctx, applicationID, func(app *models.Application) error {
		return s.applyAdvance(app, nextRound)
	})
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, applicationID)
}

// BulkAdvance applies the advance transition to every identifier that
// resolves to an in-process application sitting in fromRound. Failures are
// collected per identifier; they never abort the batch.
func (s *ProgressionService) BulkAdvance(ctx context.Context, jobID string, req BulkAdvanceRequest) (*BulkAdvanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk advance payload")
	}

	if _, err := s.loadJob(ctx, jobID); err != nil {
		return nil, err
	}
	fromRound, err := s.loadRound(ctx, req.FromRoundID)
	if err != nil {
		return nil, err
	}
	toRound, err := s.loadRound(ctx, req.ToRoundID)
	if err != nil {
		return nil, err
	}
	if fromRound.JobID != jobID || toRound.JobID != jobID {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "rounds do not belong to the job")
	}

	result := &BulkAdvanceResult{Failures: []BulkAdvanceFailure{}}
	processed := make(map[string]bool)

	// Emails take precedence: a roll number resolving to an already
	// processed user is skipped, not double-processed.
	for _, email := range splitIdentifiers(req.Emails) {
		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			result.fail(email, "email", "user not found")
			continue
		}
		if processed[user.ID] {
			continue
		}
		processed[user.ID] = true
		s.bulkAdvanceOne(ctx, result, email, "email", user.ID, jobID, fromRound, toRound)
	}
	for _, rollNo := range splitIdentifiers(req.RollNos) {
		user, err := s.users.FindByRollNo(ctx, rollNo)
		if err != nil {
			result.fail(rollNo, "rollNo", "user not found")
			continue
		}
		if processed[user.ID] {
			continue
		}
		processed[user.ID] = true
		s.bulkAdvanceOne(ctx, result, rollNo, "rollNo", user.ID, jobID, fromRound, toRound)
	}

	s.logger.Info("bulk advance completed",
		zap.String("job_id", jobID),
		zap.String("from_round", fromRound.ID),
		zap.String("to_round", toRound.ID),
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.FailureCount))
	return result, nil
}

// Finalize records the terminal outcome. The only path to 'placed'.
func (s *ProgressionService) Finalize(ctx context.Context, applicationID string, req FinalizeRequest) (*models.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "outcome must be placed or rejected")
	}

	var round *models.Round
	if req.RoundID != "" {
		var err error
		round, err = s.loadRound(ctx, req.RoundID)
		if err != nil {
			return nil, err
		}
	}

	err := s.withRetry(ctx, applicationID, func(app *models.Application) error {
		if app.Closed() {
			return appErrors.Clone(appErrors.ErrApplicationClosed, "application already finalized")
		}
		now := s.now()
		if round != nil {
			if round.JobID != app.JobID {
				return appErrors.Clone(appErrors.ErrPreconditionFailed, "round does not belong to the application's job")
			}
			entry := app.RoundProgress.Find(round.ID)
			if entry == nil {
				return appErrors.Clone(appErrors.ErrPreconditionFailed, "round is not part of the application")
			}
			if req.Outcome == string(models.FinalPlaced) {
				entry.Result = models.ResultSelected
			} else {
				entry.Result = models.ResultRejected
			}
			entry.DecidedAt = &now
		}
		app.FinalStatus = models.FinalStatus(req.Outcome)
		app.CurrentRound = nil
		app.CurrentSeq = nil
		if req.Notes != nil {
			app.Notes = *req.Notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("application finalized",
		zap.String("application_id", applicationID),
		zap.String("outcome", req.Outcome))
	return s.detail(ctx, applicationID)
}

// Get returns an application with directory context.
func (s *ProgressionService) Get(ctx context.Context, applicationID string) (*models.ApplicationDetail, error) {
	return s.detail(ctx, applicationID)
}

// Rejections returns the rejection history of the application's student,
// newest first.
func (s *ProgressionService) Rejections(ctx context.Context, applicationID string) ([]models.RejectionRecord, error) {
	app, err := s.detail(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	recs, err := s.users.ListRejections(ctx, app.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rejections")
	}
	return recs, nil
}

// List returns applications with pagination metadata.
func (s *ProgressionService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	apps, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return apps, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// RejectForAbsence applies the absence rejection transition. Shared with
// the lifecycle sweep; the save retries lost version races so a
// concurrent check-in cannot strand the rejection.
func (s *ProgressionService) RejectForAbsence(ctx context.Context, app *models.Application, round *models.Round) error {
	err := s.withRetry(ctx, app.ID, func(a *models.Application) error {
		entry := a.RoundProgress.Find(round.ID)
		if entry == nil {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "round is not part of the application")
		}
		entry.Attendance = false
		entry.AttendanceAt = nil
		s.rejectEntry(a, entry, s.now())
		return nil
	})
	if err != nil {
		return err
	}
	s.pushRejection(ctx, app, round.ID, absenceRejectionReason)
	return nil
}

// PromotePending promotes a still-pending attended entry to selected.
// Shared with the lifecycle sweep's auto-advance handling.
func (s *ProgressionService) PromotePending(ctx context.Context, app *models.Application, roundID string) error {
	return s.withRetry(ctx, app.ID, func(a *models.Application) error {
		entry := a.RoundProgress.Find(roundID)
		if entry == nil || entry.Result != models.ResultPending {
			return nil
		}
		now := s.now()
		entry.Result = models.ResultSelected
		entry.DecidedAt = &now
		return nil
	})
}

// applyAdvance mutates the application in place: vacated round marked
// attended/selected, next round appended once, pointers retargeted.
func (s *ProgressionService) applyAdvance(app *models.Application, nextRound *models.Round) error {
	if app.Closed() {
		return appErrors.Clone(appErrors.ErrApplicationClosed, "application already finalized")
	}
	if app.CurrentRound == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "application is not currently in a round")
	}
	if nextRound.JobID != app.JobID {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "round does not belong to the application's job")
	}

	now := s.now()
	if current := app.RoundProgress.Find(*app.CurrentRound); current != nil {
		current.Attendance = true
		current.AttendanceMethod = models.MethodAdminAdvance
		current.AttendanceAt = &now
		current.Result = models.ResultSelected
		current.DecidedAt = &now
	}

	// At most one ledger entry per round id: re-advancing into a round
	// already on the ledger only retargets the pointers.
	if app.RoundProgress.Find(nextRound.ID) == nil {
		app.RoundProgress = append(app.RoundProgress, models.RoundProgress{
			RoundID: nextRound.ID,
			Result:  models.ResultPending,
		})
	}

	seq := nextRound.Sequence
	app.CurrentRound = &nextRound.ID
	app.CurrentSeq = &seq
	app.FinalStatus = models.FinalInProcess
	return nil
}

func (s *ProgressionService) bulkAdvanceOne(ctx context.Context, result *BulkAdvanceResult, identifier, idType, userID, jobID string, fromRound, toRound *models.Round) {
	app, err := s.apps.FindByStudentAndJob(ctx, userID, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			result.fail(identifier, idType, "no application for this job")
			return
		}
		result.fail(identifier, idType, "failed to load application")
		return
	}
	if app.FinalStatus != models.FinalInProcess {
		result.fail(identifier, idType, "application is not in process")
		return
	}
	if !app.InRound(fromRound.ID) {
		result.fail(identifier, idType, "application is not in the source round")
		return
	}

	err = s.withRetry(ctx, app.ID, func(a *models.Application) error {
		if a.FinalStatus != models.FinalInProcess || !a.InRound(fromRound.ID) {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "application left the source round")
		}
		return s.applyAdvance(a, toRound)
	})
	if err != nil {
		result.fail(identifier, idType, appErrors.FromError(err).Message)
		return
	}
	result.SuccessCount++
}

// withRetry loads, mutates and saves an application, retrying when a
// concurrent writer wins the version race.
func (s *ProgressionService) withRetry(ctx context.Context, applicationID string, mutate func(*models.Application) error) error {
	for attempt := 0; attempt < applicationSaveRetries; attempt++ {
		app, err := s.apps.FindByID(ctx, applicationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "application not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
		}
		if err := mutate(app); err != nil {
			return err
		}
		err = s.apps.Save(ctx, app)
		if err == nil {
			return nil
		}
		if !isVersionConflict(err) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save application")
		}
	}
	return appErrors.Clone(appErrors.ErrConflict, "application is being updated concurrently")
}

func (s *ProgressionService) rejectEntry(app *models.Application, entry *models.RoundProgress, now time.Time) {
	entry.Result = models.ResultRejected
	entry.DecidedAt = &now
	app.FinalStatus = models.FinalRejected
	app.CurrentRound = nil
	app.CurrentSeq = nil
}

func (s *ProgressionService) pushRejection(ctx context.Context, app *models.Application, roundID, reason string) {
	rec := &models.RejectionRecord{
		UserID:        app.StudentID,
		JobID:         app.JobID,
		RoundID:       roundID,
		ApplicationID: app.ID,
		Reason:        reason,
	}
	if err := s.users.PushRejection(ctx, rec); err != nil {
		s.logger.Warn("failed to record rejection history", zap.Error(err))
	}
}

func (s *ProgressionService) detail(ctx context.Context, applicationID string) (*models.ApplicationDetail, error) {
	detail, err := s.apps.FindDetailByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application detail")
	}
	return detail, nil
}

func (s *ProgressionService) loadJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}
	return job, nil
}

func (s *ProgressionService) loadRound(ctx context.Context, roundID string) (*models.Round, error) {
	round, err := s.rounds.FindByID(ctx, roundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "round not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load round")
	}
	return round, nil
}

func (r *BulkAdvanceResult) fail(identifier, idType, reason string) {
	r.Failures = append(r.Failures, BulkAdvanceFailure{Identifier: identifier, Type: idType, Reason: reason})
	r.FailureCount++
}

func isVersionConflict(err error) bool {
	return errors.Is(err, repository.ErrVersionConflict)
}

// splitIdentifiers parses a newline/comma-separated identifier list.
func splitIdentifiers(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
