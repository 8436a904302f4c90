package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusline/placement-api/internal/models"
	appErrors "github.com/campusline/placement-api/pkg/errors"
)

// codeCharset excludes visually ambiguous characters (0/O, 1/I/L).
const codeCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// allowedRefreshIntervals is the fixed allow-list for rotating-code expiry.
var allowedRefreshIntervals = map[int]bool{30: true, 45: true, 60: true, 90: true}

type sessionRoundRepository interface {
	FindByID(ctx context.Context, id string) (*models.Round, error)
	UpdateSession(ctx context.Context, round *models.Round) error
	AppendAttendance(ctx context.Context, roundID, studentID string, at time.Time) error
	ListAttendance(ctx context.Context, roundID string) ([]string, error)
}

type sessionApplicationRepository interface {
	FindByStudentAndJob(ctx context.Context, studentID, jobID string) (*models.Application, error)
	Save(ctx context.Context, app *models.Application) error
}

type sessionUserRepository interface {
	PullRejection(ctx context.Context, userID, applicationID, roundID string) error
}

// StartSessionRequest starts a rotating-code attendance session.
type StartSessionRequest struct {
	RefreshIntervalSeconds int  `json:"refreshIntervalSeconds" validate:"required"`
	EnableOfflineCode      bool `json:"enableOfflineCode"`
}

// SessionStartResponse is returned once per session start. It is the only
// time the offline code plaintext leaves the server.
type SessionStartResponse struct {
	Status                 string    `json:"status"`
	CurrentCode            string    `json:"currentCode"`
	ExpiresAt              time.Time `json:"expiresAt"`
	RefreshIntervalSeconds int       `json:"refreshIntervalSeconds"`
	OfflineCode            string    `json:"offlineCode,omitempty"`
}

// SessionStatusResponse reports the session state. CurrentCode is populated
// only for admin callers and only when this status call itself rotated the
// code; plaintext is never stored, so it cannot be re-derived mid-window.
type SessionStatusResponse struct {
	Status                 string     `json:"status"`
	RefreshIntervalSeconds int        `json:"refreshIntervalSeconds,omitempty"`
	ExpiresAt              *time.Time `json:"expiresAt,omitempty"`
	OfflineCodeEnabled     bool       `json:"offlineCodeEnabled"`
	OfflineCodeUsedAt      *time.Time `json:"offlineCodeUsedAt"`
	CurrentCode            string     `json:"currentCode,omitempty"`
}

// CheckinRequest is a student's code submission.
type CheckinRequest struct {
	Code string `json:"code" validate:"required"`
}

// CheckinResult reports a successful check-in.
type CheckinResult struct {
	Message string `json:"message"`
	Method  string `json:"method"`
}

// AttendanceSessionService runs the per-round time-boxed rotating-code
// check-in protocol.
type AttendanceSessionService struct {
	rounds     sessionRoundRepository
	apps       sessionApplicationRepository
	users      sessionUserRepository
	validator  *validator.Validate
	logger     *zap.Logger
	metrics    *MetricsService
	codeLength int
	bcryptCost int
	now        func() time.Time
}

// NewAttendanceSessionService constructs the service.
func NewAttendanceSessionService(rounds sessionRoundRepository, apps sessionApplicationRepository, users sessionUserRepository, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, codeLength, bcryptCost int) *AttendanceSessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if codeLength <= 0 {
		codeLength = 6
	}
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AttendanceSessionService{
		rounds:     rounds,
		apps:       apps,
		users:      users,
		validator:  validate,
		logger:     logger,
		metrics:    metrics,
		codeLength: codeLength,
		bcryptCost: bcryptCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start activates a session for the round and issues the first code.
func (s *AttendanceSessionService) Start(ctx context.Context, roundID string, req StartSessionRequest) (*SessionStartResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if !allowedRefreshIntervals[req.RefreshIntervalSeconds] {
		return nil, appErrors.Clone(appErrors.ErrValidation, "refreshIntervalSeconds must be one of 30, 45, 60, 90")
	}

	round, err := s.loadRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.AttendanceSession.Active() {
		return nil, appErrors.Clone(appErrors.ErrSessionActive, "attendance session already active for round")
	}

	now := s.now()
	code, hash, err := s.generateCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate attendance code")
	}
	secret, err := generateSessionSecret()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate session secret")
	}
	expiresAt := now.Add(time.Duration(req.RefreshIntervalSeconds) * time.Second)

	round.AttendanceSession = models.AttendanceSession{
		Status:         models.SessionActive,
		RefreshSeconds: req.RefreshIntervalSeconds,
		CodeHash:       &hash,
		CodeExpiresAt:  &expiresAt,
		Secret:         &secret,
		StartedAt:      &now,
	}

	resp := &SessionStartResponse{
		Status:                 string(models.SessionActive),
		CurrentCode:            code,
		ExpiresAt:              expiresAt,
		RefreshIntervalSeconds: req.RefreshIntervalSeconds,
	}

	if req.EnableOfflineCode {
		offlineCode, offlineHash, err := s.generateCode()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate offline code")
		}
		round.AttendanceSession.OfflineCodeHash = &offlineHash
		resp.OfflineCode = offlineCode
	}

	if err := s.rounds.UpdateSession(ctx, round); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
	}

	s.logger.Info("attendance session started",
		zap.String("round_id", round.ID),
		zap.Int("refresh_seconds", req.RefreshIntervalSeconds),
		zap.Bool("offline_code", req.EnableOfflineCode))
	return resp, nil
}

// Status reports session state. Reading an active session whose code has
// expired rotates the code as a side effect; this replaces per-round
// background timers. Concurrent rotations are last-write-wins, which is
// safe because only the freshest code validates.
func (s *AttendanceSessionService) Status(ctx context.Context, roundID string, admin bool) (*SessionStatusResponse, error) {
	round, err := s.loadRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	session := round.AttendanceSession
	if !session.Active() {
		return &SessionStatusResponse{Status: string(models.SessionInactive)}, nil
	}

	resp := &SessionStatusResponse{
		Status:                 string(models.SessionActive),
		RefreshIntervalSeconds: session.RefreshSeconds,
		ExpiresAt:              session.CodeExpiresAt,
		OfflineCodeEnabled:     session.OfflineCodeEnabled(),
		OfflineCodeUsedAt:      session.OfflineCodeUsedAt,
	}

	now := s.now()
	if session.CodeExpiresAt == nil || !now.Before(*session.CodeExpiresAt) {
		code, hash, err := s.generateCode()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate attendance code")
		}
		expiresAt := now.Add(time.Duration(session.RefreshSeconds) * time.Second)
		round.AttendanceSession.CodeHash = &hash
		round.AttendanceSession.CodeExpiresAt = &expiresAt
		if err := s.rounds.UpdateSession(ctx, round); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist rotated code")
		}
		resp.ExpiresAt = &expiresAt
		if admin {
			resp.CurrentCode = code
		}
	}

	return resp, nil
}

// Submit validates a student's code and records attendance on both the
// round and the application ledger.
func (s *AttendanceSessionService) Submit(ctx context.Context, roundID, studentID string, req CheckinRequest) (*CheckinResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "code is required")
	}

	round, err := s.loadRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	session := round.AttendanceSession
	if !session.Active() {
		return nil, appErrors.Clone(appErrors.ErrSessionInactive, "attendance session not active for round")
	}

	now := s.now()
	method, err := s.matchCode(ctx, round, req.Code, now)
	if err != nil {
		s.observeCheckin("denied")
		return nil, err
	}

	if err := s.recordAttendance(ctx, round, studentID, method, now); err != nil {
		s.observeCheckin("denied")
		return nil, err
	}

	s.observeCheckin(string(method))
	s.logger.Info("attendance check-in accepted",
		zap.String("round_id", round.ID),
		zap.String("student_id", studentID),
		zap.String("method", string(method)))
	return &CheckinResult{Message: "attendance recorded", Method: string(method)}, nil
}

// Stop deactivates the session, discarding codes and secret. The
// persisted attendance list survives session teardown.
func (s *AttendanceSessionService) Stop(ctx context.Context, roundID string) error {
	round, err := s.loadRound(ctx, roundID)
	if err != nil {
		return err
	}
	if !round.AttendanceSession.Active() {
		return appErrors.Clone(appErrors.ErrSessionInactive, "attendance session not active for round")
	}

	round.AttendanceSession = models.AttendanceSession{Status: models.SessionInactive}
	if err := s.rounds.UpdateSession(ctx, round); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset session")
	}
	s.logger.Info("attendance session stopped", zap.String("round_id", round.ID))
	return nil
}

// Attendees returns the student ids marked present in the round, in
// check-in order.
func (s *AttendanceSessionService) Attendees(ctx context.Context, roundID string) ([]string, error) {
	round, err := s.loadRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	ids, err := s.rounds.ListAttendance(ctx, round.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return ids, nil
}

// matchCode checks the submitted code against the rotating code first (only
// while unexpired), then the single-use offline code. An expired rotating
// code with no offline match yields the distinct expired outcome.
func (s *AttendanceSessionService) matchCode(ctx context.Context, round *models.Round, code string, now time.Time) (models.AttendanceMethod, error) {
	session := round.AttendanceSession
	currentExpired := session.CodeExpiresAt == nil || !now.Before(*session.CodeExpiresAt)

	if session.CodeHash != nil && !currentExpired {
		if bcrypt.CompareHashAndPassword([]byte(*session.CodeHash), []byte(code)) == nil {
			return models.MethodQRCode, nil
		}
	}

	if session.OfflineCodeHash != nil && session.OfflineCodeUsedAt == nil {
		if bcrypt.CompareHashAndPassword([]byte(*session.OfflineCodeHash), []byte(code)) == nil {
			// Invalidate before touching the ledger so the code is
			// single-use even if the ledger write fails.
			round.AttendanceSession.OfflineCodeHash = nil
			round.AttendanceSession.OfflineCodeUsedAt = &now
			if err := s.rounds.UpdateSession(ctx, round); err != nil {
				return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume offline code")
			}
			return models.MethodOfflineCode, nil
		}
	}

	if currentExpired {
		return "", appErrors.Clone(appErrors.ErrCodeExpired, "attendance code expired, request a fresh code")
	}
	return "", appErrors.Clone(appErrors.ErrInvalidCode, "invalid attendance code")
}

func (s *AttendanceSessionService) recordAttendance(ctx context.Context, round *models.Round, studentID string, method models.AttendanceMethod, now time.Time) error {
	for attempt := 0; attempt < applicationSaveRetries; attempt++ {
		app, err := s.apps.FindByStudentAndJob(ctx, studentID, round.JobID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "no application found for this job")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
		}

		entry := app.RoundProgress.Find(round.ID)
		if entry == nil {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "round is not part of the application")
		}
		if entry.Attendance {
			return appErrors.Clone(appErrors.ErrAttendanceRecorded, "attendance already recorded for round")
		}

		entry.Attendance = true
		entry.AttendanceMethod = method
		entry.AttendanceAt = &now
		if entry.Result == models.ResultPending {
			entry.Result = models.ResultSelected
			entry.DecidedAt = &now
		}

		err = s.apps.Save(ctx, app)
		if err == nil {
			if err := s.rounds.AppendAttendance(ctx, round.ID, studentID, now); err != nil {
				s.logger.Warn("failed to append round attendance", zap.Error(err))
			}
			// Compensating action: a late check-in clears a prior
			// absence rejection record.
			if err := s.users.PullRejection(ctx, studentID, app.ID, round.ID); err != nil {
				s.logger.Warn("failed to retract rejection history", zap.Error(err))
			}
			return nil
		}
		if !isVersionConflict(err) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
		}
	}
	return appErrors.Clone(appErrors.ErrConflict, "application is being updated concurrently")
}

func (s *AttendanceSessionService) loadRound(ctx context.Context, roundID string) (*models.Round, error) {
	round, err := s.rounds.FindByID(ctx, roundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "round not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load round")
	}
	return round, nil
}

func (s *AttendanceSessionService) generateCode() (string, string, error) {
	code, err := randomCode(s.codeLength)
	if err != nil {
		return "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
	if err != nil {
		return "", "", err
	}
	return code, string(hash), nil
}

func (s *AttendanceSessionService) observeCheckin(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveCheckin(outcome)
	}
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(out), nil
}

func generateSessionSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
