package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusline/placement-api/internal/models"
)

const roundColumns = `id, job_id, sequence, round_name, type, mode, scheduled_at, venue, instructions,
        is_attendance_mandatory, auto_advance_on_attendance, status, processed_at,
        session_status, session_refresh_seconds, session_code_hash, session_code_expires_at,
        session_secret, session_offline_hash, session_offline_used_at, session_started_at,
        created_at, updated_at`

// RoundRepository handles persistence of interview rounds and their embedded
// attendance sessions.
type RoundRepository struct {
	db *sqlx.DB
}

// NewRoundRepository constructs the repository.
func NewRoundRepository(db *sqlx.DB) *RoundRepository {
	return &RoundRepository{db: db}
}

// FindByID returns a round by its ID.
func (r *RoundRepository) FindByID(ctx context.Context, id string) (*models.Round, error) {
	query := fmt.Sprintf(`SELECT %s FROM rounds WHERE id = $1`, roundColumns)
	var round models.Round
	if err := r.db.GetContext(ctx, &round, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find round by id: %w", err)
	}
	return &round, nil
}

// ListByJob returns every round of a job ordered by sequence, archived
// rounds included.
func (r *RoundRepository) ListByJob(ctx context.Context, jobID string) ([]models.Round, error) {
	query := fmt.Sprintf(`SELECT %s FROM rounds WHERE job_id = $1 ORDER BY sequence ASC`, roundColumns)
	var rounds []models.Round
	if err := r.db.SelectContext(ctx, &rounds, query, jobID); err != nil {
		return nil, fmt.Errorf("list rounds by job: %w", err)
	}
	return rounds, nil
}

// FirstRound returns the lowest-sequence non-archived round of a job.
func (r *RoundRepository) FirstRound(ctx context.Context, jobID string) (*models.Round, error) {
	query := fmt.Sprintf(`SELECT %s FROM rounds WHERE job_id = $1 AND status <> $2 ORDER BY sequence ASC LIMIT 1`, roundColumns)
	var round models.Round
	if err := r.db.GetContext(ctx, &round, query, jobID, models.RoundStatusArchived); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find first round: %w", err)
	}
	return &round, nil
}

// Create persists a new round.
func (r *RoundRepository) Create(ctx context.Context, round *models.Round) error {
	if round.ID == "" {
		round.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if round.CreatedAt.IsZero() {
		round.CreatedAt = now
	}
	round.UpdatedAt = now
	if round.Status == "" {
		round.Status = models.RoundStatusScheduled
	}
	if round.AttendanceSession.Status == "" {
		round.AttendanceSession.Status = models.SessionInactive
	}
	const query = `INSERT INTO rounds (id, job_id, sequence, round_name, type, mode, scheduled_at, venue, instructions,
        is_attendance_mandatory, auto_advance_on_attendance, status, processed_at,
        session_status, session_refresh_seconds, session_code_hash, session_code_expires_at,
        session_secret, session_offline_hash, session_offline_used_at, session_started_at,
        created_at, updated_at)
        VALUES (:id, :job_id, :sequence, :round_name, :type, :mode, :scheduled_at, :venue, :instructions,
        :is_attendance_mandatory, :auto_advance_on_attendance, :status, :processed_at,
        :session_status, :session_refresh_seconds, :session_code_hash, :session_code_expires_at,
        :session_secret, :session_offline_hash, :session_offline_used_at, :session_started_at,
        :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, round); err != nil {
		return fmt.Errorf("create round: %w", err)
	}
	return nil
}

// Update persists the round's descriptive and lifecycle fields, preserving
// the round's identity.
func (r *RoundRepository) Update(ctx context.Context, round *models.Round) error {
	round.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rounds SET sequence = :sequence, round_name = :round_name, type = :type, mode = :mode,
        scheduled_at = :scheduled_at, venue = :venue, instructions = :instructions,
        is_attendance_mandatory = :is_attendance_mandatory, auto_advance_on_attendance = :auto_advance_on_attendance,
        status = :status, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, round); err != nil {
		return fmt.Errorf("update round: %w", err)
	}
	return nil
}

// Archive marks a round archived. Rounds are never deleted so progress
// ledgers keep resolvable round references.
func (r *RoundRepository) Archive(ctx context.Context, id string) error {
	const query = `UPDATE rounds SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.RoundStatusArchived); err != nil {
		return fmt.Errorf("archive round: %w", err)
	}
	return nil
}

// UpdateSession writes only the embedded attendance session columns.
func (r *RoundRepository) UpdateSession(ctx context.Context, round *models.Round) error {
	round.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rounds SET session_status = :session_status, session_refresh_seconds = :session_refresh_seconds,
        session_code_hash = :session_code_hash, session_code_expires_at = :session_code_expires_at,
        session_secret = :session_secret, session_offline_hash = :session_offline_hash,
        session_offline_used_at = :session_offline_used_at, session_started_at = :session_started_at,
        updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, round); err != nil {
		return fmt.Errorf("update round session: %w", err)
	}
	return nil
}

// MarkProcessed stamps a round as swept by the lifecycle scheduler.
func (r *RoundRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE rounds SET processed_at = $2, status = $3, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at, models.RoundStatusCompleted); err != nil {
		return fmt.Errorf("mark round processed: %w", err)
	}
	return nil
}

// ListDue returns attendance-mandatory rounds whose scheduled time has
// passed and that the lifecycle sweep has not yet processed.
func (r *RoundRepository) ListDue(ctx context.Context, now time.Time) ([]models.Round, error) {
	query := fmt.Sprintf(`SELECT %s FROM rounds
        WHERE is_attendance_mandatory = TRUE AND scheduled_at IS NOT NULL AND scheduled_at <= $1
        AND processed_at IS NULL AND status IN ($2, $3)
        ORDER BY scheduled_at ASC`, roundColumns)
	var rounds []models.Round
	if err := r.db.SelectContext(ctx, &rounds, query, now, models.RoundStatusScheduled, models.RoundStatusInProgress); err != nil {
		return nil, fmt.Errorf("list due rounds: %w", err)
	}
	return rounds, nil
}

// AppendAttendance records a student in the round's raw attendance list.
// Idempotent: re-inserting an existing pair is a no-op.
func (r *RoundRepository) AppendAttendance(ctx context.Context, roundID, studentID string, at time.Time) error {
	const query = `INSERT INTO round_attendance (round_id, student_id, marked_at)
        VALUES ($1, $2, $3) ON CONFLICT (round_id, student_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, roundID, studentID, at); err != nil {
		return fmt.Errorf("append round attendance: %w", err)
	}
	return nil
}

// ListAttendance returns the student ids physically present in a round.
func (r *RoundRepository) ListAttendance(ctx context.Context, roundID string) ([]string, error) {
	const query = `SELECT student_id FROM round_attendance WHERE round_id = $1 ORDER BY marked_at ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, roundID); err != nil {
		return nil, fmt.Errorf("list round attendance: %w", err)
	}
	return ids, nil
}
