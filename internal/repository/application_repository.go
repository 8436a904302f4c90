package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusline/placement-api/internal/models"
)

// ErrVersionConflict signals a lost optimistic-concurrency race on an
// application save. Callers reload and reapply.
var ErrVersionConflict = fmt.Errorf("application version conflict")

const applicationColumns = `id, student_id, job_id, current_round_id, current_round_seq, final_status,
        notes, round_progress, version, created_at, updated_at`

// ApplicationRepository handles persistence of applications and their
// round-progress ledgers.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// FindByID returns an application by its ID.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by id: %w", err)
	}
	return &app, nil
}

// FindByStudentAndJob returns the application a student holds for a job.
func (r *ApplicationRepository) FindByStudentAndJob(ctx context.Context, studentID, jobID string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE student_id = $1 AND job_id = $2 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, studentID, jobID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by student and job: %w", err)
	}
	return &app, nil
}

// FindDetailByID returns an application with directory context.
func (r *ApplicationRepository) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	const query = `SELECT a.id, a.student_id, a.job_id, a.current_round_id, a.current_round_seq, a.final_status,
        a.notes, a.round_progress, a.version, a.created_at, a.updated_at,
        u.full_name AS student_name, u.email AS student_email, u.roll_no AS student_roll,
        j.company, j.role_title, r.round_name AS round_name
        FROM applications a
        JOIN users u ON u.id = a.student_id
        JOIN jobs j ON j.id = a.job_id
        LEFT JOIN rounds r ON r.id = a.current_round_id
        WHERE a.id = $1`
	var detail models.ApplicationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application detail: %w", err)
	}
	return &detail, nil
}

// List returns applications with directory context.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	base := `FROM applications a
JOIN users u ON u.id = a.student_id
JOIN jobs j ON j.id = a.job_id
LEFT JOIN rounds r ON r.id = a.current_round_id`
	var conditions []string
	var args []interface{}

	if filter.JobID != "" {
		conditions = append(conditions, fmt.Sprintf("a.job_id = $%d", len(args)+1))
		args = append(args, filter.JobID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.FinalStatus != "" {
		conditions = append(conditions, fmt.Sprintf("a.final_status = $%d", len(args)+1))
		args = append(args, filter.FinalStatus)
	}
	if filter.RoundID != "" {
		conditions = append(conditions, fmt.Sprintf("a.current_round_id = $%d", len(args)+1))
		args = append(args, filter.RoundID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.job_id, a.current_round_id, a.current_round_seq, a.final_status,
        a.notes, a.round_progress, a.version, a.created_at, a.updated_at,
        u.full_name AS student_name, u.email AS student_email, u.roll_no AS student_roll,
        j.company, j.role_title, r.round_name AS round_name
        %s ORDER BY a.created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var apps []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

// ListAllByJob returns every application of a job with directory context,
// unpaginated. Export rendering must see the full set; the paginated List
// clamps its page size for interactive callers.
func (r *ApplicationRepository) ListAllByJob(ctx context.Context, jobID string) ([]models.ApplicationDetail, error) {
	const query = `SELECT a.id, a.student_id, a.job_id, a.current_round_id, a.current_round_seq, a.final_status,
        a.notes, a.round_progress, a.version, a.created_at, a.updated_at,
        u.full_name AS student_name, u.email AS student_email, u.roll_no AS student_roll,
        j.company, j.role_title, r.round_name AS round_name
        FROM applications a
        JOIN users u ON u.id = a.student_id
        JOIN jobs j ON j.id = a.job_id
        LEFT JOIN rounds r ON r.id = a.current_round_id
        WHERE a.job_id = $1 ORDER BY u.roll_no ASC`
	var apps []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &apps, query, jobID); err != nil {
		return nil, fmt.Errorf("list applications by job: %w", err)
	}
	return apps, nil
}

// ListInProcessByRound returns in-process applications whose ledger carries
// an entry for the round. Used by the lifecycle sweep.
func (r *ApplicationRepository) ListInProcessByRound(ctx context.Context, roundID string) ([]models.Application, error) {
	needle, err := json.Marshal([]map[string]string{{"round_id": roundID}})
	if err != nil {
		return nil, fmt.Errorf("marshal round filter: %w", err)
	}
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE final_status = $1 AND round_progress @> $2`, applicationColumns)
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, models.FinalInProcess, needle); err != nil {
		return nil, fmt.Errorf("list applications by round: %w", err)
	}
	return apps, nil
}

// Create persists a new application. The unique (student_id, job_id)
// constraint backs the one-application-per-pair invariant.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.FinalStatus == "" {
		app.FinalStatus = models.FinalInProcess
	}
	app.Version = 1
	const query = `INSERT INTO applications (id, student_id, job_id, current_round_id, current_round_seq, final_status,
        notes, round_progress, version, created_at, updated_at)
        VALUES (:id, :student_id, :job_id, :current_round_id, :current_round_seq, :final_status,
        :notes, :round_progress, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// Save persists the full application state guarded by the version column.
// Concurrent writers cannot interleave ledger mutations: the loser of the
// race gets ErrVersionConflict instead of overwriting.
func (r *ApplicationRepository) Save(ctx context.Context, app *models.Application) error {
	prev := app.Version
	app.Version = prev + 1
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET current_round_id = $2, current_round_seq = $3, final_status = $4,
        notes = $5, round_progress = $6, version = $7, updated_at = $8
        WHERE id = $1 AND version = $9`
	res, err := r.db.ExecContext(ctx, query, app.ID, app.CurrentRound, app.CurrentSeq, app.FinalStatus,
		app.Notes, app.RoundProgress, app.Version, app.UpdatedAt, prev)
	if err != nil {
		app.Version = prev
		return fmt.Errorf("save application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		app.Version = prev
		return fmt.Errorf("save application rows: %w", err)
	}
	if affected == 0 {
		app.Version = prev
		return ErrVersionConflict
	}
	return nil
}
