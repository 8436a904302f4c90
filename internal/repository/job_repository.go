package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusline/placement-api/internal/models"
)

const jobColumns = `id, company, role_title, description, ctc, location, status, eligibility,
        created_by, created_at, updated_at`

// JobRepository handles persistence of job postings and their materialized
// eligible-student sets.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository constructs the repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// FindByID returns a job by its ID.
func (r *JobRepository) FindByID(ctx context.Context, id string) (*models.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1`, jobColumns)
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	return &job, nil
}

// List returns jobs filtered by the provided criteria.
func (r *JobRepository) List(ctx context.Context, filter models.JobFilter) ([]models.JobDetail, int, error) {
	base := `FROM jobs j`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("j.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(j.company) LIKE $%d OR LOWER(j.role_title) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "j.created_at",
		"company":    "j.company",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "j.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT j.id, j.company, j.role_title, j.description, j.ctc, j.location, j.status,
        j.eligibility, j.created_by, j.created_at, j.updated_at,
        (SELECT COUNT(*) FROM job_eligible_students e WHERE e.job_id = j.id) AS eligible_count,
        (SELECT COUNT(*) FROM applications a WHERE a.job_id = j.id) AS applicant_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var jobs []models.JobDetail
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}
	return jobs, total, nil
}

// Create persists a new job posting.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.JobStatusPrivate
	}
	const query = `INSERT INTO jobs (id, company, role_title, description, ctc, location, status, eligibility, created_by, created_at, updated_at)
        VALUES (:id, :company, :role_title, :description, :ctc, :location, :status, :eligibility, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Update persists mutable job fields.
func (r *JobRepository) Update(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now().UTC()
	const query = `UPDATE jobs SET company = :company, role_title = :role_title, description = :description,
        ctc = :ctc, location = :location, status = :status, eligibility = :eligibility, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// ReplaceEligibleStudents swaps the materialized eligible set in full within a
// transaction. Recomputation replaces, it never merges.
func (r *JobRepository) ReplaceEligibleStudents(ctx context.Context, jobID string, studentIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin eligible replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_eligible_students WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("clear eligible students: %w", err)
	}
	for _, studentID := range studentIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO job_eligible_students (job_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			jobID, studentID); err != nil {
			return fmt.Errorf("insert eligible student: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit eligible replace: %w", err)
	}
	return nil
}

// ListEligibleStudents returns the materialized eligible set for a job.
func (r *JobRepository) ListEligibleStudents(ctx context.Context, jobID string) ([]string, error) {
	const query = `SELECT student_id FROM job_eligible_students WHERE job_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, jobID); err != nil {
		return nil, fmt.Errorf("list eligible students: %w", err)
	}
	return ids, nil
}

// IsStudentEligible checks membership of the materialized eligible set.
func (r *JobRepository) IsStudentEligible(ctx context.Context, jobID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM job_eligible_students WHERE job_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, jobID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check eligible student: %w", err)
	}
	return true, nil
}
