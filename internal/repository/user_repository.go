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

const userColumns = `id, email, password_hash, full_name, role, roll_no, department, passout_year,
        ug_cgpa, tenth_percentage, twelfth_percentage, current_arrears, profile_complete,
        active, last_login, created_at, updated_at`

// UserRepository provides database access for the user directory.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByRollNo returns a student by roll number.
func (r *UserRepository) FindByRollNo(ctx context.Context, rollNo string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE roll_no = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, rollNo); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by roll no: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ListStudents returns all active student accounts. The eligibility
// recompute evaluates the full population, so no pagination here.
func (r *UserRepository) ListStudents(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE role = $1 AND active = TRUE`, userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, models.RoleStudent); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return users, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// PushRejection appends a rejection history entry for a student.
func (r *UserRepository) PushRejection(ctx context.Context, rec *models.RejectionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RejectedAt.IsZero() {
		rec.RejectedAt = time.Now().UTC()
	}
	const query = `INSERT INTO user_rejections (id, user_id, job_id, round_id, application_id, reason, rejected_at)
        VALUES (:id, :user_id, :job_id, :round_id, :application_id, :reason, :rejected_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("push rejection: %w", err)
	}
	return nil
}

// PullRejection removes rejection entries matching the application and round.
// Used as the compensating action when a late check-in clears an
// absence-triggered rejection.
func (r *UserRepository) PullRejection(ctx context.Context, userID, applicationID, roundID string) error {
	const query = `DELETE FROM user_rejections WHERE user_id = $1 AND application_id = $2 AND round_id = $3`
	if _, err := r.db.ExecContext(ctx, query, userID, applicationID, roundID); err != nil {
		return fmt.Errorf("pull rejection: %w", err)
	}
	return nil
}

// ListRejections returns a student's rejection history, newest first.
func (r *UserRepository) ListRejections(ctx context.Context, userID string) ([]models.RejectionRecord, error) {
	const query = `SELECT id, user_id, job_id, round_id, application_id, reason, rejected_at
        FROM user_rejections WHERE user_id = $1 ORDER BY rejected_at DESC`
	var recs []models.RejectionRecord
	if err := r.db.SelectContext(ctx, &recs, query, userID); err != nil {
		return nil, fmt.Errorf("list rejections: %w", err)
	}
	return recs, nil
}

// CreateRefreshToken persists a refresh token.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, ip_address, user_agent)
        VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken looks up an unexpired refresh token by its value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent
        FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a refresh token revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live token for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW() WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
