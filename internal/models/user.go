package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleStudent    UserRole = "STUDENT"
)

// User represents a portal account stored in the users table. Students carry
// the academic attributes consumed by the eligibility evaluator.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	RollNo       string     `db:"roll_no" json:"roll_no"`
	Department   string     `db:"department" json:"department"`
	PassoutYear  int        `db:"passout_year" json:"passout_year"`
	UGCgpa       float64    `db:"ug_cgpa" json:"ug_cgpa"`
	TenthMarks   float64    `db:"tenth_percentage" json:"tenth_percentage"`
	TwelfthMarks float64    `db:"twelfth_percentage" json:"twelfth_percentage"`
	Arrears      int        `db:"current_arrears" json:"current_arrears"`
	ProfileDone  bool       `db:"profile_complete" json:"profile_complete"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// RejectionRecord is one entry of a student's rejection history.
type RejectionRecord struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	JobID         string    `db:"job_id" json:"job_id"`
	RoundID       string    `db:"round_id" json:"round_id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	Reason        string    `db:"reason" json:"reason"`
	RejectedAt    time.Time `db:"rejected_at" json:"rejected_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
