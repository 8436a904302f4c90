package models

import "time"

// RoundStatus is the lifecycle state of an interview round.
type RoundStatus string

const (
	RoundStatusScheduled  RoundStatus = "scheduled"
	RoundStatusInProgress RoundStatus = "in-progress"
	RoundStatusCompleted  RoundStatus = "completed"
	RoundStatusCancelled  RoundStatus = "cancelled"
	RoundStatusPostponed  RoundStatus = "postponed"
	RoundStatusArchived   RoundStatus = "archived"
)

// SessionStatus is the state of a round's embedded attendance session.
type SessionStatus string

const (
	SessionInactive SessionStatus = "inactive"
	SessionActive   SessionStatus = "active"
)

// AttendanceMethod records how attendance was captured for a progress entry.
type AttendanceMethod string

const (
	MethodQRCode       AttendanceMethod = "qr_code"
	MethodOfflineCode  AttendanceMethod = "offline_code"
	MethodAdminToggle  AttendanceMethod = "admin_toggle"
	MethodAdminAdvance AttendanceMethod = "admin_advance"
)

// AttendanceSession is the per-round rotating-code state embedded in the
// rounds table. Plaintext codes are never stored; only bcrypt hashes.
type AttendanceSession struct {
	Status            SessionStatus `db:"session_status" json:"status"`
	RefreshSeconds    int           `db:"session_refresh_seconds" json:"refresh_interval_seconds"`
	CodeHash          *string       `db:"session_code_hash" json:"-"`
	CodeExpiresAt     *time.Time    `db:"session_code_expires_at" json:"expires_at,omitempty"`
	Secret            *string       `db:"session_secret" json:"-"`
	OfflineCodeHash   *string       `db:"session_offline_hash" json:"-"`
	OfflineCodeUsedAt *time.Time    `db:"session_offline_used_at" json:"offline_code_used_at,omitempty"`
	StartedAt         *time.Time    `db:"session_started_at" json:"started_at,omitempty"`
}

// Active reports whether the session is accepting check-ins.
func (s AttendanceSession) Active() bool {
	return s.Status == SessionActive
}

// OfflineCodeEnabled reports whether an unused offline code exists.
func (s AttendanceSession) OfflineCodeEnabled() bool {
	return s.OfflineCodeHash != nil && s.OfflineCodeUsedAt == nil
}

// Round is one step of a job's interview sequence. Rounds are never deleted;
// shrinking a job's round list archives the surplus so ledger references to
// the round id stay resolvable.
type Round struct {
	ID                  string      `db:"id" json:"id"`
	JobID               string      `db:"job_id" json:"job_id"`
	Sequence            int         `db:"sequence" json:"sequence"`
	RoundName           string      `db:"round_name" json:"round_name"`
	Type                string      `db:"type" json:"type"`
	Mode                string      `db:"mode" json:"mode"`
	ScheduledAt         *time.Time  `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Venue               string      `db:"venue" json:"venue"`
	Instructions        string      `db:"instructions" json:"instructions"`
	AttendanceMandatory bool        `db:"is_attendance_mandatory" json:"is_attendance_mandatory"`
	AutoAdvance         bool        `db:"auto_advance_on_attendance" json:"auto_advance_on_attendance"`
	Status              RoundStatus `db:"status" json:"status"`
	ProcessedAt         *time.Time  `db:"processed_at" json:"processed_at,omitempty"`
	AttendanceSession   `json:"attendance_session"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// RoundSpec is the admin-supplied definition used by the round synchronizer.
type RoundSpec struct {
	RoundName           string     `json:"round_name" validate:"required"`
	Type                string     `json:"type"`
	Mode                string     `json:"mode"`
	ScheduledAt         *time.Time `json:"scheduled_at"`
	Venue               string     `json:"venue"`
	Instructions        string     `json:"instructions"`
	AttendanceMandatory bool       `json:"is_attendance_mandatory"`
	AutoAdvance         bool       `json:"auto_advance_on_attendance"`
}
