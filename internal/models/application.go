package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FinalStatus is the terminal outcome of an application.
type FinalStatus string

const (
	FinalInProcess FinalStatus = "in_process"
	FinalRejected  FinalStatus = "rejected"
	FinalPlaced    FinalStatus = "placed"
)

// RoundResult is the per-round decision recorded in the progress ledger.
type RoundResult string

const (
	ResultPending  RoundResult = "pending"
	ResultSelected RoundResult = "selected"
	ResultRejected RoundResult = "rejected"
)

// RoundProgress is one ledger entry: the application's exposure to a single
// round. At most one entry exists per round id.
type RoundProgress struct {
	RoundID          string           `json:"round_id"`
	Attendance       bool             `json:"attendance"`
	AttendanceMethod AttendanceMethod `json:"attendance_method,omitempty"`
	AttendanceAt     *time.Time       `json:"attendance_marked_at,omitempty"`
	Result           RoundResult      `json:"result"`
	DecidedAt        *time.Time       `json:"decided_at,omitempty"`
}

// RoundProgressList is the append-mostly ledger persisted as a JSONB column so
// every mutation stays a single-row write.
type RoundProgressList []RoundProgress

// Value implements driver.Valuer.
func (l RoundProgressList) Value() (driver.Value, error) {
	if l == nil {
		l = RoundProgressList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *RoundProgressList) Scan(src interface{}) error {
	if src == nil {
		*l = RoundProgressList{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("round progress: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, l)
}

// Find returns the ledger entry for a round id, or nil.
func (l RoundProgressList) Find(roundID string) *RoundProgress {
	for i := range l {
		if l[i].RoundID == roundID {
			return &l[i]
		}
	}
	return nil
}

// Application tracks one student's journey through one job's rounds.
type Application struct {
	ID            string            `db:"id" json:"id"`
	StudentID     string            `db:"student_id" json:"student_id"`
	JobID         string            `db:"job_id" json:"job_id"`
	CurrentRound  *string           `db:"current_round_id" json:"current_round_id,omitempty"`
	CurrentSeq    *int              `db:"current_round_seq" json:"current_round_sequence,omitempty"`
	FinalStatus   FinalStatus       `db:"final_status" json:"final_status"`
	Notes         string            `db:"notes" json:"notes"`
	RoundProgress RoundProgressList `db:"round_progress" json:"round_progress"`
	Version       int               `db:"version" json:"-"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// InRound reports whether the application is currently active in the round.
func (a *Application) InRound(roundID string) bool {
	return a.CurrentRound != nil && *a.CurrentRound == roundID
}

// Closed reports whether the application reached a terminal status.
func (a *Application) Closed() bool {
	return a.FinalStatus != FinalInProcess
}

// ApplicationDetail enriches an application with directory context.
type ApplicationDetail struct {
	Application
	StudentName  string  `db:"student_name" json:"student_name"`
	StudentEmail string  `db:"student_email" json:"student_email"`
	StudentRoll  string  `db:"student_roll" json:"student_roll"`
	Company      string  `db:"company" json:"company"`
	RoleTitle    string  `db:"role_title" json:"role_title"`
	RoundName    *string `db:"round_name" json:"current_round_name,omitempty"`
}

// ApplicationFilter captures application listing parameters.
type ApplicationFilter struct {
	JobID       string
	StudentID   string
	FinalStatus FinalStatus
	RoundID     string
	Page        int
	PageSize    int
}
