package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus describes the visibility of a job posting.
type JobStatus string

const (
	JobStatusPrivate JobStatus = "private"
	JobStatusPublic  JobStatus = "public"
)

// EligibilityCriteria defines the academic cutoffs for a job posting.
// Zero-valued fields mean the criterion is not constrained.
type EligibilityCriteria struct {
	MinCgpa            float64  `json:"min_cgpa"`
	MinTenthMarks      float64  `json:"min_tenth_marks"`
	MinTwelfthMarks    float64  `json:"min_twelfth_marks"`
	PassoutYear        int      `json:"passout_year"`
	MaxArrears         int      `json:"max_arrears"`
	AllowedDepartments []string `json:"allowed_departments"`
}

// Value implements driver.Valuer, storing criteria as JSONB.
func (c EligibilityCriteria) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *EligibilityCriteria) Scan(src interface{}) error {
	if src == nil {
		*c = EligibilityCriteria{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("eligibility criteria: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, c)
}

// Job represents a company job posting with its recruitment configuration.
type Job struct {
	ID          string              `db:"id" json:"id"`
	Company     string              `db:"company" json:"company"`
	RoleTitle   string              `db:"role_title" json:"role_title"`
	Description string              `db:"description" json:"description"`
	CTC         string              `db:"ctc" json:"ctc"`
	Location    string              `db:"location" json:"location"`
	Status      JobStatus           `db:"status" json:"status"`
	Eligibility EligibilityCriteria `db:"eligibility" json:"eligibility"`
	CreatedBy   string              `db:"created_by" json:"created_by"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// JobDetail enriches a job with derived counters.
type JobDetail struct {
	Job
	EligibleCount  int `db:"eligible_count" json:"eligible_count"`
	ApplicantCount int `db:"applicant_count" json:"applicant_count"`
}

// JobFilter captures job listing parameters.
type JobFilter struct {
	Status    JobStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
