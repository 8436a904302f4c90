package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campusline/placement-api/internal/models"
)

type eligibilityUserRepository interface {
	ListStudents(ctx context.Context) ([]models.User, error)
}

type eligibilityJobRepository interface {
	ReplaceEligibleStudents(ctx context.Context, jobID string, studentIDs []string) error
}

// IsEligible reports whether a student satisfies a job's eligibility
// criteria. Pure predicate: no side effects. Missing numeric fields on the
// student are zero-valued and fail closed against positive thresholds. A
// zero criteria passout year means the year is not constrained; all other
// cutoffs are always enforced.
func IsEligible(student *models.User, c models.EligibilityCriteria) bool {
	if !student.ProfileDone {
		return false
	}
	if student.UGCgpa < c.MinCgpa {
		return false
	}
	if student.Arrears > c.MaxArrears {
		return false
	}
	if student.TenthMarks < c.MinTenthMarks {
		return false
	}
	if student.TwelfthMarks < c.MinTwelfthMarks {
		return false
	}
	if c.PassoutYear != 0 && student.PassoutYear != c.PassoutYear {
		return false
	}
	if len(c.AllowedDepartments) > 0 {
		found := false
		for _, dept := range c.AllowedDepartments {
			if dept == student.Department {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// EligibilityService recomputes the materialized eligible-student set for a
// job by evaluating the full student population.
type EligibilityService struct {
	users  eligibilityUserRepository
	jobs   eligibilityJobRepository
	logger *zap.Logger
}

// NewEligibilityService constructs the service.
func NewEligibilityService(users eligibilityUserRepository, jobs eligibilityJobRepository, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{users: users, jobs: jobs, logger: logger}
}

// Recompute replaces the eligible set in full. It never merges, so two runs
// against identical criteria yield the same set.
func (s *EligibilityService) Recompute(ctx context.Context, jobID string, criteria models.EligibilityCriteria) (int, error) {
	students, err := s.users.ListStudents(ctx)
	if err != nil {
		return 0, err
	}
	eligible := make([]string, 0, len(students))
	for i := range students {
		if IsEligible(&students[i], criteria) {
			eligible = append(eligible, students[i].ID)
		}
	}
	if err := s.jobs.ReplaceEligibleStudents(ctx, jobID, eligible); err != nil {
		return 0, err
	}
	s.logger.Info("eligible set recomputed",
		zap.String("job_id", jobID),
		zap.Int("eligible", len(eligible)),
		zap.Int("evaluated", len(students)))
	return len(eligible), nil
}
