package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusline/placement-api/internal/models"
	appErrors "github.com/campusline/placement-api/pkg/errors"
)

const jobCachePrefix = "jobs:list:"

type jobRepository interface {
	FindByID(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, filter models.JobFilter) ([]models.JobDetail, int, error)
	Create(ctx context.Context, job *models.Job) error
	Update(ctx context.Context, job *models.Job) error
	ListEligibleStudents(ctx context.Context, jobID string) ([]string, error)
}

type jobCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateJobRequest is the admin payload for a new posting.
type CreateJobRequest struct {
	Company     string                     `json:"company" validate:"required"`
	RoleTitle   string                     `json:"role_title" validate:"required"`
	Description string                     `json:"description"`
	CTC         string                     `json:"ctc"`
	Location    string                     `json:"location"`
	Eligibility models.EligibilityCriteria `json:"eligibility"`
}

// UpdateJobRequest carries partial updates to a posting.
type UpdateJobRequest struct {
	Company     *string                     `json:"company"`
	RoleTitle   *string                     `json:"role_title"`
	Description *string                     `json:"description"`
	CTC         *string                     `json:"ctc"`
	Location    *string                     `json:"location"`
	Eligibility *models.EligibilityCriteria `json:"eligibility"`
}

type cachedJobList struct {
	Jobs  []models.JobDetail `json:"jobs"`
	Total int                `json:"total"`
}

// JobService manages job postings and keeps the eligible-student snapshot
// in step with criteria changes.
type JobService struct {
	jobs        jobRepository
	cache       jobCache
	eligibility *EligibilityService
	metrics     *MetricsService
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewJobService constructs the service.
func NewJobService(jobs jobRepository, cache jobCache, eligibility *EligibilityService, metrics *MetricsService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *JobService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{
		jobs:        jobs,
		cache:       cache,
		eligibility: eligibility,
		metrics:     metrics,
		cacheTTL:    cacheTTL,
		validator:   validate,
		logger:      logger,
	}
}

// List returns jobs matching the filter, served from cache when possible.
func (s *JobService) List(ctx context.Context, filter models.JobFilter) ([]models.JobDetail, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	key := s.cacheKey(filter)
	if s.cache != nil {
		var cached cachedJobList
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached.Jobs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: cached.Total}, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	jobs, total, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list jobs")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedJobList{Jobs: jobs, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache job list", zap.Error(err))
		}
	}
	return jobs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single job posting.
func (s *JobService) Get(ctx context.Context, id string) (*models.Job, error) {
	return s.load(ctx, id)
}

// Create persists a posting (private by default) and computes its eligible
// student snapshot.
func (s *JobService) Create(ctx context.Context, creatorID string, req CreateJobRequest) (*models.Job, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid job payload")
	}

	job := &models.Job{
		Company:     req.Company,
		RoleTitle:   req.RoleTitle,
		Description: req.Description,
		CTC:         req.CTC,
		Location:    req.Location,
		Status:      models.JobStatusPrivate,
		Eligibility: req.Eligibility,
		CreatedBy:   creatorID,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create job")
	}

	if _, err := s.eligibility.Recompute(ctx, job.ID, job.Eligibility); err != nil {
		s.logger.Warn("failed to compute eligible students", zap.String("job_id", job.ID), zap.Error(err))
	}
	s.invalidateCache(ctx)
	s.logger.Info("job created", zap.String("job_id", job.ID), zap.String("company", job.Company))
	return job, nil
}

// Update applies partial changes. Changing the eligibility criteria triggers
// a recompute of the eligible-student snapshot.
func (s *JobService) Update(ctx context.Context, id string, req UpdateJobRequest) (*models.Job, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	prevCriteria := job.Eligibility
	if req.Company != nil {
		job.Company = *req.Company
	}
	if req.RoleTitle != nil {
		job.RoleTitle = *req.RoleTitle
	}
	if req.Description != nil {
		job.Description = *req.Description
	}
	if req.CTC != nil {
		job.CTC = *req.CTC
	}
	if req.Location != nil {
		job.Location = *req.Location
	}
	if req.Eligibility != nil {
		job.Eligibility = *req.Eligibility
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update job")
	}

	if !reflect.DeepEqual(prevCriteria, job.Eligibility) {
		if n, err := s.eligibility.Recompute(ctx, job.ID, job.Eligibility); err != nil {
			s.logger.Warn("failed to recompute eligible students", zap.String("job_id", job.ID), zap.Error(err))
		} else {
			s.logger.Info("eligible students recomputed", zap.String("job_id", job.ID), zap.Int("count", n))
		}
	}
	s.invalidateCache(ctx)
	return job, nil
}

// Publish flips a posting public, making it visible to eligible students.
func (s *JobService) Publish(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == models.JobStatusPublic {
		return job, nil
	}
	job.Status = models.JobStatusPublic
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish job")
	}
	s.invalidateCache(ctx)
	s.logger.Info("job published", zap.String("job_id", job.ID))
	return job, nil
}

// EligibleStudents returns the precomputed eligible-student ids of a job.
func (s *JobService) EligibleStudents(ctx context.Context, id string) ([]string, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	ids, err := s.jobs.ListEligibleStudents(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list eligible students")
	}
	return ids, nil
}

func (s *JobService) load(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}
	return job, nil
}

func (s *JobService) cacheKey(filter models.JobFilter) string {
	return fmt.Sprintf("%s%s:%s:%d:%d:%s:%s",
		jobCachePrefix, filter.Status, filter.Search, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

func (s *JobService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, jobCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate job cache", zap.Error(err))
	}
}
