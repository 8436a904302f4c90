package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campusline/placement-api/internal/models"
	appErrors "github.com/campusline/placement-api/pkg/errors"
	"github.com/campusline/placement-api/pkg/export"
)

type exportApplicationRepository interface {
	ListAllByJob(ctx context.Context, jobID string) ([]models.ApplicationDetail, error)
}

type exportJobRepository interface {
	FindByID(ctx context.Context, id string) (*models.Job, error)
}

// ExportService renders a job's application outcomes as CSV or PDF.
type ExportService struct {
	apps   exportApplicationRepository
	jobs   exportJobRepository
	logger *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(apps exportApplicationRepository, jobs exportJobRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		apps:   apps,
		jobs:   jobs,
		logger: logger,
	}
}

// ExportOutcomes renders every application of the job in the requested
// format ("csv" or "pdf") and returns the payload with its content type.
func (s *ExportService) ExportOutcomes(ctx context.Context, jobID, format string) ([]byte, string, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "job not found")
	}

	apps, err := s.apps.ListAllByJob(ctx, jobID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}

	table := export.Table{
		Title: fmt.Sprintf("%s - %s placement outcomes", job.Company, job.RoleTitle),
		Columns: []export.Column{
			{Name: "Roll No", Weight: 1},
			{Name: "Name", Weight: 2},
			{Name: "Email", Weight: 2.5},
			{Name: "Status", Weight: 1},
			{Name: "Current Round", Weight: 1.5},
			{Name: "Rounds Cleared", Weight: 1},
		},
	}
	for i := range apps {
		app := &apps[i]
		currentRound := ""
		if app.RoundName != nil {
			currentRound = *app.RoundName
		}
		cleared := 0
		for _, entry := range app.RoundProgress {
			if entry.Result == models.ResultSelected {
				cleared++
			}
		}
		table.Rows = append(table.Rows, []string{
			app.StudentRoll,
			app.StudentName,
			app.StudentEmail,
			string(app.FinalStatus),
			currentRound,
			fmt.Sprintf("%d", cleared),
		})
	}

	switch strings.ToLower(format) {
	case "", "csv":
		payload, err := export.WriteCSV(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := export.WritePDF(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
