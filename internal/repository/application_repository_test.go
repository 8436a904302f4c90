package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusline/placement-api/internal/models"
)

func newApplicationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func applicationRows(t *testing.T, app *models.Application) *sqlmock.Rows {
	t.Helper()
	progress, err := json.Marshal(app.RoundProgress)
	require.NoError(t, err)
	return sqlmock.NewRows([]string{"id", "student_id", "job_id", "current_round_id", "current_round_seq",
		"final_status", "notes", "round_progress", "version", "created_at", "updated_at"}).
		AddRow(app.ID, app.StudentID, app.JobID, app.CurrentRound, app.CurrentSeq,
			app.FinalStatus, app.Notes, progress, app.Version, time.Now(), time.Now())
}

func TestApplicationRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	roundID := "r1"
	seq := 1
	stored := &models.Application{
		ID: "a1", StudentID: "s1", JobID: "j1",
		CurrentRound: &roundID, CurrentSeq: &seq,
		FinalStatus: models.FinalInProcess,
		RoundProgress: models.RoundProgressList{
			{RoundID: "r1", Result: models.ResultPending},
		},
		Version: 3,
	}
	mock.ExpectQuery("SELECT id, student_id, job_id").
		WithArgs("a1").
		WillReturnRows(applicationRows(t, stored))

	app, err := repo.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", app.ID)
	assert.Equal(t, 3, app.Version)
	require.NotNil(t, app.CurrentRound)
	assert.Equal(t, "r1", *app.CurrentRound)
	require.Len(t, app.RoundProgress, 1)
	assert.Equal(t, models.ResultPending, app.RoundProgress[0].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositorySaveBumpsVersion(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	app := &models.Application{
		ID:          "a1",
		FinalStatus: models.FinalInProcess,
		RoundProgress: models.RoundProgressList{
			{RoundID: "r1", Attendance: true, Result: models.ResultSelected},
		},
		Version: 2,
	}
	mock.ExpectExec("UPDATE applications SET current_round_id").
		WithArgs("a1", nil, nil, models.FinalInProcess, "", sqlmock.AnyArg(), 3, sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), app))
	assert.Equal(t, 3, app.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositorySaveVersionConflict(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	app := &models.Application{ID: "a1", FinalStatus: models.FinalInProcess, Version: 2}
	mock.ExpectExec("UPDATE applications SET current_round_id").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Save(context.Background(), app)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 2, app.Version, "version rolled back so the caller can retry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryListInProcessByRound(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	stored := &models.Application{
		ID: "a1", StudentID: "s1", JobID: "j1",
		FinalStatus: models.FinalInProcess,
		RoundProgress: models.RoundProgressList{
			{RoundID: "r1", Result: models.ResultPending},
		},
		Version: 1,
	}
	needle, err := json.Marshal([]map[string]string{{"round_id": "r1"}})
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta("round_progress @> $2")).
		WithArgs(models.FinalInProcess, needle).
		WillReturnRows(applicationRows(t, stored))

	apps, err := repo.ListInProcessByRound(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "a1", apps[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryListAllByJobIsUnpaginated(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "job_id", "current_round_id", "current_round_seq",
		"final_status", "notes", "round_progress", "version", "created_at", "updated_at",
		"student_name", "student_email", "student_roll", "company", "role_title", "round_name"})
	for i := 0; i < 150; i++ {
		rows.AddRow(fmt.Sprintf("a%d", i), fmt.Sprintf("s%d", i), "j1", nil, nil,
			models.FinalInProcess, "", []byte("[]"), 1, time.Now(), time.Now(),
			"Student", "student@campus.edu", fmt.Sprintf("CS%03d", i), "Acme", "SDE", nil)
	}
	// The trailing anchor requires the query to end at the ORDER BY,
	// with no LIMIT or OFFSET.
	mock.ExpectQuery(`WHERE a\.job_id = \$1 ORDER BY u\.roll_no ASC$`).
		WithArgs("j1").
		WillReturnRows(rows)

	apps, err := repo.ListAllByJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Len(t, apps, 150)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryCreateForcesVersionOne(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec("INSERT INTO applications").
		WillReturnResult(sqlmock.NewResult(1, 1))

	app := &models.Application{StudentID: "s1", JobID: "j1", Version: 9}
	require.NoError(t, repo.Create(context.Background(), app))
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, 1, app.Version)
	assert.Equal(t, models.FinalInProcess, app.FinalStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
