package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusline/placement-api/internal/models"
)

func newRoundRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func roundRows(scheduledAt *time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "job_id", "sequence", "round_name", "type", "mode", "scheduled_at",
		"venue", "instructions", "is_attendance_mandatory", "auto_advance_on_attendance", "status", "processed_at",
		"session_status", "session_refresh_seconds", "session_code_hash", "session_code_expires_at",
		"session_secret", "session_offline_hash", "session_offline_used_at", "session_started_at",
		"created_at", "updated_at"}).
		AddRow("r1", "j1", 1, "Aptitude Test", "assessment", "on_campus", scheduledAt,
			"Auditorium", "", true, false, models.RoundStatusScheduled, nil,
			models.SessionInactive, 0, nil, nil, nil, nil, nil, nil,
			time.Now(), time.Now())
}

func TestRoundRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRoundRepoMock(t)
	defer cleanup()
	repo := NewRoundRepository(db)

	scheduled := time.Now().UTC()
	mock.ExpectQuery("SELECT id, job_id, sequence").
		WithArgs("r1").
		WillReturnRows(roundRows(&scheduled))

	round, err := repo.FindByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", round.ID)
	assert.Equal(t, 1, round.Sequence)
	assert.True(t, round.AttendanceMandatory)
	assert.Equal(t, models.SessionInactive, round.AttendanceSession.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepositoryListDue(t *testing.T) {
	db, mock, cleanup := newRoundRepoMock(t)
	defer cleanup()
	repo := NewRoundRepository(db)

	now := time.Now().UTC()
	scheduled := now.Add(-time.Hour)
	mock.ExpectQuery("is_attendance_mandatory = TRUE AND scheduled_at IS NOT NULL").
		WithArgs(now, models.RoundStatusScheduled, models.RoundStatusInProgress).
		WillReturnRows(roundRows(&scheduled))

	rounds, err := repo.ListDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, "r1", rounds[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepositoryAppendAttendanceIdempotent(t *testing.T) {
	db, mock, cleanup := newRoundRepoMock(t)
	defer cleanup()
	repo := NewRoundRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO round_attendance")).
		WithArgs("r1", "s1", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Second insert conflicts silently.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO round_attendance")).
		WithArgs("r1", "s1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.AppendAttendance(context.Background(), "r1", "s1", at))
	require.NoError(t, repo.AppendAttendance(context.Background(), "r1", "s1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepositoryMarkProcessed(t *testing.T) {
	db, mock, cleanup := newRoundRepoMock(t)
	defer cleanup()
	repo := NewRoundRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE rounds SET processed_at").
		WithArgs("r1", at, models.RoundStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkProcessed(context.Background(), "r1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepositoryArchive(t *testing.T) {
	db, mock, cleanup := newRoundRepoMock(t)
	defer cleanup()
	repo := NewRoundRepository(db)

	mock.ExpectExec("UPDATE rounds SET status").
		WithArgs("r1", models.RoundStatusArchived).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Archive(context.Background(), "r1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
