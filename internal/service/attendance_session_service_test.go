package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusline/placement-api/internal/models"
	"github.com/campusline/placement-api/internal/repository"
	appErrors "github.com/campusline/placement-api/pkg/errors"
)

type mockSessionRounds struct {
	round       *models.Round
	updates     int
	attendance  map[string]string
	findErr     error
	updateErr   error
	appendCalls int
}

func (m *mockSessionRounds) FindByID(ctx context.Context, id string) (*models.Round, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	copied := *m.round
	return &copied, nil
}

func (m *mockSessionRounds) UpdateSession(ctx context.Context, round *models.Round) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates++
	copied := *round
	m.round = &copied
	return nil
}

func (m *mockSessionRounds) AppendAttendance(ctx context.Context, roundID, studentID string, at time.Time) error {
	if m.attendance == nil {
		m.attendance = make(map[string]string)
	}
	m.attendance[studentID] = roundID
	m.appendCalls++
	return nil
}

func (m *mockSessionRounds) ListAttendance(ctx context.Context, roundID string) ([]string, error) {
	var ids []string
	for studentID, rID := range m.attendance {
		if rID == roundID {
			ids = append(ids, studentID)
		}
	}
	return ids, nil
}

type mockSessionApps struct {
	app          *models.Application
	findErr      error
	saveErr      error
	conflictOnce bool
	saves        int
}

func (m *mockSessionApps) FindByStudentAndJob(ctx context.Context, studentID, jobID string) (*models.Application, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	copied := *m.app
	copied.RoundProgress = append(models.RoundProgressList{}, m.app.RoundProgress...)
	return &copied, nil
}

func (m *mockSessionApps) Save(ctx context.Context, app *models.Application) error {
	if m.conflictOnce {
		m.conflictOnce = false
		return repository.ErrVersionConflict
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	copied := *app
	m.app = &copied
	return nil
}

type mockSessionUsers struct {
	pulled [][3]string
}

func (m *mockSessionUsers) PullRejection(ctx context.Context, userID, applicationID, roundID string) error {
	m.pulled = append(m.pulled, [3]string{userID, applicationID, roundID})
	return nil
}

func activeSessionRound(t *testing.T, code string, expiresAt time.Time) *models.Round {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	require.NoError(t, err)
	hashStr := string(hash)
	secret := "secret"
	return &models.Round{
		ID:    "r1",
		JobID: "j1",
		AttendanceSession: models.AttendanceSession{
			Status:         models.SessionActive,
			RefreshSeconds: 30,
			CodeHash:       &hashStr,
			CodeExpiresAt:  &expiresAt,
			Secret:         &secret,
		},
	}
}

func sessionServiceForTest(rounds *mockSessionRounds, apps *mockSessionApps, users *mockSessionUsers, now time.Time) *AttendanceSessionService {
	svc := NewAttendanceSessionService(rounds, apps, users, nil, zap.NewNop(), nil, 6, bcrypt.MinCost)
	svc.now = func() time.Time { return now }
	return svc
}

func TestStartSessionRejectsUnsupportedInterval(t *testing.T) {
	rounds := &mockSessionRounds{round: &models.Round{ID: "r1", JobID: "j1"}}
	svc := sessionServiceForTest(rounds, &mockSessionApps{}, &mockSessionUsers{}, time.Now().UTC())

	_, err := svc.Start(context.Background(), "r1", StartSessionRequest{RefreshIntervalSeconds: 42})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStartSessionIssuesCodes(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rounds := &mockSessionRounds{round: &models.Round{ID: "r1", JobID: "j1"}}
	svc := sessionServiceForTest(rounds, &mockSessionApps{}, &mockSessionUsers{}, now)

	resp, err := svc.Start(context.Background(), "r1", StartSessionRequest{RefreshIntervalSeconds: 45, EnableOfflineCode: true})
	require.NoError(t, err)

	assert.Equal(t, string(models.SessionActive), resp.Status)
	assert.Len(t, resp.CurrentCode, 6)
	assert.NotEmpty(t, resp.OfflineCode)
	assert.Equal(t, now.Add(45*time.Second), resp.ExpiresAt)

	// Only hashes are persisted.
	session := rounds.round.AttendanceSession
	require.NotNil(t, session.CodeHash)
	assert.NotEqual(t, resp.CurrentCode, *session.CodeHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*session.CodeHash), []byte(resp.CurrentCode)))
	require.NotNil(t, session.OfflineCodeHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*session.OfflineCodeHash), []byte(resp.OfflineCode)))
}

func TestStartSessionAlreadyActive(t *testing.T) {
	now := time.Now().UTC()
	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(time.Minute))}
	svc := sessionServiceForTest(rounds, &mockSessionApps{}, &mockSessionUsers{}, now)

	_, err := svc.Start(context.Background(), "r1", StartSessionRequest{RefreshIntervalSeconds: 30})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionActive.Code, appErrors.FromError(err).Code)
}

func TestStatusRotatesExpiredCode(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(-time.Second))}
	svc := sessionServiceForTest(rounds, &mockSessionApps{}, &mockSessionUsers{}, now)

	resp, err := svc.Status(context.Background(), "r1", true)
	require.NoError(t, err)

	assert.Equal(t, string(models.SessionActive), resp.Status)
	assert.NotEmpty(t, resp.CurrentCode, "admin sees the freshly rotated code")
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, now.Add(30*time.Second), *resp.ExpiresAt)
	assert.Equal(t, 1, rounds.updates)

	// Old code no longer validates against the stored hash.
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(*rounds.round.AttendanceSession.CodeHash), []byte("ABCDEF")))
}

func TestStatusDoesNotRotateFreshCode(t *testing.T) {
	now := time.Now().UTC()
	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(20*time.Second))}
	svc := sessionServiceForTest(rounds, &mockSessionApps{}, &mockSessionUsers{}, now)

	resp, err := svc.Status(context.Background(), "r1", true)
	require.NoError(t, err)
	assert.Empty(t, resp.CurrentCode)
	assert.Equal(t, 0, rounds.updates)
}

func TestStatusStudentNeverSeesCode(t *testing.T) {
	now := time.Now().UTC()
	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(-time.Second))}
	svc := sessionServiceForTest(rounds, &mockSessionApps{}, &mockSessionUsers{}, now)

	resp, err := svc.Status(context.Background(), "r1", false)
	require.NoError(t, err)
	assert.Empty(t, resp.CurrentCode)
	assert.Equal(t, 1, rounds.updates, "rotation still happens")
}

func TestStatusInactiveSession(t *testing.T) {
	rounds := &mockSessionRounds{round: &models.Round{ID: "r1", AttendanceSession: models.AttendanceSession{Status: models.SessionInactive}}}
	svc := sessionServiceForTest(rounds, &mockSessionApps{}, &mockSessionUsers{}, time.Now().UTC())

	resp, err := svc.Status(context.Background(), "r1", true)
	require.NoError(t, err)
	assert.Equal(t, string(models.SessionInactive), resp.Status)
}

func TestStatusResponseAlwaysCarriesOfflineCodeUsedAt(t *testing.T) {
	now := time.Now().UTC()
	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(20*time.Second))}
	svc := sessionServiceForTest(rounds, &mockSessionApps{}, &mockSessionUsers{}, now)

	resp, err := svc.Status(context.Background(), "r1", true)
	require.NoError(t, err)
	require.Nil(t, resp.OfflineCodeUsedAt)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &fields))
	assert.Contains(t, fields, "offlineCodeUsedAt", "key must be present even before the offline code is redeemed")
}

func pendingApplication() *models.Application {
	roundID := "r1"
	seq := 2
	return &models.Application{
		ID:           "a1",
		StudentID:    "s1",
		JobID:        "j1",
		CurrentRound: &roundID,
		CurrentSeq:   &seq,
		FinalStatus:  models.FinalInProcess,
		RoundProgress: models.RoundProgressList{
			{RoundID: "r0", Attendance: true, Result: models.ResultSelected},
			{RoundID: "r1", Result: models.ResultPending},
		},
		Version: 1,
	}
}

func TestSubmitValidCode(t *testing.T) {
	now := time.Now().UTC()
	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(time.Minute))}
	apps := &mockSessionApps{app: pendingApplication()}
	users := &mockSessionUsers{}
	svc := sessionServiceForTest(rounds, apps, users, now)

	result, err := svc.Submit(context.Background(), "r1", "s1", CheckinRequest{Code: "ABCDEF"})
	require.NoError(t, err)
	assert.Equal(t, string(models.MethodQRCode), result.Method)

	entry := apps.app.RoundProgress.Find("r1")
	require.NotNil(t, entry)
	assert.True(t, entry.Attendance)
	assert.Equal(t, models.MethodQRCode, entry.AttendanceMethod)
	assert.Equal(t, models.ResultSelected, entry.Result, "pending entry promoted on check-in")
	assert.Equal(t, "r1", rounds.attendance["s1"])
	assert.Len(t, users.pulled, 1)
}

func TestAttendeesListsCheckedInStudents(t *testing.T) {
	now := time.Now().UTC()
	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(time.Minute))}
	svc := sessionServiceForTest(rounds, &mockSessionApps{app: pendingApplication()}, &mockSessionUsers{}, now)

	_, err := svc.Submit(context.Background(), "r1", "s1", CheckinRequest{Code: "ABCDEF"})
	require.NoError(t, err)

	ids, err := svc.Attendees(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestSubmitExpiredCode(t *testing.T) {
	now := time.Now().UTC()
	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(-time.Second))}
	svc := sessionServiceForTest(rounds, &mockSessionApps{app: pendingApplication()}, &mockSessionUsers{}, now)

	_, err := svc.Submit(context.Background(), "r1", "s1", CheckinRequest{Code: "ABCDEF"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCodeExpired.Code, appErr.Code)
	assert.Equal(t, 410, appErr.Status)
}

func TestSubmitWrongCode(t *testing.T) {
	now := time.Now().UTC()
	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(time.Minute))}
	svc := sessionServiceForTest(rounds, &mockSessionApps{app: pendingApplication()}, &mockSessionUsers{}, now)

	_, err := svc.Submit(context.Background(), "r1", "s1", CheckinRequest{Code: "WRONGX"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCode.Code, appErrors.FromError(err).Code)
}

func TestSubmitOfflineCodeSingleUse(t *testing.T) {
	now := time.Now().UTC()
	round := activeSessionRound(t, "ABCDEF", now.Add(-time.Minute))
	offlineHash, err := bcrypt.GenerateFromPassword([]byte("ZZYYXX"), bcrypt.MinCost)
	require.NoError(t, err)
	offlineStr := string(offlineHash)
	round.AttendanceSession.OfflineCodeHash = &offlineStr

	rounds := &mockSessionRounds{round: round}
	apps := &mockSessionApps{app: pendingApplication()}
	svc := sessionServiceForTest(rounds, apps, &mockSessionUsers{}, now)

	result, err := svc.Submit(context.Background(), "r1", "s1", CheckinRequest{Code: "ZZYYXX"})
	require.NoError(t, err)
	assert.Equal(t, string(models.MethodOfflineCode), result.Method)
	assert.Nil(t, rounds.round.AttendanceSession.OfflineCodeHash)
	assert.NotNil(t, rounds.round.AttendanceSession.OfflineCodeUsedAt)

	// A second submission of the same code is refused.
	apps2 := &mockSessionApps{app: pendingApplication()}
	apps2.app.StudentID = "s2"
	svc2 := sessionServiceForTest(rounds, apps2, &mockSessionUsers{}, now)
	_, err = svc2.Submit(context.Background(), "r1", "s2", CheckinRequest{Code: "ZZYYXX"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCodeExpired.Code, appErrors.FromError(err).Code)
}

func TestSubmitAttendanceAlreadyRecorded(t *testing.T) {
	now := time.Now().UTC()
	app := pendingApplication()
	app.RoundProgress.Find("r1").Attendance = true

	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(time.Minute))}
	svc := sessionServiceForTest(rounds, &mockSessionApps{app: app}, &mockSessionUsers{}, now)

	_, err := svc.Submit(context.Background(), "r1", "s1", CheckinRequest{Code: "ABCDEF"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAttendanceRecorded.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
}

func TestSubmitRoundNotOnLedger(t *testing.T) {
	now := time.Now().UTC()
	app := pendingApplication()
	app.RoundProgress = models.RoundProgressList{{RoundID: "r0", Result: models.ResultSelected}}

	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(time.Minute))}
	svc := sessionServiceForTest(rounds, &mockSessionApps{app: app}, &mockSessionUsers{}, now)

	_, err := svc.Submit(context.Background(), "r1", "s1", CheckinRequest{Code: "ABCDEF"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestSubmitRetriesOnVersionConflict(t *testing.T) {
	now := time.Now().UTC()
	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(time.Minute))}
	apps := &mockSessionApps{app: pendingApplication(), conflictOnce: true}
	svc := sessionServiceForTest(rounds, apps, &mockSessionUsers{}, now)

	_, err := svc.Submit(context.Background(), "r1", "s1", CheckinRequest{Code: "ABCDEF"})
	require.NoError(t, err)
	assert.Equal(t, 1, apps.saves)
}

func TestSubmitInactiveSession(t *testing.T) {
	rounds := &mockSessionRounds{round: &models.Round{ID: "r1", JobID: "j1"}}
	svc := sessionServiceForTest(rounds, &mockSessionApps{app: pendingApplication()}, &mockSessionUsers{}, time.Now().UTC())

	_, err := svc.Submit(context.Background(), "r1", "s1", CheckinRequest{Code: "ABCDEF"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionInactive.Code, appErrors.FromError(err).Code)
}

func TestStopSessionResetsState(t *testing.T) {
	now := time.Now().UTC()
	rounds := &mockSessionRounds{round: activeSessionRound(t, "ABCDEF", now.Add(time.Minute))}
	svc := sessionServiceForTest(rounds, &mockSessionApps{}, &mockSessionUsers{}, now)

	require.NoError(t, svc.Stop(context.Background(), "r1"))

	session := rounds.round.AttendanceSession
	assert.Equal(t, models.SessionInactive, session.Status)
	assert.Nil(t, session.CodeHash)
	assert.Nil(t, session.Secret)
	assert.Nil(t, session.OfflineCodeHash)

	err := svc.Stop(context.Background(), "r1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionInactive.Code, appErrors.FromError(err).Code)
}
