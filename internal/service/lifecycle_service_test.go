package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusline/placement-api/internal/models"
)

type mockLifecycleRounds struct {
	due       []models.Round
	listErr   error
	processed []string
}

func (m *mockLifecycleRounds) ListDue(ctx context.Context, now time.Time) ([]models.Round, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.due, nil
}

func (m *mockLifecycleRounds) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	m.processed = append(m.processed, id)
	return nil
}

type mockLifecycleApps struct {
	byRound map[string][]models.Application
	listErr map[string]error
}

func (m *mockLifecycleApps) ListInProcessByRound(ctx context.Context, roundID string) ([]models.Application, error) {
	if err := m.listErr[roundID]; err != nil {
		return nil, err
	}
	return m.byRound[roundID], nil
}

func lifecycleFixture(t *testing.T, rounds *mockLifecycleRounds, apps *mockLifecycleApps) (*LifecycleService, *mockEngineApps, *mockEngineUsers) {
	t.Helper()
	engineApps := newMockEngineApps()
	engineRounds := newMockEngineRounds()
	for i := range rounds.due {
		round := rounds.due[i]
		engineRounds.byID[round.ID] = &round
	}
	users := &mockEngineUsers{}
	jobs := &mockEngineJobs{jobs: map[string]*models.Job{}}
	progression := NewProgressionService(engineApps, engineRounds, jobs, users, nil, zap.NewNop())
	svc := NewLifecycleService(rounds, apps, progression, nil, time.Minute, zap.NewNop())
	return svc, engineApps, users
}

func dueRound(id string, autoAdvance bool) models.Round {
	return models.Round{
		ID:                  id,
		JobID:               "j1",
		Sequence:            1,
		AttendanceMandatory: true,
		AutoAdvance:         autoAdvance,
		Status:              models.RoundStatusScheduled,
	}
}

func TestSweepRejectsAbsentees(t *testing.T) {
	rounds := &mockLifecycleRounds{due: []models.Round{dueRound("r1", false)}}
	absentee := inProcessApplication("a1", "s1", "r1", 1)
	apps := &mockLifecycleApps{byRound: map[string][]models.Application{"r1": {*absentee}}}

	svc, engineApps, users := lifecycleFixture(t, rounds, apps)
	engineApps.byID["a1"] = absentee

	svc.Sweep(context.Background())

	swept, err := engineApps.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.FinalRejected, swept.FinalStatus)
	assert.Nil(t, swept.CurrentRound)
	entry := swept.RoundProgress.Find("r1")
	require.NotNil(t, entry)
	assert.Equal(t, models.ResultRejected, entry.Result)

	require.Len(t, users.pushed, 1)
	assert.Equal(t, "Absent from round", users.pushed[0].Reason)
	assert.Equal(t, []string{"r1"}, rounds.processed)
}

func TestSweepPromotesAttendedPendingOnAutoAdvance(t *testing.T) {
	rounds := &mockLifecycleRounds{due: []models.Round{dueRound("r1", true)}}
	attendee := inProcessApplication("a1", "s1", "r1", 1)
	attendee.RoundProgress.Find("r1").Attendance = true
	apps := &mockLifecycleApps{byRound: map[string][]models.Application{"r1": {*attendee}}}

	svc, engineApps, users := lifecycleFixture(t, rounds, apps)
	engineApps.byID["a1"] = attendee

	svc.Sweep(context.Background())

	swept, err := engineApps.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	entry := swept.RoundProgress.Find("r1")
	require.NotNil(t, entry)
	assert.Equal(t, models.ResultSelected, entry.Result)
	assert.Equal(t, models.FinalInProcess, swept.FinalStatus)
	assert.Empty(t, users.pushed)
	assert.Equal(t, []string{"r1"}, rounds.processed)
}

func TestSweepLeavesAttendeesAloneWithoutAutoAdvance(t *testing.T) {
	rounds := &mockLifecycleRounds{due: []models.Round{dueRound("r1", false)}}
	attendee := inProcessApplication("a1", "s1", "r1", 1)
	attendee.RoundProgress.Find("r1").Attendance = true
	apps := &mockLifecycleApps{byRound: map[string][]models.Application{"r1": {*attendee}}}

	svc, engineApps, _ := lifecycleFixture(t, rounds, apps)
	engineApps.byID["a1"] = attendee

	svc.Sweep(context.Background())

	swept, err := engineApps.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.ResultPending, swept.RoundProgress.Find("r1").Result)
	assert.Equal(t, []string{"r1"}, rounds.processed, "round is still marked processed")
}

func TestSweepIsolatesFailingRounds(t *testing.T) {
	rounds := &mockLifecycleRounds{due: []models.Round{dueRound("bad", false), dueRound("r1", false)}}
	absentee := inProcessApplication("a1", "s1", "r1", 1)
	apps := &mockLifecycleApps{
		byRound: map[string][]models.Application{"r1": {*absentee}},
		listErr: map[string]error{"bad": errors.New("boom")},
	}

	svc, engineApps, _ := lifecycleFixture(t, rounds, apps)
	engineApps.byID["a1"] = absentee

	svc.Sweep(context.Background())

	// The failing round is skipped and left unprocessed; the healthy one
	// still completes.
	assert.Equal(t, []string{"r1"}, rounds.processed)
	swept, err := engineApps.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.FinalRejected, swept.FinalStatus)
}

func TestSweepLeavesRoundDueWhenRejectionFails(t *testing.T) {
	rounds := &mockLifecycleRounds{due: []models.Round{dueRound("r1", false)}}
	absentee := inProcessApplication("a1", "s1", "r1", 1)
	apps := &mockLifecycleApps{byRound: map[string][]models.Application{"r1": {*absentee}}}

	svc, engineApps, _ := lifecycleFixture(t, rounds, apps)
	engineApps.byID["a1"] = absentee
	engineApps.saveErr = errors.New("storage unavailable")

	svc.Sweep(context.Background())

	// The failed rejection must not be dropped: the round stays in the
	// due set and the application keeps its state for the next tick.
	assert.Empty(t, rounds.processed)
	stuck, err := engineApps.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.FinalInProcess, stuck.FinalStatus)

	// Once storage recovers, the next sweep settles the round.
	engineApps.saveErr = nil
	svc.Sweep(context.Background())

	assert.Equal(t, []string{"r1"}, rounds.processed)
	swept, err := engineApps.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.FinalRejected, swept.FinalStatus)
}

func TestSweepRetriesRejectionOnVersionConflict(t *testing.T) {
	rounds := &mockLifecycleRounds{due: []models.Round{dueRound("r1", false)}}
	absentee := inProcessApplication("a1", "s1", "r1", 1)
	apps := &mockLifecycleApps{byRound: map[string][]models.Application{"r1": {*absentee}}}

	svc, engineApps, _ := lifecycleFixture(t, rounds, apps)
	engineApps.byID["a1"] = absentee
	engineApps.conflicts = 1

	svc.Sweep(context.Background())

	// A single lost version race is absorbed within the sweep.
	assert.Equal(t, []string{"r1"}, rounds.processed)
	swept, err := engineApps.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.FinalRejected, swept.FinalStatus)
}

func TestStartStopIdempotent(t *testing.T) {
	rounds := &mockLifecycleRounds{}
	apps := &mockLifecycleApps{}
	svc, _, _ := lifecycleFixture(t, rounds, apps)

	svc.Start()
	svc.Start()
	svc.Stop()
	svc.Stop()

	// Restart after stop works.
	svc.Start()
	svc.Stop()
}
