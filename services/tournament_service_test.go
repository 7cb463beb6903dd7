package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saparbekov/pingpong-system/models"
)

func newTournamentServiceForTest(
	players *fakePlayerRepo,
	matches *fakeMatchRepo,
	tournaments *fakeTournamentRepo,
) (TournamentService, *fakeSettlement) {
	settlement := &fakeSettlement{}
	svc := NewTournamentService(stubDB(), tournaments, players, matches, settlement, &fakeNotifications{}, nil, testLogger())
	return svc, settlement
}

func TestCreateLeagueTournament(t *testing.T) {
	players := newFakePlayerRepo(
		&models.Player{ID: 1, Name: "Aruzhan", Rating: 1100},
		&models.Player{ID: 2, Name: "Daniyar", Rating: 1000},
		&models.Player{ID: 3, Name: "Miras", Rating: 950},
	)
	matches := newFakeMatchRepo()
	tournaments := newFakeTournamentRepo()
	svc, _ := newTournamentServiceForTest(players, matches, tournaments)

	created, err := svc.Create(context.Background(), CreateTournamentInput{
		Name:      "  Весенняя лига  ",
		Format:    models.FormatLeague,
		Rounds:    1,
		PlayerIDs: []int{1, 2, 3},
	})
	require.NoError(t, err)

	assert.Equal(t, "Весенняя лига", created.Name)
	assert.Equal(t, models.StatusDraft, created.Status)
	assert.Len(t, created.Participants, 3)
	// Single round robin for three players.
	assert.Len(t, created.Matches, 3)
	for _, m := range created.Matches {
		assert.Equal(t, created.ID, m.TournamentID)
		assert.Equal(t, models.StatusScheduled, m.Status)
	}
}

func TestCreateTournamentValidation(t *testing.T) {
	players := newFakePlayerRepo(
		&models.Player{ID: 1, Name: "Aruzhan"},
		&models.Player{ID: 2, Name: "Daniyar"},
		&models.Player{ID: 99, Name: "TBD"},
	)
	svc, _ := newTournamentServiceForTest(players, newFakeMatchRepo(), newFakeTournamentRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateTournamentInput{Name: "  ", Format: models.FormatLeague, PlayerIDs: []int{1, 2}})
	assert.ErrorIs(t, err, ErrTournamentNameEmpty)

	_, err = svc.Create(ctx, CreateTournamentInput{Name: "Лига", Format: "swiss", PlayerIDs: []int{1, 2}})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = svc.Create(ctx, CreateTournamentInput{Name: "Лига", Format: models.FormatLeague, PlayerIDs: []int{1}})
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	_, err = svc.Create(ctx, CreateTournamentInput{Name: "Лига", Format: models.FormatLeague, PlayerIDs: []int{1, 1}})
	assert.ErrorIs(t, err, ErrValidationFailed)

	// The TBD sentinel never plays.
	_, err = svc.Create(ctx, CreateTournamentInput{Name: "Лига", Format: models.FormatLeague, PlayerIDs: []int{1, 99}})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestUpdateStatusTransitionGuard(t *testing.T) {
	tournaments := newFakeTournamentRepo(&models.Tournament{
		ID: 1, Name: "Лига", Format: models.FormatLeague, Status: models.StatusDraft,
	})
	svc, settlement := newTournamentServiceForTest(newFakePlayerRepo(), newFakeMatchRepo(), tournaments)
	ctx := context.Background()

	// Draft cannot jump straight to completed.
	_, err := svc.UpdateStatus(ctx, 1, models.TournamentStatusComplete)
	assert.ErrorIs(t, err, ErrTournamentInvalidStatusTransition)

	_, err = svc.UpdateStatus(ctx, 1, "paused")
	assert.ErrorIs(t, err, ErrTournamentInvalidStatus)

	// No-op edit succeeds without touching anything.
	updated, err := svc.UpdateStatus(ctx, 1, models.StatusDraft)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, updated.Status)
	assert.Empty(t, settlement.settled)

	updated, err = svc.UpdateStatus(ctx, 1, models.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, updated.Status)

	// Canceled is terminal for an active tournament.
	_, err = svc.UpdateStatus(ctx, 1, models.StatusTournamentCanceled)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, 1, models.StatusActive)
	assert.ErrorIs(t, err, ErrTournamentInvalidStatusTransition)
}

func TestManualCompletionRequiresFinishedMatches(t *testing.T) {
	tournaments := newFakeTournamentRepo(&models.Tournament{
		ID: 1, Name: "Лига", Format: models.FormatLeague, Status: models.StatusActive,
	})
	matches := newFakeMatchRepo(
		leagueMatch(1, 2, 11, 5),
		&models.Match{TournamentID: 1, Player1ID: 3, Player2ID: 4, Status: models.StatusScheduled},
	)
	svc, settlement := newTournamentServiceForTest(newFakePlayerRepo(), matches, tournaments)
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, 1, models.TournamentStatusComplete)
	assert.ErrorIs(t, err, ErrTournamentNotFinished)
	assert.Empty(t, settlement.settled)
}

func TestManualCompletionSettlesOnce(t *testing.T) {
	tournaments := newFakeTournamentRepo(&models.Tournament{
		ID: 1, Name: "Лига", Format: models.FormatLeague, Status: models.StatusActive,
	})
	matches := newFakeMatchRepo(leagueMatch(1, 2, 11, 5))
	svc, settlement := newTournamentServiceForTest(newFakePlayerRepo(), matches, tournaments)
	ctx := context.Background()

	updated, err := svc.UpdateStatus(ctx, 1, models.TournamentStatusComplete)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusComplete, updated.Status)
	assert.Equal(t, []int{1}, settlement.settled)

	// A repeated completion attempt is rejected before settlement, as is any
	// other transition out of the completed state.
	_, err = svc.UpdateStatus(ctx, 1, models.TournamentStatusComplete)
	assert.ErrorIs(t, err, ErrTournamentAlreadyCompleted)
	_, err = svc.UpdateStatus(ctx, 1, models.StatusTournamentCanceled)
	assert.ErrorIs(t, err, ErrTournamentAlreadyCompleted)
	assert.Equal(t, []int{1}, settlement.settled)
}

func TestManualCompletionOfKnockoutNeedsFinal(t *testing.T) {
	tournaments := newFakeTournamentRepo(&models.Tournament{
		ID: 1, Name: "Кубок", Format: models.FormatKnockout, Status: models.StatusActive,
	})
	semi1 := completedKnockoutMatch(1, 1, 1, 1, 2, 11, 4)
	semi2 := completedKnockoutMatch(2, 1, 1, 3, 4, 11, 6)
	final := &models.Match{
		ID: 3, TournamentID: 1, Round: 2, Stage: models.StageKnockout,
		Player1ID: 1, Player2ID: 3, Status: models.StatusScheduled,
	}
	matches := newFakeMatchRepo(semi1, semi2, final)
	svc, settlement := newTournamentServiceForTest(newFakePlayerRepo(), matches, tournaments)
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, 1, models.TournamentStatusComplete)
	assert.ErrorIs(t, err, ErrTournamentNotFinished)

	final.Status = models.MatchStatusCompleted
	final.Player1Score, final.Player2Score = intPtr(2), intPtr(1)
	require.NoError(t, matches.UpdateResult(ctx, nil, final))

	_, err = svc.UpdateStatus(ctx, 1, models.TournamentStatusComplete)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, settlement.settled)
}

func TestUpdateOnlyInDraft(t *testing.T) {
	tournaments := newFakeTournamentRepo(
		&models.Tournament{ID: 1, Name: "Лига", Format: models.FormatLeague, Status: models.StatusDraft},
		&models.Tournament{ID: 2, Name: "Кубок", Format: models.FormatKnockout, Status: models.StatusActive},
	)
	svc, _ := newTournamentServiceForTest(newFakePlayerRepo(), newFakeMatchRepo(), tournaments)
	ctx := context.Background()

	name := "Осенняя лига"
	rounds := 2
	updated, err := svc.Update(ctx, 1, UpdateTournamentInput{Name: &name, Rounds: &rounds})
	require.NoError(t, err)
	assert.Equal(t, "Осенняя лига", updated.Name)
	assert.Equal(t, 2, updated.Rounds)

	_, err = svc.Update(ctx, 2, UpdateTournamentInput{Name: &name})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestAutoStartTournaments(t *testing.T) {
	due := &models.Tournament{
		ID: 1, Name: "Лига", Format: models.FormatLeague,
		Status: models.StatusDraft, StartDate: time.Now().Add(-time.Hour),
	}
	notDue := &models.Tournament{
		ID: 2, Name: "Кубок", Format: models.FormatKnockout,
		Status: models.StatusDraft, StartDate: time.Now().Add(time.Hour),
	}
	tournaments := newFakeTournamentRepo(due, notDue)
	svc, _ := newTournamentServiceForTest(newFakePlayerRepo(), newFakeMatchRepo(), tournaments)

	require.NoError(t, svc.AutoStartTournaments(context.Background()))

	started, err := tournaments.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, started.Status)

	waiting, err := tournaments.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, waiting.Status)
}
