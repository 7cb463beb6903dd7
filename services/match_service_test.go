package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saparbekov/pingpong-system/models"
	"github.com/saparbekov/pingpong-system/repositories"
)

type fakeProgress struct {
	advanced []int
}

func (f *fakeProgress) AdvanceAfterMatch(_ context.Context, m *models.Match) error {
	f.advanced = append(f.advanced, m.ID)
	return nil
}

func newMatchServiceForTest(players *fakePlayerRepo, matches *fakeMatchRepo, tournaments *fakeTournamentRepo) (MatchService, *fakeProgress, *fakeNotifications) {
	progress := &fakeProgress{}
	notifications := &fakeNotifications{}
	svc := NewMatchService(stubDB(), matches, players, tournaments, progress, notifications, nil, testLogger())
	return svc, progress, notifications
}

func TestSubmitScoreBestOfThreeCompletesAtTwoWins(t *testing.T) {
	players := newFakePlayerRepo(
		&models.Player{ID: 1, Name: "Aruzhan", Rating: 1000, Level: 3},
		&models.Player{ID: 2, Name: "Daniyar", Rating: 1000, Level: 3},
	)
	matches := newFakeMatchRepo(&models.Match{
		ID: 10, Player1ID: 1, Player2ID: 2, BestOfThree: true,
		Status: models.StatusScheduled, CurrentGame: 1,
	})
	svc, _, _ := newMatchServiceForTest(players, matches, newFakeTournamentRepo())

	// Game 1: 11-5, not yet decided overall.
	m, err := svc.SubmitScore(context.Background(), 10, ScoreInput{
		Player1Score: intPtr(11), Player2Score: intPtr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, m.Status)
	assert.Equal(t, 1, m.Player1Wins)
	assert.Equal(t, 2, m.CurrentGame)

	p1, _ := players.GetByID(context.Background(), 1)
	assert.Equal(t, 1000, p1.Rating) // ratings move only on completion

	// Game 2: 11-9 seals the match without a third game.
	m, err = svc.SubmitScore(context.Background(), 10, ScoreInput{
		Player1Score: intPtr(11), Player2Score: intPtr(9),
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, m.Status)
	assert.Equal(t, 2, m.Player1Wins)
	assert.Equal(t, 0, m.Player2Wins)
	assert.Equal(t, 2, m.CurrentGame)
	assert.Equal(t, 2, derefInt(m.Player1Score))
	assert.Equal(t, 0, derefInt(m.Player2Score))

	// Two decided games at K=16 between equals: 8 + 8, plus the level-3
	// upset bonus of 5 for the winner only.
	p1, _ = players.GetByID(context.Background(), 1)
	p2, _ := players.GetByID(context.Background(), 2)
	assert.Equal(t, 1000+16+5, p1.Rating)
	assert.Equal(t, 1000-16, p2.Rating)
	assert.Equal(t, 1, p1.Wins)
	assert.Equal(t, 1, p2.Losses)
}

func TestSubmitScoreRejectsShortGame(t *testing.T) {
	players := newFakePlayerRepo(
		&models.Player{ID: 1, Name: "Aruzhan", Rating: 1000},
		&models.Player{ID: 2, Name: "Daniyar", Rating: 1000},
	)
	matches := newFakeMatchRepo(&models.Match{
		ID: 10, Player1ID: 1, Player2ID: 2, BestOfThree: true,
		Status: models.StatusScheduled, CurrentGame: 1,
	})
	svc, _, _ := newMatchServiceForTest(players, matches, newFakeTournamentRepo())

	_, err := svc.SubmitScore(context.Background(), 10, ScoreInput{
		Player1Score: intPtr(10), Player2Score: intPtr(8),
	})
	require.ErrorIs(t, err, ErrInvalidGameScore)

	// No partial mutation.
	stored, _ := matches.GetByID(context.Background(), 10)
	assert.Equal(t, models.StatusScheduled, stored.Status)
	assert.Equal(t, 0, stored.Player1Wins)
	p1, _ := players.GetByID(context.Background(), 1)
	assert.Equal(t, 1000, p1.Rating)
}

func TestSubmitScoreSingleGameCasual(t *testing.T) {
	players := newFakePlayerRepo(
		&models.Player{ID: 1, Name: "Aruzhan", Rating: 1000, Level: 2},
		&models.Player{ID: 2, Name: "Daniyar", Rating: 1000, Level: 2},
	)
	matches := newFakeMatchRepo(&models.Match{
		ID: 7, Player1ID: 1, Player2ID: 2,
		Status: models.StatusScheduled, CurrentGame: 1,
	})
	svc, progress, _ := newMatchServiceForTest(players, matches, newFakeTournamentRepo())

	m, err := svc.SubmitScore(context.Background(), 7, ScoreInput{
		Player1Score: intPtr(11), Player2Score: intPtr(7),
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, m.Status)

	// Casual K=32 between equals gives 16, loser level 2 adds 3 for the
	// winner. Casual matches never touch the bracket.
	p1, _ := players.GetByID(context.Background(), 1)
	p2, _ := players.GetByID(context.Background(), 2)
	assert.Equal(t, 1019, p1.Rating)
	assert.Equal(t, 984, p2.Rating)
	assert.Empty(t, progress.advanced)

	stored, _ := matches.GetByID(context.Background(), 7)
	assert.Equal(t, 16, derefInt(stored.EloDelta))
	assert.Equal(t, 3, derefInt(stored.BonusDelta))
}

func TestSubmitScoreDrawRejectedOutsideLeague(t *testing.T) {
	players := newFakePlayerRepo(
		&models.Player{ID: 1, Name: "Aruzhan", Rating: 1000},
		&models.Player{ID: 2, Name: "Daniyar", Rating: 1000},
	)
	matches := newFakeMatchRepo(&models.Match{
		ID: 7, Player1ID: 1, Player2ID: 2,
		Status: models.StatusScheduled, CurrentGame: 1,
	})
	svc, _, _ := newMatchServiceForTest(players, matches, newFakeTournamentRepo())

	_, err := svc.SubmitScore(context.Background(), 7, ScoreInput{
		Player1Score: intPtr(9), Player2Score: intPtr(9),
	})
	require.ErrorIs(t, err, ErrMatchDrawNotAllowed)
}

func TestSubmitScoreAlreadyCompleted(t *testing.T) {
	players := newFakePlayerRepo(
		&models.Player{ID: 1, Name: "Aruzhan", Rating: 1000},
		&models.Player{ID: 2, Name: "Daniyar", Rating: 1000},
	)
	matches := newFakeMatchRepo(&models.Match{
		ID: 7, Player1ID: 1, Player2ID: 2,
		Status: models.MatchStatusCompleted, CurrentGame: 1,
	})
	svc, _, _ := newMatchServiceForTest(players, matches, newFakeTournamentRepo())

	_, err := svc.SubmitScore(context.Background(), 7, ScoreInput{
		Player1Score: intPtr(11), Player2Score: intPtr(4),
	})
	require.ErrorIs(t, err, ErrMatchAlreadyCompleted)
}

func TestSubmitScoreKnockoutUsesFinalKAndAdvances(t *testing.T) {
	players := newFakePlayerRepo(
		&models.Player{ID: 1, Name: "Aruzhan", Rating: 1000, Level: 1},
		&models.Player{ID: 2, Name: "Daniyar", Rating: 1000, Level: 1},
	)
	tournaments := newFakeTournamentRepo(&models.Tournament{
		ID: 5, Name: "Cup", Format: models.FormatKnockout, Status: models.StatusActive,
	})
	matches := newFakeMatchRepo(&models.Match{
		ID: 20, TournamentID: 5, Player1ID: 1, Player2ID: 2,
		Round: 1, Stage: models.StageKnockout,
		Status: models.StatusScheduled, CurrentGame: 1,
	})
	svc, progress, _ := newMatchServiceForTest(players, matches, tournaments)

	_, err := svc.SubmitScore(context.Background(), 20, ScoreInput{
		Player1Score: intPtr(11), Player2Score: intPtr(6),
	})
	require.NoError(t, err)

	// The only bracket round is the final: K=64 between equals gives 32,
	// plus the level-1 bonus of 1.
	p1, _ := players.GetByID(context.Background(), 1)
	assert.Equal(t, 1000+32+1, p1.Rating)
	assert.Equal(t, []int{20}, progress.advanced)
}

func TestDeleteMatchReversesLeagueRatingExactly(t *testing.T) {
	players := newFakePlayerRepo(
		&models.Player{ID: 1, Name: "Aruzhan", Rating: 1019, Wins: 1},
		&models.Player{ID: 2, Name: "Daniyar", Rating: 984, Losses: 1},
	)
	tournaments := newFakeTournamentRepo(&models.Tournament{
		ID: 5, Name: "Liga", Format: models.FormatLeague, Status: models.StatusActive,
	})
	matches := newFakeMatchRepo(&models.Match{
		ID: 7, TournamentID: 5, Player1ID: 1, Player2ID: 2,
		Status:       models.MatchStatusCompleted,
		Player1Score: intPtr(11), Player2Score: intPtr(7),
		EloDelta: intPtr(16), BonusDelta: intPtr(3),
	})
	svc, _, _ := newMatchServiceForTest(players, matches, tournaments)

	require.NoError(t, svc.Delete(context.Background(), 7))

	p1, _ := players.GetByID(context.Background(), 1)
	p2, _ := players.GetByID(context.Background(), 2)
	assert.Equal(t, 1000, p1.Rating)
	assert.Equal(t, 1000, p2.Rating)
	assert.Equal(t, 0, p1.Wins)
	assert.Equal(t, 0, p2.Losses)

	_, err := matches.GetByID(context.Background(), 7)
	assert.ErrorIs(t, err, repositories.ErrMatchNotFound)
}

func TestDeleteMatchKnockoutKeepsRatings(t *testing.T) {
	players := newFakePlayerRepo(
		&models.Player{ID: 1, Name: "Aruzhan", Rating: 1033, Wins: 1},
		&models.Player{ID: 2, Name: "Daniyar", Rating: 968, Losses: 1},
	)
	tournaments := newFakeTournamentRepo(&models.Tournament{
		ID: 5, Name: "Cup", Format: models.FormatKnockout, Status: models.StatusActive,
	})
	matches := newFakeMatchRepo(&models.Match{
		ID: 7, TournamentID: 5, Player1ID: 1, Player2ID: 2,
		Round: 1, Stage: models.StageKnockout,
		Status:       models.MatchStatusCompleted,
		Player1Score: intPtr(11), Player2Score: intPtr(6),
		EloDelta: intPtr(32), BonusDelta: intPtr(1),
	})
	svc, _, _ := newMatchServiceForTest(players, matches, tournaments)

	require.NoError(t, svc.Delete(context.Background(), 7))

	// Bracket results stand: only the win/loss tally is rolled back.
	p1, _ := players.GetByID(context.Background(), 1)
	p2, _ := players.GetByID(context.Background(), 2)
	assert.Equal(t, 1033, p1.Rating)
	assert.Equal(t, 968, p2.Rating)
	assert.Equal(t, 0, p1.Wins)
	assert.Equal(t, 0, p2.Losses)
}
