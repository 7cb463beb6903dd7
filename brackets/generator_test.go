package brackets

import (
	"context"
	"testing"
	"time"

	"github.com/saparbekov/pingpong-system/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlayers(n int) []*models.Player {
	players := make([]*models.Player, 0, n)
	for i := 1; i <= n; i++ {
		players = append(players, &models.Player{ID: i, Rating: models.DefaultRating})
	}
	return players
}

func TestLeagueGeneratorEveryPairOnce(t *testing.T) {
	tournament := &models.Tournament{ID: 7, Format: models.FormatLeague, Rounds: 1, StartDate: time.Now()}
	matches, err := NewLeagueGenerator().Generate(context.Background(), GenerateParams{
		Tournament: tournament,
		Players:    testPlayers(5),
	})
	require.NoError(t, err)

	// 5 players: 10 pairings across 5 rounds (one bye per round).
	require.Len(t, matches, 10)

	seen := make(map[[2]int]bool)
	for _, m := range matches {
		a, b := m.Player1ID, m.Player2ID
		if a > b {
			a, b = b, a
		}
		assert.False(t, seen[[2]int{a, b}], "pair %d-%d scheduled twice", a, b)
		seen[[2]int{a, b}] = true
		assert.Equal(t, models.StageNone, m.Stage)
		assert.Equal(t, models.StatusScheduled, m.Status)
	}
}

func TestLeagueGeneratorDoubleRoundRobin(t *testing.T) {
	tournament := &models.Tournament{ID: 7, Format: models.FormatLeague, Rounds: 2, StartDate: time.Now()}
	matches, err := NewLeagueGenerator().Generate(context.Background(), GenerateParams{
		Tournament: tournament,
		Players:    testPlayers(4),
	})
	require.NoError(t, err)
	require.Len(t, matches, 12) // 6 pairings, twice
}

func TestKnockoutGeneratorFullBracket(t *testing.T) {
	tournament := &models.Tournament{ID: 3, Format: models.FormatKnockout, StartDate: time.Now()}
	matches, err := NewKnockoutGenerator().Generate(context.Background(), GenerateParams{
		Tournament:    tournament,
		Players:       testPlayers(8),
		PlaceholderID: 99,
	})
	require.NoError(t, err)

	// 8 players: quarterfinals, semifinals and the final all laid out.
	require.Len(t, matches, 7)
	perRound := make(map[int]int)
	for _, m := range matches {
		require.Equal(t, models.StageKnockout, m.Stage)
		perRound[m.Round]++
	}
	assert.Equal(t, map[int]int{1: 4, 2: 2, 3: 1}, perRound)

	for _, m := range matches {
		if m.Round == 1 {
			assert.False(t, m.BestOfThree)
			assert.NotEqual(t, 99, m.Player1ID)
			assert.NotEqual(t, 99, m.Player2ID)
		} else {
			assert.True(t, m.BestOfThree) // semifinal and final
			assert.Equal(t, 99, m.Player1ID)
			assert.Equal(t, 99, m.Player2ID)
		}
	}
}

func TestKnockoutGeneratorSmallFieldBestOfThree(t *testing.T) {
	tournament := &models.Tournament{ID: 3, Format: models.FormatKnockout, StartDate: time.Now()}
	matches, err := NewKnockoutGenerator().Generate(context.Background(), GenerateParams{
		Tournament:    tournament,
		Players:       testPlayers(4),
		PlaceholderID: 99,
	})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	for _, m := range matches {
		assert.True(t, m.BestOfThree) // 4 players: round 1 already is the semifinal
	}
}

func TestKnockoutGeneratorOddFieldUsesPlaceholder(t *testing.T) {
	tournament := &models.Tournament{ID: 3, Format: models.FormatKnockout, StartDate: time.Now()}
	matches, err := NewKnockoutGenerator().Generate(context.Background(), GenerateParams{
		Tournament:    tournament,
		Players:       testPlayers(5),
		PlaceholderID: 99,
	})
	require.NoError(t, err)
	// Padded field of 6: 3 first-round matches, then 2 + 1 placeholder rounds.
	require.Len(t, matches, 6)
	assert.Equal(t, 99, matches[2].Player2ID)
}

func TestKnockoutGeneratorOddFieldWithoutPlaceholderFails(t *testing.T) {
	tournament := &models.Tournament{ID: 3, Format: models.FormatKnockout, StartDate: time.Now()}
	_, err := NewKnockoutGenerator().Generate(context.Background(), GenerateParams{
		Tournament: tournament,
		Players:    testPlayers(5),
	})
	require.Error(t, err)
}

func TestGroupsGeneratorSplitsAndSchedules(t *testing.T) {
	tournament := &models.Tournament{
		ID: 11, Format: models.FormatGroupsKnockout, GroupCount: 2, AdvanceCount: 2, StartDate: time.Now(),
	}
	matches, err := NewGroupsGenerator().Generate(context.Background(), GenerateParams{
		Tournament: tournament,
		Players:    testPlayers(8),
	})
	require.NoError(t, err)

	// Two groups of four: 6 matches each.
	require.Len(t, matches, 12)
	perGroup := make(map[string]int)
	for _, m := range matches {
		require.NotNil(t, m.GroupName)
		require.Equal(t, models.StageGroup, m.Stage)
		perGroup[*m.GroupName]++
	}
	assert.Equal(t, map[string]int{"A": 6, "B": 6}, perGroup)
}

func TestTotalKnockoutRounds(t *testing.T) {
	assert.Equal(t, 1, TotalKnockoutRounds(2))
	assert.Equal(t, 2, TotalKnockoutRounds(3))
	assert.Equal(t, 2, TotalKnockoutRounds(4))
	assert.Equal(t, 3, TotalKnockoutRounds(8))
	assert.Equal(t, 4, TotalKnockoutRounds(9))
}
