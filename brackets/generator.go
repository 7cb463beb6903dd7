package brackets

import (
	"context"
	"math"

	"github.com/saparbekov/pingpong-system/models"
)

// GenerateParams carries everything a generator needs to lay out the initial
// match set of a tournament. PlaceholderID is the TBD sentinel player used to
// pad uneven knockout fields.
type GenerateParams struct {
	Tournament    *models.Tournament
	Players       []*models.Player
	PlaceholderID int
}

// MatchGenerator produces the initial (unsaved) matches for one tournament
// format. A knockout bracket is laid out in full, with TBD placeholders in
// every round past the first; the groups format lays out only the group phase
// and leaves the knockout bracket to the progression service.
type MatchGenerator interface {
	Generate(ctx context.Context, params GenerateParams) ([]*models.Match, error)

	GetName() string
}

// ForFormat returns the generator matching a tournament format, or nil for an
// unknown format.
func ForFormat(format models.TournamentFormat) MatchGenerator {
	switch format {
	case models.FormatLeague:
		return NewLeagueGenerator()
	case models.FormatKnockout:
		return NewKnockoutGenerator()
	case models.FormatGroupsKnockout:
		return NewGroupsGenerator()
	default:
		return nil
	}
}

// TotalKnockoutRounds returns how many elimination rounds a field of n
// players needs.
func TotalKnockoutRounds(n int) int {
	if n < 2 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}

// BestOfThreeRound reports whether matches of the given round are played as
// best-of-three. The last two rounds (semifinal and final) are; earlier
// rounds are single-game.
func BestOfThreeRound(round, totalRounds int) bool {
	return round >= totalRounds-1
}
