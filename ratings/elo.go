package ratings

import "math"

// K-factor policy. Casual (non-tournament) single games move ratings the most
// per encounter; best-of-three matches apply a smaller K once per decided game.
const (
	KCasual = 32 // ordinary single game
	KGame   = 16 // per decided game inside a best-of-three match
	KLeague = 48 // league / tournament-stage match
	KFinal  = 64 // final-stage match
)

// ExpectedScore returns the probability of the self side beating the opponent
// under the Elo model.
func ExpectedScore(self, opponent int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponent-self)/400.0))
}

// Delta computes the rating adjustment for the self side of one decided game.
// The opponent's adjustment is the negation of the loser-side call, so raw Elo
// exchange is always zero-sum.
func Delta(self, opponent int, won bool, k int) int {
	actual := 0.0
	if won {
		actual = 1.0
	}
	return int(math.Round(float64(k) * (actual - ExpectedScore(self, opponent))))
}

// UpsetBonus is the extra rating awarded to the winner on top of the Elo
// delta, stepped by the loser's level. Never mirrored onto the loser.
func UpsetBonus(loserLevel int) int {
	switch loserLevel {
	case 5:
		return 10
	case 4:
		return 7
	case 3:
		return 5
	case 2:
		return 3
	case 1:
		return 1
	default:
		return 0
	}
}
