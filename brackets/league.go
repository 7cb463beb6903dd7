package brackets

import (
	"context"
	"fmt"
	"time"

	"github.com/saparbekov/pingpong-system/models"
)

type LeagueGenerator struct{}

func NewLeagueGenerator() MatchGenerator {
	return &LeagueGenerator{}
}

func (g *LeagueGenerator) GetName() string {
	return "League"
}

// Generate creates a round-robin schedule with the circle method: one player
// stays fixed while the rest rotate, so every player meets every other player
// exactly once per cycle. Tournament.Rounds cycles are produced (1 by
// default, 2 for a double round-robin).
func (g *LeagueGenerator) Generate(ctx context.Context, params GenerateParams) ([]*models.Match, error) {
	players := params.Players
	tournament := params.Tournament

	if len(players) < 2 {
		return nil, fmt.Errorf("LeagueGenerator: not enough players (found %d, min 2 required)", len(players))
	}

	cycles := tournament.Rounds
	if cycles != 2 {
		cycles = 1
	}

	ids := make([]int, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	// Odd field: a zero slot acts as a bye and produces no match.
	if len(ids)%2 != 0 {
		ids = append(ids, 0)
	}
	n := len(ids)
	roundsPerCycle := n - 1
	half := n / 2

	matches := make([]*models.Match, 0, cycles*roundsPerCycle*half)
	matchDate := tournament.StartDate
	if matchDate.IsZero() {
		matchDate = time.Now()
	}

	for cycle := 0; cycle < cycles; cycle++ {
		rotation := make([]int, n)
		copy(rotation, ids)

		for round := 1; round <= roundsPerCycle; round++ {
			absoluteRound := cycle*roundsPerCycle + round
			for i := 0; i < half; i++ {
				p1 := rotation[i]
				p2 := rotation[n-1-i]
				if p1 == 0 || p2 == 0 {
					continue
				}
				// Second cycle swaps sides, as a double round-robin would.
				if cycle%2 == 1 {
					p1, p2 = p2, p1
				}
				matches = append(matches, &models.Match{
					TournamentID: tournament.ID,
					Player1ID:    p1,
					Player2ID:    p2,
					Date:         matchDate.Add(time.Duration(absoluteRound-1) * 24 * time.Hour),
					Round:        absoluteRound,
					Stage:        models.StageNone,
					Status:       models.StatusScheduled,
				})
			}
			// Rotate everyone but the first slot.
			rotation = append([]int{rotation[0], rotation[n-1]}, rotation[1:n-1]...)
		}
	}

	return matches, nil
}
