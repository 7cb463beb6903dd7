package brackets

import (
	"context"
	"fmt"
	"time"

	"github.com/saparbekov/pingpong-system/models"
)

type KnockoutGenerator struct{}

func NewKnockoutGenerator() MatchGenerator {
	return &KnockoutGenerator{}
}

func (g *KnockoutGenerator) GetName() string {
	return "Knockout"
}

// Generate materializes the full elimination bracket up front. Round one pairs
// the real players (an odd field is padded with the TBD placeholder); every
// later round is created with both slots held by the placeholder and gets its
// real players substituted by the progression service as rounds complete.
func (g *KnockoutGenerator) Generate(ctx context.Context, params GenerateParams) ([]*models.Match, error) {
	players := params.Players
	tournament := params.Tournament

	if len(players) < 2 {
		return nil, fmt.Errorf("KnockoutGenerator: not enough players (found %d, min 2 required)", len(players))
	}

	ids := make([]int, 0, len(players)+1)
	for _, p := range players {
		ids = append(ids, p.ID)
	}

	totalRounds := TotalKnockoutRounds(len(players))
	needsPlaceholder := len(ids)%2 != 0 || totalRounds > 1
	if needsPlaceholder && params.PlaceholderID == 0 {
		return nil, fmt.Errorf("KnockoutGenerator: bracket for %d players requires a TBD placeholder", len(players))
	}
	if len(ids)%2 != 0 {
		ids = append(ids, params.PlaceholderID)
	}

	matchDate := tournament.StartDate
	if matchDate.IsZero() {
		matchDate = time.Now()
	}

	var matches []*models.Match
	roundSize := len(ids) / 2
	for round := 1; round <= totalRounds; round++ {
		for i := 0; i < roundSize; i++ {
			m := &models.Match{
				TournamentID: tournament.ID,
				Player1ID:    params.PlaceholderID,
				Player2ID:    params.PlaceholderID,
				Date:         matchDate.Add(time.Duration(round-1) * 24 * time.Hour),
				Round:        round,
				Stage:        models.StageKnockout,
				Status:       models.StatusScheduled,
				BestOfThree:  BestOfThreeRound(round, totalRounds),
			}
			if round == 1 {
				m.Player1ID = ids[i*2]
				m.Player2ID = ids[i*2+1]
			}
			matches = append(matches, m)
		}
		roundSize = (roundSize + 1) / 2
	}

	return matches, nil
}
