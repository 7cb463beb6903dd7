package brackets

import (
	"context"
	"fmt"
	"time"

	"github.com/saparbekov/pingpong-system/models"
)

type GroupsGenerator struct{}

func NewGroupsGenerator() MatchGenerator {
	return &GroupsGenerator{}
}

func (g *GroupsGenerator) GetName() string {
	return "GroupsKnockout"
}

// GroupNames returns the labels used for n groups: "A", "B", ...
func GroupNames(n int) []string {
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = string(rune('A' + i))
	}
	return names
}

// Generate splits the field into Tournament.GroupCount groups by snake
// seeding (1st group gets the 1st and 2Nth player, and so on) and schedules a
// round robin inside each group. Knockout matches are created later, when the
// group stage finishes and the advancers are known.
func (g *GroupsGenerator) Generate(ctx context.Context, params GenerateParams) ([]*models.Match, error) {
	players := params.Players
	tournament := params.Tournament

	groupCount := tournament.GroupCount
	if groupCount < 2 {
		groupCount = 2
	}
	if len(players) < groupCount*2 {
		return nil, fmt.Errorf("GroupsGenerator: %d players cannot fill %d groups of at least 2", len(players), groupCount)
	}

	names := GroupNames(groupCount)
	groups := make([][]int, groupCount)
	direction := 1
	idx := 0
	for _, p := range players {
		groups[idx] = append(groups[idx], p.ID)
		idx += direction
		if idx == groupCount || idx == -1 {
			direction = -direction
			idx += direction
		}
	}

	matchDate := tournament.StartDate
	if matchDate.IsZero() {
		matchDate = time.Now()
	}

	matches := make([]*models.Match, 0)
	for gi, group := range groups {
		groupName := names[gi]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				name := groupName
				matches = append(matches, &models.Match{
					TournamentID: tournament.ID,
					Player1ID:    group[i],
					Player2ID:    group[j],
					Date:         matchDate,
					Round:        1,
					Stage:        models.StageGroup,
					GroupName:    &name,
					Status:       models.StatusScheduled,
				})
			}
		}
	}

	return matches, nil
}
