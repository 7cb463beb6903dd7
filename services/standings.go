package services

import (
	"sort"

	"github.com/saparbekov/pingpong-system/models"
)

// standingsEntry is one row of a points table built from completed matches.
type standingsEntry struct {
	PlayerID int
	Points   int
	Diff     int // aggregate score differential, used as tie-break
	Wins     int
	Draws    int
	Played   int
}

// computeStandings tallies league points over completed matches: 3 per win,
// 1 per draw. Every given playerID gets a row even with no matches played.
// Order: points, then score differential, then lower player id.
func computeStandings(playerIDs []int, matches []*models.Match) []standingsEntry {
	index := make(map[int]*standingsEntry, len(playerIDs))
	table := make([]standingsEntry, 0, len(playerIDs))
	for _, id := range playerIDs {
		table = append(table, standingsEntry{PlayerID: id})
	}
	for i := range table {
		index[table[i].PlayerID] = &table[i]
	}

	for _, m := range matches {
		if m.Status != models.MatchStatusCompleted || m.Player1Score == nil || m.Player2Score == nil {
			continue
		}
		e1, ok1 := index[m.Player1ID]
		e2, ok2 := index[m.Player2ID]
		if !ok1 || !ok2 {
			continue
		}
		s1, s2 := *m.Player1Score, *m.Player2Score
		e1.Played++
		e2.Played++
		e1.Diff += s1 - s2
		e2.Diff += s2 - s1
		switch {
		case s1 > s2:
			e1.Points += 3
			e1.Wins++
		case s2 > s1:
			e2.Points += 3
			e2.Wins++
		default:
			e1.Points++
			e2.Points++
			e1.Draws++
			e2.Draws++
		}
	}

	sort.SliceStable(table, func(i, j int) bool {
		if table[i].Points != table[j].Points {
			return table[i].Points > table[j].Points
		}
		if table[i].Diff != table[j].Diff {
			return table[i].Diff > table[j].Diff
		}
		return table[i].PlayerID < table[j].PlayerID
	})
	return table
}

// playersByGroup derives each group's member ids from its group-stage
// matches, placeholder-free by construction.
func playersByGroup(matches []*models.Match) map[string][]int {
	seen := make(map[string]map[int]bool)
	for _, m := range matches {
		if m.Stage != models.StageGroup || m.GroupName == nil {
			continue
		}
		group := *m.GroupName
		if seen[group] == nil {
			seen[group] = make(map[int]bool)
		}
		seen[group][m.Player1ID] = true
		seen[group][m.Player2ID] = true
	}

	result := make(map[string][]int, len(seen))
	for group, members := range seen {
		ids := make([]int, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		result[group] = ids
	}
	return result
}

func filterByStage(matches []*models.Match, stage models.MatchStage) []*models.Match {
	var out []*models.Match
	for _, m := range matches {
		if m.Stage == stage {
			out = append(out, m)
		}
	}
	return out
}

func filterByRound(matches []*models.Match, round int) []*models.Match {
	var out []*models.Match
	for _, m := range matches {
		if m.Round == round {
			out = append(out, m)
		}
	}
	return out
}
