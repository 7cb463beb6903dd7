package ratings

import (
	"sort"

	"github.com/saparbekov/pingpong-system/models"
)

// AssignLevels recomputes every player's level from the relative percentile of
// their rating within the given population and writes it back onto the slice.
// Levels are relative, not absolute: a player's level can change because
// somebody else's rating moved, so callers must always pass the full
// population snapshot. Idempotent and safe to call repeatedly.
func AssignLevels(players []*models.Player) {
	n := len(players)
	if n == 0 {
		return
	}

	ranked := make([]*models.Player, n)
	copy(ranked, players)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Rating > ranked[j].Rating
	})

	for i, p := range ranked {
		percentile := 100 - float64(i)/float64(n)*100
		p.Level = levelForPercentile(percentile)
	}
}

// Границы строгие: ровно 80-й перцентиль — это уже четвёртый уровень, иначе
// верхняя полоса захватывает лишнего игрока.
func levelForPercentile(percentile float64) int {
	switch {
	case percentile > 80:
		return 5
	case percentile > 60:
		return 4
	case percentile > 40:
		return 3
	case percentile > 20:
		return 2
	default:
		return 1
	}
}
