package services

import (
	"github.com/saparbekov/pingpong-system/models"
)

// allowedStatusTransitions описывает допустимые переходы статуса турнира.
var allowedStatusTransitions = map[models.TournamentStatus][]models.TournamentStatus{
	models.StatusDraft:  {models.StatusActive, models.StatusTournamentCanceled},
	models.StatusActive: {models.TournamentStatusComplete, models.StatusTournamentCanceled},
}

func isStatusTransitionAllowed(from, to models.TournamentStatus) bool {
	for _, allowed := range allowedStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// isValidGameScore проверяет корректность счёта одной партии:
// победитель набирает минимум 11 очков с отрывом не меньше 2.
func isValidGameScore(a, b int) bool {
	if a < 0 || b < 0 {
		return false
	}
	hi, lo := a, b
	if b > a {
		hi, lo = b, a
	}
	return hi >= 11 && hi-lo >= 2
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func intPtr(v int) *int {
	return &v
}

// maxRoundOf возвращает максимальный положительный номер раунда среди матчей.
func maxRoundOf(matches []*models.Match) int {
	max := 0
	for _, m := range matches {
		if m.Round > max {
			max = m.Round
		}
	}
	return max
}
