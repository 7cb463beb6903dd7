package models

import "time"

// TournamentFormat определяет, как генерируются и продвигаются матчи турнира.
type TournamentFormat string

const (
	FormatLeague         TournamentFormat = "league"
	FormatKnockout       TournamentFormat = "knockout"
	FormatGroupsKnockout TournamentFormat = "groups_knockout"
)

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	StatusDraft              TournamentStatus = "draft"
	StatusActive             TournamentStatus = "active"
	TournamentStatusComplete TournamentStatus = "completed"
	StatusTournamentCanceled TournamentStatus = "canceled"
)

// Tournament представляет турнир.
type Tournament struct {
	ID           int              `json:"id" db:"id"`
	Name         string           `json:"name" db:"name"`
	Format       TournamentFormat `json:"format" db:"format"`
	Status       TournamentStatus `json:"status" db:"status"`
	Rounds       int              `json:"rounds" db:"rounds"`
	GroupCount   int              `json:"group_count" db:"group_count"`
	AdvanceCount int              `json:"advance_count" db:"advance_count"`
	StartDate    time.Time        `json:"start_date" db:"start_date"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Participants []Player `json:"participants,omitempty" db:"-"`
	Matches      []Match  `json:"matches,omitempty" db:"-"`
}

// UsesKnockoutStage reports whether the format ends in an elimination bracket.
func (t *Tournament) UsesKnockoutStage() bool {
	return t.Format == FormatKnockout || t.Format == FormatGroupsKnockout
}
