package models

import "time"

type MatchStatus string

const (
	StatusScheduled      MatchStatus = "scheduled"
	StatusInProgress     MatchStatus = "in_progress"
	MatchStatusCompleted MatchStatus = "completed"
)

type MatchStage string

const (
	StageNone     MatchStage = ""
	StageGroup    MatchStage = "group"
	StageKnockout MatchStage = "knockout"
)

// GameScore holds the raw points of one game inside a best-of-three match.
type GameScore struct {
	Player1 *int `json:"player1,omitempty"`
	Player2 *int `json:"player2,omitempty"`
}

// Decided reports whether the game counts: both scores present and at least
// one of them above zero.
func (g GameScore) Decided() bool {
	return g.Player1 != nil && g.Player2 != nil && (*g.Player1 > 0 || *g.Player2 > 0)
}

// Winner returns 1 or 2 for the side that took the game, 0 if undecided.
func (g GameScore) Winner() int {
	if !g.Decided() {
		return 0
	}
	if *g.Player1 > *g.Player2 {
		return 1
	}
	if *g.Player2 > *g.Player1 {
		return 2
	}
	return 0
}

// Match is one encounter between two players. For best-of-three matches
// Player1Score/Player2Score hold game-win counts, not raw points; the raw
// points of each game live in the fixed Games array.
//
// TournamentID == 0 marks a casual match played outside any tournament.
type Match struct {
	ID           int         `json:"id" db:"id"`
	TournamentID int         `json:"tournament_id" db:"tournament_id"`
	Player1ID    int         `json:"player1_id" db:"player1_id"`
	Player2ID    int         `json:"player2_id" db:"player2_id"`
	Date         time.Time   `json:"date" db:"date"`
	Round        int         `json:"round" db:"round"`
	Stage        MatchStage  `json:"stage" db:"stage"`
	GroupName    *string     `json:"group_name,omitempty" db:"group_name"`
	Status       MatchStatus `json:"status" db:"status"`

	Player1Score *int `json:"player1_score,omitempty" db:"player1_score"`
	Player2Score *int `json:"player2_score,omitempty" db:"player2_score"`

	BestOfThree bool         `json:"best_of_three" db:"best_of_three"`
	Games       [3]GameScore `json:"games" db:"-"`
	Player1Wins int          `json:"player1_wins" db:"player1_wins"`
	Player2Wins int          `json:"player2_wins" db:"player2_wins"`
	CurrentGame int          `json:"current_game" db:"current_game"`

	// EloDelta caches the winner-side rating delta applied when the match
	// completed, BonusDelta the upset bonus on top of it, so deletion can
	// reverse both exactly.
	EloDelta   *int `json:"-" db:"elo_delta"`
	BonusDelta *int `json:"-" db:"bonus_delta"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Player1 *Player `json:"player1,omitempty" db:"-"`
	Player2 *Player `json:"player2,omitempty" db:"-"`
}

// IsCasual reports whether the match is played outside a tournament.
func (m *Match) IsCasual() bool {
	return m.TournamentID == 0
}

// WinnerID returns the id of the winning side of a completed match, or 0 when
// the match has no decided winner yet.
func (m *Match) WinnerID() int {
	if m.Status != MatchStatusCompleted || m.Player1Score == nil || m.Player2Score == nil {
		return 0
	}
	switch {
	case *m.Player1Score > *m.Player2Score:
		return m.Player1ID
	case *m.Player2Score > *m.Player1Score:
		return m.Player2ID
	default:
		return 0
	}
}

// LoserID mirrors WinnerID.
func (m *Match) LoserID() int {
	switch m.WinnerID() {
	case m.Player1ID:
		return m.Player2ID
	case m.Player2ID:
		return m.Player1ID
	default:
		return 0
	}
}
