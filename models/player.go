package models

import (
	"strings"
	"time"
)

// DefaultRating is the seed rating every new player starts with.
const DefaultRating = 1000

// Player is a rated club member. Rating, wins and losses are mutated only by
// match settlement and tournament settlement; Level is a cached value derived
// from the player's percentile rank across the whole population.
type Player struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Rating    int       `json:"rating" db:"rating"`
	Level     int       `json:"level" db:"level"`
	Wins      int       `json:"wins" db:"wins"`
	Losses    int       `json:"losses" db:"losses"`
	AvatarKey *string   `json:"-" db:"avatar_key"`
	AvatarURL *string   `json:"avatar_url,omitempty" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsPlaceholder reports whether the player is the bracket TBD sentinel.
func (p *Player) IsPlaceholder() bool {
	return strings.Contains(strings.ToUpper(p.Name), "TBD")
}
