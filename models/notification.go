package models

import "time"

type NotificationType string

const (
	NotificationMatch      NotificationType = "match"
	NotificationTournament NotificationType = "tournament"
	NotificationSystem     NotificationType = "system"
)

type Notification struct {
	ID        int              `json:"id" db:"id"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Type      NotificationType `json:"type" db:"type"`
	Read      bool             `json:"read" db:"read"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
