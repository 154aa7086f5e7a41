package notification

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeBadgeEarned        Type = "badge_earned"
	TypeChallengeInvite    Type = "challenge_invite"
	TypeChallengeCompleted Type = "challenge_completed"
	TypeFriendAdded        Type = "friend_added"
)

type Notification struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	UserID    uuid.UUID      `json:"userId" db:"user_id"`
	Type      Type           `json:"type" db:"type"`
	Title     string         `json:"title" db:"title"`
	Body      string         `json:"body" db:"body"`
	Data      map[string]any `json:"data,omitempty" db:"data"`
	IsRead    bool           `json:"isRead" db:"is_read"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}

type DeviceToken struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	Platform  string    `json:"platform" db:"platform"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
