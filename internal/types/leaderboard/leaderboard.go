package leaderboard

import (
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	UserID              uuid.UUID `json:"userId" db:"user_id"`
	Username            string    `json:"username" db:"username"`
	ImageURL            string    `json:"imageUrl" db:"image_url"`
	Score               int       `json:"score" db:"score"`
	CompletedChallenges int       `json:"completedChallenges" db:"completed_challenges"`
	Rank                int       `json:"rank" db:"rank"`
}

type Leaderboard struct {
	Entries      []*Entry `json:"entries"`
	UserPosition *Entry   `json:"userPosition,omitempty"`
	TotalUsers   int      `json:"totalUsers"`
}

// ChallengeEntry is one row of a per-challenge leaderboard, ordered by the
// participant tie-break (progress desc, completed first, earliest completion
// first).
type ChallengeEntry struct {
	UserID      uuid.UUID  `json:"userId"`
	Username    string     `json:"username"`
	ImageURL    string     `json:"imageUrl"`
	Progress    int        `json:"progress"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Rank        int        `json:"rank"`
}
