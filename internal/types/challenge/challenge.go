package challenge

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"fitTribeAPI/internal/apperr"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Participant is a user's membership record within a challenge. CompletedAt
// is set exactly once, when progress first reaches 100, and is never cleared
// by a later progress update.
type Participant struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"userId" db:"user_id"`
	JoinedAt    time.Time  `json:"joinedAt" db:"joined_at"`
	Progress    int        `json:"progress" db:"progress"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

func (p *Participant) Completed() bool {
	return p.CompletedAt != nil
}

type Challenge struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	Title           string        `json:"title" db:"title"`
	Description     string        `json:"description" db:"description"`
	Type            string        `json:"type" db:"type"`
	Difficulty      Difficulty    `json:"difficulty" db:"difficulty"`
	Category        string        `json:"category" db:"category"`
	DurationValue   int           `json:"durationValue" db:"duration_value"`
	DurationUnit    string        `json:"durationUnit" db:"duration_unit"`
	GymID           *uuid.UUID    `json:"gymId,omitempty" db:"gym_id"`
	CreatedBy       uuid.UUID     `json:"createdBy" db:"created_by"`
	RewardPoints    int           `json:"rewardPoints" db:"reward_points"`
	RewardBadgeIDs  []uuid.UUID   `json:"rewardBadgeIds,omitempty"`
	IsActive        bool          `json:"isActive" db:"is_active"`
	StartDate       *time.Time    `json:"startDate,omitempty" db:"start_date"`
	EndDate         *time.Time    `json:"endDate,omitempty" db:"end_date"`
	MaxParticipants *int          `json:"maxParticipants,omitempty" db:"max_participants"`
	Participants    []Participant `json:"participants"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" db:"updated_at"`
}

// ParticipantFor returns the active participant record for a user, or nil.
func (c *Challenge) ParticipantFor(userID uuid.UUID) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

func (c *Challenge) ParticipantCount() int {
	return len(c.Participants)
}

func (c *Challenge) CompletedCount() int {
	n := 0
	for i := range c.Participants {
		if c.Participants[i].Completed() {
			n++
		}
	}
	return n
}

// JoinEligibility runs the join preconditions in their fixed order; the
// first failing check wins.
func (c *Challenge) JoinEligibility(userID uuid.UUID, now time.Time) error {
	if !c.IsActive {
		return apperr.InvalidState("challenge is not active")
	}
	if c.ParticipantFor(userID) != nil {
		return apperr.Conflict("already participating in this challenge")
	}
	if c.MaxParticipants != nil && c.ParticipantCount() >= *c.MaxParticipants {
		return apperr.InvalidState("challenge is full")
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return apperr.InvalidState("challenge has not started yet")
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return apperr.InvalidState("challenge has already ended")
	}
	return nil
}

// ClampProgress pins a progress value into [0,100]. Out-of-range input is
// clamped rather than rejected.
func ClampProgress(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// CompletionEdge reports whether storing the clamped progress value flips
// the participant to completed. The transition is edge-triggered: once
// CompletedAt is set, another update to 100 never re-fires it.
func CompletionEdge(p *Participant, clamped int) bool {
	return clamped == 100 && !p.Completed()
}

// RankParticipants orders participants for the leaderboard: progress
// descending, completed ahead of not-completed, earlier completion first
// among completed, join order among the rest. The sort is stable so equal
// entries keep their insertion order.
func RankParticipants(ps []Participant) []Participant {
	ranked := make([]Participant, len(ps))
	copy(ranked, ps)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Progress != b.Progress {
			return a.Progress > b.Progress
		}
		if a.Completed() != b.Completed() {
			return a.Completed()
		}
		if a.Completed() && b.Completed() && !a.CompletedAt.Equal(*b.CompletedAt) {
			return a.CompletedAt.Before(*b.CompletedAt)
		}
		return false
	})
	return ranked
}

type CreateChallengeRequest struct {
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Type            string      `json:"type"`
	Difficulty      Difficulty  `json:"difficulty"`
	Category        string      `json:"category"`
	DurationValue   int         `json:"durationValue"`
	DurationUnit    string      `json:"durationUnit"`
	GymID           *uuid.UUID  `json:"gymId,omitempty"`
	RewardPoints    int         `json:"rewardPoints"`
	RewardBadgeIDs  []uuid.UUID `json:"rewardBadgeIds,omitempty"`
	StartDate       *time.Time  `json:"startDate,omitempty"`
	EndDate         *time.Time  `json:"endDate,omitempty"`
	MaxParticipants *int        `json:"maxParticipants,omitempty"`
}

type UpdateProgressRequest struct {
	Progress int `json:"progress"`
}
