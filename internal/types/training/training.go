package training

import (
	"time"

	"github.com/google/uuid"
)

type Training struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	UserID          uuid.UUID  `json:"userId" db:"user_id"`
	Title           string     `json:"title" db:"title"`
	Type            string     `json:"type" db:"type"`
	DurationMinutes int        `json:"durationMinutes" db:"duration_minutes"`
	Calories        int        `json:"calories" db:"calories"`
	GymID           *uuid.UUID `json:"gymId,omitempty" db:"gym_id"`
	LoggedAt        time.Time  `json:"loggedAt" db:"logged_at"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
}

type LogTrainingRequest struct {
	Title           string     `json:"title"`
	Type            string     `json:"type"`
	DurationMinutes int        `json:"durationMinutes"`
	Calories        int        `json:"calories"`
	GymID           *uuid.UUID `json:"gymId,omitempty"`
	LoggedAt        *time.Time `json:"loggedAt,omitempty"`
}
