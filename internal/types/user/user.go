package user

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type User struct {
	ID                  uuid.UUID `json:"id" db:"id"`
	ClerkID             string    `json:"clerkId" db:"clerk_id"`
	Email               string    `json:"email" db:"email"`
	Username            string    `json:"username" db:"username"`
	FirstName           string    `json:"firstName" db:"first_name"`
	LastName            string    `json:"lastName" db:"last_name"`
	ImageURL            string    `json:"imageUrl,omitempty" db:"image_url"`
	Role                Role      `json:"role" db:"role"`
	EmailVerified       bool      `json:"emailVerified" db:"email_verified"`
	TotalChallenges     int       `json:"totalChallenges" db:"total_challenges"`
	CompletedChallenges int       `json:"completedChallenges" db:"completed_challenges"`
	TotalCaloriesBurned int       `json:"totalCaloriesBurned" db:"total_calories_burned"`
	TotalWorkoutMinutes int       `json:"totalWorkoutMinutes" db:"total_workout_minutes"`
	Score               int       `json:"score" db:"score"`
	CreatedAt           time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time `json:"updatedAt" db:"updated_at"`
}

type CreateUserRequest struct {
	ClerkID   string `json:"clerkId"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	ImageURL  string `json:"imageUrl"`
}

type UpdateProfileRequest struct {
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	ImageURL  string `json:"imageUrl"`
}

type AddFriendRequest struct {
	FriendID string `json:"friendId"`
}
