package gym

import (
	"time"

	"github.com/google/uuid"
)

type Gym struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Address     string    `json:"address" db:"address"`
	City        string    `json:"city" db:"city"`
	OwnerID     uuid.UUID `json:"ownerId" db:"owner_id"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

type CreateGymRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Address     string `json:"address"`
	City        string `json:"city"`
}

// MembershipQR is the scannable payload handed to the mobile app for gym
// check-in and subscription.
type MembershipQR struct {
	GymID     uuid.UUID `json:"gymId"`
	QRCode    string    `json:"qrCode"` // base64 PNG
	ShareLink string    `json:"shareLink"`
}
