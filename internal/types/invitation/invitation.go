package invitation

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Invitation is a pending request to join a challenge, scoped to friends of
// the sender. Terminal states delete the record instead of keeping history,
// so only pending rows ever live in the store.
type Invitation struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ChallengeID uuid.UUID `json:"challengeId" db:"challenge_id"`
	SenderID    uuid.UUID `json:"senderId" db:"sender_id"`
	RecipientID uuid.UUID `json:"recipientId" db:"recipient_id"`
	Status      Status    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// PendingInvitation is the recipient-facing listing shape.
type PendingInvitation struct {
	Invitation
	ChallengeTitle string `json:"challengeTitle"`
	SenderUsername string `json:"senderUsername"`
}

type InviteFriendsRequest struct {
	RecipientIDs []string `json:"recipientIds"`
}
