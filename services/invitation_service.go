package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitTribeAPI/internal/apperr"
	"fitTribeAPI/internal/types/challenge"
	"fitTribeAPI/internal/types/invitation"
	notiftypes "fitTribeAPI/internal/types/notification"
)

// InvitationService gates challenge entry through friend-to-friend
// invitations. Only pending invitations are stored; accepting or rejecting
// deletes the record.
type InvitationService struct {
	db            *pgxpool.Pool
	challenges    *ChallengeService
	notifications *NotificationService
}

func NewInvitationService(db *pgxpool.Pool, challengeService *ChallengeService, notificationService *NotificationService) *InvitationService {
	return &InvitationService{
		db:            db,
		challenges:    challengeService,
		notifications: notificationService,
	}
}

// InviteFriends validates and creates invitations recipient by recipient,
// in order. The first failing recipient aborts the loop and the error is
// returned; invitations created before the failure stay created. Partial
// commit is the established behavior here, not all-or-nothing.
func (s *InvitationService) InviteFriends(ctx context.Context, clerkID string, challengeID uuid.UUID, recipientIDs []string) error {
	senderID, _, err := s.challenges.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return err
	}

	c, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if c.ParticipantFor(senderID) == nil {
		return apperr.InvalidState("only participants can invite friends to a challenge")
	}

	for _, raw := range recipientIDs {
		recipientID, err := uuid.Parse(raw)
		if err != nil {
			return apperr.Validation("invalid recipient id %q", raw)
		}
		if err := s.inviteOne(ctx, c, senderID, recipientID); err != nil {
			return err
		}
	}
	return nil
}

func (s *InvitationService) inviteOne(ctx context.Context, c *challenge.Challenge, senderID, recipientID uuid.UUID) error {
	var recipientExists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, recipientID).Scan(&recipientExists)
	if err != nil {
		return fmt.Errorf("failed to check recipient: %w", err)
	}
	if !recipientExists {
		return apperr.NotFound("recipient %s not found", recipientID)
	}

	// Friendship rows are stored once per pair; check both directions.
	var isFriend bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM friendships
			WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
		)
	`, senderID, recipientID).Scan(&isFriend)
	if err != nil {
		return fmt.Errorf("failed to check friendship: %w", err)
	}
	if !isFriend {
		return apperr.Unauthorized("recipient %s is not in your friend list", recipientID)
	}

	var pendingExists bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM invitations
			WHERE challenge_id = $1 AND recipient_id = $2 AND status = 'pending'
		)
	`, c.ID, recipientID).Scan(&pendingExists)
	if err != nil {
		return fmt.Errorf("failed to check pending invitations: %w", err)
	}
	if pendingExists {
		return apperr.Conflict("recipient %s already has a pending invitation", recipientID)
	}

	if c.ParticipantFor(recipientID) != nil {
		return apperr.Conflict("recipient %s is already participating", recipientID)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO invitations (id, challenge_id, sender_id, recipient_id, status, created_at)
		VALUES ($1, $2, $3, $4, 'pending', NOW())
	`, uuid.New(), c.ID, senderID, recipientID)
	if err != nil {
		// The partial unique index on pending invitations backstops the
		// check above when two invites race.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Conflict("recipient %s already has a pending invitation", recipientID)
		}
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	if s.notifications != nil {
		s.notifications.Notify(recipientID, notiftypes.TypeChallengeInvite,
			"Challenge invitation",
			fmt.Sprintf("A friend invited you to join %q", c.Title),
			map[string]any{"challengeId": c.ID.String()},
		)
	}

	log.Printf("inviteOne: %s invited %s to challenge %s", senderID, recipientID, c.ID)
	return nil
}

// Accept re-runs the full join transition with its preconditions checked at
// acceptance time, not invitation time. If the recipient already joined
// through another path, the invitation is deleted and the conflict is still
// reported instead of silently succeeding.
func (s *InvitationService) Accept(ctx context.Context, clerkID string, invitationID uuid.UUID) (*challenge.Challenge, error) {
	userID, _, err := s.challenges.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	inv, err := s.getPending(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.RecipientID != userID {
		return nil, apperr.Unauthorized("invitation belongs to another user")
	}

	if err := s.challenges.joinUser(ctx, userID, inv.ChallengeID); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			// already participating: the invitation is spent either way
			s.delete(ctx, invitationID)
		}
		return nil, err
	}

	s.delete(ctx, invitationID)
	return s.challenges.GetChallenge(ctx, inv.ChallengeID)
}

func (s *InvitationService) Reject(ctx context.Context, clerkID string, invitationID uuid.UUID) error {
	userID, _, err := s.challenges.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return err
	}

	inv, err := s.getPending(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.RecipientID != userID {
		return apperr.Unauthorized("invitation belongs to another user")
	}

	s.delete(ctx, invitationID)
	log.Printf("Reject: user %s rejected invitation %s", userID, invitationID)
	return nil
}

// ListPending returns the caller's open invitations, newest first.
func (s *InvitationService) ListPending(ctx context.Context, clerkID string) ([]*invitation.PendingInvitation, error) {
	userID, _, err := s.challenges.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.challenge_id, i.sender_id, i.recipient_id, i.status, i.created_at, c.title, u.username
		FROM invitations i
		JOIN challenges c ON c.id = i.challenge_id
		JOIN users u ON u.id = i.sender_id
		WHERE i.recipient_id = $1 AND i.status = 'pending'
		ORDER BY i.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var pending []*invitation.PendingInvitation
	for rows.Next() {
		p := &invitation.PendingInvitation{}
		err := rows.Scan(&p.ID, &p.ChallengeID, &p.SenderID, &p.RecipientID, &p.Status, &p.CreatedAt, &p.ChallengeTitle, &p.SenderUsername)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func (s *InvitationService) getPending(ctx context.Context, invitationID uuid.UUID) (*invitation.Invitation, error) {
	inv := &invitation.Invitation{}
	err := s.db.QueryRow(ctx, `
		SELECT id, challenge_id, sender_id, recipient_id, status, created_at
		FROM invitations
		WHERE id = $1
	`, invitationID).Scan(&inv.ID, &inv.ChallengeID, &inv.SenderID, &inv.RecipientID, &inv.Status, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("invitation not found")
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	if inv.Status != invitation.StatusPending {
		return nil, apperr.InvalidState("invitation is no longer pending")
	}
	return inv, nil
}

func (s *InvitationService) delete(ctx context.Context, invitationID uuid.UUID) {
	if _, err := s.db.Exec(ctx, `DELETE FROM invitations WHERE id = $1`, invitationID); err != nil {
		log.Printf("delete: failed to remove invitation %s: %v", invitationID, err)
	}
}
