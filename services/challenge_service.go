package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitTribeAPI/internal/apperr"
	"fitTribeAPI/internal/types/challenge"
	"fitTribeAPI/internal/types/leaderboard"
	notiftypes "fitTribeAPI/internal/types/notification"
	"fitTribeAPI/internal/types/user"
	"fitTribeAPI/middleware"
)

// ChallengeService owns the participation state machine. Every transition
// that touches both the challenge and the user record runs inside one pgx
// transaction, with the challenge row locked to serialize concurrent
// participant mutations.
type ChallengeService struct {
	db            *pgxpool.Pool
	badges        *BadgeService
	notifications *NotificationService
	feed          *LiveFeed
}

func NewChallengeService(db *pgxpool.Pool, badgeService *BadgeService, notificationService *NotificationService, feed *LiveFeed) *ChallengeService {
	return &ChallengeService{
		db:            db,
		badges:        badgeService,
		notifications: notificationService,
		feed:          feed,
	}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so participant
// loading works inside and outside transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const challengeColumns = `id, title, description, type, difficulty, category, duration_value, duration_unit, gym_id, created_by, reward_points, is_active, start_date, end_date, max_participants, created_at, updated_at`

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	c := &challenge.Challenge{}
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Type, &c.Difficulty, &c.Category,
		&c.DurationValue, &c.DurationUnit, &c.GymID, &c.CreatedBy,
		&c.RewardPoints, &c.IsActive, &c.StartDate, &c.EndDate,
		&c.MaxParticipants, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func loadParticipants(ctx context.Context, q querier, challengeID uuid.UUID) ([]challenge.Participant, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_id, joined_at, progress, completed_at
		FROM challenge_participants
		WHERE challenge_id = $1
		ORDER BY joined_at
	`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	var participants []challenge.Participant
	for rows.Next() {
		var p challenge.Participant
		if err := rows.Scan(&p.ID, &p.UserID, &p.JoinedAt, &p.Progress, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func loadRewardBadgeIDs(ctx context.Context, q querier, challengeID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `SELECT badge_id FROM challenge_reward_badges WHERE challenge_id = $1`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reward badges: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *ChallengeService) CreateChallenge(ctx context.Context, clerkID string, req *challenge.CreateChallengeRequest) (*challenge.Challenge, error) {
	creatorID, _, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	if req.Title == "" {
		return nil, apperr.Validation("challenge title is required")
	}
	if req.MaxParticipants != nil && *req.MaxParticipants < 1 {
		return nil, apperr.Validation("maxParticipants must be at least 1")
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, apperr.Validation("endDate must not precede startDate")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO challenges (id, title, description, type, difficulty, category, duration_value, duration_unit, gym_id, created_by, reward_points, is_active, start_date, end_date, max_participants, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true, $12, $13, $14, NOW(), NOW())
		RETURNING `+challengeColumns,
		uuid.New(), req.Title, req.Description, req.Type, req.Difficulty, req.Category,
		req.DurationValue, req.DurationUnit, req.GymID, creatorID, req.RewardPoints,
		req.StartDate, req.EndDate, req.MaxParticipants,
	)
	c, err := scanChallenge(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	for _, badgeID := range req.RewardBadgeIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO challenge_reward_badges (challenge_id, badge_id) VALUES ($1, $2)
		`, c.ID, badgeID); err != nil {
			return nil, fmt.Errorf("failed to attach reward badge: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit challenge: %w", err)
	}

	c.RewardBadgeIDs = req.RewardBadgeIDs
	c.Participants = []challenge.Participant{}
	log.Printf("CreateChallenge: %s created challenge %q (%s)", clerkID, c.Title, c.ID)
	return c, nil
}

func (s *ChallengeService) GetChallenge(ctx context.Context, challengeID uuid.UUID) (*challenge.Challenge, error) {
	row := s.db.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, challengeID)
	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("challenge not found")
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	c.Participants, err = loadParticipants(ctx, s.db, challengeID)
	if err != nil {
		return nil, err
	}
	c.RewardBadgeIDs, err = loadRewardBadgeIDs(ctx, s.db, challengeID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ChallengeService) ListChallenges(ctx context.Context, activeOnly bool) ([]*challenge.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges ORDER BY created_at DESC`
	if activeOnly {
		query = `SELECT ` + challengeColumns + ` FROM challenges WHERE is_active ORDER BY created_at DESC`
	}

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*challenge.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range challenges {
		c.Participants, err = loadParticipants(ctx, s.db, c.ID)
		if err != nil {
			return nil, err
		}
	}
	return challenges, nil
}

func (s *ChallengeService) DeleteChallenge(ctx context.Context, clerkID string, challengeID uuid.UUID) error {
	actorID, role, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return err
	}

	c, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if c.CreatedBy != actorID && role != user.RoleAdmin {
		return apperr.Unauthorized("only the challenge creator or an admin can delete a challenge")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"invitations", "challenge_participants", "challenge_reward_badges"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE challenge_id = $1`, challengeID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM challenges WHERE id = $1`, challengeID); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}

	return tx.Commit(ctx)
}

// Join transitions (challenge, user) from NotParticipating to Active.
func (s *ChallengeService) Join(ctx context.Context, clerkID string, challengeID uuid.UUID) (*challenge.Challenge, error) {
	userID, _, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	if err := s.joinUser(ctx, userID, challengeID); err != nil {
		return nil, err
	}
	return s.GetChallenge(ctx, challengeID)
}

// joinUser holds the actual transition so invitation acceptance can reuse
// it. Preconditions run in fixed order against a row-locked challenge:
// active, not already participating, capacity, start date, end date.
func (s *ChallengeService) joinUser(ctx context.Context, userID, challengeID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1 FOR UPDATE`, challengeID)
	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("challenge not found")
		}
		return fmt.Errorf("failed to lock challenge: %w", err)
	}

	c.Participants, err = loadParticipants(ctx, tx, challengeID)
	if err != nil {
		return err
	}

	if err := c.JoinEligibility(userID, time.Now()); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO challenge_participants (id, challenge_id, user_id, joined_at, progress)
		VALUES ($1, $2, $3, NOW(), 0)
	`, uuid.New(), challengeID, userID)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET total_challenges = total_challenges + 1, updated_at = NOW() WHERE id = $1
	`, userID); err != nil {
		return fmt.Errorf("failed to increment challenge counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit join: %w", err)
	}

	log.Printf("joinUser: user %s joined challenge %s", userID, challengeID)
	return nil
}

// Leave removes an active, non-completed participant record. A completed
// participation is a permanent record and cannot be left.
func (s *ChallengeService) Leave(ctx context.Context, clerkID string, challengeID uuid.UUID) error {
	userID, _, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var lockedID uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM challenges WHERE id = $1 FOR UPDATE`, challengeID).Scan(&lockedID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("challenge not found")
		}
		return fmt.Errorf("failed to lock challenge: %w", err)
	}

	var participantID uuid.UUID
	var completedAt *time.Time
	err = tx.QueryRow(ctx, `
		SELECT id, completed_at FROM challenge_participants
		WHERE challenge_id = $1 AND user_id = $2
		FOR UPDATE
	`, challengeID, userID).Scan(&participantID, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("not participating in this challenge")
		}
		return fmt.Errorf("failed to load participant: %w", err)
	}
	if completedAt != nil {
		return apperr.InvalidState("cannot leave a completed challenge")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM challenge_participants WHERE id = $1`, participantID); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}

	// Plain decrement; going negative after counter drift is tolerated here.
	if _, err := tx.Exec(ctx, `
		UPDATE users SET total_challenges = total_challenges - 1, updated_at = NOW() WHERE id = $1
	`, userID); err != nil {
		return fmt.Errorf("failed to decrement challenge counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit leave: %w", err)
	}

	log.Printf("Leave: user %s left challenge %s", userID, challengeID)
	return nil
}

// UpdateProgress stores clamp(value, 0, 100) and fires the completion
// side effects exactly once, on the first transition to 100. Badge checking
// after completion is best effort: its failure is logged and discarded, the
// committed progress update stands.
func (s *ChallengeService) UpdateProgress(ctx context.Context, clerkID string, challengeID uuid.UUID, value int) (*challenge.Challenge, error) {
	userID, _, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	clamped := challenge.ClampProgress(value)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1 FOR UPDATE`, challengeID)
	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("challenge not found")
		}
		return nil, fmt.Errorf("failed to lock challenge: %w", err)
	}

	var p challenge.Participant
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, joined_at, progress, completed_at
		FROM challenge_participants
		WHERE challenge_id = $1 AND user_id = $2
	`, challengeID, userID).Scan(&p.ID, &p.UserID, &p.JoinedAt, &p.Progress, &p.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("not participating in this challenge")
		}
		return nil, fmt.Errorf("failed to load participant: %w", err)
	}

	completedNow := challenge.CompletionEdge(&p, clamped)

	if completedNow {
		if _, err := tx.Exec(ctx, `
			UPDATE challenge_participants SET progress = $2, completed_at = NOW() WHERE id = $1
		`, p.ID, clamped); err != nil {
			return nil, fmt.Errorf("failed to store completion: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users
			SET completed_challenges = completed_challenges + 1,
			    score = score + $2,
			    updated_at = NOW()
			WHERE id = $1
		`, userID, c.RewardPoints); err != nil {
			return nil, fmt.Errorf("failed to credit completion reward: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx, `
			UPDATE challenge_participants SET progress = $2 WHERE id = $1
		`, p.ID, clamped); err != nil {
			return nil, fmt.Errorf("failed to store progress: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit progress update: %w", err)
	}

	if s.feed != nil {
		s.feed.Publish(ProgressEvent{
			ChallengeID: challengeID,
			UserID:      userID,
			Progress:    clamped,
			Completed:   completedNow,
			At:          time.Now(),
		})
	}

	if completedNow {
		middleware.ChallengeCompletionsTotal.Inc()
		s.afterCompletion(ctx, c, userID)
	}

	return s.GetChallenge(ctx, challengeID)
}

// afterCompletion runs the secondary effects of a completion: reward badges,
// the automatic badge check and a push notification. None of them can fail
// the completion itself.
func (s *ChallengeService) afterCompletion(ctx context.Context, c *challenge.Challenge, userID uuid.UUID) {
	if s.badges != nil {
		rewardBadgeIDs, err := loadRewardBadgeIDs(ctx, s.db, c.ID)
		if err != nil {
			log.Printf("afterCompletion: failed to load reward badges for %s: %v", c.ID, err)
		}
		for _, badgeID := range rewardBadgeIDs {
			b, err := s.badges.GetBadge(ctx, badgeID)
			if err != nil {
				log.Printf("afterCompletion: reward badge %s missing: %v", badgeID, err)
				continue
			}
			var owned bool
			if err := s.db.QueryRow(ctx, `
				SELECT EXISTS(SELECT 1 FROM user_badges WHERE user_id = $1 AND badge_id = $2)
			`, userID, badgeID).Scan(&owned); err != nil || owned {
				continue
			}
			if err := s.badges.award(ctx, b, userID); err != nil {
				log.Printf("afterCompletion: failed to award reward badge %q: %v", b.Name, err)
			}
		}

		if _, err := s.badges.CheckAndAward(ctx, userID); err != nil {
			log.Printf("afterCompletion: badge check failed for user %s: %v", userID, err)
		}
	}

	if s.notifications != nil {
		s.notifications.Notify(userID, notiftypes.TypeChallengeCompleted,
			"Challenge completed!",
			fmt.Sprintf("You finished %q (+%d points)", c.Title, c.RewardPoints),
			map[string]any{"challengeId": c.ID.String()},
		)
	}
}

// Leaderboard ranks the challenge's participants: progress descending,
// completed ahead of not-completed, earlier completion first.
func (s *ChallengeService) Leaderboard(ctx context.Context, challengeID uuid.UUID) ([]*leaderboard.ChallengeEntry, error) {
	c, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	ranked := challenge.RankParticipants(c.Participants)
	entries := make([]*leaderboard.ChallengeEntry, 0, len(ranked))
	for i, p := range ranked {
		entry := &leaderboard.ChallengeEntry{
			UserID:      p.UserID,
			Progress:    p.Progress,
			CompletedAt: p.CompletedAt,
			Rank:        i + 1,
		}
		err := s.db.QueryRow(ctx, `SELECT username, image_url FROM users WHERE id = $1`, p.UserID).
			Scan(&entry.Username, &entry.ImageURL)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to load participant profile: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *ChallengeService) getUserIDAndRole(ctx context.Context, clerkID string) (uuid.UUID, user.Role, error) {
	var (
		userID uuid.UUID
		role   user.Role
	)
	err := s.db.QueryRow(ctx, `SELECT id, role FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, "", apperr.NotFound("user not found")
		}
		return uuid.Nil, "", fmt.Errorf("failed to resolve user: %w", err)
	}
	return userID, role, nil
}
