package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitTribeAPI/internal/apperr"
	"fitTribeAPI/internal/types/badge"
	notiftypes "fitTribeAPI/internal/types/notification"
	"fitTribeAPI/internal/types/user"
	"fitTribeAPI/middleware"
)

// BadgeService is the award ledger: it owns badge definitions plus every
// mutation of badge ownership, keeping earned_count and users.score
// consistent with each award or revocation.
type BadgeService struct {
	db            *pgxpool.Pool
	stats         *StatsService
	notifications *NotificationService
}

func NewBadgeService(db *pgxpool.Pool, statsService *StatsService, notificationService *NotificationService) *BadgeService {
	return &BadgeService{
		db:            db,
		stats:         statsService,
		notifications: notificationService,
	}
}

const badgeColumns = `id, name, description, icon, rules, points, is_active, is_automatic, earned_count, created_by, created_at, updated_at`

func scanBadge(row pgx.Row) (*badge.Badge, error) {
	b := &badge.Badge{}
	var rulesJSON []byte
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Description,
		&b.Icon,
		&rulesJSON,
		&b.Points,
		&b.IsActive,
		&b.IsAutomatic,
		&b.EarnedCount,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rulesJSON, &b.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode badge rules: %w", err)
	}
	return b, nil
}

func (s *BadgeService) CreateBadge(ctx context.Context, clerkID string, req *badge.CreateBadgeRequest) (*badge.Badge, error) {
	creatorID, _, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	if err := badge.ValidateDefinition(req.Name, req.Rules, req.Points); err != nil {
		return nil, err
	}

	var exists bool
	err = s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM badges WHERE name = $1)`, req.Name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check badge name: %w", err)
	}
	if exists {
		return nil, apperr.Conflict("badge %q already exists", req.Name)
	}

	rulesJSON, err := json.Marshal(req.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to encode badge rules: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO badges (id, name, description, icon, rules, points, is_active, is_automatic, earned_count, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, NOW(), NOW())
		RETURNING `+badgeColumns,
		uuid.New(), req.Name, req.Description, req.Icon, rulesJSON, req.Points, req.IsActive, req.IsAutomatic, creatorID,
	)
	b, err := scanBadge(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create badge: %w", err)
	}

	log.Printf("CreateBadge: %s created badge %q (%s)", clerkID, b.Name, b.ID)
	return b, nil
}

func (s *BadgeService) UpdateBadge(ctx context.Context, clerkID string, badgeID uuid.UUID, req *badge.UpdateBadgeRequest) (*badge.Badge, error) {
	actorID, role, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	current, err := s.GetBadge(ctx, badgeID)
	if err != nil {
		return nil, err
	}
	if current.CreatedBy != actorID && role != user.RoleAdmin {
		return nil, apperr.Unauthorized("only the badge creator or an admin can update a badge")
	}

	if req.Description != nil {
		current.Description = *req.Description
	}
	if req.Icon != nil {
		current.Icon = *req.Icon
	}
	if req.Rules != nil {
		current.Rules = req.Rules
	}
	if req.Points != nil {
		current.Points = *req.Points
	}
	if req.IsActive != nil {
		current.IsActive = *req.IsActive
	}
	if req.IsAutomatic != nil {
		current.IsAutomatic = *req.IsAutomatic
	}

	if err := badge.ValidateDefinition(current.Name, current.Rules, current.Points); err != nil {
		return nil, err
	}

	rulesJSON, err := json.Marshal(current.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to encode badge rules: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		UPDATE badges
		SET description = $2, icon = $3, rules = $4, points = $5, is_active = $6, is_automatic = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING `+badgeColumns,
		badgeID, current.Description, current.Icon, rulesJSON, current.Points, current.IsActive, current.IsAutomatic,
	)
	updated, err := scanBadge(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update badge: %w", err)
	}
	return updated, nil
}

// DeleteBadge cascades the ownership rows before removing the definition.
// Holders keep the score they gained from the badge; deletion is not a
// revocation (confirmed policy, not an oversight to fix here).
func (s *BadgeService) DeleteBadge(ctx context.Context, clerkID string, badgeID uuid.UUID) error {
	actorID, role, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return err
	}

	b, err := s.GetBadge(ctx, badgeID)
	if err != nil {
		return err
	}
	if b.CreatedBy != actorID && role != user.RoleAdmin {
		return apperr.Unauthorized("only the badge creator or an admin can delete a badge")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_badges WHERE badge_id = $1`, badgeID); err != nil {
		return fmt.Errorf("failed to remove badge from holders: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM badges WHERE id = $1`, badgeID); err != nil {
		return fmt.Errorf("failed to delete badge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit badge deletion: %w", err)
	}

	log.Printf("DeleteBadge: %s deleted badge %q (%s)", clerkID, b.Name, badgeID)
	return nil
}

func (s *BadgeService) GetBadge(ctx context.Context, badgeID uuid.UUID) (*badge.Badge, error) {
	row := s.db.QueryRow(ctx, `SELECT `+badgeColumns+` FROM badges WHERE id = $1`, badgeID)
	b, err := scanBadge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("badge not found")
		}
		return nil, fmt.Errorf("failed to get badge: %w", err)
	}
	return b, nil
}

func (s *BadgeService) ListBadges(ctx context.Context) ([]*badge.Badge, error) {
	rows, err := s.db.Query(ctx, `SELECT `+badgeColumns+` FROM badges ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	var badges []*badge.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, err
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// GetUserBadges returns the user's badges in the order they were earned.
func (s *BadgeService) GetUserBadges(ctx context.Context, clerkID string) ([]*badge.AwardedBadge, error) {
	userID, _, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT b.id, b.name, b.description, b.icon, b.rules, b.points, b.is_active, b.is_automatic, b.earned_count, b.created_by, b.created_at, b.updated_at, ub.awarded_at
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = $1
		ORDER BY ub.awarded_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user badges: %w", err)
	}
	defer rows.Close()

	var awarded []*badge.AwardedBadge
	for rows.Next() {
		ab := &badge.AwardedBadge{}
		var rulesJSON []byte
		err := rows.Scan(
			&ab.ID, &ab.Name, &ab.Description, &ab.Icon, &rulesJSON, &ab.Points,
			&ab.IsActive, &ab.IsAutomatic, &ab.EarnedCount, &ab.CreatedBy,
			&ab.CreatedAt, &ab.UpdatedAt, &ab.AwardedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan awarded badge: %w", err)
		}
		if err := json.Unmarshal(rulesJSON, &ab.Rules); err != nil {
			return nil, fmt.Errorf("failed to decode badge rules: %w", err)
		}
		awarded = append(awarded, ab)
	}
	return awarded, rows.Err()
}

// CheckAndAward builds the snapshot once, evaluates every active automatic
// badge the user does not already own, and awards each eligible one.
// Idempotent: a second call with no state change between awards nothing new.
// The returned order is the stable iteration order over active automatic
// badges (creation order), not rarity.
func (s *BadgeService) CheckAndAward(ctx context.Context, userID uuid.UUID) ([]*badge.Badge, error) {
	snap, err := s.stats.BuildSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+badgeColumns+`
		FROM badges b
		WHERE b.is_active
		  AND b.is_automatic
		  AND NOT EXISTS (SELECT 1 FROM user_badges ub WHERE ub.badge_id = b.id AND ub.user_id = $1)
		ORDER BY b.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate badges: %w", err)
	}

	var candidates []*badge.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var earned []*badge.Badge
	for _, b := range candidates {
		if !EvaluateRules(snap, b.Rules) {
			continue
		}
		if err := s.award(ctx, b, userID); err != nil {
			return earned, err
		}
		earned = append(earned, b)
		middleware.BadgeAwardsTotal.WithLabelValues(b.Name).Inc()
		s.notifyBadgeEarned(userID, b)
	}

	return earned, nil
}

// CheckAndAwardByClerkID is the handler-facing entry point.
func (s *BadgeService) CheckAndAwardByClerkID(ctx context.Context, clerkID string) ([]*badge.Badge, error) {
	userID, _, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	return s.CheckAndAward(ctx, userID)
}

// AwardManually adds a badge without rule evaluation. Admin only.
func (s *BadgeService) AwardManually(ctx context.Context, clerkID string, badgeID, targetUserID uuid.UUID) error {
	_, role, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return err
	}
	if role != user.RoleAdmin {
		return apperr.Unauthorized("only an admin can award badges manually")
	}

	b, err := s.GetBadge(ctx, badgeID)
	if err != nil {
		return err
	}
	if err := s.userExists(ctx, targetUserID); err != nil {
		return err
	}

	var owned bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_badges WHERE user_id = $1 AND badge_id = $2)
	`, targetUserID, badgeID).Scan(&owned)
	if err != nil {
		return fmt.Errorf("failed to check badge ownership: %w", err)
	}
	if owned {
		return apperr.Conflict("user already owns this badge")
	}

	if err := s.award(ctx, b, targetUserID); err != nil {
		return err
	}

	middleware.BadgeAwardsTotal.WithLabelValues(b.Name).Inc()
	s.notifyBadgeEarned(targetUserID, b)
	return nil
}

// Revoke removes the badge, deducts its points from the holder's score and
// decrements earned_count floored at zero.
func (s *BadgeService) Revoke(ctx context.Context, clerkID string, badgeID, targetUserID uuid.UUID) error {
	_, role, err := s.getUserIDAndRole(ctx, clerkID)
	if err != nil {
		return err
	}
	if role != user.RoleAdmin {
		return apperr.Unauthorized("only an admin can revoke badges")
	}

	b, err := s.GetBadge(ctx, badgeID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `DELETE FROM user_badges WHERE user_id = $1 AND badge_id = $2`, targetUserID, badgeID)
	if err != nil {
		return fmt.Errorf("failed to remove badge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.Conflict("user does not own this badge")
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET score = score - $2, updated_at = NOW() WHERE id = $1`, targetUserID, b.Points); err != nil {
		return fmt.Errorf("failed to deduct score: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE badges SET earned_count = GREATEST(earned_count - 1, 0) WHERE id = $1`, badgeID); err != nil {
		return fmt.Errorf("failed to decrement earned count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit revocation: %w", err)
	}

	log.Printf("Revoke: %s revoked badge %q from user %s", clerkID, b.Name, targetUserID)
	return nil
}

// award applies a single badge grant: ownership row, score credit,
// earned_count bump, all in one transaction.
func (s *BadgeService) award(ctx context.Context, b *badge.Badge, userID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO user_badges (id, user_id, badge_id, awarded_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), userID, b.ID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert badge ownership: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET score = score + $2, updated_at = NOW() WHERE id = $1`, userID, b.Points); err != nil {
		return fmt.Errorf("failed to credit score: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE badges SET earned_count = earned_count + 1 WHERE id = $1`, b.ID); err != nil {
		return fmt.Errorf("failed to increment earned count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit award: %w", err)
	}

	log.Printf("award: user %s earned badge %q (+%d points)", userID, b.Name, b.Points)
	return nil
}

func (s *BadgeService) notifyBadgeEarned(userID uuid.UUID, b *badge.Badge) {
	if s.notifications == nil {
		return
	}
	s.notifications.Notify(userID, notiftypes.TypeBadgeEarned,
		"Badge earned!",
		fmt.Sprintf("You earned the %q badge (+%d points)", b.Name, b.Points),
		map[string]any{"badgeId": b.ID.String()},
	)
}

func (s *BadgeService) userExists(ctx context.Context, userID uuid.UUID) error {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (s *BadgeService) getUserIDAndRole(ctx context.Context, clerkID string) (uuid.UUID, user.Role, error) {
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
