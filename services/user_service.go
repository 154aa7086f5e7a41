package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitTribeAPI/internal/apperr"
	"fitTribeAPI/internal/types/leaderboard"
	notiftypes "fitTribeAPI/internal/types/notification"
	"fitTribeAPI/internal/types/user"
)

type UserService struct {
	db            *pgxpool.Pool
	notifications *NotificationService
}

func NewUserService(db *pgxpool.Pool, notificationService *NotificationService) *UserService {
	return &UserService{db: db, notifications: notificationService}
}

const userColumns = `id, clerk_id, email, username, first_name, last_name, image_url, role, email_verified, total_challenges, completed_challenges, total_calories_burned, total_workout_minutes, score, created_at, updated_at`

func scanUser(row pgx.Row) (*user.User, error) {
	u := &user.User{}
	err := row.Scan(
		&u.ID, &u.ClerkID, &u.Email, &u.Username, &u.FirstName, &u.LastName,
		&u.ImageURL, &u.Role, &u.EmailVerified,
		&u.TotalChallenges, &u.CompletedChallenges, &u.TotalCaloriesBurned,
		&u.TotalWorkoutMinutes, &u.Score,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, clerk_id, email, username, first_name, last_name, image_url, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'member', NOW(), NOW())
		ON CONFLICT (clerk_id) DO UPDATE SET
			email = EXCLUDED.email,
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			image_url = EXCLUDED.image_url,
			updated_at = NOW()
		RETURNING `+userColumns,
		uuid.New(), req.ClerkID, req.Email, req.Username, req.FirstName, req.LastName, req.ImageURL,
	)

	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE clerk_id = $1`, clerkID)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *UserService) UpdateProfileByClerkID(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE users
		SET
			username = COALESCE(NULLIF($2, ''), username),
			first_name = COALESCE(NULLIF($3, ''), first_name),
			last_name = COALESCE(NULLIF($4, ''), last_name),
			image_url = COALESCE(NULLIF($5, ''), image_url),
			updated_at = NOW()
		WHERE clerk_id = $1
		RETURNING `+userColumns,
		clerkID, req.Username, req.FirstName, req.LastName, req.ImageURL,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

func (s *UserService) DeleteUserByClerkID(ctx context.Context, clerkID string) error {
	result, err := s.db.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (s *UserService) UpdateEmailVerification(ctx context.Context, clerkID string, verified bool) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET email_verified = $2, updated_at = NOW() WHERE clerk_id = $1
	`, clerkID, verified)
	return err
}

// AddFriend creates the symmetric friend relation. The pair is stored once
// and every lookup checks both directions, so adding is mirrored by
// construction.
func (s *UserService) AddFriend(ctx context.Context, clerkID string, friendID string) error {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	friendUUID, err := uuid.Parse(friendID)
	if err != nil {
		return apperr.Validation("invalid friend id")
	}

	var friendExists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, friendUUID).Scan(&friendExists); err != nil {
		return fmt.Errorf("failed to check friend: %w", err)
	}
	if !friendExists {
		return apperr.NotFound("friend user not found")
	}

	if userID == friendUUID {
		return apperr.Validation("cannot add yourself as a friend")
	}

	var exists bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM friendships
			WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
		)
	`, userID, friendUUID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check existing friendship: %w", err)
	}
	if exists {
		return apperr.Conflict("friendship already exists")
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO friendships (id, user_id, friend_id, created_at)
		VALUES ($1, $2, $3, NOW())
	`, uuid.New(), userID, friendUUID)
	if err != nil {
		return fmt.Errorf("failed to create friendship: %w", err)
	}

	if s.notifications != nil {
		s.notifications.Notify(friendUUID, notiftypes.TypeFriendAdded,
			"New training buddy",
			"Someone added you as a friend",
			map[string]any{"userId": userID.String()},
		)
	}

	log.Printf("AddFriend: %s added friend %s", clerkID, friendID)
	return nil
}

// RemoveFriend deletes the pair regardless of which side created it, so
// removal is mirrored too.
func (s *UserService) RemoveFriend(ctx context.Context, clerkID string, friendID string) error {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	friendUUID, err := uuid.Parse(friendID)
	if err != nil {
		return apperr.Validation("invalid friend id")
	}

	result, err := s.db.Exec(ctx, `
		DELETE FROM friendships
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
	`, userID, friendUUID)
	if err != nil {
		return fmt.Errorf("failed to remove friendship: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("friendship not found")
	}

	log.Printf("RemoveFriend: %s removed friend %s", clerkID, friendID)
	return nil
}

func (s *UserService) GetFriends(ctx context.Context, clerkID string) ([]*user.User, error) {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+prefixedUserColumns("u")+`
		FROM users u
		INNER JOIN friendships f ON (
			(f.user_id = u.id AND f.friend_id = $1)
			OR
			(f.friend_id = u.id AND f.user_id = $1)
		)
		ORDER BY u.username
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch friends: %w", err)
	}
	defer rows.Close()

	var friends []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, u)
	}
	return friends, rows.Err()
}

// GetGlobalLeaderboard ranks everyone by score. scoped=true restricts it to
// the caller's friends (plus the caller).
func (s *UserService) GetGlobalLeaderboard(ctx context.Context, clerkID string, scoped bool) (*leaderboard.Leaderboard, error) {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT u.id, u.username, u.image_url, u.score, u.completed_challenges,
		       RANK() OVER (ORDER BY u.score DESC) AS rank
		FROM users u
		ORDER BY u.score DESC, u.completed_challenges DESC
		LIMIT 50
	`
	args := []any{}
	if scoped {
		query = `
		SELECT u.id, u.username, u.image_url, u.score, u.completed_challenges,
		       RANK() OVER (ORDER BY u.score DESC) AS rank
		FROM users u
		WHERE u.id = $1 OR EXISTS (
			SELECT 1 FROM friendships f
			WHERE (f.user_id = $1 AND f.friend_id = u.id) OR (f.friend_id = $1 AND f.user_id = u.id)
		)
		ORDER BY u.score DESC, u.completed_challenges DESC
		LIMIT 50
		`
		args = append(args, userID)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*leaderboard.Entry
	var userPosition *leaderboard.Entry
	for rows.Next() {
		entry := &leaderboard.Entry{}
		err := rows.Scan(&entry.UserID, &entry.Username, &entry.ImageURL, &entry.Score, &entry.CompletedChallenges, &entry.Rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, entry)
		if entry.UserID == userID {
			userPosition = entry
		}
	}

	return &leaderboard.Leaderboard{
		Entries:      entries,
		UserPosition: userPosition,
		TotalUsers:   len(entries),
	}, rows.Err()
}

func (s *UserService) getUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperr.NotFound("user not found")
		}
		return uuid.Nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return userID, nil
}

func prefixedUserColumns(alias string) string {
	return alias + `.id, ` + alias + `.clerk_id, ` + alias + `.email, ` + alias + `.username, ` +
		alias + `.first_name, ` + alias + `.last_name, ` + alias + `.image_url, ` + alias + `.role, ` +
		alias + `.email_verified, ` + alias + `.total_challenges, ` + alias + `.completed_challenges, ` +
		alias + `.total_calories_burned, ` + alias + `.total_workout_minutes, ` + alias + `.score, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}
