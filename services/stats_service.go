package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitTribeAPI/internal/apperr"
	"fitTribeAPI/internal/stats"
)

type StatsService struct {
	db *pgxpool.Pool
}

func NewStatsService(db *pgxpool.Pool) *StatsService {
	return &StatsService{db: db}
}

// BuildSnapshot assembles the flattened statistics view rule evaluation runs
// against. The persisted counters are read as-is except completedChallenges,
// which is recomputed from the participation store so rules never see a
// drifted counter. Read-only.
func (s *StatsService) BuildSnapshot(ctx context.Context, userID uuid.UUID) (stats.Snapshot, error) {
	var (
		totalChallenges     int
		totalCalories       int
		totalWorkoutMinutes int
		score               int
	)
	err := s.db.QueryRow(ctx, `
		SELECT total_challenges, total_calories_burned, total_workout_minutes, score
		FROM users
		WHERE id = $1
	`, userID).Scan(&totalChallenges, &totalCalories, &totalWorkoutMinutes, &score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}

	var trainingCount, totalTrainingMinutes int
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(duration_minutes), 0)
		FROM trainings
		WHERE user_id = $1
	`, userID).Scan(&trainingCount, &totalTrainingMinutes)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trainings: %w", err)
	}

	var completedChallenges int
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM challenge_participants
		WHERE user_id = $1 AND completed_at IS NOT NULL
	`, userID).Scan(&completedChallenges)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed challenges: %w", err)
	}

	var badgeCount int
	err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_badges WHERE user_id = $1`, userID).Scan(&badgeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count badges: %w", err)
	}

	var friendCount int
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM friendships WHERE user_id = $1 OR friend_id = $1
	`, userID).Scan(&friendCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count friends: %w", err)
	}

	return stats.Snapshot{
		"stats": map[string]any{
			"totalChallenges":      totalChallenges,
			"completedChallenges":  completedChallenges,
			"totalCaloriesBurned":  totalCalories,
			"totalWorkoutMinutes":  totalWorkoutMinutes,
			"score":                score,
			"trainingCount":        trainingCount,
			"totalTrainingMinutes": totalTrainingMinutes,
		},
		"badgeCount":  badgeCount,
		"friendCount": friendCount,
	}, nil
}

// GetUserStats is the profile-facing variant of the snapshot.
func (s *StatsService) GetUserStats(ctx context.Context, clerkID string) (*stats.UserStats, error) {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	snap, err := s.BuildSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	st, _ := snap["stats"].(map[string]any)
	result := &stats.UserStats{
		TotalChallenges:      st["totalChallenges"].(int),
		CompletedChallenges:  st["completedChallenges"].(int),
		TotalCaloriesBurned:  st["totalCaloriesBurned"].(int),
		TotalWorkoutMinutes:  st["totalWorkoutMinutes"].(int),
		Score:                st["score"].(int),
		TrainingCount:        st["trainingCount"].(int),
		TotalTrainingMinutes: st["totalTrainingMinutes"].(int),
		BadgeCount:           snap["badgeCount"].(int),
		FriendCount:          snap["friendCount"].(int),
	}
	return result, nil
}

func (s *StatsService) getUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
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
