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
	"fitTribeAPI/internal/types/training"
)

type TrainingService struct {
	db     *pgxpool.Pool
	badges *BadgeService
}

func NewTrainingService(db *pgxpool.Pool, badgeService *BadgeService) *TrainingService {
	return &TrainingService{db: db, badges: badgeService}
}

// LogTraining stores the training and bumps the user's workout counters in
// the same transaction, then runs a best-effort badge check.
func (s *TrainingService) LogTraining(ctx context.Context, clerkID string, req *training.LogTrainingRequest) (*training.Training, error) {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	if req.DurationMinutes <= 0 {
		return nil, apperr.Validation("durationMinutes must be positive")
	}
	if req.Calories < 0 {
		return nil, apperr.Validation("calories must not be negative")
	}

	loggedAt := time.Now()
	if req.LoggedAt != nil {
		loggedAt = *req.LoggedAt
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	t := &training.Training{}
	err = tx.QueryRow(ctx, `
		INSERT INTO trainings (id, user_id, title, type, duration_minutes, calories, gym_id, logged_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, user_id, title, type, duration_minutes, calories, gym_id, logged_at, created_at
	`, uuid.New(), userID, req.Title, req.Type, req.DurationMinutes, req.Calories, req.GymID, loggedAt).Scan(
		&t.ID, &t.UserID, &t.Title, &t.Type, &t.DurationMinutes, &t.Calories, &t.GymID, &t.LoggedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to log training: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET total_workout_minutes = total_workout_minutes + $2,
		    total_calories_burned = total_calories_burned + $3,
		    updated_at = NOW()
		WHERE id = $1
	`, userID, req.DurationMinutes, req.Calories)
	if err != nil {
		return nil, fmt.Errorf("failed to update workout counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit training: %w", err)
	}

	if s.badges != nil {
		if _, err := s.badges.CheckAndAward(ctx, userID); err != nil {
			log.Printf("LogTraining: badge check failed for user %s: %v", userID, err)
		}
	}

	return t, nil
}

func (s *TrainingService) ListTrainings(ctx context.Context, clerkID string, limit int) ([]*training.Training, error) {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, title, type, duration_minutes, calories, gym_id, logged_at, created_at
		FROM trainings
		WHERE user_id = $1
		ORDER BY logged_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trainings: %w", err)
	}
	defer rows.Close()

	var trainings []*training.Training
	for rows.Next() {
		t := &training.Training{}
		err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Type, &t.DurationMinutes, &t.Calories, &t.GymID, &t.LoggedAt, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan training: %w", err)
		}
		trainings = append(trainings, t)
	}
	return trainings, rows.Err()
}

// DeleteTraining removes the row only; the aggregate counters are left
// alone, and the snapshot builder recounts from the table anyway.
func (s *TrainingService) DeleteTraining(ctx context.Context, clerkID string, trainingID uuid.UUID) error {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(ctx, `
		DELETE FROM trainings WHERE id = $1 AND user_id = $2
	`, trainingID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete training: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("training not found")
	}
	return nil
}

func (s *TrainingService) getUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
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
