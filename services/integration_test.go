package services

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitTribeAPI/internal/apperr"
	"fitTribeAPI/internal/types/badge"
	"fitTribeAPI/internal/types/challenge"
	"fitTribeAPI/internal/types/training"
	"fitTribeAPI/internal/types/user"
)

// These tests run against a real database. Set TEST_DATABASE_URL (or
// DATABASE_URL) to enable them; otherwise they skip.
func setupIntegrationDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	bootstrapSchema(t, db)
	return db
}

func bootstrapSchema(t *testing.T, db *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			clerk_id TEXT UNIQUE NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'member',
			email_verified BOOLEAN NOT NULL DEFAULT false,
			total_challenges INT NOT NULL DEFAULT 0,
			completed_challenges INT NOT NULL DEFAULT 0,
			total_calories_burned INT NOT NULL DEFAULT 0,
			total_workout_minutes INT NOT NULL DEFAULT 0,
			score INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS friendships (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			friend_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS badges (
			id UUID PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			rules JSONB NOT NULL,
			points INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT true,
			is_automatic BOOLEAN NOT NULL DEFAULT true,
			earned_count INT NOT NULL DEFAULT 0,
			created_by UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS user_badges (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			badge_id UUID NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
			awarded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, badge_id)
		)`,
		`CREATE TABLE IF NOT EXISTS challenges (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			difficulty TEXT NOT NULL DEFAULT 'beginner',
			category TEXT NOT NULL DEFAULT '',
			duration_value INT NOT NULL DEFAULT 0,
			duration_unit TEXT NOT NULL DEFAULT '',
			gym_id UUID,
			created_by UUID NOT NULL,
			reward_points INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT true,
			start_date TIMESTAMPTZ,
			end_date TIMESTAMPTZ,
			max_participants INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS challenge_participants (
			id UUID PRIMARY KEY,
			challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			progress INT NOT NULL DEFAULT 0,
			completed_at TIMESTAMPTZ,
			UNIQUE (challenge_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS challenge_reward_badges (
			challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			badge_id UUID NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
			PRIMARY KEY (challenge_id, badge_id)
		)`,
		`CREATE TABLE IF NOT EXISTS invitations (
			id UUID PRIMARY KEY,
			challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			recipient_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS invitations_pending_unique
			ON invitations (challenge_id, recipient_id) WHERE status = 'pending'`,
		`CREATE TABLE IF NOT EXISTS trainings (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			duration_minutes INT NOT NULL DEFAULT 0,
			calories INT NOT NULL DEFAULT 0,
			gym_id UUID,
			logged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range stmts {
		_, err := db.Exec(ctx, stmt)
		require.NoError(t, err)
	}
}

func createTestUser(t *testing.T, svc *UserService) *user.User {
	t.Helper()

	clerkID := "user_test_" + uuid.New().String()
	u, err := svc.CreateUser(context.Background(), &user.CreateUserRequest{
		ClerkID:  clerkID,
		Email:    clerkID + "@example.com",
		Username: clerkID,
	})
	require.NoError(t, err)
	return u
}

func makeAdmin(t *testing.T, db *pgxpool.Pool, userID uuid.UUID) {
	t.Helper()
	_, err := db.Exec(context.Background(), `UPDATE users SET role = 'admin' WHERE id = $1`, userID)
	require.NoError(t, err)
}

func TestCheckAndAwardIsIdempotent(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	userService := NewUserService(db, nil)
	statsService := NewStatsService(db)
	badgeService := NewBadgeService(db, statsService, nil)

	creator := createTestUser(t, userService)
	athlete := createTestUser(t, userService)

	badgeName := fmt.Sprintf("Century Club %s", uuid.New())
	created, err := badgeService.CreateBadge(ctx, creator.ClerkID, &badge.CreateBadgeRequest{
		Name: badgeName,
		Rules: []badge.Rule{
			{Type: badge.RuleUserStat, Field: "stats.score", Operator: badge.OpGreaterThan, Value: badge.Number(99)},
		},
		Points:      50,
		IsActive:    true,
		IsAutomatic: true,
	})
	require.NoError(t, err)

	// Below threshold: nothing awarded.
	awarded, err := badgeService.CheckAndAward(ctx, athlete.ID)
	require.NoError(t, err)
	assert.Empty(t, awarded)

	_, err = db.Exec(ctx, `UPDATE users SET score = 100 WHERE id = $1`, athlete.ID)
	require.NoError(t, err)

	awarded, err = badgeService.CheckAndAward(ctx, athlete.ID)
	require.NoError(t, err)
	require.Len(t, awarded, 1)
	assert.Equal(t, badgeName, awarded[0].Name)

	// Second pass must not award again.
	awarded, err = badgeService.CheckAndAward(ctx, athlete.ID)
	require.NoError(t, err)
	assert.Empty(t, awarded)

	var score, earnedCount int
	require.NoError(t, db.QueryRow(ctx, `SELECT score FROM users WHERE id = $1`, athlete.ID).Scan(&score))
	require.NoError(t, db.QueryRow(ctx, `SELECT earned_count FROM badges WHERE id = $1`, created.ID).Scan(&earnedCount))
	assert.Equal(t, 150, score, "badge points granted exactly once")
	assert.Equal(t, 1, earnedCount)
}

func TestAwardAndRevokeLeaveScoreUnchanged(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	userService := NewUserService(db, nil)
	statsService := NewStatsService(db)
	badgeService := NewBadgeService(db, statsService, nil)

	admin := createTestUser(t, userService)
	makeAdmin(t, db, admin.ID)
	target := createTestUser(t, userService)

	created, err := badgeService.CreateBadge(ctx, admin.ClerkID, &badge.CreateBadgeRequest{
		Name:     fmt.Sprintf("Hand-Picked %s", uuid.New()),
		Rules:    []badge.Rule{{Type: badge.RuleCustom, Field: "stats.score", Operator: badge.OpGreaterThan, Value: badge.Number(0)}},
		Points:   75,
		IsActive: true,
	})
	require.NoError(t, err)

	require.NoError(t, badgeService.AwardManually(ctx, admin.ClerkID, created.ID, target.ID))

	// Double award conflicts.
	err = badgeService.AwardManually(ctx, admin.ClerkID, created.ID, target.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// Non-admins cannot award.
	err = badgeService.AwardManually(ctx, target.ClerkID, created.ID, admin.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, badgeService.Revoke(ctx, admin.ClerkID, created.ID, target.ID))

	err = badgeService.Revoke(ctx, admin.ClerkID, created.ID, target.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	var score int
	require.NoError(t, db.QueryRow(ctx, `SELECT score FROM users WHERE id = $1`, target.ID).Scan(&score))
	assert.Equal(t, 0, score, "award then revoke nets to zero")

	// Revoking does not burn the badge: re-awarding restores ownership and
	// grants the points again.
	require.NoError(t, badgeService.AwardManually(ctx, admin.ClerkID, created.ID, target.ID))

	owned, err := badgeService.GetUserBadges(ctx, target.ClerkID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, created.ID, owned[0].ID)

	require.NoError(t, db.QueryRow(ctx, `SELECT score FROM users WHERE id = $1`, target.ID).Scan(&score))
	assert.Equal(t, 75, score, "re-award grants the badge points")
}

func TestCompletionWithoutBadgeEngine(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	userService := NewUserService(db, nil)
	challengeService := NewChallengeService(db, nil, nil, nil)

	creator := createTestUser(t, userService)
	athlete := createTestUser(t, userService)

	c, err := challengeService.CreateChallenge(ctx, creator.ClerkID, &challenge.CreateChallengeRequest{
		Title:        "No Frills Finisher",
		Difficulty:   challenge.DifficultyBeginner,
		RewardPoints: 50,
	})
	require.NoError(t, err)

	_, err = challengeService.Join(ctx, athlete.ClerkID, c.ID)
	require.NoError(t, err)

	// Completion must survive a service wired without the badge engine.
	updated, err := challengeService.UpdateProgress(ctx, athlete.ClerkID, c.ID, 100)
	require.NoError(t, err)
	p := updated.ParticipantFor(athlete.ID)
	require.NotNil(t, p)
	require.NotNil(t, p.CompletedAt)

	var score int
	require.NoError(t, db.QueryRow(ctx, `SELECT score FROM users WHERE id = $1`, athlete.ID).Scan(&score))
	assert.Equal(t, 50, score)
}

func TestChallengeJoinProgressAndCompletion(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	userService := NewUserService(db, nil)
	statsService := NewStatsService(db)
	badgeService := NewBadgeService(db, statsService, nil)
	challengeService := NewChallengeService(db, badgeService, nil, nil)

	creator := createTestUser(t, userService)
	athlete := createTestUser(t, userService)

	c, err := challengeService.CreateChallenge(ctx, creator.ClerkID, &challenge.CreateChallengeRequest{
		Title:        "30 Day Squat Streak",
		Difficulty:   challenge.DifficultyBeginner,
		RewardPoints: 200,
	})
	require.NoError(t, err)

	joined, err := challengeService.Join(ctx, athlete.ClerkID, c.ID)
	require.NoError(t, err)
	p := joined.ParticipantFor(athlete.ID)
	require.NotNil(t, p)
	assert.Equal(t, 0, p.Progress, "joining starts at zero progress")

	_, err = challengeService.Join(ctx, athlete.ClerkID, c.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	var totalChallenges int
	require.NoError(t, db.QueryRow(ctx, `SELECT total_challenges FROM users WHERE id = $1`, athlete.ID).Scan(&totalChallenges))
	assert.Equal(t, 1, totalChallenges)

	// Out-of-range input clamps instead of failing.
	updated, err := challengeService.UpdateProgress(ctx, athlete.ClerkID, c.ID, 250)
	require.NoError(t, err)
	p = updated.ParticipantFor(athlete.ID)
	require.NotNil(t, p)
	assert.Equal(t, 100, p.Progress)
	require.NotNil(t, p.CompletedAt)
	firstCompletion := *p.CompletedAt

	var score int
	require.NoError(t, db.QueryRow(ctx, `SELECT score FROM users WHERE id = $1`, athlete.ID).Scan(&score))
	assert.Equal(t, 200, score)

	// A second 100 is not a new completion: no extra points, timestamp kept.
	updated, err = challengeService.UpdateProgress(ctx, athlete.ClerkID, c.ID, 100)
	require.NoError(t, err)
	p = updated.ParticipantFor(athlete.ID)
	require.NotNil(t, p.CompletedAt)
	assert.True(t, p.CompletedAt.Equal(firstCompletion))

	require.NoError(t, db.QueryRow(ctx, `SELECT score FROM users WHERE id = $1`, athlete.ID).Scan(&score))
	assert.Equal(t, 200, score, "reward granted exactly once")

	// Completed participants cannot leave.
	err = challengeService.Leave(ctx, athlete.ClerkID, c.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestChallengeCapacity(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	userService := NewUserService(db, nil)
	challengeService := NewChallengeService(db, nil, nil, nil)

	creator := createTestUser(t, userService)
	first := createTestUser(t, userService)
	second := createTestUser(t, userService)

	one := 1
	c, err := challengeService.CreateChallenge(ctx, creator.ClerkID, &challenge.CreateChallengeRequest{
		Title:           "Exclusive Bootcamp",
		Difficulty:      challenge.DifficultyAdvanced,
		MaxParticipants: &one,
	})
	require.NoError(t, err)

	_, err = challengeService.Join(ctx, first.ClerkID, c.ID)
	require.NoError(t, err)

	_, err = challengeService.Join(ctx, second.ClerkID, c.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Contains(t, err.Error(), "full")
}

func TestInvitationFlow(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	userService := NewUserService(db, nil)
	challengeService := NewChallengeService(db, nil, nil, nil)
	invitationService := NewInvitationService(db, challengeService, nil)

	sender := createTestUser(t, userService)
	friend := createTestUser(t, userService)
	stranger := createTestUser(t, userService)

	require.NoError(t, userService.AddFriend(ctx, sender.ClerkID, friend.ID.String()))

	c, err := challengeService.CreateChallenge(ctx, sender.ClerkID, &challenge.CreateChallengeRequest{
		Title:      "Plank Week",
		Difficulty: challenge.DifficultyIntermediate,
	})
	require.NoError(t, err)

	// Sender must participate before inviting.
	err = invitationService.InviteFriends(ctx, sender.ClerkID, c.ID, []string{friend.ID.String()})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = challengeService.Join(ctx, sender.ClerkID, c.ID)
	require.NoError(t, err)

	// Non-friends cannot be invited.
	err = invitationService.InviteFriends(ctx, sender.ClerkID, c.ID, []string{stranger.ID.String()})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, invitationService.InviteFriends(ctx, sender.ClerkID, c.ID, []string{friend.ID.String()}))

	// Duplicate pending invitation conflicts.
	err = invitationService.InviteFriends(ctx, sender.ClerkID, c.ID, []string{friend.ID.String()})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	pending, err := invitationService.ListPending(ctx, friend.ClerkID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Plank Week", pending[0].ChallengeTitle)

	// Only the recipient may act on it.
	_, err = invitationService.Accept(ctx, stranger.ClerkID, pending[0].ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	joined, err := invitationService.Accept(ctx, friend.ClerkID, pending[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, joined.ParticipantFor(friend.ID))

	// Accepting consumed the invitation.
	pending, err = invitationService.ListPending(ctx, friend.ClerkID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTrainingFeedsSnapshot(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	userService := NewUserService(db, nil)
	statsService := NewStatsService(db)
	trainingService := NewTrainingService(db, nil)

	athlete := createTestUser(t, userService)

	_, err := trainingService.LogTraining(ctx, athlete.ClerkID, &training.LogTrainingRequest{
		Title:           "Morning run",
		Type:            "cardio",
		DurationMinutes: 45,
		Calories:        400,
	})
	require.NoError(t, err)

	_, err = trainingService.LogTraining(ctx, athlete.ClerkID, &training.LogTrainingRequest{
		Title:           "Evening lift",
		Type:            "strength",
		DurationMinutes: 60,
		Calories:        300,
	})
	require.NoError(t, err)

	snap, err := statsService.BuildSnapshot(ctx, athlete.ID)
	require.NoError(t, err)

	count, ok := snap.Resolve("stats.trainingCount")
	require.True(t, ok)
	assert.EqualValues(t, 2, count)

	minutes, ok := snap.Resolve("stats.totalTrainingMinutes")
	require.True(t, ok)
	assert.EqualValues(t, 105, minutes)

	calories, ok := snap.Resolve("stats.totalCaloriesBurned")
	require.True(t, ok)
	assert.EqualValues(t, 700, calories)

	// Invalid input is rejected up front.
	_, err = trainingService.LogTraining(ctx, athlete.ClerkID, &training.LogTrainingRequest{
		Title:           "Time travel",
		DurationMinutes: -10,
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestJoinRespectsChallengeWindow(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	userService := NewUserService(db, nil)
	challengeService := NewChallengeService(db, nil, nil, nil)

	creator := createTestUser(t, userService)
	athlete := createTestUser(t, userService)

	future := time.Now().Add(24 * time.Hour)
	c, err := challengeService.CreateChallenge(ctx, creator.ClerkID, &challenge.CreateChallengeRequest{
		Title:      "Not Yet Open",
		Difficulty: challenge.DifficultyBeginner,
		StartDate:  &future,
	})
	require.NoError(t, err)

	_, err = challengeService.Join(ctx, athlete.ClerkID, c.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Contains(t, err.Error(), "not started")
}
