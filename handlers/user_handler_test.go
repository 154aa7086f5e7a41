package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitTribeAPI/internal/types/user"
	"fitTribeAPI/middleware"
	"fitTribeAPI/services"
)

// Handler tests that hit the database. Set TEST_DATABASE_URL (or DATABASE_URL)
// to enable them; otherwise they skip. Tests that never reach a service run
// unconditionally.
func setupHandlerDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping handler test")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.Exec(ctx, `CREATE TABLE IF NOT EXISTS users (
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
	)`)
	require.NoError(t, err)

	return db
}

func authedRequest(method, target string, clerkID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(req.Context(), middleware.ClerkIDKey, clerkID)
	return req.WithContext(ctx)
}

func TestGetProfileUnauthenticated(t *testing.T) {
	handler := NewUserHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
	rr := httptest.NewRecorder()
	handler.GetProfile(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Contains(t, body["error"], "not authenticated")
}

func TestGetProfileAuthenticated(t *testing.T) {
	db := setupHandlerDB(t)
	ctx := context.Background()

	userService := services.NewUserService(db, nil)
	handler := NewUserHandler(userService, services.NewStatsService(db))

	clerkID := "user_" + uuid.NewString()
	created, err := userService.CreateUser(ctx, &user.CreateUserRequest{
		ClerkID:   clerkID,
		Email:     fmt.Sprintf("%s@example.com", clerkID),
		Username:  "profiletester",
		FirstName: "Pro",
		LastName:  "File",
	})
	require.NoError(t, err)

	req := authedRequest(http.MethodGet, "/api/v1/user", clerkID)
	rr := httptest.NewRecorder()
	handler.GetProfile(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var got user.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, clerkID, got.ClerkID)
	assert.Equal(t, "profiletester", got.Username)
}

func TestGetProfileUnknownUser(t *testing.T) {
	db := setupHandlerDB(t)

	handler := NewUserHandler(services.NewUserService(db, nil), services.NewStatsService(db))

	req := authedRequest(http.MethodGet, "/api/v1/user", "user_"+uuid.NewString())
	rr := httptest.NewRecorder()
	handler.GetProfile(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
