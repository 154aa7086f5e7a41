package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skip2/go-qrcode"

	"fitTribeAPI/internal/apperr"
	"fitTribeAPI/internal/types/gym"
)

type GymService struct {
	db *pgxpool.Pool
}

func NewGymService(db *pgxpool.Pool) *GymService {
	return &GymService{db: db}
}

func (s *GymService) CreateGym(ctx context.Context, clerkID string, req *gym.CreateGymRequest) (*gym.Gym, error) {
	ownerID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	if req.Name == "" {
		return nil, apperr.Validation("gym name is required")
	}

	g := &gym.Gym{}
	err = s.db.QueryRow(ctx, `
		INSERT INTO gyms (id, name, description, address, city, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, name, description, address, city, owner_id, created_at
	`, uuid.New(), req.Name, req.Description, req.Address, req.City, ownerID).Scan(
		&g.ID, &g.Name, &g.Description, &g.Address, &g.City, &g.OwnerID, &g.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gym: %w", err)
	}

	log.Printf("CreateGym: %s created gym %q (%s)", clerkID, g.Name, g.ID)
	return g, nil
}

func (s *GymService) ListGyms(ctx context.Context) ([]*gym.Gym, error) {
	rows, err := s.db.Query(ctx, `
		SELECT g.id, g.name, g.description, g.address, g.city, g.owner_id, g.created_at,
		       COUNT(m.user_id) AS member_count
		FROM gyms g
		LEFT JOIN gym_members m ON m.gym_id = g.id
		GROUP BY g.id
		ORDER BY g.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list gyms: %w", err)
	}
	defer rows.Close()

	var gyms []*gym.Gym
	for rows.Next() {
		g := &gym.Gym{}
		err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Address, &g.City, &g.OwnerID, &g.CreatedAt, &g.MemberCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gym: %w", err)
		}
		gyms = append(gyms, g)
	}
	return gyms, rows.Err()
}

func (s *GymService) Subscribe(ctx context.Context, clerkID string, gymID uuid.UUID) error {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	if err := s.gymExists(ctx, gymID); err != nil {
		return err
	}

	var subscribed bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM gym_members WHERE gym_id = $1 AND user_id = $2)
	`, gymID, userID).Scan(&subscribed)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if subscribed {
		return apperr.Conflict("already subscribed to this gym")
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO gym_members (gym_id, user_id, joined_at) VALUES ($1, $2, NOW())
	`, gymID, userID)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	log.Printf("Subscribe: %s subscribed to gym %s", clerkID, gymID)
	return nil
}

func (s *GymService) Unsubscribe(ctx context.Context, clerkID string, gymID uuid.UUID) error {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(ctx, `
		DELETE FROM gym_members WHERE gym_id = $1 AND user_id = $2
	`, gymID, userID)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("not subscribed to this gym")
	}
	return nil
}

// MembershipQR renders the gym's check-in code as a base64 PNG the mobile
// app can display or scan.
func (s *GymService) MembershipQR(ctx context.Context, gymID uuid.UUID) (*gym.MembershipQR, error) {
	if err := s.gymExists(ctx, gymID); err != nil {
		return nil, err
	}

	shareLink := fmt.Sprintf("%s/gyms/%s", appBaseURL(), gymID)
	pngBytes, err := qrcode.Encode(shareLink, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	return &gym.MembershipQR{
		GymID:     gymID,
		QRCode:    base64.StdEncoding.EncodeToString(pngBytes),
		ShareLink: shareLink,
	}, nil
}

func (s *GymService) gymExists(ctx context.Context, gymID uuid.UUID) error {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM gyms WHERE id = $1)`, gymID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check gym: %w", err)
	}
	if !exists {
		return apperr.NotFound("gym not found")
	}
	return nil
}

func (s *GymService) getUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
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

func appBaseURL() string {
	if base := os.Getenv("APP_BASE_URL"); base != "" {
		return base
	}
	return "https://fittribe.app"
}
