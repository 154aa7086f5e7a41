package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitTribeAPI/internal/apperr"
	"fitTribeAPI/internal/types/notification"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// NotificationService persists notifications and pushes them out through a
// small worker pool. Everything here is best effort: the callers' primary
// operations never depend on a notification landing.
type NotificationService struct {
	db           *pgxpool.Pool
	pushProvider PushNotificationProvider
	jobQueue     chan *pushJob
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

type pushJob struct {
	userID uuid.UUID
	title  string
	body   string
	data   map[string]any
}

const notificationWorkers = 5

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	s := &NotificationService{
		db:       db,
		jobQueue: make(chan *pushJob, 100),
		stopChan: make(chan struct{}),
	}
	for i := 0; i < notificationWorkers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// SetPushProvider injects the real FCM provider from main.go.
func (s *NotificationService) SetPushProvider(provider PushNotificationProvider) {
	s.pushProvider = provider
}

// Notify stores the notification and queues a push. Non-blocking: if the
// queue is full the push is dropped and only the stored row remains.
func (s *NotificationService) Notify(userID uuid.UUID, typ notification.Type, title, body string, data map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dataJSON, err := json.Marshal(data)
	if err != nil {
		log.Printf("Notify: failed to encode data: %v", err)
		dataJSON = []byte(`{}`)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, data, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, NOW())
	`, uuid.New(), userID, typ, title, body, dataJSON)
	if err != nil {
		log.Printf("Notify: failed to store notification for %s: %v", userID, err)
		return
	}

	select {
	case s.jobQueue <- &pushJob{userID: userID, title: title, body: body, data: data}:
	default:
		log.Printf("Notify: push queue full, dropping push for %s", userID)
	}
}

func (s *NotificationService) worker() {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.jobQueue:
			s.processJob(job)
		case <-s.stopChan:
			return
		}
	}
}

func (s *NotificationService) processJob(job *pushJob) {
	if s.pushProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tokens, err := s.deviceTokens(ctx, job.userID)
	if err != nil {
		log.Printf("processJob: failed to load device tokens for %s: %v", job.userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	if err := s.pushProvider.SendPush(ctx, tokens, job.title, job.body, job.data); err != nil {
		log.Printf("processJob: push failed for %s: %v", job.userID, err)
	}
}

// Close drains the workers. Used on shutdown.
func (s *NotificationService) Close() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *NotificationService) GetNotifications(ctx context.Context, clerkID string, limit int) ([]*notification.Notification, error) {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, type, title, body, data, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		n := &notification.Notification{}
		var dataJSON []byte
		err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &dataJSON, &n.IsRead, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &n.Data); err != nil {
				log.Printf("GetNotifications: bad data payload on %s: %v", n.ID, err)
			}
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *NotificationService) MarkAsRead(ctx context.Context, clerkID string, notificationID uuid.UUID) error {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(ctx, `
		UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("notification not found")
	}
	return nil
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, clerkID string) (int, error) {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}

func (s *NotificationService) RegisterDevice(ctx context.Context, clerkID string, req *notification.RegisterDeviceRequest) error {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	if req.Token == "" {
		return apperr.Validation("device token is required")
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO device_tokens (id, user_id, token, platform, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform
	`, uuid.New(), userID, req.Token, req.Platform)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *NotificationService) deviceTokens(ctx context.Context, userID uuid.UUID) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, token, platform, created_at FROM device_tokens WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Platform, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *NotificationService) getUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
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
