package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fitTribeAPI/handlers"
	"fitTribeAPI/internal/notification"
	"fitTribeAPI/middleware"
	"fitTribeAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool              *pgxpool.Pool
	notificationService *services.NotificationService
	userService         *services.UserService
	statsService        *services.StatsService
	badgeService        *services.BadgeService
	challengeService    *services.ChallengeService
	invitationService   *services.InvitationService
	trainingService     *services.TrainingService
	gymService          *services.GymService
	liveFeed            *services.LiveFeed
	fcmService          *notification.FCMService
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to database")

	liveFeed = services.NewLiveFeed()
	notificationService = services.NewNotificationService(dbPool)
	userService = services.NewUserService(dbPool, notificationService)
	statsService = services.NewStatsService(dbPool)
	badgeService = services.NewBadgeService(dbPool, statsService, notificationService)
	challengeService = services.NewChallengeService(dbPool, badgeService, notificationService, liveFeed)
	invitationService = services.NewInvitationService(dbPool, challengeService, notificationService)
	trainingService = services.NewTrainingService(dbPool, badgeService)
	gymService = services.NewGymService(dbPool)

	fcmService, err = notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		notificationService.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService, statsService)
	badgeHandler := handlers.NewBadgeHandler(badgeService)
	challengeHandler := handlers.NewChallengeHandler(challengeService)
	invitationHandler := handlers.NewInvitationHandler(invitationService)
	trainingHandler := handlers.NewTrainingHandler(trainingService)
	gymHandler := handlers.NewGymHandler(gymService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	webhookHandler := handlers.NewWebhookHandler(userService)
	liveHandler := handlers.NewLiveHandler(liveFeed)

	r := mux.NewRouter()

	// Websocket route stays outside the rate limiter, long-lived connections
	// don't play well with per-request accounting.
	r.HandleFunc("/api/v1/challenges/{id}/live", liveHandler.WatchChallenge)

	standardRouter := r.PathPrefix("/").Subrouter()

	go middleware.CleanupVisitors()

	standardRouter.Use(middleware.RateLimitMiddleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "fitTribe-api"}`))
	}).Methods("GET")

	standardRouter.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/user", userHandler.GetProfile).Methods("GET")
	protected.HandleFunc("/user/update-profile", userHandler.UpdateProfile).Methods("PUT")
	protected.HandleFunc("/user/delete-account", userHandler.DeleteAccount).Methods("DELETE")
	protected.HandleFunc("/user/friends", userHandler.GetFriends).Methods("GET")
	protected.HandleFunc("/user/friends", userHandler.AddFriend).Methods("POST")
	protected.HandleFunc("/user/friends", userHandler.RemoveFriend).Methods("DELETE")
	protected.HandleFunc("/user/stats", userHandler.GetStats).Methods("GET")
	protected.HandleFunc("/leaderboards/global", userHandler.GetGlobalLeaderboard).Methods("GET")
	protected.HandleFunc("/leaderboards/friends", userHandler.GetFriendsLeaderboard).Methods("GET")

	protected.HandleFunc("/badges", badgeHandler.ListBadges).Methods("GET")
	protected.HandleFunc("/badges", badgeHandler.CreateBadge).Methods("POST")
	protected.HandleFunc("/badges/check", badgeHandler.CheckBadges).Methods("POST")
	protected.HandleFunc("/badges/mine", badgeHandler.GetMyBadges).Methods("GET")
	protected.HandleFunc("/badges/{id}", badgeHandler.GetBadge).Methods("GET")
	protected.HandleFunc("/badges/{id}", badgeHandler.UpdateBadge).Methods("PUT")
	protected.HandleFunc("/badges/{id}", badgeHandler.DeleteBadge).Methods("DELETE")
	protected.HandleFunc("/badges/{id}/award", badgeHandler.AwardBadge).Methods("POST")
	protected.HandleFunc("/badges/{id}/revoke", badgeHandler.RevokeBadge).Methods("POST")

	protected.HandleFunc("/challenges", challengeHandler.ListChallenges).Methods("GET")
	protected.HandleFunc("/challenges", challengeHandler.CreateChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{id}", challengeHandler.GetChallenge).Methods("GET")
	protected.HandleFunc("/challenges/{id}", challengeHandler.DeleteChallenge).Methods("DELETE")
	protected.HandleFunc("/challenges/{id}/join", challengeHandler.JoinChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{id}/leave", challengeHandler.LeaveChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{id}/progress", challengeHandler.UpdateProgress).Methods("PUT")
	protected.HandleFunc("/challenges/{id}/leaderboard", challengeHandler.GetLeaderboard).Methods("GET")
	protected.HandleFunc("/challenges/{id}/invite", invitationHandler.InviteFriends).Methods("POST")

	protected.HandleFunc("/invitations", invitationHandler.GetPendingInvitations).Methods("GET")
	protected.HandleFunc("/invitations/{id}/accept", invitationHandler.AcceptInvitation).Methods("POST")
	protected.HandleFunc("/invitations/{id}/reject", invitationHandler.RejectInvitation).Methods("POST")

	protected.HandleFunc("/trainings", trainingHandler.GetTrainings).Methods("GET")
	protected.HandleFunc("/trainings", trainingHandler.LogTraining).Methods("POST")
	protected.HandleFunc("/trainings/{id}", trainingHandler.DeleteTraining).Methods("DELETE")

	protected.HandleFunc("/gyms", gymHandler.GetGyms).Methods("GET")
	protected.HandleFunc("/gyms", gymHandler.CreateGym).Methods("POST")
	protected.HandleFunc("/gyms/{id}/subscribe", gymHandler.Subscribe).Methods("POST")
	protected.HandleFunc("/gyms/{id}/subscribe", gymHandler.Unsubscribe).Methods("DELETE")
	protected.HandleFunc("/gyms/{id}/qr", gymHandler.GetMembershipQR).Methods("GET")

	protected.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	protected.HandleFunc("/notifications/unread-count", notificationHandler.GetUnreadCount).Methods("GET")
	protected.HandleFunc("/notifications/{id}/read", notificationHandler.MarkAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r), // Pass the root router 'r'
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	notificationService.Close()
	log.Println("Server shutdown complete")
}
