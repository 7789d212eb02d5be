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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"momentumAPI/handlers"
	"momentumAPI/internal/config"
	"momentumAPI/internal/database"
	"momentumAPI/internal/metrics"
	"momentumAPI/internal/notification"
	"momentumAPI/internal/streak"
	"momentumAPI/internal/workers"
	"momentumAPI/middleware"
	"momentumAPI/services"
)

var (
	dbPool              *pgxpool.Pool
	notificationService *services.NotificationService
	insightService      *services.InsightService
	challengeService    *services.ChallengeService
	checkInService      *services.CheckInService
	reconcilerService   *services.ReconcilerService
	retentionService    *services.RetentionService
	fcmService          *notification.FCMService
	referenceLocation   *time.Location
)

func init() {
	if err := config.Load(); err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	if config.Cfg.ClerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(config.Cfg.ClerkSecretKey)
	log.Println("Clerk initialized successfully")

	if config.Cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	dbPool, err = database.NewPool(ctx, config.Cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}
	log.Println("Successfully connected to Postgres")

	if err := database.Migrate(ctx, dbPool); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	referenceLocation, err = time.LoadLocation(config.Cfg.ReferenceTimezone)
	if err != nil {
		log.Fatal("Invalid REFERENCE_TIMEZONE:", err)
	}

	unit := streak.ParseUnit(config.Cfg.StreakUnit)

	notificationService = services.NewNotificationService(dbPool)
	insightService = services.NewInsightService(config.Cfg.InsightServiceURL)
	challengeService = services.NewChallengeService(dbPool, notificationService)
	checkInService = services.NewCheckInService(dbPool, notificationService, insightService, referenceLocation, unit)
	reconcilerService = services.NewReconcilerService(dbPool, notificationService, insightService, referenceLocation, config.Cfg.ReconcilerBatchSize)
	retentionService = services.NewRetentionService(dbPool, notificationService)

	fcmService, err = notification.NewFCMService(config.Cfg.FCMCredentialsFile)
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		notificationService.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	middleware.InitPrometheus()
	metrics.Register()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	challengeHandler := handlers.NewChallengeHandler(challengeService)
	checkInHandler := handlers.NewCheckInHandler(checkInService, challengeService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	cronHandler := handlers.NewCronHandler(reconcilerService, retentionService)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
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
		w.Write([]byte(`{"status": "healthy", "service": "momentum-api"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/challenges", challengeHandler.CreateChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{id}", challengeHandler.GetChallenge).Methods("GET")
	protected.HandleFunc("/challenges/{id}/join", challengeHandler.JoinChallenge).Methods("POST")

	protected.HandleFunc("/enrollments", challengeHandler.ListEnrollments).Methods("GET")
	protected.HandleFunc("/enrollments/{id}/leave", challengeHandler.LeaveChallenge).Methods("POST")
	protected.HandleFunc("/enrollments/{id}/exit", challengeHandler.ExitChallenge).Methods("POST")
	protected.HandleFunc("/enrollments/{id}/partners", challengeHandler.AddPartner).Methods("POST")

	protected.HandleFunc("/checkins", checkInHandler.RecordCheckIn).Methods("POST")
	protected.HandleFunc("/checkins/{id}/note", checkInHandler.EditNote).Methods("PUT")

	protected.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	protected.HandleFunc("/notifications/unread-count", notificationHandler.GetUnreadCount).Methods("GET")
	protected.HandleFunc("/notifications/{id}/read", notificationHandler.MarkAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/read-all", notificationHandler.MarkAllAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/preferences", notificationHandler.GetPreferences).Methods("GET")
	protected.HandleFunc("/notifications/preferences", notificationHandler.UpdatePreferences).Methods("PUT")
	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	// -------------------------------------------------------------------------
	// SCHEDULED JOB TRIGGERS (REQUIRE CRON SECRET)
	// -------------------------------------------------------------------------
	cron := api.PathPrefix("/cron").Subrouter()
	cron.Use(middleware.CronAuthMiddleware)

	cron.HandleFunc("/daily-reconciliation", cronHandler.RunDailyReconciliation).Methods("POST")
	cron.HandleFunc("/grace-reset", cronHandler.RunGraceReset).Methods("POST")
	cron.HandleFunc("/retention-sweep", cronHandler.RunRetentionSweep).Methods("POST")

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if config.Cfg.RunWorkers {
		workers.Start(workerCtx, reconcilerService, retentionService)
		log.Println("In-process job workers started")
	}

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := ":" + config.Cfg.Port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
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
	stopWorkers()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
