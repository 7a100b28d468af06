package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/aliraza-090/Library-Management/internal/availability"
	"github.com/aliraza-090/Library-Management/internal/engine"
	"github.com/aliraza-090/Library-Management/internal/handlers"
	"github.com/aliraza-090/Library-Management/internal/models"
	"github.com/aliraza-090/Library-Management/internal/queries"
	"github.com/aliraza-090/Library-Management/internal/repositories"
)

const (
	// Sweep cadences: fines are rechecked hourly, reissue locks daily.
	overdueSweepInterval = time.Hour
	unlockSweepInterval  = 24 * time.Hour
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get generic DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Book{},
		&models.BorrowRecord{},
		&models.FineAssessment{},
	); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	userRepo := repositories.NewUserRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	borrowRepo := repositories.NewBorrowRepository(db)
	fineRepo := repositories.NewFineAssessmentRepository(db)

	tracker := availability.NewTracker(bookRepo)
	eng := engine.NewEngine(db, userRepo, bookRepo, borrowRepo, fineRepo, tracker)
	querySvc := queries.NewService(borrowRepo)

	// The engine holds no timer state; these tickers are the external
	// scheduler invoking its sweep entry points.
	go runSweep("overdue recompute", overdueSweepInterval, func(asOf time.Time) engine.SweepResult {
		return eng.RecomputeOverdue(asOf)
	})
	go runSweep("reissue unlock", unlockSweepInterval, func(asOf time.Time) engine.SweepResult {
		return eng.UnlockExpiredReissues(asOf)
	})

	router := gin.Default()

	handlers.RegisterRoutes(router, eng, querySvc, bookRepo, userRepo)

	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("Starting server on %s", serverAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func runSweep(name string, interval time.Duration, sweep func(time.Time) engine.SweepResult) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for now := range ticker.C {
		result := sweep(now.UTC())
		log.Printf("[INFO] sweep %q: updated=%d skipped=%d failed=%d", name, result.Updated, result.Skipped, result.Failed)
	}
}
