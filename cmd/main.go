package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"circulation/internal/config"
	"circulation/internal/handlers"
	"circulation/internal/notify"
	"circulation/internal/repositories"
	"circulation/internal/scheduler"
	"circulation/internal/services"
	"circulation/internal/telemetry"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
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

	if cfg.AutoMigrate {
		if err := repositories.Migrate(db); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
	}

	repos := services.NewRepositories(db)
	dispatcher := notify.NewDispatcher(db,
		repositories.NewNotificationRepository(db), repos.Loans, repos.Holds,
		notify.Options{Mailer: newMailer(cfg), RatePerMinute: cfg.MailRatePerMin})

	circulation := services.NewCirculationService(db, repos, services.Options{
		Policy: services.Policy{
			LoanPeriodDays:    cfg.LoanPeriodDays,
			RenewalLimit:      cfg.RenewalLimit,
			HoldPickupDays:    cfg.HoldPickupDays,
			RequestPickupDays: cfg.RequestPickupDays,
			FinePerDay:        cfg.FinePerDay,
		},
		Notifier: dispatcher,
	})

	cron, err := scheduler.New(cfg.Schedules, circulation, dispatcher, cfg.MailBatchSize)
	if err != nil {
		log.Fatalf("failed to schedule sweeps: %v", err)
	}
	cron.Start()

	router := gin.Default()
	handlers.RegisterRoutes(router, circulation, dispatcher)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] server shutdown: %v", err)
	}
	<-cron.Stop().Done()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("[WARN] tracing shutdown: %v", err)
	}
}

func newMailer(cfg *config.Config) notify.Mailer {
	if cfg.SMTPAddr == "" {
		return notify.LogMailer{}
	}
	return notify.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
}
