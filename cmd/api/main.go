package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/example/cleancity/backend/internal/ai"
	"github.com/example/cleancity/backend/internal/config"
	"github.com/example/cleancity/backend/internal/db"
	httpserver "github.com/example/cleancity/backend/internal/http"
	"github.com/example/cleancity/backend/internal/models"
	"github.com/example/cleancity/backend/internal/mq"
	"github.com/example/cleancity/backend/internal/repository"
	"github.com/example/cleancity/backend/internal/service"
	"github.com/example/cleancity/backend/internal/storage"
	"github.com/example/cleancity/backend/internal/weather"
	"github.com/example/cleancity/backend/internal/worker"
)

func main() {
	cfg := config.Load()

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	autoMigrate(database)

	var publisher mq.Publisher
	rabbit, err := mq.NewRabbitPublisher(cfg.MQURL, cfg.MQExchange)
	if err != nil {
		log.Printf("warning: rabbitmq unavailable (%v), continuing without events", err)
	} else {
		publisher = rabbit
	}

	ticketRepo := repository.NewTicketRepository(database)
	jobRepo := repository.NewJobRepository(database)

	store := storage.NewClient(cfg.StorageURL, cfg.StorageBucket, cfg.StorageToken, cfg.ServiceTimeout)
	reportService := service.NewReportService(
		ticketRepo,
		ai.NewVisionClient(cfg.VisionURL, cfg.ServiceTimeout),
		ai.NewValueClient(cfg.ValueURL, cfg.ServiceTimeout),
		ai.NewSpeechClient(cfg.SpeechURL, cfg.ServiceTimeout),
		ai.NewNLPClient(cfg.NLPURL, cfg.ServiceTimeout),
		weather.NewClient(cfg.WeatherURL, cfg.WeatherAPIKey, cfg.ServiceTimeout),
		store,
		publisher,
		cfg.DedupToleranceDeg,
	)
	jobService := service.NewJobService(jobRepo, ticketRepo, store, publisher)
	verifyService := service.NewVerifyService(
		ticketRepo,
		jobRepo,
		store,
		ai.NewComparator(cfg.OpenAIAPIKey, cfg.CompareModel),
		publisher,
		cfg.MaxCompareImageBytes,
	)

	apiServer := httpserver.NewServer(reportService, jobService, verifyService, cfg.MaxImageBytes)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.VerifyWorkers > 0 {
		for i := 0; i < cfg.VerifyWorkers; i++ {
			go worker.NewVerifyWorker(verifyService, ticketRepo, cfg.VerifyPollInterval, 0).Run(ctx)
		}
	}

	srv := &http.Server{
		Addr:    cfg.HTTPPort,
		Handler: apiServer.Engine,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown initiated")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if rabbit != nil {
		_ = rabbit.Close()
	}
	log.Println("bye")
}

func autoMigrate(db *gorm.DB) {
	if err := db.AutoMigrate(
		&models.Ticket{},
		&models.Job{},
		&models.JobTicket{},
		&models.WorkerAttendance{},
	); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
}

func init() {
	if mode := os.Getenv("GIN_MODE"); mode == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
