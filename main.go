package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coachly/config"
	"coachly/cron"
	"coachly/database"
	availabilityRepo "coachly/database/repository/availability"
	bookingRepoPkg "coachly/database/repository/booking"
	outboxRepoPkg "coachly/database/repository/outbox"
	paymentRepoPkg "coachly/database/repository/payment"
	"coachly/handlers"
	"coachly/middleware"
	"coachly/routes"
	"coachly/services/booking"
	"coachly/services/event"
	"coachly/services/payment"
	"coachly/utils"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()
	stripe.Key = config.AppConfig.StripeKey

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.RateLimitMiddleware())

	// repositories.
	bookingRepo := bookingRepoPkg.NewMongoBookingRepo()
	if err := bookingRepo.EnsureIndexes(); err != nil {
		logger.Sugar().Fatalf("main: failed to create booking indexes: %v", err)
	}
	paymentRepo := paymentRepoPkg.NewMongoPaymentRepo()
	outboxRepo := outboxRepoPkg.NewMongoOutboxRepo()
	availRepo := availabilityRepo.NewMongoAvailabilityRepo()

	// payment coordination.
	coordinator := payment.NewCoordinator(
		paymentRepo,
		payment.NewStripeGateway(),
		logger,
		config.AppConfig.ProviderMaxRetryAttempts,
		time.Duration(config.AppConfig.ProviderTimeoutSeconds)*time.Second,
	)

	// event pipeline: transactional outbox drained into RabbitMQ.
	emitter := event.NewOutboxEmitter(outboxRepo, logger)
	publisher, err := event.NewRabbitPublisher(config.AppConfig.AMQPURL, config.AppConfig.EventExchange)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to connect event publisher: %v", err)
	}
	dispatcher := event.NewDispatcher(outboxRepo, publisher, logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	go dispatcher.Run(bgCtx)

	// booking core.
	clock := booking.SystemClock()
	scheduler := cron.NewSessionScheduler()
	bookingService := &booking.DefaultBookingService{
		Repo:         bookingRepo,
		Availability: booking.NewAvailabilityChecker(availRepo, utils.GetCacheClient()),
		Conflicts:    booking.NewConflictChecker(bookingRepo),
		Machine:      booking.NewStateMachine(bookingRepo),
		Payments:     coordinator,
		Events:       emitter,
		Scheduler:    scheduler,
		Policy: booking.NewCancellationPolicy(
			clock,
			config.AppConfig.CancellationCutoffHours,
			config.AppConfig.FullRefundHours,
			config.AppConfig.PartialRefundPercent,
		),
		Clock:  clock,
		Logger: logger,
	}

	// background workers: deferred session starts and stale-pending reclaim.
	worker := cron.InitSessionWorker(bookingService, logger)
	sweeper := cron.NewStalePendingSweeper(bookingRepo, bookingService, logger)
	go sweeper.Run(bgCtx)

	// handlers and routes.
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(availRepo, bookingService.Availability, logger)
	routes.RegisterRoutes(router, bookingHandler, availabilityHandler)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	bgCancel()
	worker.Shutdown()
	if err := scheduler.Close(); err != nil {
		logger.Sugar().Warnf("main: failed to close task scheduler: %v", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Sugar().Warnf("main: failed to close event publisher: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
