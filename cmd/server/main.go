package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"authorship-service/config"
	"authorship-service/internal/api"
	"authorship-service/internal/auth"
	"authorship-service/internal/broker"
	"authorship-service/internal/gateway"
	"authorship-service/internal/notify"
	"authorship-service/internal/redisclient"
	"authorship-service/internal/service"
	"authorship-service/internal/storage"
	"authorship-service/internal/store"
	"authorship-service/internal/util"
	"authorship-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting authorship service")

	tp, err := util.InitTracer("authorship-service", cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	if err := store.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db, err := store.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPurchase)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	// Interface values stay nil when a collaborator is not configured.
	var (
		gateways     []gateway.Gateway
		walletClient service.WalletClient
		uploader     service.CoverUploader
	)

	wallet, err := gateway.NewWallet(&gateway.WalletConfig{
		BaseURL:     cfg.Wallet.BaseURL,
		MerchantID:  cfg.Wallet.MerchantID,
		SaltKey:     cfg.Wallet.SaltKey,
		SaltIndex:   cfg.Wallet.SaltIndex,
		CallbackURL: cfg.Wallet.CallbackURL,
		RedirectURL: cfg.Wallet.RedirectURL,
		Timeout:     cfg.Business.GatewayTimeout(),
	})
	if err != nil {
		logger.Warn("Wallet gateway disabled", zap.Error(err))
	} else {
		gateways = append(gateways, wallet)
		walletClient = wallet
	}

	bank, err := gateway.NewBankVerifier(&gateway.BankConfig{
		URL:          cfg.Bank.URL,
		ClientID:     cfg.Bank.ClientID,
		ClientSecret: cfg.Bank.ClientSecret,
		Timeout:      cfg.Business.GatewayTimeout(),
	})
	if err != nil {
		logger.Warn("Bank verification gateway disabled", zap.Error(err))
	} else {
		gateways = append(gateways, bank)
	}

	if cfg.Storage.Bucket != "" {
		s3, err := storage.NewS3Uploader(context.Background(), storage.Config{
			Endpoint:     cfg.Storage.Endpoint,
			Region:       cfg.Storage.Region,
			Bucket:       cfg.Storage.Bucket,
			AccessKey:    cfg.Storage.AccessKey,
			SecretKey:    cfg.Storage.SecretKey,
			PublicURL:    cfg.Storage.PublicURL,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
		if err != nil {
			log.Fatalf("Failed to initialize object storage: %v", err)
		}
		uploader = s3
	}

	ledger := service.NewLedger(db, redisClient, cfg.Business.HoldTTL())
	coupons := service.NewCouponEvaluator(db)
	reconciler := service.NewReconciler(db, walletClient, redisClient, eventPublisher, service.ReconcilerConfig{
		DedupeTTL:        cfg.Business.WebhookDedupeTTL(),
		PendingPollAfter: cfg.Business.PendingPollAfter(),
		AbandonAfter:     cfg.Business.AbandonAfter(),
	})

	services := api.Services{
		Catalog:    service.NewCatalogService(db, ledger, uploader),
		Coupons:    coupons,
		Purchases:  service.NewPurchaseService(db, ledger, coupons, eventPublisher),
		Payments:   service.NewPaymentService(db, reconciler, eventPublisher, gateways...),
		Reconciler: reconciler,
		Refunds:    service.NewRefundService(db, walletClient, eventPublisher),
		Analytics:  service.NewAnalyticsService(db),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	reconcileWorker := worker.NewReconcileWorker(reconciler, cfg.Business.ReconcileInterval())
	go func() {
		if err := reconcileWorker.Start(workerCtx); err != nil {
			logger.Error("Reconcile worker error", zap.Error(err))
		}
	}()

	var notificationWorker *worker.NotificationWorker
	if cfg.Email.SMTPHost != "" {
		sender := notify.NewSMTPEmailSender(notify.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     strconv.Itoa(cfg.Email.SMTPPort),
			User:     cfg.Email.SMTPUser,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		})
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPurchase, cfg.Kafka.ConsumerGroup)
		notificationWorker = worker.NewNotificationWorker(consumer, sender)
		go func() {
			if err := notificationWorker.Start(workerCtx); err != nil {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("SMTP not configured, purchase emails disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer))
	handler.AddReadinessCheck("postgres", db.Ping)
	handler.AddReadinessCheck("redis", redisClient.Ping)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if notificationWorker != nil {
		if err := notificationWorker.Stop(); err != nil {
			logger.Warn("Failed to stop notification worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
