package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/omi1811/concretethings-sub000/internal/blob"
	"github.com/omi1811/concretethings-sub000/internal/config"
	"github.com/omi1811/concretethings-sub000/internal/notify"
	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/handler"
	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
	"github.com/omi1811/concretethings-sub000/internal/qsm/service"
	"github.com/omi1811/concretethings-sub000/internal/qsm/sse"
	"github.com/omi1811/concretethings-sub000/internal/scheduler"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	if err := migrate(db); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis unreachable, job leases degrade to per-instance", zap.Error(err))
	}

	blobs, err := blob.New(context.Background(), cfg.MinIO)
	if err != nil {
		logger.Fatal("blob store", zap.Error(err))
	}

	hub := sse.NewHub()
	repos := repository.NewRepositories(db)

	transports := []notify.Transport{
		notify.NewWhatsAppTransport(cfg.Notify.WhatsappAPIBase, cfg.Notify.WhatsappToken, cfg.Notify.WhatsappSender),
		notify.NewEmailTransport(cfg.Notify.SMTPHost, cfg.Notify.SMTPPort, cfg.Notify.SMTPUser, cfg.Notify.SMTPPass, cfg.Notify.SMTPFrom),
		notify.NewInAppTransport(hub),
	}
	dispatcher := notify.NewDispatcher(transports, repos.User, repos.Notification, repos.Project, logger, cfg.Notify.MaxRetries)

	services := service.NewServices(db, repos, dispatcher, logger)

	jobs := scheduler.New(rdb, services, dispatcher, cfg.Jobs, logger)
	jobs.Start()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	handlers := handler.NewHandlers(services, repos, blobs, hub, jobs)
	handler.RegisterRoutes(engine, handlers, cfg.JWT.Secret, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: 0, // SSE streams stay open
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	jobs.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.Project{},
		&entity.ProjectSettings{},
		&entity.ProjectMembership{},
		&entity.Vendor{},
		&entity.MixDesign{},
		&entity.VehicleEntry{},
		&entity.PourActivity{},
		&entity.Batch{},
		&entity.CubeTest{},
		&entity.TestReminder{},
		&entity.NonConformance{},
		&entity.NCTransfer{},
		&entity.NotificationLog{},
		&entity.AuditEntry{},
		&entity.SequenceCounter{},
	)
}
