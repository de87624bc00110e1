package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/glaucoscan/internal/classifier"
	"github.com/example/glaucoscan/internal/config"
	"github.com/example/glaucoscan/internal/events"
	"github.com/example/glaucoscan/internal/grpcclient"
	"github.com/example/glaucoscan/internal/handlers"
	"github.com/example/glaucoscan/internal/imagestore"
	"github.com/example/glaucoscan/internal/logging"
	"github.com/example/glaucoscan/internal/metrics"
	"github.com/example/glaucoscan/internal/repository"
	"github.com/example/glaucoscan/internal/session"
	"github.com/example/glaucoscan/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg, logger)
	m := metrics.New()

	users := repository.NewUserRepository(db, logger)
	results := repository.NewResultRepository(db, logger)
	accounts := usecase.NewAccountUseCase(users, m, logger)
	if cfg.Admin.Username != "" {
		if _, err := accounts.EnsureAdmin(ctx, usecase.Registration{
			Username: cfg.Admin.Username,
			Password: cfg.Admin.Password,
			Name:     cfg.Admin.Name,
			Email:    cfg.Admin.Email,
		}); err != nil {
			logger.Fatal("failed to ensure administrator account", zap.Error(err))
		}
	}

	sessions := session.NewManager(initSessionStore(ctx, cfg, logger), cfg.SessionSecret, cfg.SessionTTL)

	model, closeModel := initClassifier(ctx, cfg, logger)
	defer closeModel()

	images, err := imagestore.NewDiskStore(cfg.StaticDir)
	if err != nil {
		logger.Fatal("failed to prepare upload directory", zap.Error(err))
	}

	opts := []usecase.PredictionOption{usecase.WithMetrics(m)}
	if cfg.S3.Bucket != "" {
		archiver, err := imagestore.NewS3Archiver(ctx, cfg.S3, logger)
		if err != nil {
			logger.Fatal("failed to initialise upload archive", zap.Error(err))
		}
		opts = append(opts, usecase.WithArchiver(archiver))
	}
	if cfg.AMQP.URL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
		if err != nil {
			logger.Fatal("failed to connect to message broker", zap.Error(err))
		}
		defer publisher.Close()
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	predictions := usecase.NewPredictionUseCase(results, images, model, logger, opts...)

	r := gin.New()
	r.Use(gin.Recovery())
	if err := handlers.RegisterRoutes(r, handlers.Dependencies{
		Accounts:       accounts,
		Predictions:    predictions,
		Sessions:       sessions,
		Logger:         logger,
		StaticDir:      images.Root(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		SecureCookie:   cfg.SecureCookie,
		Metrics:        m.Handler(),
	}); err != nil {
		logger.Fatal("failed to register routes", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      2 * time.Minute,
	}

	logger.Info("glaucoscan listening", zap.String("addr", cfg.HTTPAddr))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) *gorm.DB {
	db, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := repository.AutoMigrate(ctx, db); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}
	return db
}

func initSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) session.Store {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, keeping sessions in memory")
		return session.NewMemoryStore()
	}

	redisCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(redisCtx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	return session.NewRedisStore(client)
}

// initClassifier loads the configured model once. The returned func releases it.
func initClassifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (classifier.Classifier, func()) {
	switch cfg.Model.Backend {
	case "grpc":
		remote, conn, err := grpcclient.DialClassifier(ctx, cfg.Model.Addr, logger)
		if err != nil {
			logger.Fatal("failed to connect to classifier", zap.Error(err))
		}
		return remote, func() { conn.Close() }
	default:
		model, err := classifier.LoadLinearModel(cfg.Model.Path)
		if err != nil {
			logger.Fatal("failed to load model", zap.Error(err))
		}
		logger.Info("model loaded", zap.String("name", model.Name), zap.String("path", cfg.Model.Path))
		return classifier.NewModelClassifier(model), func() {}
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
