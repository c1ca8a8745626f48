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
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/wardrobe-scan/internal/auth"
	"github.com/example/wardrobe-scan/internal/config"
	"github.com/example/wardrobe-scan/internal/handlers"
	"github.com/example/wardrobe-scan/internal/logging"
	"github.com/example/wardrobe-scan/internal/ratelimit"
	"github.com/example/wardrobe-scan/internal/repository"
	"github.com/example/wardrobe-scan/internal/storage"
	"github.com/example/wardrobe-scan/internal/usecase"
	"github.com/example/wardrobe-scan/internal/visionclient"
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

	db := initDatabase(ctx, cfg.Database, logger)
	repo := repository.NewWardrobeRepository(db, logger)
	if cfg.Database.AutoMigrate {
		if err := repo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
	}

	limiter := ratelimit.NewLimiter(initCounter(ctx, cfg.Redis, logger), cfg.RateLimit.Quota, cfg.RateLimit.Window)

	store, err := initStorage(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to initialise object storage", zap.Error(err), zap.String("backend", cfg.Storage.Backend))
	}

	vision, err := visionclient.Dial(ctx, visionclient.Options{
		Endpoint:        cfg.Vision.Endpoint,
		CredentialsFile: cfg.Vision.CredentialsFile,
		Insecure:        cfg.Vision.Insecure,
		MaxResults:      cfg.Vision.MaxResults,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to vision service", zap.Error(err))
	}
	defer vision.Close()

	uc := usecase.NewWardrobeUseCase(repo, store, vision, logger, usecase.Options{
		MaxWidth:        cfg.Pipeline.MaxWidth,
		ColorMode:       cfg.Pipeline.ColorMode,
		KeyPrefix:       cfg.Storage.KeyPrefix,
		RequestTimeout:  cfg.Pipeline.RequestTimeout,
		StorageTimeout:  cfg.Pipeline.StorageTimeout,
		AnalysisTimeout: cfg.Pipeline.AnalysisTimeout,
		DatabaseTimeout: cfg.Pipeline.DatabaseTimeout,
		CleanupTimeout:  cfg.Pipeline.CleanupTimeout,
	})

	gin.SetMode(gin.ReleaseMode)
	r, err := handlers.NewEngine(cfg.HTTP.TrustedProxies, logger)
	if err != nil {
		logger.Fatal("invalid trusted proxies", zap.Error(err))
	}

	handlers.RegisterRoutes(r, uc,
		ratelimit.Middleware(limiter, logger),
		auth.Middleware(newVerifier(cfg.Auth), logger),
		logger,
	)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	logger.Info("wardrobe API listening", zap.String("addr", cfg.HTTP.Addr))
	if err := serveHTTPServer(server, cfg.HTTP.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg config.Database, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

// initCounter prefers Redis so quotas hold across replicas; without an address
// counters live in this process.
func initCounter(ctx context.Context, cfg config.Redis, zapLogger *zap.Logger) ratelimit.Counter {
	if cfg.Addr == "" {
		zapLogger.Info("redis not configured, using in-memory rate limit counters")
		return ratelimit.NewMemoryCounter()
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(pingCtx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return ratelimit.NewRedisCounter(client)
}

func initStorage(ctx context.Context, cfg config.Storage, zapLogger *zap.Logger) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Options{
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	case "memory":
		zapLogger.Warn("staging uploads in process memory")
		return storage.NewMemoryStore(), nil
	default:
		return storage.NewMinIOStore(ctx, storage.MinIOOptions{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		}, zapLogger)
	}
}

func newVerifier(cfg config.Auth) auth.Verifier {
	if cfg.Mode == "remote" {
		return auth.NewRemoteVerifier(cfg.RemoteURL, cfg.RemoteAPIKey, 10*time.Second)
	}
	return auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAudience)
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
