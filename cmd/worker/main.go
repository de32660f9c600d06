// Package main runs the results-export worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pace-quizz/backend/config"
	"github.com/pace-quizz/backend/internal/activitylog"
	"github.com/pace-quizz/backend/internal/participants"
	"github.com/pace-quizz/backend/internal/questions"
	"github.com/pace-quizz/backend/internal/responses"
	"github.com/pace-quizz/backend/internal/results"
	"github.com/pace-quizz/backend/internal/sessions"
	"github.com/pace-quizz/backend/internal/worker"
	"github.com/pace-quizz/backend/pkg/database"
	"github.com/pace-quizz/backend/pkg/queue"
	"github.com/pace-quizz/backend/pkg/redis"
	"github.com/pace-quizz/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.URL, int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Bucket:          cfg.AWS.Bucket,
		Endpoint:        cfg.AWS.Endpoint,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	src := results.Source{
		Sessions:     sessions.NewRepository(pool),
		Questions:    questions.NewRepository(pool),
		Participants: participants.NewRepository(pool),
		Responses:    responses.NewRepository(pool),
	}
	exporter := worker.NewResultsExporter(queue.NewQueue(rdb, logger), src, s3Client, activitylog.NewRepository(pool), logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		exporter.Run(workerCtx)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
