// Package main runs the Pace Quizz HTTP API and websocket server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pace-quizz/backend/config"
	"github.com/pace-quizz/backend/internal/activitylog"
	"github.com/pace-quizz/backend/internal/auth"
	"github.com/pace-quizz/backend/internal/middleware"
	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/internal/participants"
	"github.com/pace-quizz/backend/internal/questions"
	"github.com/pace-quizz/backend/internal/realtime"
	"github.com/pace-quizz/backend/internal/responses"
	"github.com/pace-quizz/backend/internal/results"
	"github.com/pace-quizz/backend/internal/sessions"
	"github.com/pace-quizz/backend/internal/upload"
	"github.com/pace-quizz/backend/internal/users"
	"github.com/pace-quizz/backend/internal/votes"
	"github.com/pace-quizz/backend/internal/worker"
	"github.com/pace-quizz/backend/pkg/database"
	"github.com/pace-quizz/backend/pkg/queue"
	"github.com/pace-quizz/backend/pkg/redis"
	"github.com/pace-quizz/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis is optional: without it realtime stays in-process and exports are not queued.
	var (
		rdb      *goredis.Client
		redisErr = errors.New("REDIS_ADDR not set")
	)
	if cfg.Redis.Addr != "" {
		rdb, redisErr = redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		defer rdb.Close()
	}

	var s3Client *storage.S3
	if cfg.AWS.Bucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.Bucket,
			Endpoint:        cfg.AWS.Endpoint,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	// Realtime
	hub := realtime.NewHub(realtime.NewTransport(rdb, redisErr, logger), logger)
	defer hub.Close()
	broadcaster := realtime.NewBroadcaster(hub, logger)
	logger.Info("realtime transport ready", zap.String("transport", hub.TransportName()))

	// Repositories
	userRepo := auth.NewRepository(pool)
	sessionRepo := sessions.NewRepository(pool)
	questionRepo := questions.NewRepository(pool)
	participantRepo := participants.NewRepository(pool)
	responseRepo := responses.NewRepository(pool)
	activityRepo := activitylog.NewRepository(pool)

	// Votes
	aggregator := votes.NewAggregator(responseRepo, votes.NewTally(), broadcaster, logger)
	if cfg.Realtime.VoteValidation == config.VoteValidationStrict {
		aggregator.UseStrictValidation(broadcaster)
	}
	logger.Info("vote validation", zap.String("mode", string(aggregator.Mode())))

	// Exports
	var (
		jobQueue *queue.Queue
		exports  sessions.ExportQueue
	)
	if redisErr == nil {
		jobQueue = queue.NewQueue(rdb, logger)
		exports = jobQueue
	}

	controller := sessions.NewController(sessions.Deps{
		Sessions:     sessionRepo,
		Questions:    questionRepo,
		Participants: participantRepo,
		Responses:    responseRepo,
		Logs:         activityRepo,
		Broadcaster:  broadcaster,
		Tally:        aggregator.Tally(),
		Exports:      exports,
		Logger:       logger,
	})
	resultsSource := results.Source{Sessions: sessionRepo, Questions: questionRepo, Participants: participantRepo, Responses: responseRepo}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(userRepo, jwtService, logger)
	userHandler := users.NewHandler(userRepo, logger)
	sessionHandler := sessions.NewHandler(controller, logger)
	questionHandler := questions.NewHandler(questionRepo, sessionRepo, aggregator, logger)
	participantHandler := participants.NewHandler(participantRepo, sessionRepo, questionRepo, broadcaster, logger)
	responseHandler := responses.NewHandler(aggregator, responses.Lookups{
		Participants: participantRepo,
		Questions:    questionRepo,
		Sessions:     sessionRepo,
	}, logger)
	activityHandler := activitylog.NewHandler(activityRepo, logger)
	resultsHandler := results.NewHandler(resultsSource, logger)
	uploadHandler := upload.NewHandler(nil, logger)
	if s3Client != nil {
		uploadHandler = upload.NewHandler(s3Client, logger)
	}

	gateway := realtime.NewGateway(realtime.GatewayDeps{
		Hub:             hub,
		Broadcaster:     broadcaster,
		Sessions:        sessionRepo,
		Participants:    participantRepo,
		Votes:           aggregator,
		RequireHostAuth: cfg.Realtime.RequireHostAuth,
		Logger:          logger,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "transport": hub.TransportName(), "vote_validation": aggregator.Mode()})
	})

	// Public
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}
	router.GET("/sessions/pin/:pin", sessionHandler.GetByPin)
	router.POST("/sessions/pin/:pin/join", participantHandler.Join)
	router.POST("/responses", responseHandler.Submit)

	// Presenter API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/sessions", sessionHandler.Create)
		api.GET("/sessions/my", sessionHandler.ListMine)
		api.GET("/sessions", middleware.RequireRole(string(models.RoleAdmin)), sessionHandler.ListAll)
		api.POST("/upload", uploadHandler.Image)

		hosted := api.Group("/sessions/:id", sessions.RequireSessionHost(sessionRepo))
		hosted.GET("", sessionHandler.Get)
		hosted.PATCH("", sessionHandler.Update)
		hosted.DELETE("", sessionHandler.Delete)
		hosted.POST("/start", sessionHandler.Start)
		hosted.POST("/end", sessionHandler.End)
		hosted.POST("/reset", sessionHandler.Reset)
		hosted.POST("/questions/:questionId/activate", sessionHandler.ActivateQuestion)
		hosted.POST("/questions", questionHandler.Create)
		hosted.GET("/questions", questionHandler.ListBySession)
		hosted.GET("/logs", activityHandler.List)
		hosted.GET("/results", resultsHandler.Get)

		api.PATCH("/questions/:id", questionHandler.Update)
		api.DELETE("/questions/:id", questionHandler.Delete)
		api.GET("/questions/:id/tally", questionHandler.Tally)

		admin := api.Group("/admin", middleware.RequireRole(string(models.RoleAdmin)))
		admin.GET("/users", userHandler.List)
		admin.POST("/users", userHandler.Create)
		admin.GET("/users/:id", userHandler.Get)
		admin.PATCH("/users/:id", userHandler.Update)
		admin.DELETE("/users/:id", userHandler.Delete)
	}

	// WebSocket (optional token in query)
	router.GET("/ws", realtime.ServeWs(hub, gateway, realtime.ClientConfig{
		SendBuffer: cfg.Realtime.SendBuffer,
		ReadLimit:  cfg.Realtime.ReadLimit,
	}, jwtService.ValidateWS, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Results export in-process when requested and possible; otherwise cmd/worker does it.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Export.InProcess && jobQueue != nil && s3Client != nil {
		exporter := worker.NewResultsExporter(jobQueue, resultsSource, s3Client, activityRepo, logger)
		go exporter.Run(workerCtx)
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
