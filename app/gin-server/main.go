package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/groupspeak/config"
	"github.com/yoockh/groupspeak/internal/api/handlers"
	"github.com/yoockh/groupspeak/internal/api/middleware"
	"github.com/yoockh/groupspeak/internal/api/routes"
	"github.com/yoockh/groupspeak/internal/cache"
	"github.com/yoockh/groupspeak/internal/logger"
	"github.com/yoockh/groupspeak/internal/notify"
	"github.com/yoockh/groupspeak/internal/providers/llm"
	"github.com/yoockh/groupspeak/internal/providers/recording"
	mongorepo "github.com/yoockh/groupspeak/internal/repositories/mongo"
	pgrepo "github.com/yoockh/groupspeak/internal/repositories/postgres"
	"github.com/yoockh/groupspeak/internal/services"
	"github.com/yoockh/groupspeak/internal/storage"
	"github.com/yoockh/groupspeak/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init MongoDB
	if err := config.InitMongo(cfg.MongoURI, cfg.MongoPool); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(cfg.MongoDB); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	log.Info("MongoDB connected")

	// Init PostgreSQL
	if err := config.InitPostgres(cfg.PostgresURI, cfg.PostgresPool, log); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	log.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(cfg.RedisTarget(), cfg.RedisPool); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	log.Info("Redis connected")

	db := config.PostgresDB
	rdb := config.RedisClient

	sessionRepo := pgrepo.NewSessionRepo(db)
	participantRepo := pgrepo.NewParticipantRepo(db)
	topicRepo := pgrepo.NewTopicRepo(db)
	mergedRepo := pgrepo.NewMergedTranscriptRepo(db)
	evaluationRepo := pgrepo.NewEvaluationRepo(db)
	archiveRepo := pgrepo.NewRecordingArchiveRepo(db)
	submissionRepo := mongorepo.NewTranscriptRepo(config.MongoClient.Database(cfg.MongoDB))

	topics := services.NewTopicService(topicRepo)
	if cfg.TopicsFile != "" {
		n, err := topics.SeedFile(ctx, cfg.TopicsFile)
		if err != nil {
			log.Fatalf("topic seed error: %v", err)
		}
		log.WithField("topics", n).Info("topics seeded")
	}

	var recorder recording.Provider = recording.Disabled{}
	if cfg.Recording.Enabled {
		recorder = recording.NewCloudRecorder(recording.CloudRecorderConfig{
			BaseURL:        cfg.Recording.BaseURL,
			AppID:          cfg.Recording.AppID,
			CustomerID:     cfg.Recording.CustomerID,
			CustomerSecret: cfg.Recording.CustomerSecret,
			Timeout:        cfg.Recording.Timeout,
			Storage: recording.StorageConfig{
				Vendor:    cfg.Recording.StorageVendor,
				Region:    cfg.Recording.StorageRegion,
				Bucket:    cfg.Recording.StorageBucket,
				AccessKey: cfg.Recording.StorageAccessKey,
				SecretKey: cfg.Recording.StorageSecretKey,
			},
		})
	}

	var signer storage.Signer
	if cfg.GCSRecordingBucket != "" {
		gcs, err := storage.NewGCSSigner(ctx, cfg.GCSRecordingBucket)
		if err != nil {
			log.Fatalf("GCS init error: %v", err)
		}
		defer gcs.Close()
		signer = gcs
	}

	scorer, err := newScorer(ctx, cfg)
	if err != nil {
		log.Fatalf("scoring provider init error: %v", err)
	}
	defer scorer.Close()

	recordings := services.NewRecordingService(sessionRepo, archiveRepo, recorder, signer, services.RecordingSettings{
		IndividualUID: cfg.Recording.IndividualUID,
		CompositeUID:  cfg.Recording.CompositeUID,
	}, log)

	sessions := services.NewSessionService(services.SessionServiceDeps{
		Sessions:     sessionRepo,
		Participants: participantRepo,
		Topics:       topicRepo,
		Cache:        cache.NewRedisSnapshots(rdb, "groupspeak:"),
		Publisher:    notify.NewRedisPublisher(rdb),
		Recordings:   recordings,
		Settings: services.SessionSettings{
			WaitingTTL:          cfg.Session.WaitingTTL,
			PreparationDuration: cfg.Session.PreparationDuration,
			DiscussionDuration:  cfg.Session.DiscussionDuration,
			MaxParticipants:     cfg.Session.MaxParticipants,
		},
		AutoRecord: cfg.Recording.Enabled,
		Log:        log,
	})

	queue := workers.NewEvaluationQueue(rdb, workers.DefaultEvaluationStream)
	readiness := services.NewReadinessService(sessions, sessionRepo, participantRepo)
	transcripts := services.NewTranscriptService(sessions, sessionRepo, participantRepo, submissionRepo, mergedRepo, queue, log)
	evaluations := services.NewEvaluationService(sessions, sessionRepo, participantRepo, topicRepo, mergedRepo, evaluationRepo, scorer, cfg.Scoring.Timeout, log)

	pool := &workers.EvaluationWorkerPool{
		Queue:      queue,
		Evaluator:  evaluations,
		NumWorkers: cfg.EvaluationWorkers,
		Logger:     log,
	}
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("evaluation workers error: %v", err)
	}

	sweeper := &workers.ExpirySweeper{
		Sessions:  sessionRepo,
		Lifecycle: sessions,
		Interval:  cfg.SweepInterval,
		Logger:    log,
	}
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("expiry sweeper error: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		Session:    handlers.NewSessionHandler(sessions, readiness),
		Transcript: handlers.NewTranscriptHandler(sessions, transcripts),
		Recording:  handlers.NewRecordingHandler(sessions, recordings),
		Evaluation: handlers.NewEvaluationHandler(sessions, evaluations),
		WS:         handlers.NewWSHandler(sessions, rdb),
		JWT: middleware.JWTConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
		InternalKeyHash: cfg.InternalAPIKeyHash,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	_ = rdb.Close()
	_ = config.MongoClient.Disconnect(shutdownCtx)
}

func newScorer(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	if strings.EqualFold(cfg.Scoring.Provider, "openai") {
		return llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Scoring.Timeout)
	}
	return llm.NewVertexGemini(ctx, cfg.VertexProjectID, cfg.VertexLocation, cfg.VertexModel, cfg.CredentialsFile)
}
