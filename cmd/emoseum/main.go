package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emoseum/internal/app"
	"emoseum/internal/config"
	"emoseum/internal/costs"
	"emoseum/internal/gallery"
	"emoseum/internal/journey"
	"emoseum/internal/personalization"
	"emoseum/internal/safety"
	"emoseum/internal/signals"
	"emoseum/internal/util"
	"emoseum/pkg/ai"
	"emoseum/pkg/domain"
	"emoseum/pkg/queue"
	"emoseum/pkg/storage"
	"emoseum/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}

	var notifier safety.Notifier
	if cfg.AMQPURL != "" {
		amqpNotifier, err := safety.NewAMQPNotifier(cfg.AMQPURL, cfg.ReviewExchange)
		if err != nil {
			log.Fatalf("failed to init review notifier: %v", err)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	} else {
		logger.Warn("amqpURL not set; escalations will only be logged")
	}

	rules, err := safety.LoadRules(cfg.SafetyRulesPath)
	if err != nil {
		log.Fatalf("failed to load safety rules: %v", err)
	}
	gate, err := safety.NewGate(rules, notifier, logger)
	if err != nil {
		log.Fatalf("failed to init safety gate: %v", err)
	}

	sig := signals.NewLedger(dataStore)
	costLedger := costs.NewLedger(dataStore)

	trainQueue, err := queue.NewRedisTrainingQueue(queue.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.TrainingStream,
		Group:    cfg.TrainingGroup,
	})
	if err != nil {
		log.Fatalf("failed to init training queue: %v", err)
	}

	engine := personalization.NewEngine(dataStore, sig, costLedger, queue.NewQueueTrainer(trainQueue), personalization.Thresholds{
		Tier2MinCompletedJourneys: cfg.Tier2MinCompletedJourneys,
		Tier2EngagementFloor:      cfg.Tier2EngagementFloor,
		Tier3MinPositiveReactions: cfg.Tier3MinPositiveReactions,
		Tier3MinCompletedJourneys: cfg.Tier3MinCompletedJourneys,
	}, logger)

	machine := journey.NewMachine(
		dataStore,
		objects,
		gate,
		ai.NewOpenAICompatGenerator(cfg.TextGenBaseURL, cfg.TextGenAPIKey, cfg.TextGenModel),
		ai.NewSDWebUIGenerator(cfg.ImageGenBaseURL, cfg.ImageGenSteps, cfg.ImageGenWidth, cfg.ImageGenHeight),
		sig,
		costLedger,
		engine,
		journey.Config{
			MaxAttempts:       cfg.GenerationMaxAttempts,
			Backoff:           config.MustDuration(cfg.GenerationBackoff),
			CapabilityTimeout: config.MustDuration(cfg.CapabilityTimeout),
			MaxConcurrentGens: cfg.GenerationConcurrency,
		},
		logger,
	)
	galleryView := gallery.New(dataStore, objects, sig, costLedger, config.MustDuration(cfg.PresignExpiry), logger)

	core := app.New(dataStore, machine, galleryView, engine, sig, costLedger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trainer := ai.NewHTTPTrainer(cfg.TrainerBaseURL, cfg.TrainerAPIKey)
	pollInterval := config.MustDuration(cfg.TrainingPollInterval)
	trainQueue.Start(ctx, cfg.TrainingConcurrency, func(ctx context.Context, job queue.TrainingJob) error {
		return runTrainingJob(ctx, trainer, core.Engine, job, pollInterval, logger)
	})

	logger.Info("emoseum core ready",
		"trainingStream", cfg.TrainingStream,
		"trainingConcurrency", cfg.TrainingConcurrency)

	<-ctx.Done()
	logger.Info("shutting down")
}

// runTrainingJob submits one queued fine-tune to the training service, polls
// it to a terminal state, and reports completion to the engine. Returning an
// error hands the job back to the queue's retry budget.
func runTrainingJob(ctx context.Context, trainer *ai.HTTPTrainer, engine *personalization.Engine, job queue.TrainingJob, pollInterval time.Duration, logger *slog.Logger) error {
	remoteID, err := trainer.SubmitTrainingJob(ctx, job.UserID, job.DatasetRef)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			// a data-quality problem, not a transient fault: no automatic retry
			if cerr := engine.OnTrainingComplete(job.UserID, job.ID, false, err.Error()); cerr != nil {
				logger.Error("report training failure", "jobId", job.ID, "err", cerr)
			}
			return nil
		}
		return err
	}
	logger.Info("training job submitted", "jobId", job.ID, "remoteId", remoteID, "userId", job.UserID)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		state, reason, err := trainer.TrainingStatus(ctx, remoteID)
		if err != nil {
			logger.Warn("training status poll failed", "jobId", job.ID, "err", err)
			continue
		}
		switch state {
		case ai.TrainingStateSucceeded:
			return engine.OnTrainingComplete(job.UserID, job.ID, true, "")
		case ai.TrainingStateFailed:
			return engine.OnTrainingComplete(job.UserID, job.ID, false, reason)
		}
	}
}
