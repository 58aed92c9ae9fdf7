package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/resper1965/ncrisis-sub000/internal/config"
	"github.com/resper1965/ncrisis-sub000/internal/core/ports"
	"github.com/resper1965/ncrisis-sub000/internal/core/usecase"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/antivirus/clamav"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/detection"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/extractor/ziparchive"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/notify"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/queue/memory"
	natsqueue "github.com/resper1965/ncrisis-sub000/internal/infrastructure/queue/nats"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/repository/postgres"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/resilience"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/riskai"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue    ports.JobQueue
	Repo     ports.SessionRepository
	Notifier ports.ProgressNotifier

	SubmitUC  ports.ArchiveSubmitter
	ArchiveUC ports.ArchiveProcessor
	FileUC    ports.FileProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewSessionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	var (
		queue    ports.JobQueue
		notifier ports.ProgressNotifier
		closeQ   func()
	)
	switch cfg.QueueDriver {
	case "memory":
		memQueue := memory.New(0, cfg.FileWorkers)
		queue = memQueue
		notifier = notify.NewLogNotifier()
		closeQ = memQueue.Close
	default:
		natsQueue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.ArchiveSubject, cfg.FileSubject, natsqueue.Options{
			AckWait:            time.Duration(cfg.AckWaitSeconds) * time.Second,
			FileWorkers:        cfg.FileWorkers,
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init job queue: %w", err)
		}
		queue = natsQueue
		notifier = natsqueue.NewNotifier(natsQueue, cfg.ProgressSubject)
		closeQ = natsQueue.Close
	}

	policy, err := detection.LoadPolicy(cfg.DetectionPolicyPath)
	if err != nil {
		closeQ()
		_ = db.Close()
		return nil, fmt.Errorf("load detection policy: %w", err)
	}
	detector := detection.NewEngine(cfg.ContextRadius, policy)

	riskClient := riskai.NewClient(cfg.RiskAIURL, cfg.RiskAIModel, cfg.RiskAIKey)
	enhancer := riskai.NewEnhancer(riskClient, riskai.NewFallback(policy), riskai.EnhancerOptions{
		Concurrency: cfg.EnhanceConcurrency,
		CallsPerSec: cfg.EnhanceRatePerSecond,
	})

	extractor := ziparchive.New(storage, ziparchive.Limits{
		MaxEntries:    cfg.MaxEntries,
		MaxEntryBytes: cfg.MaxEntrySizeMB << 20,
		MaxRatio:      cfg.MaxCompressionRatio,
		MaxTotalBytes: cfg.MaxTotalSizeMB << 20,
	})
	scanner := clamav.New(cfg.ClamAVAddr, time.Duration(cfg.ClamAVTimeoutSeconds)*time.Second)

	maxArchiveBytes := cfg.MaxArchiveSizeMB << 20
	submitUC := usecase.NewSubmitArchiveUseCase(repo, storage, queue, maxArchiveBytes)
	archiveUC := usecase.NewProcessArchiveUseCase(repo, storage, extractor, scanner, queue, notifier, maxArchiveBytes)
	fileUC := usecase.NewProcessFileUseCase(
		repo,
		detector,
		enhancer,
		notifier,
		notify.NewWebhook(cfg.WebhookURL),
		cfg.FileJobMaxAttempts,
		cfg.MaxRecommendations,
	)

	return &App{
		Config:   cfg,
		Queue:    queue,
		Repo:     repo,
		Notifier: notifier,

		SubmitUC:  submitUC,
		ArchiveUC: archiveUC,
		FileUC:    fileUC,

		closeFn: func() {
			closeQ()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
