package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/dokeep/internal/config"
	"github.com/kirillkom/dokeep/internal/core/ports"
	"github.com/kirillkom/dokeep/internal/core/usecase"
	"github.com/kirillkom/dokeep/internal/infrastructure/enrichment/analyzer"
	"github.com/kirillkom/dokeep/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/dokeep/internal/infrastructure/imaging"
	"github.com/kirillkom/dokeep/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/dokeep/internal/infrastructure/nlp/datetagger"
	"github.com/kirillkom/dokeep/internal/infrastructure/ocr"
	"github.com/kirillkom/dokeep/internal/infrastructure/queue/fsqueue"
	"github.com/kirillkom/dokeep/internal/infrastructure/queue/nats"
	"github.com/kirillkom/dokeep/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/dokeep/internal/infrastructure/resilience"
	"github.com/kirillkom/dokeep/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/dokeep/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Repo  *postgres.DocumentRepository
	Queue *fsqueue.Queue
	// Notifier is nil when NATS_URL is empty.
	Notifier ports.QueueNotifier

	IngestUC  *usecase.IngestDocumentUseCase
	PreviewUC *usecase.PreviewUseCase
	ProcessUC *usecase.ProcessDocumentUseCase
	Worker    *usecase.Worker
	Exporter  *xlsx.Exporter

	WorkerMetrics *metrics.WorkerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := fsqueue.New(cfg.QueuePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init work queue: %w", err)
	}

	executorCfg := resilience.DefaultConfig()
	executorCfg.Logger = logger

	var (
		notifier  ports.QueueNotifier
		natsQueue *nats.Notifier
	)
	if cfg.NATSURL != "" {
		natsQueue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(executorCfg),
			Logger:             logger,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init queue notifier: %w", err)
		}
		notifier = natsQueue
	}

	ocrCfg := ocr.Config{
		Tesseract:     cfg.OCRTesseractBin,
		Pdftoppm:      cfg.OCRPdftoppmBin,
		TesseractLang: cfg.OCRLang,
		DPI:           cfg.OCRDPI,
		MaxPages:      cfg.PDFMaxPages,
	}
	stage := usecase.NewExtractionStage(
		ocr.NewTesseract(ocrCfg, logger),
		ocr.NewRasterizer(ocrCfg, logger),
		imaging.NewThumbnailRenderer(cfg.ThumbnailQuality),
		storage,
		usecase.NewDateResolver(datetagger.New()),
	)

	workerMetrics := metrics.NewWorkerMetrics("worker")
	workerMetrics.RegisterQueueDepth(queue.Depth)

	enricher := newEnricher(cfg, resilience.NewExecutor(executorCfg), logger)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue, notifier, logger)
	processUC := usecase.NewProcessDocumentUseCase(repo, stage, enricher, storage,
		usecase.WithEnrichmentTimeout(cfg.EnrichmentTimeout),
		usecase.WithEnrichmentObserver(workerMetrics),
		usecase.WithProcessLogger(logger),
	)
	worker := usecase.NewWorker(queue, processUC,
		usecase.WithPollInterval(cfg.WorkerPollInterval),
		usecase.WithWorkerObserver(workerMetrics),
		usecase.WithStaleSweeper(usecase.NewStaleSweeper(repo, cfg.StaleProcessingAfter, logger)),
		usecase.WithStatusWriter(repo),
		usecase.WithWorkerLogger(logger),
	)

	return &App{
		Config: cfg,
		Logger: logger,

		Repo:     repo,
		Queue:    queue,
		Notifier: notifier,

		IngestUC:  ingestUC,
		PreviewUC: usecase.NewPreviewUseCase(stage),
		ProcessUC: processUC,
		Worker:    worker,
		Exporter:  xlsx.NewExporter(repo, logger),

		WorkerMetrics: workerMetrics,

		closeFn: func() {
			if natsQueue != nil {
				natsQueue.Close()
			}
			_ = db.Close()
		},
	}, nil
}

// newEnricher returns nil when enrichment is disabled; the processor then
// completes documents without calling out.
func newEnricher(cfg config.Config, executor *resilience.Executor, logger *slog.Logger) ports.Enricher {
	if cfg.DisableAI {
		logger.Info("enrichment_disabled")
		return nil
	}

	switch cfg.EnrichmentProvider {
	case config.EnrichmentProviderOllama:
		return ollama.NewEnricher(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.EnrichmentTimeout, executor))
	default:
		return analyzer.New(cfg.EnrichmentURL, analyzer.Options{
			Timeout:            cfg.EnrichmentTimeout,
			ResilienceExecutor: executor,
		})
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
