package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/recoverer/internal/core/config"
	"github.com/vietddude/recoverer/internal/infra/bus"
	buskafka "github.com/vietddude/recoverer/internal/infra/bus/kafka"
	redisclient "github.com/vietddude/recoverer/internal/infra/redis"
	"github.com/vietddude/recoverer/internal/infra/storage"
	"github.com/vietddude/recoverer/internal/infra/storage/memory"
	"github.com/vietddude/recoverer/internal/infra/storage/postgres"
	"github.com/vietddude/recoverer/internal/recovery/archive"
	"github.com/vietddude/recoverer/internal/recovery/classify"
	"github.com/vietddude/recoverer/internal/recovery/groups"
	"github.com/vietddude/recoverer/internal/recovery/health"
	"github.com/vietddude/recoverer/internal/recovery/reclassify"
	"github.com/vietddude/recoverer/internal/recovery/retry"
)

// Recoverer is the main application struct that manages the engine lifecycle.
type Recoverer struct {
	cfg *config.AppConfig

	dispatcher *Dispatcher
	poller     *Poller
	sweeper    *reclassify.Sweeper

	consumer     *buskafka.Consumer
	commandsOut  *buskafka.Producer
	eventsOut    *buskafka.Producer
	healthServer *health.Server

	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger

	forceReclassify bool
}

// NewRecoverer creates a Recoverer with all dependencies initialized.
func NewRecoverer(cfg *config.AppConfig, forceReclassify bool) (*Recoverer, error) {
	// 1. Initialize Storage
	var recordRepo storage.FailureRecordRepository
	var opRepo storage.ArchiveOperationRepository
	var batchRepo storage.ArchiveBatchRepository
	var retryRepo storage.BulkRetryRepository
	var contRepo storage.ContinuationRepository
	var markerRepo storage.MarkerRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			return nil, err
		}

		recordRepo = postgres.NewFailureRecordRepo(db)
		opRepo = postgres.NewArchiveOperationRepo(db)
		batchRepo = postgres.NewArchiveBatchRepo(db)
		retryRepo = postgres.NewBulkRetryRepo(db)
		contRepo = postgres.NewContinuationRepo(db)
		markerRepo = postgres.NewMarkerRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		recordRepo = memory.NewFailureRecordRepo(store)
		opRepo = memory.NewArchiveOperationRepo(store)
		batchRepo = memory.NewArchiveBatchRepo(store)
		retryRepo = memory.NewBulkRetryRepo(store)
		contRepo = memory.NewContinuationRepo(store)
		markerRepo = memory.NewMarkerRepo(store)
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Redis known-group set
	var redisClient *redisclient.Client
	var sharedSet groups.SharedSet
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, cross-instance dedup disabled", "error", err)
		} else {
			sharedSet = redisclient.NewKnownGroupSet(redisClient)
		}
	}

	// 3. Initialize Bus
	var sender bus.Sender
	var publisher bus.Publisher
	var consumer *buskafka.Consumer
	var commandsOut, eventsOut *buskafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		commandsOut = buskafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.CommandsTopic)
		eventsOut = buskafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		consumer = buskafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.CommandsTopic, cfg.Kafka.GroupID)
		sender = commandsOut
		publisher = eventsOut
		slog.Info("Using Kafka bus", "brokers", cfg.Kafka.Brokers)
	} else {
		logBus := bus.LogPublisher{}
		sender = logBus
		publisher = logBus
		slog.Info("No brokers configured, events are logged")
	}

	scheduler := bus.NewDurableScheduler(contRepo)

	// 4. Initialize Engine Components
	pipeline := classify.DefaultPipeline()
	registry := groups.NewRegistry(publisher, sharedSet)
	importer := classify.NewImporter(recordRepo, pipeline, registry)

	orchestrator := archive.NewOrchestrator(opRepo, batchRepo, recordRepo, retryRepo, publisher)
	orchestrator.SetBatchSize(cfg.Engine.ArchiveBatchSize)

	workflow := retry.NewWorkflow(retryRepo, recordRepo, sender, publisher, scheduler)
	workflow.SetTuning(cfg.Engine.RetryPageSize, cfg.Engine.RetryDelay, cfg.Engine.StallThreshold)

	issuer := retry.NewIssuer(recordRepo, sender, publisher)

	sweeper := reclassify.NewSweeper(recordRepo, markerRepo, pipeline, registry)
	sweeper.SetTuning(cfg.Engine.ReclassifyBatchSize, cfg.Engine.ReclassifyParallelism)

	dispatcher := NewDispatcher(importer, orchestrator, workflow, issuer)
	poller := NewPoller(contRepo, dispatcher, cfg.Engine.PollInterval)

	// 5. Initialize Health Monitor
	pingers := make(map[string]health.Pinger)
	if db != nil {
		pingers["postgres"] = db
	}
	if redisClient != nil {
		pingers["redis"] = redisClient
	}
	healthMon := health.NewMonitor(pingers, opRepo, retryRepo, contRepo)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Recoverer{
		cfg:             cfg,
		dispatcher:      dispatcher,
		poller:          poller,
		sweeper:         sweeper,
		consumer:        consumer,
		commandsOut:     commandsOut,
		eventsOut:       eventsOut,
		healthServer:    healthServer,
		db:              db,
		redisClient:     redisClient,
		log:             slog.Default(),
		forceReclassify: forceReclassify,
	}, nil
}

// Start starts the engine and all its components.
func (r *Recoverer) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := r.healthServer.Start(); err != nil {
			r.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if r.db != nil {
		r.db.StartMetricsCollector(ctx)
	}

	// Start Continuation Poller
	go func() {
		if err := r.poller.Run(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("Continuation poller failed", "error", err)
		}
	}()

	// Start Command Consumer
	if r.consumer != nil {
		go func() {
			if err := r.consumer.Consume(ctx, func(ctx context.Context, env bus.Envelope) error {
				return r.dispatcher.Dispatch(ctx, env)
			}); err != nil && ctx.Err() == nil {
				r.log.Error("Command consumer failed", "error", err)
			}
		}()
	}

	// Run the one-shot reclassification sweep in the background
	go func() {
		if err := r.sweeper.Run(ctx, r.forceReclassify); err != nil && ctx.Err() == nil {
			r.log.Error("Reclassification sweep failed", "error", err)
		}
	}()

	return nil
}

// Stop stops the engine.
func (r *Recoverer) Stop(ctx context.Context) error {
	r.log.Info("Stopping Recoverer...")

	if r.consumer != nil {
		if err := r.consumer.Close(); err != nil {
			r.log.Warn("Failed to close consumer", "error", err)
		}
	}
	if r.commandsOut != nil {
		if err := r.commandsOut.Close(); err != nil {
			r.log.Warn("Failed to close command producer", "error", err)
		}
	}
	if r.eventsOut != nil {
		if err := r.eventsOut.Close(); err != nil {
			r.log.Warn("Failed to close event producer", "error", err)
		}
	}
	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.log.Warn("Failed to close database", "error", err)
		}
	}

	return r.healthServer.Stop(ctx)
}
