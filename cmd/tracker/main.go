package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	mqcontracts "recruitrack/contracts/mq"
	"recruitrack/internal/ai"
	"recruitrack/internal/classifier"
	"recruitrack/internal/config"
	"recruitrack/internal/extractor"
	"recruitrack/internal/httpserver"
	"recruitrack/internal/matcher"
	"recruitrack/internal/mqhandler"
	"recruitrack/internal/repository"
	"recruitrack/internal/service"
	"recruitrack/pkg/db"
	"recruitrack/pkg/logger"
	"recruitrack/pkg/mq"
	"recruitrack/pkg/otel"
	"recruitrack/pkg/outbox"
	"recruitrack/pkg/redis"
	"recruitrack/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger().Fatal("Failed to load config", zap.Error(err))
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log = logger.NewLogger()
		log.Warn("Falling back to default logger", zap.Error(err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting recruitrack...")

	shutdownTracing, err := otel.Init(ctx, otel.Config{
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
	}, log)
	if err != nil {
		log.Warn("Tracing disabled", zap.Error(err))
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	g, gctx := errgroup.WithContext(ctx)
	readiness := map[string]httpserver.Pinger{}

	// Store
	var store repository.Store
	var outboxRepo *outbox.Repository
	switch cfg.DB.Driver {
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, cfg.DB.SQLitePath, log)
		if err != nil {
			log.Fatal("SQLite open failed", zap.Error(err))
		}
		defer conn.Close()

		s := repository.NewSQLiteStore(conn, log)
		if err := s.EnsureSchema(ctx); err != nil {
			log.Fatal("SQLite schema failed", zap.Error(err))
		}
		store = s
	default:
		pool, err := db.NewConnection(ctx, cfg.DB, log)
		if err != nil {
			log.Fatal("DB connection failed", zap.Error(err))
		}
		defer pool.Close()
		store = repository.NewPGStore(pool, log)
		outboxRepo = outbox.NewRepository(pool)

		if cfg.MQ.Enabled {
			publisher, err := mq.NewPublisher(cfg.MQ.URL)
			if err != nil {
				log.Fatal("Failed to init event publisher", zap.Error(err))
			}
			defer publisher.Close()

			dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
				WithInterval(cfg.Worker.OutboxInterval).
				WithMaxRetries(cfg.Worker.OutboxMaxRetries).
				WithBatchSize(cfg.Worker.OutboxBatchSize)
			g.Go(func() error { return dispatcher.Start(gctx) })
		}
	}
	readiness["db"] = store
	log.Info("DB ready", zap.String("driver", cfg.DB.Driver))

	// Redis is optional: without it there is no cross-worker locking,
	// quarantine, or asynchronous batch results.
	var opts []service.BatchOption
	var rdb *goredis.Client
	var locker service.Locker
	if cfg.Redis.Addr != "" {
		rdb = redis.NewRedisClient(cfg.Redis)
		defer rdb.Close()
		if err := redis.Ping(ctx, rdb); err != nil {
			log.Warn("Redis unavailable, running without coordination", zap.Error(err))
		} else {
			locker = util.NewLocker(rdb, cfg.Worker.LockTTL, log)
			opts = append(opts,
				service.WithLocker(locker),
				service.WithAttemptCounter(util.NewRetryCounter(rdb, 24*time.Hour)),
				service.WithResultStore(util.NewRedisTTLStore(rdb, "batch")),
			)
			readiness["redis"] = httpserver.PingFunc(func(ctx context.Context) error {
				return redis.Ping(ctx, rdb)
			})
		}
	}

	// Pipeline
	var external ai.Service = ai.Unavailable{}
	if cfg.AI.Enabled {
		external = ai.NewClient(cfg.AI, log)
		log.Info("External AI enabled", zap.String("base_url", cfg.AI.BaseURL))
	}

	clsOpts := []classifier.Option{classifier.WithThreshold(cfg.Pipeline.ClassificationThreshold)}
	if path := cfg.Pipeline.ClassificationRulesPath; path != "" {
		rules, err := classifier.LoadRules(path)
		if err != nil {
			log.Fatal("Failed to load classification rules", zap.String("path", path), zap.Error(err))
		}
		clsOpts = append(clsOpts, classifier.WithRules(rules))
	}

	orchestrator := service.NewOrchestrator(
		store,
		classifier.New(external, log, clsOpts...),
		extractor.New(external, log),
		matcher.New(external, log, matcher.WithThreshold(cfg.Pipeline.MatchThreshold)),
		service.Thresholds{
			StatusUpdate: cfg.Pipeline.StatusUpdateThreshold,
			Creation:     cfg.Pipeline.CreationThreshold,
		},
		log,
	)
	if locker != nil {
		orchestrator.WithLocker(locker)
	}
	runner := service.NewBatchRunner(store, orchestrator, service.BatchConfig{
		DefaultLimit: cfg.Worker.BatchLimit,
		MaxLimit:     cfg.Worker.MaxBatchLimit,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		ResultTTL:    cfg.Worker.ResultTTL,
	}, log, opts...)
	summarizer := service.NewSummarizer(store, log)

	// Polling
	if cfg.Worker.PollEnabled {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Worker.PollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					n, err := runner.RunPending(gctx)
					if err != nil && !errors.Is(err, context.Canceled) {
						log.Error("Scheduled run failed", zap.Error(err))
						continue
					}
					log.Info("Scheduled run finished", zap.Int("processed", n))
				}
			}
		})
	}

	// messages.ingested consumer
	if cfg.MQ.Enabled {
		dlq, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init DLQ publisher", zap.Error(err))
		}
		defer dlq.Close()
		readiness["mq"] = httpserver.PingFunc(func(context.Context) error {
			if !dlq.IsConnected() {
				return errors.New("broker connection closed")
			}
			return nil
		})

		log.Info("Init consumer", zap.String("queue", cfg.Worker.IngestQueue))
		consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.Worker.IngestQueue, mqcontracts.RoutingKeyMessagesIngested, log)
		if err != nil {
			log.Fatal("Ingest consumer init failed", zap.Error(err))
		}
		defer consumer.Close()
		consumer.SetHandler(mqhandler.NewMessagesIngestedHandler(runner, dlq, log).Handle)
		g.Go(func() error { return consumer.StartConsuming(gctx) })
	}

	// HTTP
	handler := httpserver.NewHandler(runner, orchestrator, summarizer, log)
	if outboxRepo != nil {
		handler.WithOutboxReplayer(outboxRepo)
	}
	router := httpserver.NewRouter(handler, readiness, log)
	g.Go(func() error { return router.Serve(gctx, cfg.Server.Port) })

	log.Info("recruitrack running")
	if err := g.Wait(); err != nil {
		log.Error("Component stopped with error", zap.Error(err))
	}

	log.Info("Waiting for submitted batches...")
	runner.Wait()
	log.Info("recruitrack shutdown complete")
}
