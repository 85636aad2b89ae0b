package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-message-archive/pkg/archiver"
	"github.com/illmade-knight/go-message-archive/pkg/bqstore"
	"github.com/illmade-knight/go-message-archive/pkg/cache"
	"github.com/illmade-knight/go-message-archive/pkg/config"
	"github.com/illmade-knight/go-message-archive/pkg/content"
	"github.com/illmade-knight/go-message-archive/pkg/icestore"
	"github.com/illmade-knight/go-message-archive/pkg/messagepipeline"
	"github.com/illmade-knight/go-message-archive/pkg/metrics"
	"github.com/illmade-knight/go-message-archive/pkg/microservice"
	"github.com/illmade-knight/go-message-archive/pkg/render"
	"github.com/illmade-knight/go-message-archive/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Render queued send events and store them as archive envelopes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig((*config.Config).ValidateArchiver)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return runArchiver(ctx, cfg, logger)
		},
	}
}

func runArchiver(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	opts := clientOptions(cfg)

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return fmt.Errorf("failed to create firestore client: %w", err)
	}
	defer func() { _ = fsClient.Close() }()

	gcsClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	defer func() { _ = gcsClient.Close() }()

	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return fmt.Errorf("failed to create pubsub client: %w", err)
	}
	defer func() { _ = psClient.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	archiverMetrics, err := metrics.NewArchiverMetrics(reg)
	if err != nil {
		return err
	}

	resolver, closeCache, err := newResolver(ctx, cfg, fsClient, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	compiler, err := render.NewCompiler(cache.NewInMemoryCache[render.CompileKey, *render.CompiledSet](), nil, logger)
	if err != nil {
		return err
	}

	store, err := icestore.NewGCSObjectStore(icestore.NewGCSClientAdapter(gcsClient), logger)
	if err != nil {
		return err
	}
	envelopeArchiver, err := icestore.NewArchiver(store, icestore.ArchiverConfig{
		BucketName:   cfg.Archive.BucketName,
		ObjectPrefix: cfg.Archive.ObjectPrefix,
		PromoteTitle: cfg.Archive.PromoteTitle,
	}, logger)
	if err != nil {
		return err
	}

	pipelineOpts := []archiver.Option{archiver.WithMetrics(archiverMetrics)}
	if cfg.Index.DatasetID != "" {
		bqClient, err := bqstore.NewProductionBigQueryClient(ctx, cfg.ProjectID, cfg.CredentialsFile, logger)
		if err != nil {
			return err
		}
		defer func() { _ = bqClient.Close() }()
		index, err := bqstore.NewArchiveIndexInserter(ctx, bqClient, &bqstore.BigQueryDatasetConfig{
			DatasetID: cfg.Index.DatasetID,
			TableID:   cfg.Index.TableID,
		}, logger)
		if err != nil {
			return err
		}
		pipelineOpts = append(pipelineOpts, archiver.WithIndex(index))
	} else {
		logger.Warn().Msg("BQ_DATASET_ID not set, archive index disabled.")
	}

	pipeline, err := archiver.NewPipeline(resolver, compiler, render.NewRenderer(logger), envelopeArchiver, logger, pipelineOpts...)
	if err != nil {
		return err
	}

	consumerCfg := messagepipeline.NewGooglePubsubConsumerDefaults(cfg.PubSub.SubscriptionID)
	consumerCfg.MaxOutstandingMessages = cfg.PubSub.MaxOutstandingMessages
	consumerCfg.NumGoroutines = cfg.PubSub.NumGoroutines
	consumer, err := messagepipeline.NewGooglePubsubConsumer(consumerCfg, psClient, logger)
	if err != nil {
		return err
	}

	service, err := archiver.NewService(archiver.ServiceConfig{
		NumWorkers:     cfg.Pipeline.NumWorkers,
		ProcessTimeout: cfg.Pipeline.ProcessTimeout,
		MaxEventBytes:  cfg.Pipeline.MaxEventBytes,
	}, consumer, pipeline, archiverMetrics.ObserveOutcome, logger)
	if err != nil {
		return err
	}

	server := microservice.NewBaseServer(logger, cfg.HTTPPort, microservice.WithMetrics(reg))
	if err := server.Start(); err != nil {
		return err
	}
	if err := service.Start(ctx); err != nil {
		_ = server.Shutdown(context.Background())
		return err
	}
	logger.Info().Str("subscription_id", cfg.PubSub.SubscriptionID).Str("bucket", cfg.Archive.BucketName).Msg("Archiver started.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received, stopping archiver.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := service.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Archive service stop failed.")
	}
	return server.Shutdown(shutdownCtx)
}

// newResolver builds the content resolver over Firestore with the configured cache.
func newResolver(ctx context.Context, cfg *config.Config, client *firestore.Client, logger zerolog.Logger) (*content.Resolver, func(), error) {
	lookup, err := content.NewFirestoreLookup(content.FirestoreLookupConfig{
		ProjectID:           cfg.ProjectID,
		CampaignsCollection: cfg.Content.CampaignsCollection,
		JourneysCollection:  cfg.Content.JourneysCollection,
		TemplatesCollection: cfg.Content.TemplatesCollection,
	}, client, logger)
	if err != nil {
		return nil, nil, err
	}

	var contentCache cache.Cache[string, []types.ContentPiece]
	closeCache := func() {}
	switch cfg.Content.Cache {
	case config.ContentCacheMemory:
		contentCache = cache.NewInMemoryCache[string, []types.ContentPiece]()
	case config.ContentCacheLRU:
		contentCache, err = cache.NewInMemoryLRUCache[string, []types.ContentPiece](cfg.Content.CacheSize)
	case config.ContentCacheRedis:
		redisClient, redisErr := cache.NewRedisClient(ctx, redisConfig(cfg), logger)
		if redisErr != nil {
			return nil, nil, redisErr
		}
		closeCache = func() { _ = redisClient.Close() }
		contentCache, err = cache.NewRedisCache[string, []types.ContentPiece](redisClient, "content:", cfg.Redis.CacheTTL, logger)
	default:
		err = fmt.Errorf("unknown content cache %q", cfg.Content.Cache)
	}
	if err != nil {
		closeCache()
		return nil, nil, err
	}

	resolver, err := content.NewResolver(lookup, contentCache, logger)
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	return resolver, closeCache, nil
}
