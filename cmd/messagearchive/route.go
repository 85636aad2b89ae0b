package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-message-archive/pkg/cache"
	"github.com/illmade-knight/go-message-archive/pkg/config"
	"github.com/illmade-knight/go-message-archive/pkg/messagepipeline"
	"github.com/illmade-knight/go-message-archive/pkg/metrics"
	"github.com/illmade-knight/go-message-archive/pkg/microservice"
	"github.com/illmade-knight/go-message-archive/pkg/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func routeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route",
		Short: "Serve the stream record transformation endpoint",
		Long: `Serve POST /records. Campaign and journey send records get an archive
location and are forwarded to the delivery topic; all records are returned
to the stream.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig((*config.Config).ValidateRouter)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return runRouter(ctx, cfg, logger)
		},
	}
}

func runRouter(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to create pubsub client: %w", err)
	}
	defer func() { _ = psClient.Close() }()

	dedup, closeDedup, err := newDeduplicator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDedup()

	queueCfg := messagepipeline.NewGooglePubsubQueueDefaults(cfg.PubSub.TopicID)
	queueCfg.PublishTimeout = cfg.PubSub.PublishTimeout
	queue, err := messagepipeline.NewGooglePubsubQueue(ctx, queueCfg, psClient, dedup, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	routerMetrics, err := metrics.NewRouterMetrics(reg)
	if err != nil {
		return err
	}

	r, err := router.New(router.Config{
		BucketName:     cfg.Archive.BucketName,
		ObjectPrefix:   cfg.Archive.ObjectPrefix,
		MaxConcurrency: cfg.Pipeline.MaxConcurrency,
	}, queue, routerMetrics, logger)
	if err != nil {
		return err
	}

	server := microservice.NewBaseServer(logger, cfg.HTTPPort, microservice.WithMetrics(reg))
	router.NewHandler(r, routerMetrics, logger).Register(server.Mux())
	if err := server.Start(); err != nil {
		return err
	}
	logger.Info().Str("port", server.GetHTTPPort()).Str("topic_id", cfg.PubSub.TopicID).Msg("Router started.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received, stopping router.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed.")
	}
	return queue.Stop(shutdownCtx)
}

// newDeduplicator returns a Redis deduplicator when REDIS_ADDR is set and a
// process-local one otherwise.
func newDeduplicator(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Deduplicator, func(), error) {
	if cfg.Redis.Addr == "" {
		logger.Warn().Msg("REDIS_ADDR not set, deduplication window is local to this process.")
		return cache.NewInMemoryDeduplicator(cfg.Redis.DedupTTL), func() {}, nil
	}
	client, err := cache.NewRedisClient(ctx, redisConfig(cfg), logger)
	if err != nil {
		return nil, nil, err
	}
	dedup, err := cache.NewRedisDeduplicator(client, cfg.Redis.DedupTTL, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return dedup, func() { _ = client.Close() }, nil
}

func redisConfig(cfg *config.Config) *cache.RedisConfig {
	return &cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		CacheTTL: cfg.Redis.CacheTTL,
	}
}
