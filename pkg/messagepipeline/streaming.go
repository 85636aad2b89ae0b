package messagepipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Outcome is the result of handling one message.
type Outcome string

const (
	OutcomeProcessed       Outcome = "processed"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeTransformFailed Outcome = "transform_failed"
	OutcomeProcessFailed   Outcome = "process_failed"
)

// OutcomeObserver is notified after each message is acknowledged.
type OutcomeObserver func(outcome Outcome, elapsed time.Duration)

// StreamingServiceConfig holds configuration for a StreamingService.
type StreamingServiceConfig struct {
	NumWorkers int
	// ProcessTimeout bounds transform plus process for one message. Zero means no bound.
	ProcessTimeout time.Duration
}

// StreamingService orchestrates a pipeline that consumes messages, transforms them
// individually, and immediately sends them to a streaming processor function.
type StreamingService[T any] struct {
	cfg         StreamingServiceConfig
	consumer    MessageConsumer
	transformer MessageTransformer[T]
	processor   StreamProcessor[T]
	observer    OutcomeObserver
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

// NewStreamingService creates a new StreamingService.
func NewStreamingService[T any](
	cfg StreamingServiceConfig,
	consumer MessageConsumer,
	transformer MessageTransformer[T],
	processor StreamProcessor[T],
	logger zerolog.Logger,
) (*StreamingService[T], error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 5
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer cannot be nil")
	}
	if transformer == nil {
		return nil, fmt.Errorf("transformer cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}

	return &StreamingService[T]{
		cfg:         cfg,
		consumer:    consumer,
		transformer: transformer,
		processor:   processor,
		logger:      logger.With().Str("service", "StreamingService").Logger(),
	}, nil
}

// WithObserver registers an observer for message outcomes. It must be called before Start.
func (s *StreamingService[T]) WithObserver(observer OutcomeObserver) *StreamingService[T] {
	s.observer = observer
	return s
}

// Start begins the service operation. It starts the consumer and then spawns
// a pool of workers to process messages concurrently.
func (s *StreamingService[T]) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting streaming service...")

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message consumer: %w", err)
	}

	s.logger.Info().Int("worker_count", s.cfg.NumWorkers).Msg("Starting processing workers...")
	s.wg.Add(s.cfg.NumWorkers)
	for i := 0; i < s.cfg.NumWorkers; i++ {
		go s.worker(ctx, i)
	}
	return nil
}

// Stop stops the consumer first, then waits for in-flight messages to finish.
func (s *StreamingService[T]) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping streaming service...")

	if err := s.consumer.Stop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Error during consumer stop, continuing shutdown.")
	}

	workerDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(workerDone)
	}()

	select {
	case <-workerDone:
		s.logger.Info().Msg("All processing workers completed gracefully.")
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for processing workers to finish.")
		return ctx.Err()
	}
	return nil
}

func (s *StreamingService[T]) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Int("worker_id", workerID).Msg("Processing worker shutting down due to context cancellation.")
			return
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				s.logger.Debug().Int("worker_id", workerID).Msg("Consumer channel closed, worker exiting.")
				return
			}
			start := time.Now()
			outcome := s.handle(ctx, msg)
			if s.observer != nil {
				s.observer(outcome, time.Since(start))
			}
		}
	}
}

// handle transforms and processes a single message and settles its acknowledgment.
func (s *StreamingService[T]) handle(ctx context.Context, msg Message) Outcome {
	if s.cfg.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProcessTimeout)
		defer cancel()
	}
	log := s.logger.With().Str("msg_id", msg.ID).Logger()

	payload, skip, err := s.transformer(ctx, &msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to transform message, Nacking.")
		msg.Nack()
		return OutcomeTransformFailed
	}
	if skip {
		log.Debug().Msg("Transformer signaled to skip message, Acking.")
		msg.Ack()
		return OutcomeSkipped
	}

	if err := s.processor(ctx, msg, payload); err != nil {
		log.Error().Err(err).Msg("Processor failed to handle message, Nacking.")
		msg.Nack()
		return OutcomeProcessFailed
	}

	log.Debug().Msg("Message processed successfully, Acking.")
	msg.Ack()
	return OutcomeProcessed
}
