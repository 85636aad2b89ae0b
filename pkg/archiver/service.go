// Package archiver assembles the archive pipeline: queued send events are
// resolved to content, rendered for their endpoint and stored as envelopes.
package archiver

import (
	"fmt"
	"time"

	"github.com/illmade-knight/go-message-archive/pkg/messagepipeline"
	"github.com/illmade-knight/go-message-archive/pkg/types"
	"github.com/rs/zerolog"
)

// minEventBytes is the smallest payload that can hold a JSON object.
const minEventBytes = 2

// ServiceConfig configures the archive service.
type ServiceConfig struct {
	NumWorkers     int
	ProcessTimeout time.Duration
	// MaxEventBytes skips larger queue messages. Zero disables the check.
	MaxEventBytes int
}

// NewService assembles the archive pipeline on a StreamingService. Each queued
// event is decoded, processed by pipeline and acknowledged on success.
// Malformed events and processing failures are negatively acknowledged.
func NewService(
	cfg ServiceConfig,
	consumer messagepipeline.MessageConsumer,
	pipeline *Pipeline,
	observer messagepipeline.OutcomeObserver,
	logger zerolog.Logger,
) (*messagepipeline.StreamingService[types.Event], error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	transformer := messagepipeline.WithPayloadValidation(
		DecodeEvent,
		minEventBytes,
		cfg.MaxEventBytes,
		logger.With().Str("component", "EventDecoder").Logger(),
	)

	service, err := messagepipeline.NewStreamingService[types.Event](
		messagepipeline.StreamingServiceConfig{
			NumWorkers:     cfg.NumWorkers,
			ProcessTimeout: cfg.ProcessTimeout,
		},
		consumer,
		transformer,
		pipeline.Processor(),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service for archiver: %w", err)
	}
	if observer != nil {
		service.WithObserver(observer)
	}
	return service, nil
}
