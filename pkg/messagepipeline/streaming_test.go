package messagepipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-message-archive/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Payload & Mocks ---

type streamTestPayload struct {
	Data string
}

// newTestStreamingService is a helper to create a StreamingService with mocks for testing.
func newTestStreamingService(
	t *testing.T,
	cfg messagepipeline.StreamingServiceConfig,
	processor messagepipeline.StreamProcessor[streamTestPayload],
) (*messagepipeline.StreamingService[streamTestPayload], *MockMessageConsumer) {
	consumer := NewMockMessageConsumer(10)
	t.Cleanup(consumer.Close)

	transformer := func(ctx context.Context, msg *messagepipeline.Message) (*streamTestPayload, bool, error) {
		if string(msg.Payload) == "skip" {
			return nil, true, nil
		}
		if string(msg.Payload) == "transform_error" {
			return nil, false, errors.New("transformation failed")
		}
		return &streamTestPayload{Data: string(msg.Payload)}, false, nil
	}

	service, err := messagepipeline.NewStreamingService[streamTestPayload](cfg, consumer, transformer, processor, zerolog.Nop())
	require.NoError(t, err)
	return service, consumer
}

func startService(t *testing.T, service *messagepipeline.StreamingService[streamTestPayload]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	require.NoError(t, service.Start(ctx))
}

// --- Test Cases ---

func TestStreamingService_Lifecycle(t *testing.T) {
	// Arrange
	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
		return nil
	}
	service, consumer := newTestStreamingService(t, messagepipeline.StreamingServiceConfig{NumWorkers: 1}, processor)

	// Act
	startService(t, service)

	// Assert
	assert.Equal(t, 1, consumer.GetStartCount())

	// Act
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	err := service.Stop(stopCtx)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, consumer.GetStopCount())
}

func TestStreamingService_StartError(t *testing.T) {
	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
		return nil
	}
	service, consumer := newTestStreamingService(t, messagepipeline.StreamingServiceConfig{}, processor)
	consumer.startErr = errors.New("no subscription")

	err := service.Start(context.Background())

	assert.ErrorContains(t, err, "no subscription")
}

func TestNewStreamingService_NilDependencies(t *testing.T) {
	consumer := NewMockMessageConsumer(1)
	transformer := func(ctx context.Context, msg *messagepipeline.Message) (*streamTestPayload, bool, error) {
		return nil, false, nil
	}
	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
		return nil
	}
	cfg := messagepipeline.StreamingServiceConfig{}

	_, err := messagepipeline.NewStreamingService[streamTestPayload](cfg, nil, transformer, processor, zerolog.Nop())
	assert.Error(t, err)
	_, err = messagepipeline.NewStreamingService[streamTestPayload](cfg, consumer, nil, processor, zerolog.Nop())
	assert.Error(t, err)
	_, err = messagepipeline.NewStreamingService[streamTestPayload](cfg, consumer, transformer, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestStreamingService_ProcessMessage(t *testing.T) {
	testCases := []struct {
		name         string
		payload      string
		processorErr error
		expectAck    bool
		expectCalled bool
		expectResult messagepipeline.Outcome
	}{
		{name: "success", payload: "original", expectAck: true, expectCalled: true, expectResult: messagepipeline.OutcomeProcessed},
		{name: "transformer error", payload: "transform_error", expectResult: messagepipeline.OutcomeTransformFailed},
		{name: "skip", payload: "skip", expectAck: true, expectResult: messagepipeline.OutcomeSkipped},
		{name: "processor error", payload: "process_me", processorErr: errors.New("processing failed"), expectCalled: true, expectResult: messagepipeline.OutcomeProcessFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			var mu sync.Mutex
			var received *streamTestPayload
			var outcomes []messagepipeline.Outcome
			var called atomic.Bool
			processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
				called.Store(true)
				mu.Lock()
				received = payload
				mu.Unlock()
				return tc.processorErr
			}
			service, consumer := newTestStreamingService(t, messagepipeline.StreamingServiceConfig{NumWorkers: 1}, processor)
			service.WithObserver(func(outcome messagepipeline.Outcome, _ time.Duration) {
				mu.Lock()
				outcomes = append(outcomes, outcome)
				mu.Unlock()
			})
			startService(t, service)

			var acked, nacked atomic.Bool
			msg := messagepipeline.Message{
				ID:      "msg-" + tc.name,
				Payload: []byte(tc.payload),
				Ack:     func() { acked.Store(true) },
				Nack:    func() { nacked.Store(true) },
			}

			// Act
			consumer.Push(msg)

			// Assert
			require.Eventually(t, func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(outcomes) == 1
			}, time.Second, 10*time.Millisecond, "message was not handled in time")

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, tc.expectResult, outcomes[0])
			assert.Equal(t, tc.expectAck, acked.Load())
			assert.Equal(t, !tc.expectAck, nacked.Load())
			assert.Equal(t, tc.expectCalled, called.Load())
			if tc.expectResult == messagepipeline.OutcomeProcessed {
				assert.Equal(t, "original", received.Data)
			}
		})
	}
}

func TestStreamingService_ProcessTimeout(t *testing.T) {
	// Arrange
	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
		<-ctx.Done()
		return ctx.Err()
	}
	cfg := messagepipeline.StreamingServiceConfig{NumWorkers: 1, ProcessTimeout: 20 * time.Millisecond}
	service, consumer := newTestStreamingService(t, cfg, processor)
	startService(t, service)

	var nacked atomic.Bool
	consumer.Push(messagepipeline.Message{
		ID:      "slow",
		Payload: []byte("slow"),
		Ack:     func() { t.Error("Ack was called unexpectedly") },
		Nack:    func() { nacked.Store(true) },
	})

	// Assert
	require.Eventually(t, nacked.Load, time.Second, 10*time.Millisecond, "Nack was not called after timeout")
}
