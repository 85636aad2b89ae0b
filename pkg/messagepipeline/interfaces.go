package messagepipeline

import (
	"context"
)

// ====================================================================================
// This file defines the contracts of the delivery pipeline: a consumer hands queued
// messages to a transformer, and the transformed payload goes to a processor.
// ====================================================================================

// --- Stage 1: Consumer ---

// MessageConsumer defines the interface for a message source.
type MessageConsumer interface {
	// Messages returns a read-only channel from which pipeline workers will receive messages.
	Messages() <-chan Message
	// Start begins the consumption process (e.g., by calling subscription.Receive).
	Start(ctx context.Context) error
	// Stop gracefully ceases message consumption and waits for background tasks to finish.
	Stop(ctx context.Context) error
	// Done returns a channel that is closed when the consumer has completely shut down.
	Done() <-chan struct{}
}

// --- Stage 2: Transformer ---

// MessageTransformer decodes a Message into a structured payload of type T.
//
// Returning skip=true acknowledges the message without processing it. Returning an
// error negatively acknowledges it so the broker redelivers.
type MessageTransformer[T any] func(ctx context.Context, msg *Message) (payload *T, skip bool, err error)

// --- Stage 3: Processor ---

// StreamProcessor handles transformed messages of type T one by one. A returned
// error causes the pipeline to Nack the message.
type StreamProcessor[T any] func(ctx context.Context, original Message, payload *T) error

// --- Delivery queue ---

// DeliveryQueue is the downstream queue the router forwards events to.
type DeliveryQueue interface {
	// Send enqueues msg and returns the broker-assigned message id once the
	// broker has accepted it. A message whose DeduplicationID was already sent
	// within the deduplication window returns an error matching ErrDuplicate,
	// a *DuplicateError when the queued body is known.
	Send(ctx context.Context, msg QueueMessage) (string, error)
	// Stop flushes pending sends, respecting the context deadline.
	Stop(ctx context.Context) error
}

// QueueMessage is one message for a DeliveryQueue.
type QueueMessage struct {
	Body []byte
	// GroupID orders messages; messages sharing a GroupID are delivered in send order.
	GroupID string
	// DeduplicationID suppresses repeats of the same message.
	DeduplicationID string
}
