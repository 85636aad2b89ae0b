package messagepipeline

import (
	"time"
)

// Message is the canonical, internal representation of a queued delivery flowing
// through the pipeline. It contains the payload, broker metadata and the
// acknowledgment handles.
type Message struct {
	// ID is the unique identifier for the message from the source broker.
	ID string

	// Payload is the raw byte content of the message.
	Payload []byte

	// PublishTime is the timestamp when the message was originally published.
	PublishTime time.Time

	// OrderingKey groups messages that must be delivered in order. The delivery
	// queue uses the endpoint's client id.
	OrderingKey string

	// Attributes holds metadata from the message broker.
	Attributes map[string]string

	// DeliveryAttempt is set by brokers that track redelivery, nil otherwise.
	DeliveryAttempt *int

	// Ack signals that processing was successful and the message can be
	// permanently removed from the source.
	Ack func()

	// Nack signals that processing has failed and the message should be
	// redelivered.
	Nack func()
}
