package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-message-archive/pkg/cache"
	"github.com/rs/zerolog"
)

// ErrDuplicate is returned by Send for a deduplication id that was already sent.
var ErrDuplicate = errors.New("duplicate queue message")

// DuplicateError reports a suppressed duplicate together with the body that
// was sent under the same deduplication id. It matches ErrDuplicate.
type DuplicateError struct {
	DeduplicationID string
	// Body is the message body already on the queue.
	Body []byte
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDuplicate, e.DeduplicationID)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// AttributeDeduplicationID carries QueueMessage.DeduplicationID on the published message.
const AttributeDeduplicationID = "deduplication_id"

// GooglePubsubQueueConfig configures a GooglePubsubQueue.
type GooglePubsubQueueConfig struct {
	TopicID string
	// PublishTimeout bounds the wait for the broker to accept a message.
	PublishTimeout time.Duration
}

// NewGooglePubsubQueueDefaults returns a config for topicID with default settings.
func NewGooglePubsubQueueDefaults(topicID string) *GooglePubsubQueueConfig {
	return &GooglePubsubQueueConfig{
		TopicID:        topicID,
		PublishTimeout: 30 * time.Second,
	}
}

// GooglePubsubQueue implements DeliveryQueue on an ordered Pub/Sub topic.
// GroupID becomes the ordering key. Deduplication is enforced before publishing
// with a cache.Deduplicator, since Pub/Sub has no publish-side deduplication.
type GooglePubsubQueue struct {
	topic   *pubsub.Topic
	dedup   cache.Deduplicator
	timeout time.Duration
	logger  zerolog.Logger
}

// NewGooglePubsubQueue creates a queue for an existing topic. dedup may be nil,
// in which case DeduplicationID is only forwarded as an attribute.
func NewGooglePubsubQueue(ctx context.Context, cfg *GooglePubsubQueueConfig, client *pubsub.Client, dedup cache.Deduplicator, logger zerolog.Logger) (*GooglePubsubQueue, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	topic := client.Topic(cfg.TopicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}
	topic.EnableMessageOrdering = true

	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GooglePubsubQueue{
		topic:   topic,
		dedup:   dedup,
		timeout: timeout,
		logger:  logger.With().Str("component", "GooglePubsubQueue").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Send publishes msg and waits for the broker to accept it.
func (q *GooglePubsubQueue) Send(ctx context.Context, msg QueueMessage) (string, error) {
	if msg.DeduplicationID != "" && q.dedup != nil {
		stored, first, err := q.dedup.Claim(ctx, msg.DeduplicationID, string(msg.Body))
		if err != nil {
			return "", fmt.Errorf("claim deduplication id: %w", err)
		}
		if !first {
			q.logger.Debug().Str("deduplication_id", msg.DeduplicationID).Msg("Suppressed duplicate message.")
			return "", &DuplicateError{DeduplicationID: msg.DeduplicationID, Body: []byte(stored)}
		}
	}

	var attributes map[string]string
	if msg.DeduplicationID != "" {
		attributes = map[string]string{AttributeDeduplicationID: msg.DeduplicationID}
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data:        msg.Body,
		OrderingKey: msg.GroupID,
		Attributes:  attributes,
	})

	getCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	id, err := result.Get(getCtx)
	if err != nil {
		// A failed publish pauses its ordering key until resumed.
		if msg.GroupID != "" {
			q.topic.ResumePublish(msg.GroupID)
		}
		if msg.DeduplicationID != "" && q.dedup != nil {
			if relErr := q.dedup.Release(context.WithoutCancel(ctx), msg.DeduplicationID); relErr != nil {
				q.logger.Warn().Err(relErr).Str("deduplication_id", msg.DeduplicationID).Msg("Failed to release deduplication id.")
			}
		}
		return "", fmt.Errorf("publish to %s: %w", q.topic.ID(), err)
	}

	q.logger.Debug().Str("published_msg_id", id).Str("group_id", msg.GroupID).Msg("Message sent.")
	return id, nil
}

// Stop flushes any pending messages for the topic, respecting the context's timeout.
func (q *GooglePubsubQueue) Stop(ctx context.Context) error {
	stopDone := make(chan struct{})
	go func() {
		q.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
