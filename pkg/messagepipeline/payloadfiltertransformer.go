package messagepipeline

import (
	"context"

	"github.com/rs/zerolog"
)

// WithPayloadValidation wraps a MessageTransformer with a payload size check.
// Messages outside [minSize, maxSize] are skipped, so they are acknowledged and
// never reach the inner transformer. A maxSize of zero disables the upper bound.
func WithPayloadValidation[T any](
	inner MessageTransformer[T],
	minSize int,
	maxSize int,
	logger zerolog.Logger,
) MessageTransformer[T] {
	return func(ctx context.Context, msg *Message) (*T, bool, error) {
		payloadLen := len(msg.Payload)
		if payloadLen < minSize || (maxSize > 0 && payloadLen > maxSize) {
			logger.Warn().Str("msg_id", msg.ID).Int("payload_size", payloadLen).Msg("Rejecting message due to invalid payload size.")
			return nil, true, nil
		}
		return inner(ctx, msg)
	}
}
