package messagepipeline_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/illmade-knight/go-message-archive/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validationTestPayload is a simple struct used for transformation in tests.
type validationTestPayload struct {
	Content string `json:"content"`
}

// TestWithPayloadValidation tests the payload size validation decorator.
func TestWithPayloadValidation(t *testing.T) {
	var innerTransformerCalled bool
	innerTransformer := func(ctx context.Context, msg *messagepipeline.Message) (*validationTestPayload, bool, error) {
		innerTransformerCalled = true
		var p validationTestPayload
		err := json.Unmarshal(msg.Payload, &p)
		return &p, false, err
	}

	testCases := []struct {
		name            string
		payload         []byte
		minSize         int
		maxSize         int
		expectSkip      bool // Should the decorator signal to skip the message?
		expectInnerCall bool // Should the inner transformer be called?
		expectErr       bool // Should the inner transformer return an error?
	}{
		{
			name:            "Success case: payload within valid range",
			payload:         []byte(`{"content":"this is valid"}`),
			minSize:         13,
			maxSize:         30,
			expectSkip:      false,
			expectInnerCall: true,
			expectErr:       false,
		},
		{
			name:            "Failure case: payload too short",
			payload:         []byte(`{"c":"v"}`),
			minSize:         13,
			maxSize:         30,
			expectSkip:      true,
			expectInnerCall: false,
			expectErr:       false,
		},
		{
			name:            "Failure case: payload too long",
			payload:         []byte(`{"content":"this payload is definitely too long"}`),
			minSize:         13,
			maxSize:         30,
			expectSkip:      true,
			expectInnerCall: false,
			expectErr:       false,
		},
		{
			name:            "Edge case: payload is exactly min size",
			payload:         []byte(`{"content":""}`),
			minSize:         13,
			maxSize:         30,
			expectSkip:      false,
			expectInnerCall: true,
			expectErr:       false,
		},
		{
			name:            "Zero max size disables the upper bound",
			payload:         []byte(`{"content":"this payload is definitely too long"}`),
			minSize:         2,
			maxSize:         0,
			expectSkip:      false,
			expectInnerCall: true,
			expectErr:       false,
		},
		{
			name:            "Empty payload is skipped",
			payload:         []byte{},
			minSize:         2,
			maxSize:         0,
			expectSkip:      true,
			expectInnerCall: false,
			expectErr:       false,
		},
		{
			name:            "Edge case: payload is exactly max size",
			payload:         []byte(`{"content":"012345678901234"}`),
			minSize:         13,
			maxSize:         30,
			expectSkip:      false,
			expectInnerCall: true,
			expectErr:       false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			innerTransformerCalled = false

			// --- Arrange ---
			decoratedTransformer := messagepipeline.WithPayloadValidation(
				innerTransformer,
				tc.minSize,
				tc.maxSize,
				zerolog.Nop(),
			)

			msg := &messagepipeline.Message{
				ID:      "test-id-" + tc.name,
				Payload: tc.payload,
			}

			// --- Act ---
			_, skip, err := decoratedTransformer(context.Background(), msg)

			// --- Assert ---
			if tc.expectErr {
				require.Error(t, err, "Expected an error from the inner transformer but got nil")
			} else {
				require.NoError(t, err, "Received an unexpected error")
			}
			assert.Equal(t, tc.expectSkip, skip, "The skip status was not as expected.")
			assert.Equal(t, tc.expectInnerCall, innerTransformerCalled, "The inner transformer's call status was not as expected.")
		})
	}
}
