package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/illmade-knight/go-message-archive/pkg/icestore"
	"github.com/illmade-knight/go-message-archive/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockQueue is an in-memory DeliveryQueue.
type mockQueue struct {
	mu      sync.Mutex
	sent    []messagepipeline.QueueMessage
	seen    map[string][]byte
	failFor string
}

func newMockQueue() *mockQueue {
	return &mockQueue{seen: make(map[string][]byte)}
}

func (q *mockQueue) Send(_ context.Context, msg messagepipeline.QueueMessage) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failFor != "" && msg.DeduplicationID == q.failFor {
		return "", errors.New("queue unavailable")
	}
	if body, ok := q.seen[msg.DeduplicationID]; ok {
		return "", &messagepipeline.DuplicateError{DeduplicationID: msg.DeduplicationID, Body: body}
	}
	q.seen[msg.DeduplicationID] = msg.Body
	q.sent = append(q.sent, msg)
	return fmt.Sprintf("msg-%d", len(q.sent)), nil
}

func (q *mockQueue) Stop(_ context.Context) error { return nil }

func (q *mockQueue) messages() []messagepipeline.QueueMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]messagepipeline.QueueMessage(nil), q.sent...)
}

type countingRecorder struct {
	mu                          sync.Mutex
	forwarded, passed, failures int
}

func (c *countingRecorder) Forwarded()     { c.mu.Lock(); c.forwarded++; c.mu.Unlock() }
func (c *countingRecorder) PassedThrough() { c.mu.Lock(); c.passed++; c.mu.Unlock() }
func (c *countingRecorder) Failed()        { c.mu.Lock(); c.failures++; c.mu.Unlock() }

const campaignSendEvent = `{
  "event_type": "_campaign.send",
  "event_timestamp": 1700000000000,
  "arrival_timestamp": 1700000000123,
  "application": {"app_id": "app-1"},
  "attributes": {"campaign_id": "camp-1", "treatment_id": "0"},
  "client": {"client_id": "ep-1"},
  "client_context": {"custom": {"endpoint": "{\"Address\":\"a@b.c\"}"}}
}`

func encodeRecord(id, event string) Record {
	return Record{RecordID: id, Data: base64.StdEncoding.EncodeToString([]byte(event))}
}

func decodePayload(t *testing.T, data string) map[string]any {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func newTestRouter(t *testing.T, queue messagepipeline.DeliveryQueue, recorder Recorder) *Router {
	t.Helper()
	r, err := New(Config{BucketName: "archive-bucket", ObjectPrefix: "archive"}, queue, recorder, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func TestRouter_Route_CampaignSend(t *testing.T) {
	// Arrange
	queue := newMockQueue()
	r := newTestRouter(t, queue, nil)
	rec := encodeRecord("rec-1", campaignSendEvent)

	// Act
	decision, err := r.Route(context.Background(), rec)

	// Assert
	require.NoError(t, err)
	assert.True(t, decision.Forward)
	assert.Equal(t, "msg-1", decision.MessageID)
	assert.Equal(t, "archive-bucket", decision.Location.Bucket)
	assert.True(t, strings.HasPrefix(decision.Location.Key, "archive/ep-1/2023/11/14/22/"))

	payload := decodePayload(t, decision.Data)
	custom := payload["client_context"].(map[string]any)["custom"].(map[string]any)
	assert.Equal(t, decision.Location.String(), custom["message_archive_location"])
	assert.Equal(t, `{"Address":"a@b.c"}`, custom["endpoint"], "existing fields are preserved")
	assert.Equal(t, 1700000000123.0, payload["arrival_timestamp"])

	sent := queue.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ep-1", sent[0].GroupID)
	assert.Equal(t, "rec-1", sent[0].DeduplicationID)
	assert.Equal(t, decision.Data, base64.StdEncoding.EncodeToString(sent[0].Body))

	// The forwarded body decodes back into an event with the embedded location.
	loc, err := icestore.ParseLocation(custom["message_archive_location"].(string))
	require.NoError(t, err)
	assert.Equal(t, decision.Location, loc)
}

func TestRouter_Route_JourneySendCreatesClientContext(t *testing.T) {
	queue := newMockQueue()
	r := newTestRouter(t, queue, nil)
	event := `{"event_type":"_journey.send","event_timestamp":1700000000000,"client":{"client_id":"ep-2"},"attributes":{"journey_id":"j-1","journey_activity_id":"a-1"}}`

	decision, err := r.Route(context.Background(), encodeRecord("rec-2", event))

	require.NoError(t, err)
	assert.True(t, decision.Forward)
	payload := decodePayload(t, decision.Data)
	custom := payload["client_context"].(map[string]any)["custom"].(map[string]any)
	assert.Equal(t, decision.Location.String(), custom["message_archive_location"])
	assert.Len(t, queue.messages(), 1)
}

func TestRouter_Route_PassThrough(t *testing.T) {
	// Arrange
	queue := newMockQueue()
	r := newTestRouter(t, queue, nil)
	rec := encodeRecord("rec-3", `{"event_type":"_SMS.BUFFERED","event_timestamp":1700000000000,"client":{"client_id":"ep-1"}}`)

	// Act
	decision, err := r.Route(context.Background(), rec)

	// Assert
	require.NoError(t, err)
	assert.False(t, decision.Forward)
	assert.Equal(t, rec.Data, decision.Data)
	assert.True(t, decision.Location.IsZero())
	assert.Empty(t, queue.messages())
}

func TestRouter_Route_Malformed(t *testing.T) {
	testCases := []struct {
		name string
		rec  Record
	}{
		{name: "bad base64", rec: Record{RecordID: "r", Data: "%%%"}},
		{name: "bad json", rec: encodeRecord("r", `{"event_type":`)},
		{name: "not an object", rec: encodeRecord("r", `[1,2]`)},
		{name: "missing client id", rec: encodeRecord("r", `{"event_type":"_campaign.send","event_timestamp":1}`)},
		{name: "missing timestamp", rec: encodeRecord("r", `{"event_type":"_campaign.send","client":{"client_id":"ep"}}`)},
		{name: "fractional timestamp", rec: encodeRecord("r", `{"event_type":"_campaign.send","event_timestamp":1.5,"client":{"client_id":"ep"}}`)},
		{name: "client context not an object", rec: encodeRecord("r", `{"event_type":"_campaign.send","event_timestamp":1,"client":{"client_id":"ep"},"client_context":"x"}`)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			queue := newMockQueue()
			r := newTestRouter(t, queue, nil)

			_, err := r.Route(context.Background(), tc.rec)

			assert.ErrorIs(t, err, ErrMalformedRecord)
			assert.Empty(t, queue.messages())
		})
	}
}

func TestRouter_Route_DuplicateIsForwarded(t *testing.T) {
	queue := newMockQueue()
	r := newTestRouter(t, queue, nil)
	rec := encodeRecord("rec-1", campaignSendEvent)

	first, err := r.Route(context.Background(), rec)
	require.NoError(t, err)
	decision, err := r.Route(context.Background(), rec)

	require.NoError(t, err)
	assert.True(t, decision.Forward)
	assert.Empty(t, decision.MessageID)
	require.Len(t, queue.messages(), 1)

	// The retried record must report the location of the message already queued.
	queued := decodePayload(t, base64.StdEncoding.EncodeToString(queue.messages()[0].Body))
	queuedLocation := queued["client_context"].(map[string]any)["custom"].(map[string]any)["message_archive_location"]
	returned := decodePayload(t, decision.Data)
	assert.Equal(t, queuedLocation, returned["client_context"].(map[string]any)["custom"].(map[string]any)["message_archive_location"])
	assert.Equal(t, first.Location, decision.Location)
	assert.Equal(t, queuedLocation, decision.Location.String())
}

func TestRouter_Route_DuplicateWithoutQueuedPayload(t *testing.T) {
	queue := &plainDuplicateQueue{}
	r := newTestRouter(t, queue, nil)

	_, err := r.Route(context.Background(), encodeRecord("rec-1", campaignSendEvent))

	assert.ErrorIs(t, err, messagepipeline.ErrDuplicate)
	assert.NotErrorIs(t, err, ErrMalformedRecord)
}

// plainDuplicateQueue reports every message as a duplicate without its body.
type plainDuplicateQueue struct{}

func (plainDuplicateQueue) Send(context.Context, messagepipeline.QueueMessage) (string, error) {
	return "", messagepipeline.ErrDuplicate
}
func (plainDuplicateQueue) Stop(context.Context) error { return nil }

func TestRouter_RouteBatch(t *testing.T) {
	// Arrange
	queue := newMockQueue()
	recorder := &countingRecorder{}
	r := newTestRouter(t, queue, recorder)

	var records []Record
	for i := 0; i < 20; i++ {
		switch i % 3 {
		case 0:
			records = append(records, encodeRecord(fmt.Sprintf("rec-%d", i), campaignSendEvent))
		case 1:
			records = append(records, encodeRecord(fmt.Sprintf("rec-%d", i), `{"event_type":"_email.open"}`))
		default:
			records = append(records, Record{RecordID: fmt.Sprintf("rec-%d", i), Data: "not base64!"})
		}
	}

	// Act
	results, err := r.RouteBatch(context.Background(), records)

	// Assert
	require.NoError(t, err)
	require.Len(t, results, len(records))
	for i, res := range results {
		assert.Equal(t, records[i].RecordID, res.RecordID, "results must align with input")
		switch i % 3 {
		case 0:
			assert.Equal(t, ResultOk, res.Result)
			assert.NotEqual(t, records[i].Data, res.Data)
		case 1:
			assert.Equal(t, ResultOk, res.Result)
			assert.Equal(t, records[i].Data, res.Data)
		default:
			assert.Equal(t, ResultProcessingFailed, res.Result)
			assert.Equal(t, records[i].Data, res.Data)
		}
	}
	assert.Len(t, queue.messages(), 7)
	assert.Equal(t, 7, recorder.forwarded)
	assert.Equal(t, 7, recorder.passed)
	assert.Equal(t, 6, recorder.failures)
}

func TestRouter_RouteBatch_QueueFailureFailsBatch(t *testing.T) {
	queue := newMockQueue()
	queue.failFor = "rec-1"
	r := newTestRouter(t, queue, nil)
	records := []Record{
		encodeRecord("rec-0", `{"event_type":"_email.open"}`),
		encodeRecord("rec-1", campaignSendEvent),
	}

	results, err := r.RouteBatch(context.Background(), records)

	assert.ErrorContains(t, err, "queue unavailable")
	assert.Nil(t, results)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{BucketName: "b"}, nil, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Config{}, newMockQueue(), nil, zerolog.Nop())
	assert.Error(t, err)
}
