package router

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/illmade-knight/go-message-archive/pkg/icestore"
	"github.com/illmade-knight/go-message-archive/pkg/messagepipeline"
	"github.com/illmade-knight/go-message-archive/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrMalformedRecord is returned for records whose payload cannot be decoded.
var ErrMalformedRecord = errors.New("malformed stream record")

// Record results reported back to the stream.
const (
	ResultOk               = "Ok"
	ResultProcessingFailed = "ProcessingFailed"
)

// Record is one inbound stream record. Data is the base64 encoded event.
type Record struct {
	RecordID string `json:"recordId"`
	Data     string `json:"data"`
}

// Result is the transformed record returned to the stream, aligned with its input.
type Result struct {
	RecordID string `json:"recordId"`
	Data     string `json:"data"`
	Result   string `json:"result"`
}

// Decision is the outcome of routing one record.
type Decision struct {
	// Forward is true when the event was enqueued for archiving.
	Forward bool
	// Data is the record payload to return to the stream, base64 encoded.
	Data string
	// Location is the archive location embedded in a forwarded event.
	Location icestore.Location
	// MessageID is the queue message id. Empty for duplicates.
	MessageID string
}

// Recorder receives per-record results. *metrics.RouterMetrics implements it.
type Recorder interface {
	Forwarded()
	PassedThrough()
	Failed()
}

// Config holds router settings.
type Config struct {
	// BucketName and ObjectPrefix locate the archive envelopes.
	BucketName   string
	ObjectPrefix string
	// MaxConcurrency bounds the records routed at once in a batch.
	MaxConcurrency int
}

// Router classifies stream records, embeds an archive location in archivable
// events and forwards them to the delivery queue.
type Router struct {
	cfg      Config
	queue    messagepipeline.DeliveryQueue
	recorder Recorder
	logger   zerolog.Logger
}

// New creates a Router. recorder may be nil.
func New(cfg Config, queue messagepipeline.DeliveryQueue, recorder Recorder, logger zerolog.Logger) (*Router, error) {
	if queue == nil {
		return nil, errors.New("delivery queue cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("archive bucket name cannot be empty")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Router{
		cfg:      cfg,
		queue:    queue,
		recorder: recorder,
		logger:   logger.With().Str("component", "Router").Logger(),
	}, nil
}

// Route handles a single record. Events that are not archivable are returned
// unchanged and not enqueued. A malformed record returns ErrMalformedRecord;
// any other error comes from the queue.
func (r *Router) Route(ctx context.Context, rec Record) (Decision, error) {
	event, err := decodeRecord(rec.Data)
	if err != nil {
		return Decision{}, err
	}

	eventType, _ := event["event_type"].(string)
	if !types.EventType(eventType).Archivable() {
		r.logger.Debug().Str("record_id", rec.RecordID).Str("event_type", eventType).Msg("Passing record through.")
		return Decision{Data: rec.Data}, nil
	}

	endpointID, err := clientID(event)
	if err != nil {
		return Decision{}, err
	}
	ts, err := eventTimestamp(event)
	if err != nil {
		return Decision{}, err
	}

	loc := icestore.NewLocation(r.cfg.BucketName, r.cfg.ObjectPrefix, endpointID, ts)
	if err := setArchiveLocation(event, loc.String()); err != nil {
		return Decision{}, err
	}
	body, err := encodeEvent(event)
	if err != nil {
		return Decision{}, fmt.Errorf("encode event: %w", err)
	}

	id, err := r.queue.Send(ctx, messagepipeline.QueueMessage{
		Body:            body,
		GroupID:         endpointID,
		DeduplicationID: rec.RecordID,
	})
	if errors.Is(err, messagepipeline.ErrDuplicate) {
		body, loc, err = queuedPayload(err)
		if err != nil {
			return Decision{}, fmt.Errorf("record %s: %w", rec.RecordID, err)
		}
		r.logger.Info().Str("record_id", rec.RecordID).Str("location", loc.String()).Msg("Record already forwarded.")
	} else if err != nil {
		return Decision{}, fmt.Errorf("enqueue record %s: %w", rec.RecordID, err)
	}

	r.logger.Info().Str("record_id", rec.RecordID).Str("endpoint_id", endpointID).Str("location", loc.String()).Msg("Forwarded record for archiving.")
	return Decision{
		Forward:   true,
		Data:      base64.StdEncoding.EncodeToString(body),
		Location:  loc,
		MessageID: id,
	}, nil
}

// RouteBatch routes records concurrently. The results are positionally aligned
// with records. Malformed records are returned unchanged as ProcessingFailed.
// A queue failure fails the whole batch so the stream redelivers it.
func (r *Router) RouteBatch(ctx context.Context, records []Record) ([]Result, error) {
	results := make([]Result, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrency)

	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			decision, err := r.Route(gctx, rec)
			switch {
			case errors.Is(err, ErrMalformedRecord):
				r.logger.Warn().Err(err).Str("record_id", rec.RecordID).Msg("Malformed record.")
				r.recorder.Failed()
				results[i] = Result{RecordID: rec.RecordID, Data: rec.Data, Result: ResultProcessingFailed}
				return nil
			case err != nil:
				r.recorder.Failed()
				return err
			}

			if decision.Forward {
				r.recorder.Forwarded()
			} else {
				r.recorder.PassedThrough()
			}
			results[i] = Result{RecordID: rec.RecordID, Data: decision.Data, Result: ResultOk}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// queuedPayload returns the body and archive location of the message already
// queued for a duplicate.
func queuedPayload(err error) ([]byte, icestore.Location, error) {
	var dupErr *messagepipeline.DuplicateError
	if !errors.As(err, &dupErr) || len(dupErr.Body) == 0 {
		return nil, icestore.Location{}, fmt.Errorf("duplicate without the queued payload: %w", err)
	}
	var queued struct {
		ClientContext struct {
			Custom struct {
				Location string `json:"message_archive_location"`
			} `json:"custom"`
		} `json:"client_context"`
	}
	if err := json.Unmarshal(dupErr.Body, &queued); err != nil {
		return nil, icestore.Location{}, fmt.Errorf("decode queued payload: %w", err)
	}
	loc, err := icestore.ParseLocation(queued.ClientContext.Custom.Location)
	if err != nil {
		return nil, icestore.Location{}, fmt.Errorf("queued payload location: %w", err)
	}
	return dupErr.Body, loc, nil
}

func decodeRecord(data string) (map[string]any, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrMalformedRecord, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var event map[string]any
	if err := dec.Decode(&event); err != nil {
		return nil, fmt.Errorf("%w: decode event: %v", ErrMalformedRecord, err)
	}
	if event == nil {
		return nil, fmt.Errorf("%w: event is not an object", ErrMalformedRecord)
	}
	return event, nil
}

func encodeEvent(event map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(event); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func clientID(event map[string]any) (string, error) {
	client, _ := event["client"].(map[string]any)
	id, _ := client["client_id"].(string)
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: missing client.client_id", ErrMalformedRecord)
	}
	return id, nil
}

func eventTimestamp(event map[string]any) (int64, error) {
	n, ok := event["event_timestamp"].(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: missing event_timestamp", ErrMalformedRecord)
	}
	ts, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: event_timestamp: %v", ErrMalformedRecord, err)
	}
	return ts, nil
}

// setArchiveLocation sets client_context.custom.message_archive_location,
// creating the enclosing objects when absent.
func setArchiveLocation(event map[string]any, location string) error {
	clientContext, err := object(event, "client_context")
	if err != nil {
		return err
	}
	custom, err := object(clientContext, "custom")
	if err != nil {
		return err
	}
	custom["message_archive_location"] = location
	return nil
}

func object(parent map[string]any, key string) (map[string]any, error) {
	switch v := parent[key].(type) {
	case nil:
		child := make(map[string]any)
		parent[key] = child
		return child, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %s is not an object", ErrMalformedRecord, key)
	}
}

type nopRecorder struct{}

func (nopRecorder) Forwarded()     {}
func (nopRecorder) PassedThrough() {}
func (nopRecorder) Failed()        {}
