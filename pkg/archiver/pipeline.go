package archiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-message-archive/pkg/icestore"
	"github.com/illmade-knight/go-message-archive/pkg/messagepipeline"
	"github.com/illmade-knight/go-message-archive/pkg/render"
	"github.com/illmade-knight/go-message-archive/pkg/types"
	"github.com/rs/zerolog"
)

// ContentResolver resolves the content pieces of a send. *content.Resolver implements it.
type ContentResolver interface {
	Resolve(ctx context.Context, applicationID string, sel types.Selector) []types.ContentPiece
}

// TemplateCompiler compiles content pieces. *render.Compiler implements it.
type TemplateCompiler interface {
	Compile(ctx context.Context, key render.CompileKey, pieces []types.ContentPiece) (*render.CompiledSet, error)
}

// MessageRenderer renders compiled pieces for one endpoint. *render.Renderer implements it.
type MessageRenderer interface {
	Render(ctx context.Context, set *render.CompiledSet, endpoint map[string]any, endpointID string) ([]types.RenderedPiece, error)
}

// EnvelopeArchiver stores rendered pieces. *icestore.Archiver implements it.
type EnvelopeArchiver interface {
	Archive(ctx context.Context, pieces []types.RenderedPiece, endpointID string, meta icestore.EnvelopeMeta, location string) (icestore.Receipt, error)
}

// IndexRecorder records stored envelopes. *bqstore.ArchiveIndexInserter implements it.
type IndexRecorder interface {
	RecordArchive(ctx context.Context, entry icestore.IndexEntry) error
}

// Metrics receives archive results. *metrics.ArchiverMetrics implements it.
type Metrics interface {
	Archived(bytes int)
	Empty()
}

// Pipeline turns a send event into an archived envelope.
type Pipeline struct {
	resolver ContentResolver
	compiler TemplateCompiler
	renderer MessageRenderer
	archiver EnvelopeArchiver
	index    IndexRecorder
	metrics  Metrics
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

// WithIndex records every stored envelope with index.
func WithIndex(index IndexRecorder) Option {
	return func(p *Pipeline) { p.index = index }
}

// WithMetrics reports archive results to m.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a Pipeline.
func NewPipeline(
	resolver ContentResolver,
	compiler TemplateCompiler,
	renderer MessageRenderer,
	archiver EnvelopeArchiver,
	logger zerolog.Logger,
	opts ...Option,
) (*Pipeline, error) {
	if resolver == nil {
		return nil, errors.New("content resolver cannot be nil")
	}
	if compiler == nil {
		return nil, errors.New("template compiler cannot be nil")
	}
	if renderer == nil {
		return nil, errors.New("message renderer cannot be nil")
	}
	if archiver == nil {
		return nil, errors.New("envelope archiver cannot be nil")
	}
	p := &Pipeline{
		resolver: resolver,
		compiler: compiler,
		renderer: renderer,
		archiver: archiver,
		now:      time.Now,
		logger:   logger.With().Str("component", "ArchivePipeline").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process resolves, renders and archives ev. An event without content is not
// archived and returns a Receipt with Archived=false.
func (p *Pipeline) Process(ctx context.Context, ev *types.Event) (icestore.Receipt, error) {
	log := p.logger.With().
		Str("endpoint_id", ev.EndpointID).
		Str("application_id", ev.ApplicationID).
		Str("compile_key", render.KeyFor(ev.Selector).String()).
		Logger()

	pieces := p.resolver.Resolve(ctx, ev.ApplicationID, ev.Selector)
	if len(pieces) == 0 {
		log.Info().Msg("No content resolved, nothing to archive.")
		p.empty()
		return icestore.Receipt{}, nil
	}

	set, err := p.compiler.Compile(ctx, render.KeyFor(ev.Selector), pieces)
	if err != nil {
		return icestore.Receipt{}, fmt.Errorf("compile: %w", err)
	}
	rendered, err := p.renderer.Render(ctx, set, ev.Endpoint, ev.EndpointID)
	if err != nil {
		return icestore.Receipt{}, fmt.Errorf("render: %w", err)
	}

	meta := icestore.EnvelopeMeta{
		ApplicationID:  ev.ApplicationID,
		EventTimestamp: ev.EventTimestamp,
		Selector:       ev.Selector,
	}
	receipt, err := p.archiver.Archive(ctx, rendered, ev.EndpointID, meta, ev.ArchiveLocation)
	if err != nil {
		return icestore.Receipt{}, fmt.Errorf("archive: %w", err)
	}
	if !receipt.Archived {
		p.empty()
		return receipt, nil
	}

	if p.index != nil {
		entry := icestore.IndexEntry{
			Location:       receipt.Location,
			EndpointID:     ev.EndpointID,
			ApplicationID:  ev.ApplicationID,
			Selector:       ev.Selector,
			Channel:        rendered[0].Channel,
			PartCount:      len(rendered),
			SizeBytes:      receipt.Bytes,
			EventTimestamp: ev.EventTimestamp,
			ArchivedAt:     p.now(),
		}
		if err := p.index.RecordArchive(ctx, entry); err != nil {
			return icestore.Receipt{}, fmt.Errorf("record index for %s: %w", receipt.Location, err)
		}
	}

	if p.metrics != nil {
		p.metrics.Archived(receipt.Bytes)
	}
	log.Info().Str("location", receipt.Location.String()).Bool("existing", receipt.Existing).Msg("Event archived.")
	return receipt, nil
}

func (p *Pipeline) empty() {
	if p.metrics != nil {
		p.metrics.Empty()
	}
}

// DecodeEvent is the MessageTransformer for queued send events. Event types
// other than campaign and journey sends are skipped before any of their
// fields are validated.
func DecodeEvent(_ context.Context, msg *messagepipeline.Message) (*types.Event, bool, error) {
	var rec types.EventRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		return nil, false, fmt.Errorf("%w: %v", types.ErrMalformedEvent, err)
	}
	if !types.EventType(rec.EventType).Archivable() {
		return nil, true, nil
	}
	ev, err := rec.ToEvent()
	if err != nil {
		return nil, false, err
	}
	if ev.EndpointID == "" {
		return nil, false, fmt.Errorf("%w: missing client id", types.ErrMalformedEvent)
	}
	return ev, false, nil
}

// Processor adapts Process to a messagepipeline.StreamProcessor.
func (p *Pipeline) Processor() messagepipeline.StreamProcessor[types.Event] {
	return func(ctx context.Context, _ messagepipeline.Message, ev *types.Event) error {
		_, err := p.Process(ctx, ev)
		return err
	}
}
