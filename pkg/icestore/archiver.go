package icestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-message-archive/pkg/types"
	"github.com/rs/zerolog"
)

// ArchiverConfig holds the destination settings for envelopes without a pre-computed location.
type ArchiverConfig struct {
	BucketName   string
	ObjectPrefix string
	PromoteTitle bool
}

// Receipt describes the outcome of an Archive call.
type Receipt struct {
	// Archived is false when there was nothing to store.
	Archived bool
	// Existing is true when the object was already stored by an earlier delivery.
	Existing bool
	Location Location
	Bytes    int
}

// Archiver encodes rendered pieces and writes the envelope to an ObjectStore.
type Archiver struct {
	store   ObjectStore
	encoder Encoder
	config  ArchiverConfig
	logger  zerolog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(store ObjectStore, config ArchiverConfig, logger zerolog.Logger) (*Archiver, error) {
	if store == nil {
		return nil, errors.New("object store cannot be nil")
	}
	return &Archiver{
		store:   store,
		encoder: Encoder{PromoteTitle: config.PromoteTitle},
		config:  config,
		logger:  logger.With().Str("component", "Archiver").Logger(),
	}, nil
}

// Archive stores pieces at location, or at a newly derived location when
// location is empty. Empty input returns a Receipt with Archived=false and
// nothing is written. Storing to a location that is already taken succeeds
// with Existing set, so a redelivered event is archived once.
func (a *Archiver) Archive(ctx context.Context, pieces []types.RenderedPiece, endpointID string, meta EnvelopeMeta, location string) (Receipt, error) {
	data, contentType, err := a.encoder.encode(pieces, endpointID, meta)
	if errors.Is(err, ErrNothingToArchive) {
		a.logger.Debug().Str("endpoint_id", endpointID).Msg("No rendered pieces, nothing archived.")
		return Receipt{}, nil
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("encode envelope: %w", err)
	}

	loc, err := a.destination(location, endpointID, meta.EventTimestamp)
	if err != nil {
		return Receipt{}, err
	}
	err = a.store.PutObject(ctx, loc, data, contentType)
	if errors.Is(err, ErrObjectExists) {
		a.logger.Warn().Str("endpoint_id", endpointID).Str("location", loc.String()).Msg("Envelope already archived.")
		return Receipt{Archived: true, Existing: true, Location: loc, Bytes: len(data)}, nil
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("put %s: %w", loc, err)
	}

	a.logger.Info().Str("endpoint_id", endpointID).Str("location", loc.String()).Int("part_count", len(pieces)).Msg("Archived message.")
	return Receipt{Archived: true, Location: loc, Bytes: len(data)}, nil
}

func (a *Archiver) destination(location, endpointID string, eventTimestamp int64) (Location, error) {
	if location != "" {
		return ParseLocation(location)
	}
	if a.config.BucketName == "" {
		return Location{}, fmt.Errorf("%w: no location given and no bucket configured", ErrInvalidLocation)
	}
	return NewLocation(a.config.BucketName, a.config.ObjectPrefix, endpointID, eventTimestamp), nil
}

// IndexEntry describes a stored envelope for the archive index.
type IndexEntry struct {
	Location       Location
	EndpointID     string
	ApplicationID  string
	Selector       types.Selector
	Channel        types.Channel
	PartCount      int
	SizeBytes      int
	EventTimestamp int64
	ArchivedAt     time.Time
}
