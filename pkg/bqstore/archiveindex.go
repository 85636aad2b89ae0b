package bqstore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-message-archive/pkg/icestore"
	"github.com/rs/zerolog"
)

// ArchiveIndexRow is one row of the archive index table. It records where an
// envelope was stored and which send it belongs to.
type ArchiveIndexRow struct {
	Location          string    `bigquery:"location"`
	EndpointID        string    `bigquery:"endpoint_id"`
	ApplicationID     string    `bigquery:"application_id"`
	CampaignID        string    `bigquery:"campaign_id"`
	TreatmentID       string    `bigquery:"treatment_id"`
	JourneyID         string    `bigquery:"journey_id"`
	JourneyActivityID string    `bigquery:"journey_activity_id"`
	Channel           string    `bigquery:"channel"`
	PartCount         int       `bigquery:"part_count"`
	SizeBytes         int       `bigquery:"size_bytes"`
	EventTime         time.Time `bigquery:"event_time"`
	ArchivedAt        time.Time `bigquery:"archived_at"`
}

// NewArchiveIndexRow converts an index entry to a table row.
func NewArchiveIndexRow(entry icestore.IndexEntry) *ArchiveIndexRow {
	row := &ArchiveIndexRow{
		Location:      entry.Location.String(),
		EndpointID:    entry.EndpointID,
		ApplicationID: entry.ApplicationID,
		Channel:       string(entry.Channel),
		PartCount:     entry.PartCount,
		SizeBytes:     entry.SizeBytes,
		EventTime:     time.UnixMilli(entry.EventTimestamp).UTC(),
		ArchivedAt:    entry.ArchivedAt.UTC(),
	}
	if c := entry.Selector.Campaign; c != nil {
		row.CampaignID = c.CampaignID
		row.TreatmentID = c.TreatmentID
	}
	if j := entry.Selector.Journey; j != nil {
		row.JourneyID = j.JourneyID
		row.JourneyActivityID = j.ActivityID
	}
	return row
}

// ArchiveIndexInserter writes one index row per stored envelope.
type ArchiveIndexInserter struct {
	putter rowPutter
	logger zerolog.Logger
}

// NewArchiveIndexInserter creates an inserter for the index table in cfg,
// creating the table if it does not exist.
func NewArchiveIndexInserter(ctx context.Context, client *bigquery.Client, cfg *BigQueryDatasetConfig, logger zerolog.Logger) (*ArchiveIndexInserter, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("BigQueryDatasetConfig cannot be nil")
	}
	logger = logger.With().
		Str("component", "ArchiveIndexInserter").
		Str("project_id", client.Project()).
		Str("dataset_id", cfg.DatasetID).
		Str("table_id", cfg.TableID).
		Logger()

	table, err := ensureTable[ArchiveIndexRow](ctx, client, cfg, logger)
	if err != nil {
		return nil, err
	}
	return newArchiveIndexInserter(table.Inserter(), logger), nil
}

func newArchiveIndexInserter(putter rowPutter, logger zerolog.Logger) *ArchiveIndexInserter {
	return &ArchiveIndexInserter{putter: putter, logger: logger}
}

// RecordArchive inserts the row for entry. The location is the insert id, so
// BigQuery drops a repeated insert for the same envelope on a best effort basis.
func (i *ArchiveIndexInserter) RecordArchive(ctx context.Context, entry icestore.IndexEntry) error {
	row := NewArchiveIndexRow(entry)
	saver := &bigquery.StructSaver{Struct: row, InsertID: row.Location}
	if err := put(ctx, i.putter, []*bigquery.StructSaver{saver}, 1, i.logger); err != nil {
		return err
	}
	i.logger.Debug().Str("location", row.Location).Msg("Recorded archive index row.")
	return nil
}
