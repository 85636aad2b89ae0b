package bqstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// BigQueryDatasetConfig holds configuration for a BigQuery dataset and table.
type BigQueryDatasetConfig struct {
	DatasetID string
	TableID   string
}

// NewProductionBigQueryClient creates a BigQuery client suitable for production environments.
// It will use Application Default Credentials unless a specific credentials file is provided.
func NewProductionBigQueryClient(ctx context.Context, projectID string, credentialsFile string, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
		logger.Info().Str("credentials_file", credentialsFile).Msg("Using specified credentials file for BigQuery client.")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for BigQuery client.")
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		logger.Error().Err(err).Str("project_id", projectID).Msg("Failed to create BigQuery client.")
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	logger.Info().Str("project_id", projectID).Msg("BigQuery client created successfully.")
	return client, nil
}

// rowPutter is the part of *bigquery.Inserter used for streaming inserts.
type rowPutter interface {
	Put(ctx context.Context, src interface{}) error
}

// ensureTable returns the table in cfg, creating it with a schema inferred
// from T when it does not exist yet.
func ensureTable[T any](ctx context.Context, client *bigquery.Client, cfg *BigQueryDatasetConfig, logger zerolog.Logger) (*bigquery.Table, error) {
	tableRef := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	_, err := tableRef.Metadata(ctx)
	if err == nil {
		logger.Info().Msg("Successfully connected to existing BigQuery table.")
		return tableRef, nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return nil, fmt.Errorf("failed to get BigQuery table metadata: %w", err)
	}

	logger.Warn().Msg("BigQuery table not found. Attempting to create with inferred schema.")
	var zero T
	inferredSchema, err := bigquery.InferSchema(zero)
	if err != nil {
		return nil, fmt.Errorf("failed to infer schema for type %T: %w", zero, err)
	}
	tableMetadata := &bigquery.TableMetadata{
		Schema: inferredSchema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "event_time",
		},
	}
	if err := tableRef.Create(ctx, tableMetadata); err != nil {
		return nil, fmt.Errorf("failed to create BigQuery table %s.%s: %w", cfg.DatasetID, cfg.TableID, err)
	}
	logger.Info().Int("inferred_field_count", len(inferredSchema)).Msg("BigQuery table created successfully.")
	return tableRef, nil
}

// put streams rows and logs row level errors.
func put(ctx context.Context, putter rowPutter, rows interface{}, count int, logger zerolog.Logger) error {
	err := putter.Put(ctx, rows)
	if err == nil {
		return nil
	}
	logger.Error().Err(err).Int("row_count", count).Msg("Failed to insert rows into BigQuery.")
	var multiErr bigquery.PutMultiError
	if errors.As(err, &multiErr) {
		for _, rowErr := range multiErr {
			logger.Error().
				Int("row_index", rowErr.RowIndex).
				Msgf("BigQuery insert error for row: %v", rowErr.Errors)
		}
	}
	return fmt.Errorf("bigquery Inserter.Put failed: %w", err)
}
