package icestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// ErrObjectExists is returned by PutObject when the location is already taken.
var ErrObjectExists = errors.New("archive object already exists")

// ObjectStore is a durable store addressed by Location.
type ObjectStore interface {
	// PutObject stores data under loc with the given Content-Type.
	PutObject(ctx context.Context, loc Location, data []byte, contentType string) error
}

// GCSObjectStore implements ObjectStore on Google Cloud Storage.
type GCSObjectStore struct {
	client GCSClient
	logger zerolog.Logger
}

// NewGCSObjectStore creates a new object store for Google Cloud Storage.
func NewGCSObjectStore(gcsClient GCSClient, logger zerolog.Logger) (*GCSObjectStore, error) {
	if gcsClient == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	return &GCSObjectStore{
		client: gcsClient,
		logger: logger.With().Str("component", "GCSObjectStore").Logger(),
	}, nil
}

// PutObject writes data to the object at loc. The write is only committed
// when the writer closes without error. Objects are never overwritten.
func (s *GCSObjectStore) PutObject(ctx context.Context, loc Location, data []byte, contentType string) error {
	if loc.Bucket == "" || loc.Key == "" {
		return fmt.Errorf("%w: %q", ErrInvalidLocation, loc.String())
	}

	gcsWriter := s.client.Bucket(loc.Bucket).Object(loc.Key).NewWriter(ctx, contentType)
	bytesWritten, copyErr := io.Copy(gcsWriter, bytes.NewReader(data))
	closeErr := gcsWriter.Close() // This finalizes the GCS upload.

	if copyErr != nil {
		return fmt.Errorf("failed to write GCS object %s: %w", loc, copyErr)
	}
	if closeErr != nil {
		var apiErr *googleapi.Error
		if errors.As(closeErr, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return fmt.Errorf("%w: %s", ErrObjectExists, loc)
		}
		return fmt.Errorf("failed to close GCS object writer for %s: %w", loc, closeErr)
	}

	s.logger.Info().
		Str("location", loc.String()).
		Int64("bytes_written", bytesWritten).
		Msg("Stored archive object.")
	return nil
}
