package icestore

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocationScheme is the URI scheme of archive locations.
const LocationScheme = "gs"

// DefaultPrefix is the object prefix used when none is configured.
const DefaultPrefix = "archive"

// ErrInvalidLocation is returned when a URI is not a usable archive location.
var ErrInvalidLocation = errors.New("invalid archive location")

// Location addresses a stored envelope.
type Location struct {
	Bucket string
	Key    string
}

// NewLocation derives the location of an envelope for an endpoint:
// <prefix>/<endpointId>/<YYYY>/<MM>/<DD>/<HH>/<uuid> using the UTC calendar
// fields of the event timestamp. The endpoint id is always a single key
// segment. Every call gets a fresh random id.
func NewLocation(bucket, prefix, endpointID string, eventTimestampMillis int64) Location {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ts := time.UnixMilli(eventTimestampMillis).UTC()
	key := path.Join(
		strings.Trim(prefix, "/"),
		endpointSegment(endpointID),
		fmt.Sprintf("%04d/%02d/%02d/%02d", ts.Year(), ts.Month(), ts.Day(), ts.Hour()),
		uuid.New().String(),
	)
	return Location{Bucket: bucket, Key: key}
}

// endpointSegment escapes id so that it cannot add, remove or climb key segments.
func endpointSegment(id string) string {
	switch id {
	case "":
		return "_"
	case ".", "..":
		return strings.ReplaceAll(id, ".", "%2E")
	}
	return url.PathEscape(id)
}

// String renders the location as a gs:// URI.
func (l Location) String() string {
	u := url.URL{Scheme: LocationScheme, Host: l.Bucket, Path: "/" + l.Key}
	return u.String()
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.Bucket == "" && l.Key == ""
}

// ParseLocation parses a gs://bucket/key URI. Escaped characters in the key are decoded.
func ParseLocation(uri string) (Location, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	if u.Scheme != LocationScheme {
		return Location{}, fmt.Errorf("%w: scheme %q", ErrInvalidLocation, u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidLocation, uri)
	}
	return Location{Bucket: u.Host, Key: key}, nil
}
