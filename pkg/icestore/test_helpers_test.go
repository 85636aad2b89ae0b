package icestore

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"

	"google.golang.org/api/googleapi"
)

// --- Mock GCS Client Components ---

// mockGCSWriter is a mock GCSWriter that writes to an in-memory buffer.
type mockGCSWriter struct {
	buf         bytes.Buffer
	contentType string
	closed      bool
	closeErr    error
}

func (m *mockGCSWriter) Write(p []byte) (n int, err error) {
	if m.closed {
		return 0, errors.New("write on closed writer")
	}
	return m.buf.Write(p)
}

func (m *mockGCSWriter) Close() error {
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	return m.closeErr
}

// mockGCSObjectHandle is a mock GCSObjectHandle. A second writer for the same
// object fails on Close, like the DoesNotExist precondition.
type mockGCSObjectHandle struct {
	writer   *mockGCSWriter
	closeErr error
}

func (m *mockGCSObjectHandle) NewWriter(_ context.Context, contentType string) GCSWriter {
	if m.writer != nil {
		return &mockGCSWriter{contentType: contentType, closeErr: &googleapi.Error{Code: http.StatusPreconditionFailed, Message: "precondition failed"}}
	}
	m.writer = &mockGCSWriter{contentType: contentType, closeErr: m.closeErr}
	return m.writer
}

// mockGCSBucketHandle is a mock GCSBucketHandle that stores created objects in a map.
type mockGCSBucketHandle struct {
	sync.Mutex
	objects  map[string]*mockGCSObjectHandle
	closeErr error
}

func (m *mockGCSBucketHandle) Object(name string) GCSObjectHandle {
	m.Lock()
	defer m.Unlock()
	if m.objects == nil {
		m.objects = make(map[string]*mockGCSObjectHandle)
	}
	if _, ok := m.objects[name]; !ok {
		m.objects[name] = &mockGCSObjectHandle{closeErr: m.closeErr}
	}
	return m.objects[name]
}

func (m *mockGCSBucketHandle) object(name string) (*mockGCSWriter, bool) {
	m.Lock()
	defer m.Unlock()
	obj, ok := m.objects[name]
	if !ok || obj.writer == nil {
		return nil, false
	}
	return obj.writer, true
}

func (m *mockGCSBucketHandle) count() int {
	m.Lock()
	defer m.Unlock()
	return len(m.objects)
}

// mockGCSClient is a mock GCSClient that records the bucket names it was asked for.
type mockGCSClient struct {
	sync.Mutex
	buckets map[string]*mockGCSBucketHandle
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{buckets: make(map[string]*mockGCSBucketHandle)}
}

func (m *mockGCSClient) Bucket(name string) GCSBucketHandle {
	return m.bucket(name)
}

func (m *mockGCSClient) bucket(name string) *mockGCSBucketHandle {
	m.Lock()
	defer m.Unlock()
	b, ok := m.buckets[name]
	if !ok {
		b = &mockGCSBucketHandle{}
		m.buckets[name] = b
	}
	return b
}

// mockObjectStore is an ObjectStore that keeps objects in memory.
type mockObjectStore struct {
	sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	err          error
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{objects: make(map[string][]byte), contentTypes: make(map[string]string)}
}

func (m *mockObjectStore) PutObject(_ context.Context, loc Location, data []byte, contentType string) error {
	m.Lock()
	defer m.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.objects[loc.String()]; ok {
		return ErrObjectExists
	}
	m.objects[loc.String()] = append([]byte(nil), data...)
	m.contentTypes[loc.String()] = contentType
	return nil
}

func (m *mockObjectStore) contentType(uri string) string {
	m.Lock()
	defer m.Unlock()
	return m.contentTypes[uri]
}

func (m *mockObjectStore) get(uri string) ([]byte, bool) {
	m.Lock()
	defer m.Unlock()
	data, ok := m.objects[uri]
	return data, ok
}

func (m *mockObjectStore) count() int {
	m.Lock()
	defer m.Unlock()
	return len(m.objects)
}
