package gcp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/yungbote/recipe-backend/internal/pkg/httpx"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

type memBackend struct {
	mu          sync.Mutex
	objects     map[string][]byte
	readErrs    []error
	contentType map[string]string
	deleted     []string
}

func newMemBackend() *memBackend {
	return &memBackend{objects: map[string][]byte{}, contentType: map[string]string{}}
}

func (m *memBackend) NewReader(_ context.Context, object string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.readErrs) > 0 {
		err := m.readErrs[0]
		m.readErrs = m.readErrs[1:]
		return nil, err
	}
	b, ok := m.objects[object]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type memWriter struct {
	buf    bytes.Buffer
	commit func([]byte)
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *memWriter) Close() error {
	w.commit(w.buf.Bytes())
	return nil
}

func (m *memBackend) NewWriter(_ context.Context, object, contentType string) io.WriteCloser {
	return &memWriter{commit: func(b []byte) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.objects[object] = append([]byte(nil), b...)
		m.contentType[object] = contentType
	}}
}

func (m *memBackend) Delete(_ context.Context, object string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[object]; !ok {
		return storage.ErrObjectNotExist
	}
	delete(m.objects, object)
	m.deleted = append(m.deleted, object)
	return nil
}

func (m *memBackend) Close() error { return nil }

func testBucket(backend objectBackend) *bucketService {
	return newBucketService(logger.NewNop(), backend, BucketConfig{
		Bucket: "videos",
		Retry:  httpx.RetryPolicy{MaxRetries: 2, Initial: time.Millisecond, Max: time.Millisecond},
	})
}

func TestBucketDownloadWritesFile(t *testing.T) {
	backend := newMemBackend()
	backend.objects["uploads/pancakes.mp4"] = []byte("video-bytes")
	bs := testBucket(backend)

	local := filepath.Join(t.TempDir(), "nested", "pancakes.mp4")
	if err := bs.Download(context.Background(), "uploads/pancakes.mp4", local); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "video-bytes" {
		t.Fatalf("content: want=%q got=%q", "video-bytes", got)
	}
	if _, err := os.Stat(local + ".part"); !os.IsNotExist(err) {
		t.Fatalf("partial file should be renamed away, stat err=%v", err)
	}
}

func TestBucketDownloadMissingObject(t *testing.T) {
	bs := testBucket(newMemBackend())
	err := bs.Download(context.Background(), "uploads/missing.mp4", filepath.Join(t.TempDir(), "x.mp4"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("err: want=%v got=%v", ErrObjectNotFound, err)
	}
}

func TestBucketDownloadRetriesTransient(t *testing.T) {
	backend := newMemBackend()
	backend.objects["a.mp4"] = []byte("ok")
	backend.readErrs = []error{&googleapi.Error{Code: 503}, &googleapi.Error{Code: 429}}
	bs := testBucket(backend)

	if err := bs.Download(context.Background(), "a.mp4", filepath.Join(t.TempDir(), "a.mp4")); err != nil {
		t.Fatalf("Download after transient errors: %v", err)
	}
}

func TestBucketUploadAndDelete(t *testing.T) {
	backend := newMemBackend()
	bs := testBucket(backend)

	local := filepath.Join(t.TempDir(), "job.wav")
	if err := os.WriteFile(local, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := bs.Upload(context.Background(), local, "temp-audio/job.wav"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ct := backend.contentType["temp-audio/job.wav"]; ct != "audio/wav" {
		t.Fatalf("content type: want=%q got=%q", "audio/wav", ct)
	}
	if err := bs.Delete(context.Background(), "temp-audio/job.wav"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := bs.Delete(context.Background(), "temp-audio/job.wav"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("second delete: want=%v got=%v", ErrObjectNotFound, err)
	}
}

func TestBucketURI(t *testing.T) {
	bs := testBucket(newMemBackend())
	if got := bs.URI("/temp-audio/a.wav"); got != "gs://videos/temp-audio/a.wav" {
		t.Fatalf("uri: got=%q", got)
	}
}
