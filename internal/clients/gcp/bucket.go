package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/recipe-backend/internal/pkg/ctxutil"
	"github.com/yungbote/recipe-backend/internal/pkg/httpx"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore moves whole objects between the video bucket and local scratch.
type BlobStore interface {
	Download(ctx context.Context, objectPath, localPath string) error
	Upload(ctx context.Context, localPath, objectPath string) error
	Delete(ctx context.Context, objectPath string) error
	URI(objectPath string) string
	Bucket() string
	Close() error
}

type BucketConfig struct {
	Bucket      string
	Storage     ObjectStorageConfig
	Credentials string
	OpTimeout   time.Duration
	Retry       httpx.RetryPolicy
}

// objectBackend is the slice of the storage API the bucket service needs.
type objectBackend interface {
	NewReader(ctx context.Context, object string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, object, contentType string) io.WriteCloser
	Delete(ctx context.Context, object string) error
	Close() error
}

type gcsBackend struct {
	client *storage.Client
	bucket string
}

func (b *gcsBackend) NewReader(ctx context.Context, object string) (io.ReadCloser, error) {
	r, err := b.client.Bucket(b.bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (b *gcsBackend) NewWriter(ctx context.Context, object, contentType string) io.WriteCloser {
	w := b.client.Bucket(b.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	return w
}

func (b *gcsBackend) Delete(ctx context.Context, object string) error {
	return b.client.Bucket(b.bucket).Object(object).Delete(ctx)
}

func (b *gcsBackend) Close() error { return b.client.Close() }

type bucketService struct {
	log       *logger.Logger
	backend   objectBackend
	bucket    string
	opTimeout time.Duration
	retry     httpx.RetryPolicy
}

func NewBucketService(log *logger.Logger, cfg BucketConfig) (BlobStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("missing bucket name")
	}
	if err := ValidateObjectStorageConfig(cfg.Storage); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	client, err := newStorageClientForMode(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	svc := newBucketService(log, &gcsBackend{client: client, bucket: cfg.Bucket}, cfg)
	svc.log.Info("Object storage initialized",
		"mode", cfg.Storage.Mode,
		"mode_source", cfg.Storage.ModeSource(),
		"emulator_host", cfg.Storage.EmulatorHost,
		"bucket", cfg.Bucket,
	)
	return svc, nil
}

func newBucketService(log *logger.Logger, backend objectBackend, cfg BucketConfig) *bucketService {
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	retry := cfg.Retry
	if retry.Initial <= 0 {
		retry = httpx.DefaultRetryPolicy()
	}
	return &bucketService{
		log:       log.With("service", "BucketService"),
		backend:   backend,
		bucket:    cfg.Bucket,
		opTimeout: timeout,
		retry:     retry,
	}
}

func newStorageClientForMode(ctx context.Context, cfg BucketConfig) (*storage.Client, error) {
	switch cfg.Storage.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptions(cfg.Credentials)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.Storage.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Mode: string(cfg.Storage.Mode)}
	}
}

func (bs *bucketService) Bucket() string { return bs.bucket }

func (bs *bucketService) URI(objectPath string) string {
	return fmt.Sprintf("gs://%s/%s", bs.bucket, strings.TrimLeft(objectPath, "/"))
}

func (bs *bucketService) Close() error {
	if bs == nil || bs.backend == nil {
		return nil
	}
	return bs.backend.Close()
}

// Download copies objectPath to localPath. The file is written under a
// temporary name and renamed once complete. A missing object is returned as
// ErrObjectNotFound without retrying.
func (bs *bucketService) Download(ctx context.Context, objectPath, localPath string) error {
	ctx = ctxutil.Default(ctx)
	if objectPath == "" || localPath == "" {
		return fmt.Errorf("objectPath and localPath required")
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("mkdir download dir: %w", err)
	}
	err := httpx.Retry(ctx, bs.retry, func(ctx context.Context) error {
		return bs.downloadOnce(ctx, objectPath, localPath)
	})
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, bs.URI(objectPath))
		}
		return fmt.Errorf("download %s: %w", bs.URI(objectPath), err)
	}
	return nil
}

func (bs *bucketService) downloadOnce(ctx context.Context, objectPath, localPath string) error {
	ctx, cancel := context.WithTimeout(ctx, bs.opTimeout)
	defer cancel()

	r, err := bs.backend.NewReader(ctx, objectPath)
	if err != nil {
		return err
	}
	defer r.Close()

	tmp := localPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, localPath)
}

func (bs *bucketService) Upload(ctx context.Context, localPath, objectPath string) error {
	ctx = ctxutil.Default(ctx)
	if objectPath == "" || localPath == "" {
		return fmt.Errorf("objectPath and localPath required")
	}
	err := httpx.Retry(ctx, bs.retry, func(ctx context.Context) error {
		return bs.uploadOnce(ctx, localPath, objectPath)
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", bs.URI(objectPath), err)
	}
	return nil
}

func (bs *bucketService) uploadOnce(ctx context.Context, localPath, objectPath string) error {
	ctx, cancel := context.WithTimeout(ctx, bs.opTimeout)
	defer cancel()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	w := bs.backend.NewWriter(ctx, objectPath, contentTypeForKey(objectPath))
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (bs *bucketService) Delete(ctx context.Context, objectPath string) error {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := bs.backend.Delete(ctx, objectPath); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, bs.URI(objectPath))
		}
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", objectPath, bs.bucket, err)
	}
	return nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(s, ".flac"):
		return "audio/flac"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".mp4"), strings.HasSuffix(s, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(s, ".webm"):
		return "video/webm"
	case strings.HasSuffix(s, ".mov"):
		return "video/quicktime"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}
