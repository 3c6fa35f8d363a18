package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/video-gateway/internal/platform/logger"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrMissingBucket  = errors.New("missing env var GCS_BUCKET_NAME")
)

type SignedAction string

const (
	SignedActionRead  SignedAction = "read"
	SignedActionWrite SignedAction = "write"
)

const DefaultSignedURLTTL = 60 * time.Minute

type SignedURLOptions struct {
	Action      SignedAction
	TTL         time.Duration
	ContentType string
	// MaxBytes bounds the upload size of write URLs. Zero leaves it unbounded.
	MaxBytes int64
}

// ReadRange selects a window of an object. The zero value reads everything and a
// negative Length reads from Offset to the end.
type ReadRange struct {
	Offset int64
	Length int64
}

func (r ReadRange) IsWhole() bool {
	return r.Offset == 0 && r.Length <= 0
}

type WriteOptions struct {
	ContentType string
	Metadata    map[string]string
}

type ObjectAttrs struct {
	Key         string
	Size        int64
	ContentType string
	Updated     time.Time
	ETag        string
	Metadata    map[string]string
}

type ObjectPage struct {
	Objects       []ObjectAttrs
	NextPageToken string
}

type ObjectStore interface {
	Bucket() string
	Exists(ctx context.Context, key string) (bool, error)
	Attrs(ctx context.Context, key string) (*ObjectAttrs, error)
	SignedURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	OpenReader(ctx context.Context, key string, rng ReadRange) (io.ReadCloser, error)
	NewWriter(ctx context.Context, key string, opts WriteOptions) (io.WriteCloser, error)
	Upload(ctx context.Context, key string, r io.Reader, opts WriteOptions) (int64, error)
	List(ctx context.Context, prefix string, limit int, pageToken string) (*ObjectPage, error)
	Delete(ctx context.Context, key string) error
}

type gcsStore struct {
	log           *logger.Logger
	client        *storage.Client
	bucket        string
	signerEmail   string
	storageMode   ObjectStorageMode
	emulatorHost  string
	publicBaseURL string
}

type StoreConfig struct {
	Bucket      string
	SignerEmail string
	Storage     ObjectStorageConfig
}

func StoreConfigFromEnv() (StoreConfig, error) {
	storageCfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return StoreConfig{Storage: storageCfg}, fmt.Errorf("resolve object storage config: %w", err)
	}
	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET_NAME"))
	if bucket == "" {
		return StoreConfig{Storage: storageCfg}, ErrMissingBucket
	}
	return StoreConfig{
		Bucket:      bucket,
		SignerEmail: strings.TrimSpace(os.Getenv("GCS_SIGNER_EMAIL")),
		Storage:     storageCfg,
	}, nil
}

func NewObjectStore(ctx context.Context, log *logger.Logger, cfg StoreConfig) (ObjectStore, error) {
	if err := ValidateObjectStorageConfig(cfg.Storage); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	publicBaseURL, publicBaseSource, err := resolveObjectStoragePublicBaseURL(cfg.Storage)
	if err != nil {
		return nil, err
	}
	client, err := newStorageClientForMode(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	storeLog := log.With("service", "ObjectStore")
	storeLog.Info(
		"Object storage initialized",
		"bucket", cfg.Bucket,
		"mode", cfg.Storage.Mode,
		"mode_source", cfg.Storage.ModeSource(),
		"public_base_source", publicBaseSource,
	)
	return &gcsStore{
		log:           storeLog,
		client:        client,
		bucket:        cfg.Bucket,
		signerEmail:   cfg.SignerEmail,
		storageMode:   cfg.Storage.Mode,
		emulatorHost:  strings.TrimRight(strings.TrimSpace(cfg.Storage.EmulatorHost), "/"),
		publicBaseURL: publicBaseURL,
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg ObjectStorageConfig) (*storage.Client, error) {
	switch storageCfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/"))
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(storageCfg.Mode),
		}
	}
}

func (s *gcsStore) Bucket() string { return s.bucket }

func (s *gcsStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(key)
}

func (s *gcsStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Attrs(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *gcsStore) Attrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	attrs, err := s.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return toObjectAttrs(attrs), nil
}

func toObjectAttrs(attrs *storage.ObjectAttrs) *ObjectAttrs {
	return &ObjectAttrs{
		Key:         attrs.Name,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
		ETag:        attrs.Etag,
		Metadata:    attrs.Metadata,
	}
}

func (s *gcsStore) SignedURL(ctx context.Context, key string, opts SignedURLOptions) (string, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	if s.isEmulatorMode() {
		// The emulator does not verify signatures; hand out its plain endpoints.
		if opts.Action == SignedActionWrite {
			return s.emulatorUploadURL(key), nil
		}
		return s.emulatorObjectMediaURL(key), nil
	}

	so := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	}
	if s.signerEmail != "" {
		so.GoogleAccessID = s.signerEmail
	}
	if opts.Action == SignedActionWrite {
		so.Method = http.MethodPut
		so.ContentType = opts.ContentType
		if opts.MaxBytes > 0 {
			so.Headers = []string{fmt.Sprintf("x-goog-content-length-range:0,%d", opts.MaxBytes)}
		}
	}
	u, err := s.client.Bucket(s.bucket).SignedURL(key, so)
	if err != nil {
		return "", fmt.Errorf("sign %s url for %q: %w", opts.Action, key, err)
	}
	return u, nil
}

// readCloserWithCancel ties the lifetime of the read context to Close; cancelling
// before the caller drains the body yields empty reads.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (s *gcsStore) OpenReader(ctx context.Context, key string, rng ReadRange) (io.ReadCloser, error) {
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Hour)
	if s.isEmulatorMode() {
		rc, err := s.emulatorRangeRead(ctx2, key, rng)
		if err != nil {
			cancel()
			return nil, err
		}
		return &readCloserWithCancel{ReadCloser: rc, cancel: cancel}, nil
	}

	length := rng.Length
	if length <= 0 {
		length = -1
	}
	r, err := s.object(key).NewRangeReader(ctx2, rng.Offset, length)
	if errors.Is(err, storage.ErrObjectNotExist) {
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS range reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (s *gcsStore) NewWriter(ctx context.Context, key string, opts WriteOptions) (io.WriteCloser, error) {
	w := s.object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType
	if w.ContentType == "" {
		w.ContentType = contentTypeForKey(key)
	}
	if len(opts.Metadata) > 0 {
		w.Metadata = opts.Metadata
	}
	return w, nil
}

func (s *gcsStore) Upload(ctx context.Context, key string, r io.Reader, opts WriteOptions) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := s.NewWriter(ctx, key, opts)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, r)
	if err != nil {
		// Cancelling before Close aborts the resumable upload so nothing becomes visible.
		cancel()
		_ = w.Close()
		return n, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return n, nil
}

func (s *gcsStore) List(ctx context.Context, prefix string, limit int, pageToken string) (*ObjectPage, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var batch []*storage.ObjectAttrs
	next, err := iterator.NewPager(it, limit, pageToken).NextPage(&batch)
	if err != nil {
		return nil, fmt.Errorf("list objects prefix=%q: %w", prefix, err)
	}
	page := &ObjectPage{Objects: make([]ObjectAttrs, 0, len(batch)), NextPageToken: next}
	for _, attrs := range batch {
		if attrs == nil || strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		page.Objects = append(page.Objects, *toObjectAttrs(attrs))
	}
	return page, nil
}

func (s *gcsStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := s.object(key).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, s.bucket, err)
}

func (s *gcsStore) isEmulatorMode() bool {
	return s != nil && IsEmulatorObjectStorageMode(s.storageMode) && s.emulatorHost != ""
}

func (s *gcsStore) emulatorBase() string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL
	}
	return s.emulatorHost
}

func (s *gcsStore) emulatorObjectMediaURL(key string) string {
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		s.emulatorBase(),
		url.PathEscape(s.bucket),
		url.PathEscape(key),
	)
}

func (s *gcsStore) emulatorUploadURL(key string) string {
	return fmt.Sprintf(
		"%s/upload/storage/v1/b/%s/o?uploadType=media&name=%s",
		s.emulatorBase(),
		url.PathEscape(s.bucket),
		url.QueryEscape(key),
	)
}

func (s *gcsStore) emulatorRangeRead(ctx context.Context, key string, rng ReadRange) (io.ReadCloser, error) {
	mediaURL := fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		s.emulatorHost,
		url.PathEscape(s.bucket),
		url.PathEscape(key),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed creating emulator range request: %w", err)
	}
	if !rng.IsWhole() {
		if rng.Length > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Offset, rng.Offset+rng.Length-1))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", rng.Offset))
		}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed emulator range request: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return resp.Body, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("emulator range read failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".mp4"), strings.HasSuffix(s, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(s, ".webm"):
		return "video/webm"
	case strings.HasSuffix(s, ".mov"):
		return "video/quicktime"
	case strings.HasSuffix(s, ".mkv"):
		return "video/x-matroska"
	case strings.HasSuffix(s, ".avi"):
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}

// ContentTypeForKey guesses a MIME type from the key extension.
func ContentTypeForKey(key string) string { return contentTypeForKey(key) }
