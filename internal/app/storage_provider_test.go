package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/video-gateway/internal/platform/gcp"
	"github.com/yungbote/video-gateway/internal/platform/logger"
	"github.com/yungbote/video-gateway/internal/services/media/mediatest"
)

func TestClassifyStorageBootstrapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want StorageBootstrapErrorCode
	}{
		{"missing bucket", gcp.ErrMissingBucket, StorageBootstrapErrorMissingBucket},
		{"invalid mode", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidMode, Mode: "bad-mode"}, StorageBootstrapErrorInvalidMode},
		{"missing emulator host", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingEmulatorHost}, StorageBootstrapErrorMissingEmulatorHost},
		{"invalid emulator host", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidEmulatorHost, EmulatorHost: "fake-gcs:4443"}, StorageBootstrapErrorInvalidEmulatorHost},
		{"connect failed", errors.New("dial tcp: connection refused"), StorageBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		err := classifyStorageBootstrapError(gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS}, tc.err)
		var got *StorageBootstrapError
		if !errors.As(err, &got) {
			t.Fatalf("%s: expected StorageBootstrapError, got=%T", tc.name, err)
		}
		if got.Code != tc.want {
			t.Fatalf("%s: code want=%q got=%q", tc.name, tc.want, got.Code)
		}
		if !errors.Is(err, tc.err) {
			t.Fatalf("%s: cause not wrapped", tc.name)
		}
	}
}

func stubObjectStore(t *testing.T) *gcp.StoreConfig {
	t.Helper()
	orig := newObjectStore
	t.Cleanup(func() { newObjectStore = orig })
	captured := &gcp.StoreConfig{}
	newObjectStore = func(_ context.Context, _ *logger.Logger, cfg gcp.StoreConfig) (gcp.ObjectStore, error) {
		*captured = cfg
		return mediatest.NewMemoryStore(), nil
	}
	return captured
}

func TestResolveObjectStoreMissingBucket(t *testing.T) {
	t.Setenv("GCS_BUCKET_NAME", "")
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	stubObjectStore(t)

	_, err := resolveObjectStore(context.Background(), logger.Nop())
	if got := storageBootstrapErrorCode(err); got != StorageBootstrapErrorMissingBucket {
		t.Fatalf("code: want=%q got=%q (err=%v)", StorageBootstrapErrorMissingBucket, got, err)
	}
}

func TestResolveObjectStoreInvalidMode(t *testing.T) {
	t.Setenv("GCS_BUCKET_NAME", "videos")
	t.Setenv("OBJECT_STORAGE_MODE", "s3")
	stubObjectStore(t)

	_, err := resolveObjectStore(context.Background(), logger.Nop())
	if got := storageBootstrapErrorCode(err); got != StorageBootstrapErrorInvalidMode {
		t.Fatalf("code: want=%q got=%q (err=%v)", StorageBootstrapErrorInvalidMode, got, err)
	}
}

func TestResolveObjectStoreEmulatorMode(t *testing.T) {
	t.Setenv("GCS_BUCKET_NAME", "videos")
	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")
	captured := stubObjectStore(t)

	store, err := resolveObjectStore(context.Background(), logger.Nop())
	if err != nil {
		t.Fatalf("resolveObjectStore: %v", err)
	}
	if store == nil {
		t.Fatalf("expected a store")
	}
	if captured.Bucket != "videos" {
		t.Fatalf("bucket: want=%q got=%q", "videos", captured.Bucket)
	}
	if captured.Storage.Mode != gcp.ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", gcp.ObjectStorageModeGCSEmulator, captured.Storage.Mode)
	}
	if captured.Storage.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("emulator host: got=%q", captured.Storage.EmulatorHost)
	}
}

func TestResolveObjectStoreConnectFailure(t *testing.T) {
	t.Setenv("GCS_BUCKET_NAME", "videos")
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	orig := newObjectStore
	t.Cleanup(func() { newObjectStore = orig })
	newObjectStore = func(context.Context, *logger.Logger, gcp.StoreConfig) (gcp.ObjectStore, error) {
		return nil, errors.New("no credentials")
	}

	_, err := resolveObjectStore(context.Background(), logger.Nop())
	if got := storageBootstrapErrorCode(err); got != StorageBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%q", StorageBootstrapErrorConnectFailed, got)
	}
}
