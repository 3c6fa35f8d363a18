package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/video-gateway/internal/platform/gcp"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

var newObjectStore = gcp.NewObjectStore

type StorageBootstrapErrorCode string

const (
	StorageBootstrapErrorMissingBucket       StorageBootstrapErrorCode = "missing_bucket"
	StorageBootstrapErrorInvalidMode         StorageBootstrapErrorCode = "invalid_mode"
	StorageBootstrapErrorMissingEmulatorHost StorageBootstrapErrorCode = "missing_emulator_host"
	StorageBootstrapErrorInvalidEmulatorHost StorageBootstrapErrorCode = "invalid_emulator_host"
	StorageBootstrapErrorConnectFailed       StorageBootstrapErrorCode = "connect_failed"
)

// StorageBootstrapError is fatal at startup: the gateway cannot run without its bucket.
type StorageBootstrapError struct {
	Code         StorageBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveObjectStore reads the bucket settings from the environment and opens the store.
func resolveObjectStore(ctx context.Context, log *logger.Logger) (gcp.ObjectStore, error) {
	cfg, err := gcp.StoreConfigFromEnv()
	if err != nil {
		classified := classifyStorageBootstrapError(cfg.Storage, err)
		log.Error("Object storage configuration invalid", "error_code", storageBootstrapErrorCode(classified), "error", classified)
		return nil, classified
	}

	log.Info(
		"Selecting object storage provider",
		"bucket", cfg.Bucket,
		"mode", cfg.Storage.Mode,
		"mode_source", cfg.Storage.ModeSource(),
		"emulator_host", cfg.Storage.EmulatorHost,
	)
	store, err := newObjectStore(ctx, log, cfg)
	if err != nil {
		classified := classifyStorageBootstrapError(cfg.Storage, err)
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", cfg.Storage.Mode,
			"emulator_host", cfg.Storage.EmulatorHost,
			"error_code", storageBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return store, nil
}

func classifyStorageBootstrapError(storageCfg gcp.ObjectStorageConfig, err error) error {
	code := StorageBootstrapErrorConnectFailed
	var cfgErr *gcp.ObjectStorageConfigError
	switch {
	case errors.Is(err, gcp.ErrMissingBucket):
		code = StorageBootstrapErrorMissingBucket
	case errors.As(err, &cfgErr):
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			code = StorageBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			code = StorageBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			code = StorageBootstrapErrorInvalidEmulatorHost
		}
	}
	return &StorageBootstrapError{
		Code:         code,
		Mode:         string(storageCfg.Mode),
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
}

func storageBootstrapErrorCode(err error) StorageBootstrapErrorCode {
	var bootstrapErr *StorageBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return StorageBootstrapErrorConnectFailed
}
