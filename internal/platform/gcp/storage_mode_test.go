package gcp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveObjectStorageConfigFromEnv(t *testing.T) {
	cases := []struct {
		name         string
		mode         string
		emulatorHost string
		wantMode     ObjectStorageMode
		wantFallback bool
		wantErrCode  ObjectStorageConfigErrorCode
	}{
		{name: "default gcs", wantMode: ObjectStorageModeGCS},
		{name: "explicit gcs ignores emulator host", mode: "gcs", emulatorHost: "http://fake-gcs:4443", wantMode: ObjectStorageModeGCS},
		{name: "explicit emulator", mode: "GCS_EMULATOR", emulatorHost: "http://fake-gcs:4443", wantMode: ObjectStorageModeGCSEmulator},
		{name: "emulator host alone", emulatorHost: "http://fake-gcs:4443", wantMode: ObjectStorageModeGCSEmulator, wantFallback: true},
		{name: "unknown mode", mode: "local", wantErrCode: ObjectStorageConfigErrorInvalidMode},
		{name: "emulator without host", mode: "gcs_emulator", wantErrCode: ObjectStorageConfigErrorMissingEmulatorHost},
		{name: "emulator host without scheme", mode: "gcs_emulator", emulatorHost: "fake-gcs:4443", wantErrCode: ObjectStorageConfigErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
			t.Setenv("STORAGE_EMULATOR_HOST", tc.emulatorHost)

			cfg, err := ResolveObjectStorageConfigFromEnv()
			if tc.wantErrCode != "" {
				var cfgErr *ObjectStorageConfigError
				require.True(t, errors.As(err, &cfgErr), "expected ObjectStorageConfigError, got %v", err)
				assert.Equal(t, tc.wantErrCode, cfgErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantMode, cfg.Mode)
			assert.Equal(t, tc.wantFallback, cfg.CompatibilityFallback)
		})
	}
}

func TestResolveObjectStoragePublicBaseURL(t *testing.T) {
	emu := ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator, EmulatorHost: "http://fake-gcs:4443"}

	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")
	base, source, err := resolveObjectStoragePublicBaseURL(ObjectStorageConfig{Mode: ObjectStorageModeGCS})
	require.NoError(t, err)
	assert.Empty(t, base)
	assert.Equal(t, "gcs_default", source)

	base, source, err = resolveObjectStoragePublicBaseURL(emu)
	require.NoError(t, err)
	assert.Equal(t, "http://fake-gcs:4443", base)
	assert.Equal(t, "storage_emulator_host", source)

	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "http://localhost:4443/")
	base, _, err = resolveObjectStoragePublicBaseURL(emu)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4443", base)

	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "localhost:4443")
	_, _, err = resolveObjectStoragePublicBaseURL(emu)
	assert.Error(t, err)
}
