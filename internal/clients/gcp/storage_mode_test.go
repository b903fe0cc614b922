package gcp

import (
	"errors"
	"testing"
)

func TestResolveObjectStorageConfigDefaultGCS(t *testing.T) {
	cfg, err := ResolveObjectStorageConfig("", "")
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfig: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
	if cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=false got=true")
	}
}

func TestResolveObjectStorageConfigExplicitGCSIgnoresEmulatorHost(t *testing.T) {
	cfg, err := ResolveObjectStorageConfig("GCS", "http://fake-gcs:4443")
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfig: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
}

func TestResolveObjectStorageConfigCompatibilityFallback(t *testing.T) {
	cfg, err := ResolveObjectStorageConfig("", "http://fake-gcs:4443")
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfig: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCSEmulator, cfg.Mode)
	}
	if !cfg.CompatibilityFallback || cfg.ModeSource() != "compatibility_fallback" {
		t.Fatalf("compatibility fallback: want=true got=%v (%s)", cfg.CompatibilityFallback, cfg.ModeSource())
	}
}

func TestResolveObjectStorageConfigErrors(t *testing.T) {
	cases := []struct {
		mode, host string
		code       ObjectStorageConfigErrorCode
	}{
		{"local", "", ObjectStorageConfigErrorInvalidMode},
		{"gcs_emulator", "", ObjectStorageConfigErrorMissingEmulatorHost},
		{"gcs_emulator", "fake-gcs:4443", ObjectStorageConfigErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		_, err := ResolveObjectStorageConfig(tc.mode, tc.host)
		var cfgErr *ObjectStorageConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s/%s: expected ObjectStorageConfigError, got %v", tc.mode, tc.host, err)
		}
		if cfgErr.Code != tc.code {
			t.Fatalf("%s/%s code: want=%q got=%q", tc.mode, tc.host, tc.code, cfgErr.Code)
		}
	}
}
