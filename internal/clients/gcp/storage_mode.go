package gcp

import (
	"fmt"
	"net/url"
	"strings"
)

// ObjectStorageMode selects real GCS or a local fake-gcs emulator for the
// video bucket.
type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

type ObjectStorageConfig struct {
	Mode         ObjectStorageMode
	EmulatorHost string
	// CompatibilityFallback is set when emulator mode was inferred from
	// STORAGE_EMULATOR_HOST alone.
	CompatibilityFallback bool
}

func (cfg ObjectStorageConfig) IsEmulatorMode() bool {
	return cfg.Mode == ObjectStorageModeGCSEmulator
}

func (cfg ObjectStorageConfig) ModeSource() string {
	if cfg.CompatibilityFallback {
		return "compatibility_fallback"
	}
	return "explicit_or_default"
}

type ObjectStorageConfigErrorCode string

const (
	ObjectStorageConfigErrorInvalidMode         ObjectStorageConfigErrorCode = "invalid_mode"
	ObjectStorageConfigErrorMissingEmulatorHost ObjectStorageConfigErrorCode = "missing_emulator_host"
	ObjectStorageConfigErrorInvalidEmulatorHost ObjectStorageConfigErrorCode = "invalid_emulator_host"
)

type ObjectStorageConfigError struct {
	Code         ObjectStorageConfigErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *ObjectStorageConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ObjectStorageConfigErrorInvalidMode:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q is not one of %q, %q", e.Mode, ObjectStorageModeGCS, ObjectStorageModeGCSEmulator)
	case ObjectStorageConfigErrorMissingEmulatorHost:
		return "OBJECT_STORAGE_MODE=gcs_emulator needs STORAGE_EMULATOR_HOST"
	case ObjectStorageConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("STORAGE_EMULATOR_HOST=%q must be an absolute URL (e.g. http://fake-gcs:4443)", e.EmulatorHost)
	}
	return "invalid object storage config"
}

func (e *ObjectStorageConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveObjectStorageConfig turns the raw OBJECT_STORAGE_MODE and
// STORAGE_EMULATOR_HOST values into a validated config. An empty mode with an
// emulator host set selects the emulator.
func ResolveObjectStorageConfig(rawMode, emulatorHost string) (ObjectStorageConfig, error) {
	cfg := ObjectStorageConfig{
		Mode:         ObjectStorageMode(strings.ToLower(strings.TrimSpace(rawMode))),
		EmulatorHost: strings.TrimSpace(emulatorHost),
	}
	if cfg.Mode == "" {
		cfg.Mode = ObjectStorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode, cfg.CompatibilityFallback = ObjectStorageModeGCSEmulator, true
		}
	}
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		if ce, ok := err.(*ObjectStorageConfigError); ok && ce.Code == ObjectStorageConfigErrorInvalidMode {
			ce.Mode = strings.TrimSpace(rawMode)
		}
		return cfg, err
	}
	return cfg, nil
}

func ValidateObjectStorageConfig(cfg ObjectStorageConfig) error {
	fail := func(code ObjectStorageConfigErrorCode, cause error) error {
		return &ObjectStorageConfigError{Code: code, Mode: string(cfg.Mode), EmulatorHost: cfg.EmulatorHost, Cause: cause}
	}
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		return nil
	case ObjectStorageModeGCSEmulator:
		if cfg.EmulatorHost == "" {
			return fail(ObjectStorageConfigErrorMissingEmulatorHost, nil)
		}
		u, err := url.Parse(cfg.EmulatorHost)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fail(ObjectStorageConfigErrorInvalidEmulatorHost, err)
		}
		return nil
	default:
		return fail(ObjectStorageConfigErrorInvalidMode, nil)
	}
}
