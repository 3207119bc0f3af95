// Package config provides configuration helpers for safevision commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variable names shared by the commands.
const (
	EnvBackendURL   = "SAFEVISION_BACKEND_URL"
	EnvCameraDevice = "CAMERA_DEVICE"
	EnvConfigFile   = "SAFEVISION_CONFIG"
	EnvLogLevel     = "LOG_LEVEL"
	EnvPort         = "PORT"
)

// Default endpoints.
const (
	DefaultBackendURL    = "http://localhost:5000"
	DefaultDashboardPort = "8080"
	DefaultBackendPort   = "5000"
)

// String returns the env var value or the provided default if unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as an int.
// Falls back to def when unset or unparseable.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the env var parsed with strconv.ParseBool.
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Duration returns the env var parsed with time.ParseDuration.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// BackendURL returns the inference backend base URL from SAFEVISION_BACKEND_URL.
func BackendURL() string {
	return String(EnvBackendURL, DefaultBackendURL)
}
