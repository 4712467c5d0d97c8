// Package config holds the application options: defaults, an optional
// TOML file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Options configures the HaloLaba client.
type Options struct {
	// ServerURL is the base URL of the remote row store.
	ServerURL string `toml:"server_url"`
	// DatabasePath is the SQLite file holding the offline queue and cache.
	DatabasePath string `toml:"database_path"`
	// SyncInfoPath is the file recording the last successful drain.
	SyncInfoPath string `toml:"sync_info_path"`
	// ProbeIntervalSeconds is how often connectivity is probed.
	ProbeIntervalSeconds int `toml:"probe_interval_seconds"`
	// NotifyIntervalSeconds is how often notification checks run.
	NotifyIntervalSeconds int `toml:"notify_interval_seconds"`
	// SyncMaxAttempts is how many drains may definitively reject an
	// operation before it is moved to the dead-letter set.
	SyncMaxAttempts int `toml:"sync_max_attempts"`
	// RecentTransactions bounds the transaction window cached for
	// offline use.
	RecentTransactions int `toml:"recent_transactions"`
	LogLevel           string `toml:"log_level"`
	LogFormat          string `toml:"log_format"`
}

// Default returns the built-in option values. The data directory is
// created under the user's home when it does not exist yet.
func Default() (*Options, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".halolaba")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return &Options{
		ServerURL:             "http://localhost:8080",
		DatabasePath:          filepath.Join(dir, "halolaba.db"),
		SyncInfoPath:          filepath.Join(dir, "syncinfo.json"),
		ProbeIntervalSeconds:  15,
		NotifyIntervalSeconds: 300,
		SyncMaxAttempts:       5,
		RecentTransactions:    100,
		LogLevel:              "info",
		LogFormat:             "text",
	}, nil
}

// Load builds the options from defaults, the TOML file at path (skipped
// when path is empty), and environment variables, each layer overriding
// the previous one.
func Load(path string) (*Options, error) {
	opt, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, opt); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if v, ok := os.LookupEnv("HALOLABA_SERVER_URL"); ok {
		opt.ServerURL = v
	}
	if v, ok := os.LookupEnv("HALOLABA_DATABASE_PATH"); ok {
		opt.DatabasePath = v
	}
	if v, ok := os.LookupEnv("HALOLABA_SYNC_INFO_PATH"); ok {
		opt.SyncInfoPath = v
	}
	if v, ok := os.LookupEnv("HALOLABA_PROBE_INTERVAL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			opt.ProbeIntervalSeconds = n
		}
	}
	if v, ok := os.LookupEnv("HALOLABA_NOTIFY_INTERVAL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			opt.NotifyIntervalSeconds = n
		}
	}
	if v, ok := os.LookupEnv("HALOLABA_SYNC_MAX_ATTEMPTS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			opt.SyncMaxAttempts = n
		}
	}
	if v, ok := os.LookupEnv("HALOLABA_RECENT_TRANSACTIONS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			opt.RecentTransactions = n
		}
	}
	if v, ok := os.LookupEnv("HALOLABA_LOG_LEVEL"); ok {
		opt.LogLevel = v
	}
	if v, ok := os.LookupEnv("HALOLABA_LOG_FORMAT"); ok {
		opt.LogFormat = v
	}

	return opt, nil
}

// ProbeInterval returns the connectivity probe interval as a duration.
func (o *Options) ProbeInterval() time.Duration {
	return time.Duration(o.ProbeIntervalSeconds) * time.Second
}

// NotifyInterval returns the notification check interval as a duration.
func (o *Options) NotifyInterval() time.Duration {
	return time.Duration(o.NotifyIntervalSeconds) * time.Second
}
