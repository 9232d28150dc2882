package config

import (
	"fmt"
	"time"
)

// Page source kinds.
const (
	SourceHTTP    = "http"
	SourceBrowser = "browser"
)

// Storage backends.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Config holds ingester configuration.
type Config struct {
	URLsFile        string
	DataDir         string
	Backend         string // csv or sqlite
	SQLitePath      string
	Source          string // http or browser
	Timeout         time.Duration
	WaitSelector    string
	Headless        bool
	BrowserPath     string
	UserAgent       string
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	StoreCacheSize  int
	EagerStoreFlush bool
	Checkpoint      bool
	MetricsAddr     string
	ReportFile      string
	Verbose         bool
}

// DefaultConfig returns defaults matching a local run next to URLs.txt.
func DefaultConfig() *Config {
	return &Config{
		URLsFile:        "URLs.txt",
		DataDir:         ".",
		Backend:         BackendCSV,
		SQLitePath:      "nfce.db",
		Source:          SourceHTTP,
		Timeout:         10 * time.Second,
		WaitSelector:    ".chave",
		Headless:        true,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		MaxRetries:      0,
		RetryBackoff:    200 * time.Millisecond,
		RetryBackoffMax: 2 * time.Second,
		StoreCacheSize:  256,
		EagerStoreFlush: true,
		Checkpoint:      false,
		Verbose:         false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.URLsFile == "" {
		return fmt.Errorf("urls file cannot be empty")
	}
	switch c.Backend {
	case BackendCSV:
		if c.DataDir == "" {
			return fmt.Errorf("data dir cannot be empty")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
	default:
		return fmt.Errorf("backend must be csv or sqlite")
	}
	switch c.Source {
	case SourceHTTP:
	case SourceBrowser:
		if c.WaitSelector == "" {
			return fmt.Errorf("wait selector cannot be empty for the browser source")
		}
	default:
		return fmt.Errorf("source must be http or browser")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.StoreCacheSize <= 0 {
		return fmt.Errorf("store cache size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}

// StorageLocation returns the directory or database file for the backend.
func (c *Config) StorageLocation() string {
	if c.Backend == BackendSQLite {
		return c.SQLitePath
	}
	return c.DataDir
}
