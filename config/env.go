package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvBool parses key as a boolean.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return b, true, nil
}

// EnvDuration parses key as a duration such as "10s".
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// FromEnv applies NFCE_* environment overrides to c.
func (c *Config) FromEnv() error {
	if v, ok := EnvString("NFCE_URLS"); ok {
		c.URLsFile = v
	}
	if v, ok := EnvString("NFCE_DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := EnvString("NFCE_BACKEND"); ok {
		c.Backend = strings.ToLower(v)
	}
	if v, ok := EnvString("NFCE_SQLITE"); ok {
		c.SQLitePath = v
	}
	if v, ok := EnvString("NFCE_SOURCE"); ok {
		c.Source = strings.ToLower(v)
	}
	if v, ok := EnvString("NFCE_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok, err := EnvDuration("NFCE_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Timeout = v
	}
	if v, ok, err := EnvInt("NFCE_MAX_RETRIES"); err != nil {
		return err
	} else if ok {
		c.MaxRetries = v
	}
	if v, ok, err := EnvBool("NFCE_CHECKPOINT"); err != nil {
		return err
	} else if ok {
		c.Checkpoint = v
	}
	return nil
}
