// Package scraper retrieves receipt pages and hands them to the parser as
// queryable documents.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jgoriasilva/nfs/config"
	"github.com/jgoriasilva/nfs/dom"
)

// Source retrieves a rendered page.
type Source interface {
	Fetch(ctx context.Context, url string) (dom.Node, error)
	Close() error
}

// New builds the page source selected by cfg, wrapped with retries when
// cfg.MaxRetries is positive.
func New(cfg *config.Config) (Source, error) {
	var (
		src Source
		err error
	)
	switch cfg.Source {
	case config.SourceHTTP:
		src, err = NewHTTPSource(cfg)
	case config.SourceBrowser:
		src, err = NewBrowserSource(cfg)
	default:
		return nil, fmt.Errorf("unsupported page source: %s", cfg.Source)
	}
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries > 0 {
		src = WithRetry(src, cfg.MaxRetries, cfg.RetryBackoff, cfg.RetryBackoffMax)
	}
	return src, nil
}

// RetryingSource retries retryable failures with capped exponential backoff.
type RetryingSource struct {
	Source
	maxRetries int
	base       time.Duration
	max        time.Duration

	retries int
	sleep   func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps src.
func WithRetry(src Source, maxRetries int, base, max time.Duration) *RetryingSource {
	return &RetryingSource{
		Source:     src,
		maxRetries: maxRetries,
		base:       base,
		max:        max,
		sleep:      sleepContext,
	}
}

// Fetch retrieves url, retrying timeouts, connection errors and rate limits.
func (rs *RetryingSource) Fetch(ctx context.Context, url string) (dom.Node, error) {
	for attempt := 0; ; attempt++ {
		doc, err := rs.Source.Fetch(ctx, url)
		if err == nil || attempt >= rs.maxRetries || !Retryable(err) {
			return doc, err
		}

		delay := rs.backoff(attempt + 1)
		rs.retries++
		slog.Debug("retrying page",
			slog.String("url", url),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if err := rs.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// TotalRetries returns how many retries were scheduled.
func (rs *RetryingSource) TotalRetries() int {
	return rs.retries
}

func (rs *RetryingSource) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rs.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if rs.max > 0 && delay > rs.max {
		delay = rs.max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
