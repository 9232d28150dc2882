package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/jgoriasilva/nfs/config"
	"github.com/jgoriasilva/nfs/dom"
)

// HTTPSource fetches server-rendered receipt pages with a colly collector.
type HTTPSource struct {
	collector *colly.Collector
}

// NewHTTPSource builds a synchronous collector configured from cfg.
func NewHTTPSource(cfg *config.Config) (*HTTPSource, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &HTTPSource{collector: collector}, nil
}

// Fetch downloads url and parses the body as HTML. The collector is cloned
// per call so callbacks never leak between pages.
func (s *HTTPSource) Fetch(ctx context.Context, url string) (dom.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := s.collector.Clone()
	var (
		body     []byte
		status   int
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if fetchErr != nil {
		return nil, classifyError(fetchErr, status)
	}
	if status >= http.StatusBadRequest {
		return nil, classifyError(nil, status)
	}

	doc, err := dom.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

// Close releases nothing; the collector holds no long-lived resources.
func (s *HTTPSource) Close() error {
	return nil
}
