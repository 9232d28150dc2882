package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/jgoriasilva/nfs/config"
	"github.com/jgoriasilva/nfs/dom"
)

// BrowserSource renders receipt pages in headless Chrome and waits for the
// receipt key element before taking an HTML snapshot.
type BrowserSource struct {
	ctx      context.Context
	cancel   context.CancelFunc
	selector string
	timeout  time.Duration
}

// NewBrowserSource starts a browser that stays open until Close.
func NewBrowserSource(cfg *config.Config) (*BrowserSource, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.BrowserPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BrowserPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &BrowserSource{
		ctx:      browserCtx,
		cancel:   cancel,
		selector: cfg.WaitSelector,
		timeout:  cfg.Timeout,
	}, nil
}

// Fetch opens url in a new tab. A page that does not show the wait selector
// within the timeout fails with ErrTimeout.
func (b *BrowserSource) Fetch(ctx context.Context, url string) (dom.Node, error) {
	tabCtx, closeTab := chromedp.NewContext(b.ctx)
	defer closeTab()

	runCtx, cancel := context.WithTimeout(tabCtx, b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(b.selector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout{Err: fmt.Errorf("wait for %s: %w", b.selector, err)}
		}
		return nil, classifyError(err, 0)
	}

	doc, err := dom.ParseString(html)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

// Close shuts the browser down.
func (b *BrowserSource) Close() error {
	b.cancel()
	return nil
}
