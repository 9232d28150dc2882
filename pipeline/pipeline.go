// Package pipeline ingests receipt URLs one at a time and merges the parsed
// receipts into the persisted purchases and receipt ledger tables.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jgoriasilva/nfs/models"
	"github.com/jgoriasilva/nfs/parser"
	"github.com/jgoriasilva/nfs/registry"
	"github.com/jgoriasilva/nfs/scraper"
	"github.com/jgoriasilva/nfs/storage"
)

// Outcome labels.
const (
	OutcomeParsed  = "parsed"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Options tunes a Pipeline.
type Options struct {
	// StoreCacheSize bounds the registry lookup cache.
	StoreCacheSize int
	// DeferStoreFlush holds new stores until the end of the run. By default
	// the store table is written on every new store.
	DeferStoreFlush bool
	// Checkpoint persists purchases and ledger after every parsed receipt
	// instead of only at the end of the run.
	Checkpoint bool
	Metrics    *Metrics
}

// Pipeline owns the in-memory tables for the duration of a run.
type Pipeline struct {
	source  scraper.Source
	tables  storage.Tables
	stores  *registry.Registry
	parser  *parser.Parser
	metrics *Metrics
	opts    Options

	seen      models.KeySet
	purchases []models.LineItem
	ledger    []models.LedgerEntry
	newStores int
}

// New loads the three tables and prepares a pipeline reading pages from source.
func New(source scraper.Source, tables storage.Tables, opts Options) (*Pipeline, error) {
	storeRows, err := tables.LoadStores()
	if err != nil {
		return nil, fmt.Errorf("load stores: %w", err)
	}
	purchases, err := tables.LoadPurchases()
	if err != nil {
		return nil, fmt.Errorf("load purchases: %w", err)
	}
	ledger, err := tables.LoadLedger()
	if err != nil {
		return nil, fmt.Errorf("load receipt ledger: %w", err)
	}

	p := &Pipeline{
		source:    source,
		tables:    tables,
		metrics:   opts.Metrics,
		opts:      opts,
		seen:      models.NewKeySet(ledger),
		purchases: purchases,
		ledger:    ledger,
	}

	p.stores, err = registry.New(storeRows, tables, opts.StoreCacheSize,
		registry.WithEagerFlush(!opts.DeferStoreFlush),
		registry.WithDiscoveryHook(func(models.Store) {
			p.newStores++
			p.metrics.IncStores()
		}),
	)
	if err != nil {
		return nil, err
	}
	p.parser = parser.New(p.stores)

	slog.Debug("tables loaded",
		slog.Int("stores", len(storeRows)),
		slog.Int("purchases", len(purchases)),
		slog.Int("receipts", len(ledger)),
	)
	return p, nil
}

// IngestAll processes urls in order. Per-URL failures are logged and skipped;
// only a persistence error stops the run. Purchases and ledger are flushed
// once at the end, including when ctx is cancelled part way.
func (p *Pipeline) IngestAll(ctx context.Context, urls []string) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.RunResult{
		StartTime:    time.Now(),
		URLCount:     len(urls),
		ErrorsByType: make(map[string]int),
	}
	startStores := p.newStores
	startRetries := p.retries()

	var runErr error
	for _, url := range urls {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		if err := p.ingest(ctx, url, result); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				result.Interrupted = true
				break
			}
			runErr = err
			break
		}
	}

	if err := p.Flush(); err != nil {
		runErr = errors.Join(runErr, err)
	}

	result.NewStores = p.newStores - startStores
	result.RetryCount = p.retries() - startRetries
	result.EndTime = time.Now()
	if result.Interrupted {
		slog.Warn("ingestion interrupted", slog.Int("remaining", len(urls)-result.ParsedCount-result.SkippedCount-result.FailedCount))
	}
	return result, runErr
}

// ingest handles one URL. A returned error aborts the run.
func (p *Pipeline) ingest(ctx context.Context, url string, result *models.RunResult) error {
	start := time.Now()
	doc, err := p.source.Fetch(ctx, url)
	p.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.fail(result, url, scraper.Category(err), err)
		return nil
	}

	parsed, err := p.parser.Parse(doc, p.seen)
	if err != nil {
		if category, ok := parseCategory(err); ok {
			p.fail(result, url, category, err)
			return nil
		}
		return fmt.Errorf("ingest %s: %w", url, err)
	}

	if parsed.Skipped {
		slog.Info("receipt already ingested", slog.String("url", url), slog.String("chave", parsed.Receipt.Key))
		result.SkippedCount++
		p.metrics.IncReceipt(OutcomeSkipped)
		return nil
	}

	receipt := parsed.Receipt
	raw := 0
	for _, it := range receipt.Items {
		if !it.UnitValue.IsNumeric() {
			raw++
		}
	}
	p.purchases = append(p.purchases, receipt.Items...)
	p.ledger = append(p.ledger, models.LedgerEntry{Chave: receipt.Key, StoreID: receipt.StoreID})
	p.seen.Add(receipt.Key)

	result.ParsedCount++
	result.ItemCount += len(receipt.Items)
	result.RawValues += raw
	p.metrics.IncReceipt(OutcomeParsed)
	p.metrics.AddItems(len(receipt.Items), raw)

	slog.Info("receipt ingested",
		slog.String("url", url),
		slog.String("chave", receipt.Key),
		slog.String("store_id", receipt.StoreID),
		slog.Int("items", len(receipt.Items)),
	)

	if p.opts.Checkpoint {
		return p.Flush()
	}
	return nil
}

// retries reports the retry total of sources that count them.
func (p *Pipeline) retries() int {
	if rc, ok := p.source.(interface{ TotalRetries() int }); ok {
		return rc.TotalRetries()
	}
	return 0
}

func (p *Pipeline) fail(result *models.RunResult, url, category string, err error) {
	slog.Error("receipt page failed",
		slog.String("url", url),
		slog.String("category", category),
		slog.Any("error", err),
	)
	result.FailedCount++
	result.ErrorsByType[category]++
	result.FailedURLs = append(result.FailedURLs, models.FailedURL{
		URL:      url,
		Category: category,
		Error:    err.Error(),
	})
	p.metrics.IncReceipt(OutcomeFailed)
	p.metrics.IncError(category)
}

func parseCategory(err error) (string, bool) {
	if errors.Is(err, parser.ErrKeyNotFound) {
		return "missing_key", true
	}
	var malformed *parser.MalformedError
	if errors.As(err, &malformed) {
		return "malformed", true
	}
	return "", false
}

// Flush persists pending stores, then the purchases and ledger tables.
func (p *Pipeline) Flush() error {
	if err := p.stores.Flush(); err != nil {
		return err
	}
	if err := p.tables.SavePurchases(p.purchases); err != nil {
		return fmt.Errorf("save purchases: %w", err)
	}
	if err := p.tables.SaveLedger(p.ledger); err != nil {
		return fmt.Errorf("save receipt ledger: %w", err)
	}
	return nil
}

// Purchases returns a copy of the purchases table.
func (p *Pipeline) Purchases() []models.LineItem {
	out := make([]models.LineItem, len(p.purchases))
	copy(out, p.purchases)
	return out
}

// Ledger returns a copy of the receipt ledger.
func (p *Pipeline) Ledger() []models.LedgerEntry {
	out := make([]models.LedgerEntry, len(p.ledger))
	copy(out, p.ledger)
	return out
}

// Stores returns a copy of the store table.
func (p *Pipeline) Stores() []models.Store {
	return p.stores.Stores()
}
