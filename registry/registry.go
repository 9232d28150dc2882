// Package registry assigns stable store ids to merchant identities.
package registry

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jgoriasilva/nfs/models"
)

// DefaultCacheSize bounds the identity lookup cache.
const DefaultCacheSize = 256

// StoreSaver persists the whole store table.
type StoreSaver interface {
	SaveStores(stores []models.Store) error
}

type identity struct {
	taxID   string
	address string
}

// Registry maps (tax id, address) pairs to store ids. Ids are the row count
// at assignment time, so they follow first-seen order across runs.
type Registry struct {
	mu    sync.Mutex
	rows  []models.Store
	cache *lru.Cache[identity, string]
	saver StoreSaver
	eager bool
	dirty bool
	onNew func(models.Store)
}

// Option customises a Registry.
type Option func(*Registry)

// WithEagerFlush controls whether every new store is persisted immediately.
func WithEagerFlush(eager bool) Option {
	return func(r *Registry) {
		r.eager = eager
	}
}

// WithDiscoveryHook registers a callback invoked for every new store.
func WithDiscoveryHook(fn func(models.Store)) Option {
	return func(r *Registry) {
		r.onNew = fn
	}
}

// New builds a registry over the loaded store rows.
func New(rows []models.Store, saver StoreSaver, cacheSize int, opts ...Option) (*Registry, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[identity, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create lookup cache: %w", err)
	}

	r := &Registry{
		rows:  append([]models.Store(nil), rows...),
		cache: cache,
		saver: saver,
		eager: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the store id for the identity, allocating a new one on
// first sight.
func (r *Registry) Resolve(taxID, address string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := identity{taxID: taxID, address: address}
	if id, ok := r.cache.Get(key); ok {
		return id, nil
	}
	for _, row := range r.rows {
		if row.TaxID == taxID && row.Address == address {
			r.cache.Add(key, row.StoreID)
			return row.StoreID, nil
		}
	}

	store := models.Store{
		StoreID: strconv.Itoa(len(r.rows)),
		TaxID:   taxID,
		Address: address,
	}
	r.rows = append(r.rows, store)
	r.cache.Add(key, store.StoreID)
	r.dirty = true

	slog.Info("new store discovered",
		slog.String("store_id", store.StoreID),
		slog.String("tax_id", taxID),
		slog.String("address", address),
	)
	if r.onNew != nil {
		r.onNew(store)
	}

	if r.eager {
		if err := r.flushLocked(); err != nil {
			return "", err
		}
	}
	return store.StoreID, nil
}

// Stores returns a copy of the store table in insertion order.
func (r *Registry) Stores() []models.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Store, len(r.rows))
	copy(out, r.rows)
	return out
}

// Len returns the number of known stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Flush persists pending store rows.
func (r *Registry) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty {
		return nil
	}
	return r.flushLocked()
}

func (r *Registry) flushLocked() error {
	if r.saver == nil {
		r.dirty = false
		return nil
	}
	if err := r.saver.SaveStores(r.rows); err != nil {
		return fmt.Errorf("save stores: %w", err)
	}
	r.dirty = false
	return nil
}
