// Package storage loads and saves the stores, purchases and receipt ledger
// tables. Every table is read and written as a whole.
package storage

import (
	"fmt"

	"github.com/jgoriasilva/nfs/config"
	"github.com/jgoriasilva/nfs/models"
)

// Tables is the persistence capability the ingester needs.
type Tables interface {
	LoadStores() ([]models.Store, error)
	SaveStores(stores []models.Store) error
	LoadPurchases() ([]models.LineItem, error)
	SavePurchases(items []models.LineItem) error
	LoadLedger() ([]models.LedgerEntry, error)
	SaveLedger(entries []models.LedgerEntry) error
	Close() error
}

// Open returns the tables for the named backend. For csv, location is a
// directory; for sqlite it is the database file.
func Open(backend, location string) (Tables, error) {
	switch backend {
	case config.BackendCSV:
		return NewCSVTables(location)
	case config.BackendSQLite:
		return NewSQLiteTables(location)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}

func parseUnitValue(text string) models.UnitValue {
	v, ok := parseFloat(text)
	if ok {
		return models.Numeric(v)
	}
	return models.Raw(text)
}
