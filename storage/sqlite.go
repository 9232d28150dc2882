package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/jgoriasilva/nfs/models"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteTables keeps the three tables in one SQLite database.
type SQLiteTables struct {
	db *sql.DB
}

// NewSQLiteTables opens (creating if needed) the database at path. An empty
// path or ":memory:" opens a private in-memory database.
func NewSQLiteTables(path string) (*SQLiteTables, error) {
	dsn := ":memory:"
	if path != "" && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create directory %q: %w", dir, err)
			}
		}
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
			path,
		)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps in-memory databases shared by every query.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}
	return &SQLiteTables{db: db}, nil
}

// Close closes the database connection.
func (st *SQLiteTables) Close() error {
	if st.db != nil {
		return st.db.Close()
	}
	return nil
}

// LoadStores returns the stores in insertion order.
func (st *SQLiteTables) LoadStores() ([]models.Store, error) {
	rows, err := st.db.Query(`SELECT store_id, tax_id, address FROM stores ORDER BY row_id`)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	var out []models.Store
	for rows.Next() {
		var s models.Store
		if err := rows.Scan(&s.StoreID, &s.TaxID, &s.Address); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveStores replaces the stores table.
func (st *SQLiteTables) SaveStores(stores []models.Store) error {
	return st.replace("stores", `INSERT INTO stores (row_id, store_id, tax_id, address) VALUES (?, ?, ?, ?)`, len(stores),
		func(i int) []any {
			s := stores[i]
			return []any{i, s.StoreID, s.TaxID, s.Address}
		})
}

// LoadPurchases returns the purchases in insertion order.
func (st *SQLiteTables) LoadPurchases() ([]models.LineItem, error) {
	rows, err := st.db.Query(`SELECT store_id, name, unit, unit_value FROM purchases ORDER BY row_id`)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	var out []models.LineItem
	for rows.Next() {
		var (
			it    models.LineItem
			value any
		)
		if err := rows.Scan(&it.StoreID, &it.Name, &it.Unit, &value); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		it.UnitValue = unitValueFromColumn(value)
		out = append(out, it)
	}
	return out, rows.Err()
}

// SavePurchases replaces the purchases table.
func (st *SQLiteTables) SavePurchases(items []models.LineItem) error {
	return st.replace("purchases", `INSERT INTO purchases (row_id, store_id, name, unit, unit_value) VALUES (?, ?, ?, ?, ?)`, len(items),
		func(i int) []any {
			it := items[i]
			return []any{i, it.StoreID, it.Name, it.Unit, unitValueColumn(it.UnitValue)}
		})
}

// LoadLedger returns the ledger in insertion order.
func (st *SQLiteTables) LoadLedger() ([]models.LedgerEntry, error) {
	rows, err := st.db.Query(`SELECT chave, store_id FROM receipt_ledger ORDER BY row_id`)
	if err != nil {
		return nil, fmt.Errorf("query receipt ledger: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.Chave, &e.StoreID); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveLedger replaces the receipt_ledger table.
func (st *SQLiteTables) SaveLedger(entries []models.LedgerEntry) error {
	return st.replace("receipt_ledger", `INSERT INTO receipt_ledger (row_id, chave, store_id) VALUES (?, ?, ?)`, len(entries),
		func(i int) []any {
			e := entries[i]
			return []any{i, e.Chave, e.StoreID}
		})
}

// replace swaps the whole content of table inside one transaction.
func (st *SQLiteTables) replace(table, insert string, n int, args func(i int) []any) error {
	ctx := context.Background()
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", table, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", table, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}
	return nil
}

// unitValueColumn stores non-finite numbers as text; SQLite turns NaN into NULL.
func unitValueColumn(u models.UnitValue) any {
	if v, ok := u.Float(); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v
	}
	return u.String()
}

func unitValueFromColumn(value any) models.UnitValue {
	switch v := value.(type) {
	case float64:
		return models.Numeric(v)
	case int64:
		return models.Numeric(float64(v))
	case string:
		return models.Raw(v)
	case []byte:
		return models.Raw(string(v))
	default:
		return models.Raw("")
	}
}
