package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/jgoriasilva/nfs/models"
)

// File names used by the csv backend.
const (
	StoresFile    = "stores.csv"
	PurchasesFile = "purchases.csv"
	LedgerFile    = "nfces.csv"
)

var (
	storeHeader    = []string{"store_id", "tax_id", "address"}
	purchaseHeader = []string{"store_id", "name", "unit", "unit_value"}
	ledgerHeader   = []string{"chave", "store_id"}

	// Column names written by earlier tooling.
	headerAliases = map[string]string{
		"CNPJ": "tax_id",
	}
)

// CSVTables keeps each table in its own CSV file inside a directory.
type CSVTables struct {
	dir string
	mu  sync.Mutex
}

// NewCSVTables prepares a CSV backend rooted at dir.
func NewCSVTables(dir string) (*CSVTables, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %q: %w", dir, err)
	}
	return &CSVTables{dir: dir}, nil
}

// LoadStores reads stores.csv; a missing file is an empty table.
func (ct *CSVTables) LoadStores() ([]models.Store, error) {
	rows, err := ct.read(StoresFile, storeHeader)
	if err != nil {
		return nil, err
	}
	out := make([]models.Store, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Store{StoreID: r[0], TaxID: r[1], Address: r[2]})
	}
	return out, nil
}

// SaveStores rewrites stores.csv.
func (ct *CSVTables) SaveStores(stores []models.Store) error {
	records := make([][]string, 0, len(stores))
	for _, s := range stores {
		records = append(records, []string{s.StoreID, s.TaxID, s.Address})
	}
	return ct.write(StoresFile, storeHeader, records)
}

// LoadPurchases reads purchases.csv; a missing file is an empty table.
func (ct *CSVTables) LoadPurchases() ([]models.LineItem, error) {
	rows, err := ct.read(PurchasesFile, purchaseHeader)
	if err != nil {
		return nil, err
	}
	out := make([]models.LineItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.LineItem{
			StoreID:   r[0],
			Name:      r[1],
			Unit:      r[2],
			UnitValue: parseUnitValue(r[3]),
		})
	}
	return out, nil
}

// SavePurchases rewrites purchases.csv.
func (ct *CSVTables) SavePurchases(items []models.LineItem) error {
	records := make([][]string, 0, len(items))
	for _, it := range items {
		records = append(records, []string{it.StoreID, it.Name, it.Unit, it.UnitValue.String()})
	}
	return ct.write(PurchasesFile, purchaseHeader, records)
}

// LoadLedger reads nfces.csv; a missing file is an empty table.
func (ct *CSVTables) LoadLedger() ([]models.LedgerEntry, error) {
	rows, err := ct.read(LedgerFile, ledgerHeader)
	if err != nil {
		return nil, err
	}
	out := make([]models.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.LedgerEntry{Chave: r[0], StoreID: r[1]})
	}
	return out, nil
}

// SaveLedger rewrites nfces.csv.
func (ct *CSVTables) SaveLedger(entries []models.LedgerEntry) error {
	records := make([][]string, 0, len(entries))
	for _, e := range entries {
		records = append(records, []string{e.Chave, e.StoreID})
	}
	return ct.write(LedgerFile, ledgerHeader, records)
}

// Close is a no-op; files are closed after every save.
func (ct *CSVTables) Close() error {
	return nil
}

// read returns the rows of name projected onto columns, in header order.
func (ct *CSVTables) read(name string, columns []string) ([][]string, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	f, err := os.Open(filepath.Join(ct.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}

	index, err := columnIndex(header, columns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	var rows [][]string
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s record: %w", name, err)
		}
		row := make([]string, len(columns))
		for i, pos := range index {
			if pos >= len(record) {
				return nil, fmt.Errorf("%s line %d: missing column %q", name, line, columns[i])
			}
			row[i] = record[pos]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func columnIndex(header, columns []string) ([]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if alias, ok := headerAliases[h]; ok {
			h = alias
		}
		if _, dup := positions[h]; !dup {
			positions[h] = i
		}
	}
	index := make([]int, len(columns))
	for i, c := range columns {
		pos, ok := positions[c]
		if !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
		index[i] = pos
	}
	return index, nil
}

// write replaces name atomically through a temporary file.
func (ct *CSVTables) write(name string, header []string, records [][]string) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	f, err := os.CreateTemp(ct.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer os.Remove(f.Name())

	writer := csv.NewWriter(f)
	if err := writer.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if err := writer.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("write %s records: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(f.Name(), filepath.Join(ct.dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func parseFloat(text string) (float64, bool) {
	v, err := strconv.ParseFloat(text, 64)
	return v, err == nil
}
