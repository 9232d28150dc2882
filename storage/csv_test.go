package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/jgoriasilva/nfs/models"
)

func TestCSVTablesMissingFilesAreEmpty(t *testing.T) {
	tables, err := NewCSVTables(t.TempDir())
	if err != nil {
		t.Fatalf("create csv tables: %v", err)
	}

	stores, err := tables.LoadStores()
	if err != nil || len(stores) != 0 {
		t.Fatalf("stores = %v, %v; want empty", stores, err)
	}
	purchases, err := tables.LoadPurchases()
	if err != nil || len(purchases) != 0 {
		t.Fatalf("purchases = %v, %v; want empty", purchases, err)
	}
	ledger, err := tables.LoadLedger()
	if err != nil || len(ledger) != 0 {
		t.Fatalf("ledger = %v, %v; want empty", ledger, err)
	}
}

func TestCSVTablesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tables, err := NewCSVTables(dir)
	if err != nil {
		t.Fatalf("create csv tables: %v", err)
	}

	stores := []models.Store{
		{StoreID: "0", TaxID: "11.111.111/0001-11", Address: "Rua X, 1"},
		{StoreID: "1", TaxID: "22.222.222/0001-22", Address: "Av. \"Y\", 2"},
	}
	items := []models.LineItem{
		{StoreID: "0", Name: "leite integral", Unit: "un", UnitValue: models.Numeric(4.99)},
		{StoreID: "1", Name: "arroz", Unit: "pct", UnitValue: models.Raw("n/d")},
	}
	ledger := []models.LedgerEntry{{Chave: "K1", StoreID: "0"}, {Chave: "K2", StoreID: "1"}}

	if err := tables.SaveStores(stores); err != nil {
		t.Fatalf("save stores: %v", err)
	}
	if err := tables.SavePurchases(items); err != nil {
		t.Fatalf("save purchases: %v", err)
	}
	if err := tables.SaveLedger(ledger); err != nil {
		t.Fatalf("save ledger: %v", err)
	}

	gotStores, err := tables.LoadStores()
	if err != nil {
		t.Fatalf("load stores: %v", err)
	}
	if len(gotStores) != 2 || gotStores[1] != stores[1] {
		t.Fatalf("stores = %v, want %v", gotStores, stores)
	}

	gotItems, err := tables.LoadPurchases()
	if err != nil {
		t.Fatalf("load purchases: %v", err)
	}
	if len(gotItems) != 2 {
		t.Fatalf("purchases = %d, want 2", len(gotItems))
	}
	if v, ok := gotItems[0].UnitValue.Float(); !ok || v != 4.99 {
		t.Fatalf("unit value = %v, want 4.99", gotItems[0].UnitValue)
	}
	if gotItems[1].UnitValue.IsNumeric() || gotItems[1].UnitValue.Text() != "n/d" {
		t.Fatalf("raw unit value = %v, want n/d", gotItems[1].UnitValue)
	}

	gotLedger, err := tables.LoadLedger()
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if len(gotLedger) != 2 || gotLedger[0] != ledger[0] {
		t.Fatalf("ledger = %v, want %v", gotLedger, ledger)
	}

	f, err := os.Open(filepath.Join(dir, PurchasesFile))
	if err != nil {
		t.Fatalf("open purchases: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read purchases: %v", err)
	}
	if records[0][0] != "store_id" || records[0][3] != "unit_value" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][3] != "4.99" {
		t.Fatalf("unit_value cell = %q, want 4.99", records[1][3])
	}
}

func TestCSVTablesReadsIndexedLegacyFiles(t *testing.T) {
	dir := t.TempDir()
	legacy := ",store_id,CNPJ,address\n0,0,11.111.111/0001-11,\"Rua X, 1\"\n1,1,22,Rua Y\n"
	if err := os.WriteFile(filepath.Join(dir, StoresFile), []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy stores: %v", err)
	}
	ledger := ",chave,store_id\n0,K1,0\n"
	if err := os.WriteFile(filepath.Join(dir, LedgerFile), []byte(ledger), 0o644); err != nil {
		t.Fatalf("write legacy ledger: %v", err)
	}

	tables, err := NewCSVTables(dir)
	if err != nil {
		t.Fatalf("create csv tables: %v", err)
	}
	stores, err := tables.LoadStores()
	if err != nil {
		t.Fatalf("load stores: %v", err)
	}
	want := models.Store{StoreID: "0", TaxID: "11.111.111/0001-11", Address: "Rua X, 1"}
	if len(stores) != 2 || stores[0] != want {
		t.Fatalf("stores = %v, want first %v", stores, want)
	}

	entries, err := tables.LoadLedger()
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Chave != "K1" {
		t.Fatalf("ledger = %v", entries)
	}
}

func TestCSVTablesMissingColumn(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LedgerFile), []byte("key,store\nK1,0\n"), 0o644); err != nil {
		t.Fatalf("write ledger: %v", err)
	}
	tables, err := NewCSVTables(dir)
	if err != nil {
		t.Fatalf("create csv tables: %v", err)
	}
	if _, err := tables.LoadLedger(); err == nil {
		t.Fatalf("expected error for missing chave column")
	}
}
