package storage

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/jgoriasilva/nfs/config"
	"github.com/jgoriasilva/nfs/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteTablesRoundTrip(t *testing.T) {
	tables, err := NewSQLiteTables(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { tables.Close() })

	stores := []models.Store{
		{StoreID: "0", TaxID: "11", Address: "Rua X, 1"},
		{StoreID: "1", TaxID: "22", Address: "Rua Y, 2"},
	}
	items := []models.LineItem{
		{StoreID: "0", Name: "leite integral", Unit: "un", UnitValue: models.Numeric(4.99)},
		{StoreID: "0", Name: "pão", Unit: "kg", UnitValue: models.Numeric(12)},
		{StoreID: "1", Name: "arroz", Unit: "pct", UnitValue: models.Raw("1,2,3")},
	}
	ledger := []models.LedgerEntry{{Chave: "K1", StoreID: "0"}, {Chave: "K2", StoreID: "1"}}

	require.NoError(t, tables.SaveStores(stores))
	require.NoError(t, tables.SavePurchases(items))
	require.NoError(t, tables.SaveLedger(ledger))

	gotStores, err := tables.LoadStores()
	require.NoError(t, err)
	assert.Equal(t, stores, gotStores)

	gotItems, err := tables.LoadPurchases()
	require.NoError(t, err)
	assert.Equal(t, items, gotItems)

	gotLedger, err := tables.LoadLedger()
	require.NoError(t, err)
	assert.Equal(t, ledger, gotLedger)
}

func TestSQLiteTablesReplaceKeepsOrder(t *testing.T) {
	tables, err := NewSQLiteTables(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { tables.Close() })

	require.NoError(t, tables.SaveLedger([]models.LedgerEntry{{Chave: "B", StoreID: "0"}}))
	require.NoError(t, tables.SaveLedger([]models.LedgerEntry{
		{Chave: "B", StoreID: "0"},
		{Chave: "A", StoreID: "1"},
	}))

	got, err := tables.LoadLedger()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Chave)
	assert.Equal(t, "A", got[1].Chave)
}

func TestSQLiteTablesPersistAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nfce.db")

	tables, err := NewSQLiteTables(path)
	require.NoError(t, err)
	require.NoError(t, tables.SaveStores([]models.Store{{StoreID: "0", TaxID: "11", Address: "Rua"}}))
	require.NoError(t, tables.Close())

	reopened, err := Open(config.BackendSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	stores, err := reopened.LoadStores()
	require.NoError(t, err)
	assert.Equal(t, []models.Store{{StoreID: "0", TaxID: "11", Address: "Rua"}}, stores)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("parquet", t.TempDir())
	assert.ErrorContains(t, err, "unsupported storage backend")
}

func TestSQLiteTablesNonFiniteValueKeepsText(t *testing.T) {
	tables, err := NewSQLiteTables(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { tables.Close() })

	require.NoError(t, tables.SavePurchases([]models.LineItem{
		{StoreID: "0", Name: "x", Unit: "un", UnitValue: models.Numeric(math.NaN())},
	}))

	got, err := tables.LoadPurchases()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].UnitValue.IsNumeric())
	assert.Equal(t, "NaN", got[0].UnitValue.Text())
}

func TestOpenBackends(t *testing.T) {
	csvTables, err := Open(config.BackendCSV, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &CSVTables{}, csvTables)

	sqliteTables, err := Open(config.BackendSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqliteTables.Close() })
	assert.IsType(t, &SQLiteTables{}, sqliteTables)
}
