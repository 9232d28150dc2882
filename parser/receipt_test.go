package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jgoriasilva/nfs/dom"
	"github.com/jgoriasilva/nfs/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	calls []string
	err   error
}

func (f *fakeResolver) Resolve(taxID, address string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, taxID+"|"+address)
	return "7", nil
}

type item struct {
	name, unit, value string
}

func buildReceipt(key string, merchant []string, items []item) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if key != "" {
		fmt.Fprintf(&b, `<span class="chave">%s</span>`, key)
	}
	b.WriteString(`<div id="conteudo"><div class="txtTopo">MERCADO</div>`)
	for _, field := range merchant {
		fmt.Fprintf(&b, `<div class="text">%s</div>`, field)
	}
	b.WriteString(`</div><table id="tabResult">`)
	for _, it := range items {
		fmt.Fprintf(&b, `<tr><td><span class="txtTit">%s</span><span class="RUN"><strong>UN: </strong>%s</span><span class="RvlUnit"><strong>Vl. Unit.:</strong>&nbsp;&nbsp; %s</span></td></tr>`, it.name, it.unit, it.value)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func parseHTML(t *testing.T, html string) dom.Node {
	t.Helper()
	doc, err := dom.ParseString(html)
	require.NoError(t, err)
	return doc
}

func TestParseReceipt(t *testing.T) {
	html := buildReceipt("3523 0411 1111",
		[]string{"CNPJ:\n\t11.111.111/0001-11", "Rua X,\t 1"},
		[]item{{"LEITE INTEGRAL", "UN", "4,99"}, {"Banana\nPrata", "KG", "5,556"}})

	resolver := &fakeResolver{}
	result, err := New(resolver).Parse(parseHTML(t, html), models.KeySet{})
	require.NoError(t, err)
	require.False(t, result.Skipped)

	receipt := result.Receipt
	assert.Equal(t, "352304111111", receipt.Key)
	assert.Equal(t, "7", receipt.StoreID)
	assert.Equal(t, "11.111.111/0001-11", receipt.TaxID)
	assert.Equal(t, "Rua X, 1", receipt.Address)
	assert.Equal(t, []string{"11.111.111/0001-11|Rua X, 1"}, resolver.calls)

	require.Len(t, receipt.Items, 2)
	assert.Equal(t, "leite integral", receipt.Items[0].Name)
	assert.Equal(t, "un", receipt.Items[0].Unit)
	assert.Equal(t, models.Numeric(4.99), receipt.Items[0].UnitValue)
	assert.Equal(t, "bananaprata", receipt.Items[1].Name)
	assert.Equal(t, "kg", receipt.Items[1].Unit)
	assert.Equal(t, models.Numeric(5.56), receipt.Items[1].UnitValue)
	assert.Equal(t, "7", receipt.Items[1].StoreID)
}

func TestParseSkipsSeenKey(t *testing.T) {
	html := buildReceipt("K1", []string{"CNPJ: 1", "Rua"}, []item{{"a", "un", "1"}})
	resolver := &fakeResolver{}

	result, err := New(resolver).Parse(parseHTML(t, html), models.KeySet{"K1": {}})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "K1", result.Receipt.Key)
	assert.Empty(t, result.Receipt.Items)
	assert.Empty(t, resolver.calls, "skipped receipts must not touch the store registry")
}

func TestParseMissingKey(t *testing.T) {
	html := buildReceipt("", []string{"CNPJ: 1", "Rua"}, nil)

	_, err := New(&fakeResolver{}).Parse(parseHTML(t, html), models.KeySet{})
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestParseMalformedMerchant(t *testing.T) {
	html := buildReceipt("K2", []string{"CNPJ: 1"}, []item{{"a", "un", "1"}})
	resolver := &fakeResolver{}

	_, err := New(resolver).Parse(parseHTML(t, html), models.KeySet{})
	var malformed *MalformedError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "K2", malformed.Key)
	assert.Empty(t, resolver.calls)
}

func TestParseMissingResultsTable(t *testing.T) {
	html := `<html><body><span class="chave">K3</span><div id="conteudo"><div class="text">CNPJ: 1</div><div class="text">Rua</div></div></body></html>`

	_, err := New(&fakeResolver{}).Parse(parseHTML(t, html), models.KeySet{})
	var malformed *MalformedError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Error(), "results table")
}

func TestParseKeepsRawValue(t *testing.T) {
	html := buildReceipt("K4", []string{"CNPJ: 1", "Rua"}, []item{{"Arroz", "PCT", "n/d"}})

	result, err := New(&fakeResolver{}).Parse(parseHTML(t, html), models.KeySet{})
	require.NoError(t, err)
	require.Len(t, result.Receipt.Items, 1)

	it := result.Receipt.Items[0]
	assert.Equal(t, "arroz", it.Name)
	assert.Equal(t, "pct", it.Unit)
	assert.False(t, it.UnitValue.IsNumeric())
	assert.Equal(t, "n/d", it.UnitValue.Text())
}

func TestParseResolverError(t *testing.T) {
	html := buildReceipt("K5", []string{"CNPJ: 1", "Rua"}, nil)
	boom := errors.New("disk full")

	_, err := New(&fakeResolver{err: boom}).Parse(parseHTML(t, html), models.KeySet{})
	assert.ErrorIs(t, err, boom)
}
