// Package parser extracts receipt keys, merchant identity and line items from
// rendered NFCe pages.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jgoriasilva/nfs/dom"
	"github.com/jgoriasilva/nfs/models"
)

// Markers of the NFCe consumer page layout.
const (
	classKey      = "chave"
	idMerchant    = "conteudo"
	classMerchant = "text"
	idResults     = "tabResult"
	tagRow        = "tr"
	className     = "txtTit"
	classUnit     = "RUN"
	classValue    = "RvlUnit"

	labelTaxID = "CNPJ:"
	labelUnit  = "UN:"
	labelValue = "Vl. Unit.:"
)

// ErrKeyNotFound is returned when the page carries no receipt key.
var ErrKeyNotFound = errors.New("parser: receipt key not found")

// MalformedError reports a page whose structure does not match the receipt layout.
type MalformedError struct {
	Key    string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("malformed receipt: %s", e.Reason)
	}
	return fmt.Sprintf("malformed receipt %s: %s", e.Key, e.Reason)
}

// StoreResolver maps merchant identity to a stable store id.
type StoreResolver interface {
	Resolve(taxID, address string) (string, error)
}

// Result is a successful parse. Skipped is set when the key was already seen,
// in which case only Receipt.Key is filled.
type Result struct {
	Skipped bool
	Receipt models.Receipt
}

// Parser turns rendered receipt documents into receipts.
type Parser struct {
	stores StoreResolver
}

// New returns a parser resolving merchants through stores.
func New(stores StoreResolver) *Parser {
	return &Parser{stores: stores}
}

// Parse extracts a receipt from doc. Keys present in seen are skipped before
// any merchant or item extraction is attempted.
func (p *Parser) Parse(doc dom.Node, seen models.KeySet) (Result, error) {
	keyNode, ok := doc.ByClass(classKey)
	if !ok {
		return Result{}, ErrKeyNotFound
	}
	key := normalizeKey(keyNode.Text())
	if key == "" {
		return Result{}, ErrKeyNotFound
	}
	if seen.Has(key) {
		return Result{Skipped: true, Receipt: models.Receipt{Key: key}}, nil
	}

	taxID, address, err := merchant(doc)
	if err != nil {
		return Result{}, withKey(err, key)
	}

	storeID, err := p.stores.Resolve(taxID, address)
	if err != nil {
		return Result{}, fmt.Errorf("resolve store: %w", err)
	}

	table, ok := doc.ByID(idResults)
	if !ok {
		return Result{}, &MalformedError{Key: key, Reason: "results table not found"}
	}

	rows := table.AllByTag(tagRow)
	items := make([]models.LineItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, lineItem(row, storeID))
	}

	return Result{Receipt: models.Receipt{
		Key:     key,
		StoreID: storeID,
		TaxID:   taxID,
		Address: address,
		Items:   items,
	}}, nil
}

func normalizeKey(text string) string {
	return strings.ReplaceAll(StripArtifacts(text), " ", "")
}

func merchant(doc dom.Node) (taxID, address string, err error) {
	block, ok := doc.ByID(idMerchant)
	if !ok {
		return "", "", &MalformedError{Reason: "merchant block not found"}
	}
	fields := block.AllByClass(classMerchant)
	if len(fields) != 2 {
		return "", "", &MalformedError{Reason: fmt.Sprintf("merchant block has %d fields, want 2", len(fields))}
	}
	taxID = StripLabel(StripArtifacts(fields[0].Text()), labelTaxID)
	address = StripArtifacts(fields[1].Text())
	return taxID, address, nil
}

func lineItem(row dom.Node, storeID string) models.LineItem {
	return models.LineItem{
		StoreID:   storeID,
		Name:      Lower(StripArtifacts(childText(row, className))),
		Unit:      Lower(StripLabel(StripArtifacts(childText(row, classUnit)), labelUnit)),
		UnitValue: unitValue(StripLabel(StripArtifacts(childText(row, classValue)), labelValue)),
	}
}

func childText(row dom.Node, class string) string {
	n, ok := row.ByClass(class)
	if !ok {
		return ""
	}
	return n.Text()
}

func withKey(err error, key string) error {
	var malformed *MalformedError
	if errors.As(err, &malformed) && malformed.Key == "" {
		malformed.Key = key
	}
	return err
}
