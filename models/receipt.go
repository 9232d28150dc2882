// Package models defines the records kept by the receipt ingester.
package models

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Store is a point of sale, identified by its (TaxID, Address) pair.
type Store struct {
	StoreID string `json:"store_id"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
}

// LineItem is one purchased product on one receipt.
type LineItem struct {
	StoreID   string    `json:"store_id"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	UnitValue UnitValue `json:"unit_value"`
}

// LedgerEntry records that a receipt key has been ingested.
type LedgerEntry struct {
	Chave   string `json:"chave"`
	StoreID string `json:"store_id"`
}

// Receipt is the result of parsing one receipt page.
type Receipt struct {
	Key     string
	StoreID string
	TaxID   string
	Address string
	Items   []LineItem
}

// UnitValue holds either a parsed number or the text that failed to parse.
// The zero value is an empty raw value.
type UnitValue struct {
	num     float64
	raw     string
	numeric bool
}

// Numeric builds a numeric unit value.
func Numeric(v float64) UnitValue {
	return UnitValue{num: v, numeric: true}
}

// Raw builds a unit value that keeps unparsed text.
func Raw(s string) UnitValue {
	return UnitValue{raw: s}
}

// Float returns the number and true for numeric values.
func (u UnitValue) Float() (float64, bool) {
	return u.num, u.numeric
}

// IsNumeric reports whether the value parsed as a number.
func (u UnitValue) IsNumeric() bool {
	return u.numeric
}

// Text returns the raw text of a non-numeric value.
func (u UnitValue) Text() string {
	return u.raw
}

// String formats the value the way it is written to tabular storage.
func (u UnitValue) String() string {
	if u.numeric {
		return strconv.FormatFloat(u.num, 'f', -1, 64)
	}
	return u.raw
}

// MarshalJSON encodes finite numbers as JSON numbers. Raw text and
// non-finite numbers are encoded as JSON strings.
func (u UnitValue) MarshalJSON() ([]byte, error) {
	if u.numeric && !math.IsNaN(u.num) && !math.IsInf(u.num, 0) {
		return []byte(u.String()), nil
	}
	return json.Marshal(u.String())
}

// KeySet is the set of receipt keys already ingested.
type KeySet map[string]struct{}

// NewKeySet seeds a set from ledger entries.
func NewKeySet(entries []LedgerEntry) KeySet {
	set := make(KeySet, len(entries))
	for _, e := range entries {
		set[e.Chave] = struct{}{}
	}
	return set
}

// Has reports whether key was seen.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Add marks key as seen.
func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

// FailedURL is a URL that could not be ingested during a run.
type FailedURL struct {
	URL      string `json:"url"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

// RunResult holds the overall result of an ingestion run.
type RunResult struct {
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	URLCount     int            `json:"url_count"`
	ParsedCount  int            `json:"parsed"`
	SkippedCount int            `json:"skipped"`
	FailedCount  int            `json:"failed"`
	ItemCount    int            `json:"items"`
	RawValues    int            `json:"raw_values"`
	NewStores    int            `json:"new_stores"`
	RetryCount   int            `json:"retries"`
	FailedURLs   []FailedURL    `json:"failed_urls"`
	ErrorsByType map[string]int `json:"errors_by_type"`
	Interrupted  bool           `json:"interrupted"`
}
