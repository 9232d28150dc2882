// Package dom abstracts the queries the receipt parser runs against a
// rendered page, so static HTML and browser snapshots share one parser.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Node is a queryable element of a rendered document.
type Node interface {
	// ByID returns the first descendant with the given id.
	ByID(id string) (Node, bool)
	// ByClass returns the first descendant carrying the class.
	ByClass(class string) (Node, bool)
	// AllByClass returns every descendant carrying the class, in document order.
	AllByClass(class string) []Node
	// AllByTag returns every descendant with the tag name, in document order.
	AllByTag(tag string) []Node
	// Text returns the text content with surrounding whitespace trimmed.
	Text() string
}

// Parse reads an HTML document.
func Parse(r io.Reader) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return selection{doc.Selection}, nil
}

// ParseBytes reads an HTML document held in memory.
func ParseBytes(body []byte) (Node, error) {
	return Parse(bytes.NewReader(body))
}

// ParseString reads an HTML document from a string.
func ParseString(html string) (Node, error) {
	return Parse(strings.NewReader(html))
}

type selection struct {
	s *goquery.Selection
}

func (n selection) ByID(id string) (Node, bool) {
	return n.first(fmt.Sprintf("[id=%q]", id))
}

func (n selection) ByClass(class string) (Node, bool) {
	return n.first("." + class)
}

func (n selection) AllByClass(class string) []Node {
	return n.all("." + class)
}

func (n selection) AllByTag(tag string) []Node {
	return n.all(tag)
}

func (n selection) Text() string {
	return strings.TrimSpace(n.s.Text())
}

func (n selection) first(selector string) (Node, bool) {
	found := n.s.Find(selector).First()
	if found.Length() == 0 {
		return nil, false
	}
	return selection{found}, true
}

func (n selection) all(selector string) []Node {
	found := n.s.Find(selector)
	out := make([]Node, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, selection{s})
	})
	return out
}
