package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Node is a matched element.
type Node interface {
	Text() string
	InnerHTML() string
	OuterHTML() string
	Attr(name string) (string, bool)
	// QuerySelfOrDescendants returns the node itself first if it matches
	// selector, followed by matching descendants in document order.
	QuerySelfOrDescendants(selector string) []Node
}

// Document is a parsed HTML page that can be queried with CSS selectors.
type Document interface {
	Query(selector string) []Node
}

// ParseHTML parses an HTML document from r.
func ParseHTML(r io.Reader) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &goqueryDocument{doc: doc}, nil
}

// ParseHTMLString is ParseHTML over a string.
func ParseHTMLString(html string) (Document, error) {
	return ParseHTML(strings.NewReader(html))
}

type goqueryDocument struct {
	doc *goquery.Document
}

func (d *goqueryDocument) Query(selector string) []Node {
	return nodes(d.doc.Find(selector))
}

type goqueryNode struct {
	sel *goquery.Selection
}

func (n *goqueryNode) Text() string {
	return n.sel.Text()
}

func (n *goqueryNode) InnerHTML() string {
	html, err := n.sel.Html()
	if err != nil {
		return ""
	}
	return html
}

func (n *goqueryNode) OuterHTML() string {
	html, err := goquery.OuterHtml(n.sel)
	if err != nil {
		return ""
	}
	return html
}

func (n *goqueryNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n *goqueryNode) QuerySelfOrDescendants(selector string) []Node {
	var out []Node
	if n.sel.Is(selector) {
		out = append(out, n)
	}
	return append(out, nodes(n.sel.Find(selector))...)
}

func nodes(sel *goquery.Selection) []Node {
	out := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &goqueryNode{sel: s})
	})
	return out
}
