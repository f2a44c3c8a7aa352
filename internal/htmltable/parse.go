// Package htmltable locates tables in parsed documents and walks them
// into the shared grid model, honoring rowspan/colspan and hidden
// rows and cells.
package htmltable

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gridport/gridport/internal/grid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// Parse reads an HTML document with charset detection.
func Parse(r io.Reader) (*html.Node, error) {
	cr, err := charset.NewReader(r, "")
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	doc, err := html.Parse(cr)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// ParseFragment parses an HTML snippet holding detached row content
// (a <tbody> or bare <tr> rows) and returns a synthetic parent with the
// fragment nodes. Parsing happens in table context so that row-group
// tags survive; body context would discard them.
func ParseFragment(r io.Reader) (*html.Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read fragment: %w", err)
	}
	ctx := &html.Node{Type: html.ElementNode, Data: "table", DataAtom: atom.Table}
	nodes, err := html.ParseFragment(bytes.NewReader(src), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	parent := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return parent, nil
}

// ParseMarkdown renders Markdown (with pipe-table support) to HTML and
// parses the result, so Markdown tables flow through the same walker.
func ParseMarkdown(r io.Reader) (*html.Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	doc, err := html.Parse(&buf)
	if err != nil {
		return nil, fmt.Errorf("parse rendered markdown: %w", err)
	}
	return doc, nil
}

// Resolve finds the export target. With an id, the matching element is
// used directly when it is a <table>, otherwise its first descendant
// table (the container case). With an empty id, the document's first
// table wins.
func Resolve(doc *html.Node, id string) (*html.Node, error) {
	if id == "" {
		if t := findTable(doc); t != nil {
			return t, nil
		}
		return nil, fmt.Errorf("%w: document contains no table", grid.ErrTableNotFound)
	}
	el := findByID(doc, id)
	if el == nil {
		return nil, fmt.Errorf("%w: no element with id %q", grid.ErrTableNotFound, id)
	}
	if el.DataAtom == atom.Table {
		return el, nil
	}
	if t := findTable(el); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("%w: element %q contains no table", grid.ErrTableNotFound, id)
}

func findTable(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Table {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTable(c); t != nil {
			return t
		}
	}
	return nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attrVal(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if el := findByID(c, id); el != nil {
			return el
		}
	}
	return nil
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

// isHidden reports whether an element is hidden via the hidden attribute
// or an inline style. Style matching tolerates whitespace around the
// colon and mixed case.
func isHidden(n *html.Node) bool {
	if hasAttr(n, "hidden") {
		return true
	}
	style := attrVal(n, "style")
	if style == "" {
		return false
	}
	compact := strings.ToLower(strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' {
			return -1
		}
		return r
	}, style))
	return strings.Contains(compact, "display:none") || strings.Contains(compact, "visibility:hidden")
}
