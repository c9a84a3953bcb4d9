// Package domtext holds the text and tree helpers shared by the extractor,
// locator, annotator and popup packages. Everything here works on
// golang.org/x/net/html trees and never touches a global document.
package domtext

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BlockBreak separates block-level elements in serialized text. Phrase
// matching and context widening never cross it.
const BlockBreak = '\n'

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Body: true, atom.Dd: true, atom.Details: true, atom.Dialog: true,
	atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Fieldset: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Summary: true,
	atom.Table: true, atom.Tbody: true, atom.Td: true, atom.Tfoot: true, atom.Th: true,
	atom.Thead: true, atom.Tr: true, atom.Ul: true, atom.Caption: true,
}

// nonText elements carry no readable text even though they may contain
// text nodes.
var nonText = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Textarea: true, atom.Head: true, atom.Title: true, atom.Iframe: true,
	atom.Svg: true, atom.Object: true, atom.Select: true,
}

// IsBlock reports whether n is a block-level element.
func IsBlock(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && blockElements[n.DataAtom]
}

// IsNonText reports whether n is an element whose text is never rendered as
// prose (scripts, styles and similar).
func IsNonText(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && nonText[n.DataAtom]
}

// IsElement reports whether n is an element with the given tag.
func IsElement(n *html.Node, a atom.Atom) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == a
}

// IsSpace reports whether b is HTML collapsible whitespace. Non-breaking
// spaces are deliberately not included: they survive rendering.
func IsSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

// Clone returns a deep copy of n detached from any parent.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(Clone(ch))
	}
	return c
}

// TextContent concatenates every text node under n in document order. Subtrees
// for which skip returns true are left out; skip may be nil.
func TextContent(n *html.Node, skip func(*html.Node) bool) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if skip != nil && skip(n) {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// VisibleText is TextContent without scripts, styles and other non-prose
// subtrees, plus any extra subtrees rejected by skip.
func VisibleText(n *html.Node, skip func(*html.Node) bool) string {
	return TextContent(n, func(c *html.Node) bool {
		if IsNonText(c) {
			return true
		}
		return skip != nil && skip(c)
	})
}

// BlockText serializes n as readable text: whitespace runs collapse to a
// single space and every block boundary becomes BlockBreak.
func BlockText(n *html.Node) string {
	w := &blockWriter{}
	w.walk(n)
	return strings.TrimSpace(w.sb.String())
}

type blockWriter struct {
	sb           strings.Builder
	pendingSpace bool
}

func (w *blockWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.ElementNode:
		if IsNonText(n) {
			return
		}
		if n.DataAtom == atom.Br {
			w.lineBreak()
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}
	block := IsBlock(n)
	if block {
		w.lineBreak()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if block {
		w.lineBreak()
	}
}

func (w *blockWriter) text(s string) {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if IsSpace(b) {
			w.pendingSpace = true
			continue
		}
		if w.pendingSpace && w.sb.Len() > 0 && !w.atBreak() {
			w.sb.WriteByte(' ')
		}
		w.pendingSpace = false
		w.sb.WriteByte(b)
	}
}

func (w *blockWriter) lineBreak() {
	w.pendingSpace = false
	if w.sb.Len() > 0 && !w.atBreak() {
		w.sb.WriteByte(BlockBreak)
	}
}

func (w *blockWriter) atBreak() bool {
	s := w.sb.String()
	return len(s) > 0 && s[len(s)-1] == BlockBreak
}

// Normalize merges adjacent text nodes and drops empty ones under n, the
// equivalent of the DOM's Node.normalize.
func Normalize(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.TextNode:
			if c.Data == "" {
				n.RemoveChild(c)
			} else if prev := c.PrevSibling; prev != nil && prev.Type == html.TextNode {
				prev.Data += c.Data
				n.RemoveChild(c)
			}
		case html.ElementNode, html.DocumentNode:
			Normalize(c)
		}
		c = next
	}
}

// Contains reports whether b is a or a descendant of a.
func Contains(a, b *html.Node) bool {
	for n := b; n != nil; n = n.Parent {
		if n == a {
			return true
		}
	}
	return false
}

// FindAll returns every node under n (inclusive) matching pred, in document
// order. Matching nodes are not descended into when stopAtMatch is set.
func FindAll(n *html.Node, pred func(*html.Node) bool, stopAtMatch bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if pred(n) {
			out = append(out, n)
			if stopAtMatch {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// Find returns the first node under n (inclusive) matching pred.
func Find(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := Find(c, pred); f != nil {
			return f
		}
	}
	return nil
}

// FindElement returns the first element with the given tag under n.
func FindElement(n *html.Node, a atom.Atom) *html.Node {
	return Find(n, func(c *html.Node) bool { return IsElement(c, a) })
}

// FindByID returns the element whose id attribute equals id.
func FindByID(n *html.Node, id string) *html.Node {
	return Find(n, func(c *html.Node) bool {
		return c.Type == html.ElementNode && Attr(c, "id") == id
	})
}

// Remove detaches n from its parent, if any.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// ReplaceWith puts repl where n was and detaches n.
func ReplaceWith(n, repl *html.Node) {
	if n.Parent == nil {
		return
	}
	n.Parent.InsertBefore(repl, n)
	n.Parent.RemoveChild(n)
}

// Text returns a new text node.
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// Element returns a new element with the given tag and attribute pairs.
func Element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		SetAttr(n, attrs[i], attrs[i+1])
	}
	return n
}
