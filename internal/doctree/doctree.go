// Package doctree holds the section tree that non-HTML uploads are parsed
// into before they are rendered as an HTML document for linking.
package doctree

import (
	"strconv"
	"strings"

	"github.com/dgallion1/reflinker/internal/domtext"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page (0 if N/A)
	Children []*DocNode // Subsections
}

var headings = [...]atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}

// Document renders t as a complete HTML document. Section titles become
// headings by depth, blank-line separated text becomes paragraphs and single
// newlines become <br>. Nodes with a page number are wrapped in a
// <section data-page>.
func (t *DocTree) Document() *html.Node {
	doc := &html.Node{Type: html.DocumentNode}
	root := domtext.Element(atom.Html)
	head := domtext.Element(atom.Head)
	body := domtext.Element(atom.Body)
	doc.AppendChild(root)
	root.AppendChild(head)
	root.AppendChild(body)

	if t.Title != "" {
		title := domtext.Element(atom.Title)
		title.AppendChild(domtext.Text(t.Title))
		head.AppendChild(title)
	}
	for _, c := range t.Children {
		render(body, c, 0)
	}
	return doc
}

func render(parent *html.Node, n *DocNode, depth int) {
	if n.Page > 0 {
		section := domtext.Element(atom.Section, "data-page", strconv.Itoa(n.Page))
		parent.AppendChild(section)
		parent = section
	}
	if n.Title != "" {
		h := domtext.Element(headings[min(depth, len(headings)-1)])
		h.AppendChild(domtext.Text(n.Title))
		parent.AppendChild(h)
		depth++
	}
	for _, para := range strings.Split(n.Text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		p := domtext.Element(atom.P)
		for i, line := range strings.Split(para, "\n") {
			if i > 0 {
				p.AppendChild(domtext.Element(atom.Br))
			}
			p.AppendChild(domtext.Text(line))
		}
		parent.AppendChild(p)
	}
	for _, c := range n.Children {
		render(parent, c, depth)
	}
}
