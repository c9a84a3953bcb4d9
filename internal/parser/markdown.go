package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dgallion1/reflinker/internal/domtext"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MarkdownParser handles Markdown files using goldmark. Inline markup
// survives into the document so citations split by emphasis are still
// found by the locator.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*html.Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	var body bytes.Buffer
	if err := md.Renderer().Render(&body, src, root); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	title := firstHeading(root, src)
	if title == "" {
		title = baseTitle(filename)
	}
	return wrapFragment(body.String(), title)
}

// firstHeading returns the text of the first top-level heading, if any.
func firstHeading(doc ast.Node, src []byte) string {
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			var buf bytes.Buffer
			for c := h.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					buf.Write(t.Value(src))
				}
			}
			return buf.String()
		}
	}
	return ""
}

// wrapFragment parses an HTML body fragment into a full document with title.
func wrapFragment(fragment, title string) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewBufferString("<!DOCTYPE html><html><head></head><body>" + fragment + "</body></html>"))
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}
	if head := domtext.FindElement(doc, atom.Head); head != nil && title != "" {
		t := domtext.Element(atom.Title)
		t.AppendChild(domtext.Text(title))
		head.AppendChild(t)
	}
	return doc, nil
}
