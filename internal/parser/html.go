package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/reflinker/internal/domtext"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// HTMLParser handles HTML files. The page is kept as-is apart from charset
// decoding and a <title> taken from the filename when the page has none.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*html.Node, error) {
	decoded, err := charset.NewReader(r, "text/html")
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	doc, err := html.Parse(decoded)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	if t := domtext.FindElement(doc, atom.Title); t != nil && strings.TrimSpace(domtext.TextContent(t, nil)) != "" {
		return doc, nil
	}
	head := domtext.FindElement(doc, atom.Head)
	if head == nil {
		return doc, nil
	}
	if t := domtext.FindElement(head, atom.Title); t != nil {
		domtext.Remove(t)
	}
	title := domtext.Element(atom.Title)
	title.AppendChild(domtext.Text(baseTitle(filename)))
	head.AppendChild(title)
	return doc, nil
}
