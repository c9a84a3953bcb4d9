// Package annotator builds the anchor elements that replace located
// citations, and removes them again.
package annotator

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/dgallion1/reflinker/internal/domtext"
	"github.com/dgallion1/reflinker/internal/matcher"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	ClassRef        = "sefaria-ref"
	ClassWrapper    = "sefaria-ref-wrapper"
	ClassDebug      = "sefaria-ref-debug"
	ClassAmbiguous  = "sefaria-ref-ambiguous"
	ClassFailed     = "sefaria-ref-failed"
	ClassDecoration = "sefaria-ref-decoration"

	AttrResultIndex = "data-result-index"
	AttrRef         = "data-ref"
)

// Decision says what to do with one citation before it is located.
type Decision int

const (
	Link Decision = iota
	SkipAmbiguous
	SkipFailed
	SkipNoRef
)

func (d Decision) String() string {
	switch d {
	case Link:
		return "link"
	case SkipAmbiguous:
		return "ambiguous"
	case SkipFailed:
		return "link_failed"
	case SkipNoRef:
		return "no_ref"
	}
	return "unknown"
}

// Binder receives every anchor the annotator creates so it can respond to
// hover and click on it.
type Binder interface {
	Bind(anchor *html.Node, ref string)
}

type Config struct {
	PopupID string
	// ClickMode adds the ARIA attributes of a click-triggered dialog.
	ClickMode bool
	Debug     bool
	// BaseURL resolves relative reference URLs.
	BaseURL string
}

type Annotator struct {
	cfg  Config
	base *url.URL
}

func New(cfg Config) *Annotator {
	a := &Annotator{cfg: cfg}
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.IsAbs() {
		a.base = u
	}
	return a
}

// Plan decides whether m gets annotated. Ambiguous and failed citations
// are only ever shown in debug mode.
func (a *Annotator) Plan(m matcher.CitationMatch) Decision {
	switch {
	case m.LinkFailed:
		if a.cfg.Debug {
			return Link
		}
		return SkipFailed
	case len(m.Refs) == 0:
		return SkipNoRef
	case m.Ambiguous():
		if a.cfg.Debug {
			return Link
		}
		return SkipAmbiguous
	}
	return Link
}

// Build returns the node that replaces text, the located citation number
// index. The text of the returned node, ignoring decoration, is exactly
// text.
func (a *Annotator) Build(index int, m matcher.CitationMatch, text string, refData map[string]matcher.RefData) *html.Node {
	if m.LinkFailed {
		span := domtext.Element(atom.Span, "class", ClassFailed+" "+ClassDebug, AttrResultIndex, strconv.Itoa(index))
		span.AppendChild(domtext.Text(text))
		return span
	}
	if len(m.Refs) == 1 {
		anchor := a.anchor(index, m, 0, refData)
		anchor.AppendChild(domtext.Text(text))
		if a.cfg.Debug {
			domtext.AddClass(anchor, ClassDebug)
		}
		return anchor
	}

	wrapper := domtext.Element(atom.Span, "class", ClassWrapper+" "+ClassAmbiguous, AttrResultIndex, strconv.Itoa(index))
	if a.cfg.Debug {
		domtext.AddClass(wrapper, ClassDebug)
	}
	for i := range m.Refs {
		anchor := a.anchor(index, m, i, refData)
		if i == 0 {
			anchor.AppendChild(domtext.Text(text))
		} else {
			domtext.AddClass(anchor, ClassDecoration)
			anchor.AppendChild(domtext.Text("[" + strconv.Itoa(i) + "]"))
		}
		wrapper.AppendChild(anchor)
	}
	return wrapper
}

func (a *Annotator) anchor(index int, m matcher.CitationMatch, i int, refData map[string]matcher.RefData) *html.Node {
	n := domtext.Element(atom.A,
		"class", ClassRef,
		"href", a.resolve(m.URL(i, refData)),
		AttrRef, m.Refs[i],
		AttrResultIndex, strconv.Itoa(index),
		"target", "_blank",
		"rel", "noopener",
	)
	if a.cfg.PopupID != "" {
		domtext.SetAttr(n, "aria-controls", a.cfg.PopupID)
	}
	if a.cfg.ClickMode {
		domtext.SetAttr(n, "aria-haspopup", "dialog")
		domtext.SetAttr(n, "aria-expanded", "false")
	}
	return n
}

func (a *Annotator) resolve(href string) string {
	if a.base == nil || href == "" {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return a.base.ResolveReference(u).String()
}

// BindAll registers every reference anchor inside n with b.
func BindAll(n *html.Node, b Binder) int {
	if b == nil {
		return 0
	}
	anchors := Anchors(n)
	for _, a := range anchors {
		b.Bind(a, domtext.Attr(a, AttrRef))
	}
	return len(anchors)
}

// Anchors lists the reference anchors under n in document order.
func Anchors(n *html.Node) []*html.Node {
	return domtext.FindAll(n, func(c *html.Node) bool {
		return domtext.IsElement(c, atom.A) && domtext.HasClass(c, ClassRef)
	}, true)
}

// IsDecoration reports whether n only exists to mark candidates visually
// and carries none of the page's own text.
func IsDecoration(n *html.Node) bool {
	return domtext.HasClass(n, ClassDecoration)
}

// IsAnnotation reports whether n is an outermost node inserted by Build.
func IsAnnotation(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	return domtext.HasClass(n, ClassWrapper) || domtext.HasClass(n, ClassFailed) ||
		(domtext.IsElement(n, atom.A) && domtext.HasClass(n, ClassRef))
}

// RemoveAll unwraps every annotation under root, dropping decoration and
// putting the page's own content back in its place. It returns how many
// were removed.
func RemoveAll(root *html.Node) int {
	nodes := domtext.FindAll(root, IsAnnotation, true)
	parents := map[*html.Node]bool{}
	for _, n := range nodes {
		parent := n.Parent
		if parent == nil {
			continue
		}
		unwrap(n)
		parents[parent] = true
	}
	for p := range parents {
		domtext.Normalize(p)
	}
	return len(nodes)
}

func unwrap(n *html.Node) {
	parent := n.Parent
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		if !IsDecoration(c) {
			parent.InsertBefore(c, n)
			if IsAnnotation(c) {
				unwrap(c)
			}
		}
		c = next
	}
	parent.RemoveChild(n)
}

// PlainText is the text content of n with decoration left out.
func PlainText(n *html.Node) string {
	return domtext.TextContent(n, IsDecoration)
}

// ContextAround returns up to n characters of page text before and after the
// annotation with the given result index, for reporting bad matches.
func ContextAround(root *html.Node, index int, n int) (prev, next string, ok bool) {
	target := domtext.Find(root, func(c *html.Node) bool {
		return IsAnnotation(c) && domtext.Attr(c, AttrResultIndex) == strconv.Itoa(index)
	})
	if target == nil {
		return "", "", false
	}
	var before, after strings.Builder
	seen := false
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c == target {
			seen = true
			return
		}
		if domtext.IsNonText(c) || IsDecoration(c) {
			return
		}
		if c.Type == html.TextNode {
			if seen {
				after.WriteString(c.Data)
			} else {
				before.WriteString(c.Data)
			}
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(root)
	p, x := []rune(before.String()), []rune(after.String())
	if len(p) > n {
		p = p[len(p)-n:]
	}
	if len(x) > n {
		x = x[:n]
	}
	return strings.TrimSpace(string(p)), strings.TrimSpace(string(x)), true
}
