// Package locator finds citation text inside a live HTML tree and splices
// replacement nodes over it, including spans that cross element boundaries.
//
// Two coordinate spaces are involved. Extracted offsets index the readable
// text the matcher saw; index offsets index the concatenated text nodes of
// the live tree. Locate maps the first onto the second.
package locator

import (
	"sort"
	"strings"

	"github.com/dgallion1/reflinker/internal/domtext"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Portion is one text node's contribution to an Index.
type Portion struct {
	Node       *html.Node
	Start, End int
	// Locked portions may be matched but never replaced, e.g. text already
	// inside a link.
	Locked bool
}

// Index is the searchable text of one or more subtrees. Block boundaries
// appear in Text as domtext.BlockBreak but belong to no portion, so a search
// string without a break never straddles two blocks.
type Index struct {
	Text     string
	Portions []Portion
}

type IndexOptions struct {
	// Skip drops a subtree from the index entirely.
	Skip func(*html.Node) bool
	// Lock keeps a subtree searchable but forbids replacing inside it.
	Lock func(*html.Node) bool
}

// BuildIndex walks roots in order. Script-like subtrees are always skipped
// and anchors are always locked.
func BuildIndex(opts IndexOptions, roots ...*html.Node) *Index {
	b := &indexBuilder{opts: opts}
	for _, r := range roots {
		b.brk()
		b.walk(r, false)
	}
	return &Index{Text: b.sb.String(), Portions: b.portions}
}

type indexBuilder struct {
	opts     IndexOptions
	sb       strings.Builder
	portions []Portion
}

func (b *indexBuilder) walk(n *html.Node, locked bool) {
	switch n.Type {
	case html.TextNode:
		if n.Data == "" {
			return
		}
		start := b.sb.Len()
		b.sb.WriteString(n.Data)
		b.portions = append(b.portions, Portion{Node: n, Start: start, End: b.sb.Len(), Locked: locked})
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if domtext.IsNonText(n) || (b.opts.Skip != nil && b.opts.Skip(n)) {
			return
		}
		if n.DataAtom == atom.Br {
			b.brk()
			return
		}
		if n.DataAtom == atom.A || (b.opts.Lock != nil && b.opts.Lock(n)) {
			locked = true
		}
	}
	block := domtext.IsBlock(n)
	if block {
		b.brk()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.walk(c, locked)
	}
	if block {
		b.brk()
	}
}

func (b *indexBuilder) brk() {
	s := b.sb.String()
	if len(s) > 0 && s[len(s)-1] != domtext.BlockBreak {
		b.sb.WriteByte(domtext.BlockBreak)
	}
}

// Occurrences returns every start offset of s in the index text, including
// overlapping ones, in ascending order.
func (x *Index) Occurrences(s string) []int {
	return occurrences(x.Text, s)
}

func occurrences(text, s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for i := 0; i <= len(text)-len(s); {
		j := strings.Index(text[i:], s)
		if j < 0 {
			break
		}
		out = append(out, i+j)
		i += j + 1
	}
	return out
}

// Fragment is the part of one text node covered by a span, as byte offsets
// into the node's Data.
type Fragment struct {
	Node     *html.Node
	From, To int
	Locked   bool
}

func (f Fragment) Text() string {
	return f.Node.Data[f.From:f.To]
}

// Span is a located run of index text and the text-node fragments that
// carry it.
type Span struct {
	Start, End int
	Text       string
	Fragments  []Fragment
}

// FragmentText concatenates the live text of every fragment.
func (s Span) FragmentText() string {
	var sb strings.Builder
	for _, f := range s.Fragments {
		sb.WriteString(f.Text())
	}
	return sb.String()
}

func (s Span) Locked() bool {
	for _, f := range s.Fragments {
		if f.Locked {
			return true
		}
	}
	return false
}

// span resolves [start, end) of the index text to fragments.
func (x *Index) span(start, end int) Span {
	sp := Span{Start: start, End: end, Text: x.Text[start:end]}
	i := sort.Search(len(x.Portions), func(i int) bool { return x.Portions[i].End > start })
	for ; i < len(x.Portions) && x.Portions[i].Start < end; i++ {
		p := x.Portions[i]
		sp.Fragments = append(sp.Fragments, Fragment{
			Node:   p.Node,
			From:   max(start, p.Start) - p.Start,
			To:     min(end, p.End) - p.Start,
			Locked: p.Locked,
		})
	}
	return sp
}
