package locator

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgallion1/reflinker/internal/domtext"
	"golang.org/x/net/html"
)

// Replacer builds the node that takes a span's place. Returning a nil node
// leaves the span untouched.
type Replacer func(Span) (*html.Node, error)

type Options struct {
	// Index is reused when set; otherwise one is built from the root with
	// IndexOptions.
	Index        *Index
	IndexOptions IndexOptions
	// Accept filters occurrences by their index offset. Nil accepts all.
	Accept func(start int) bool
}

// Rejection is an accepted occurrence that could not be replaced.
type Rejection struct {
	Span Span
	Err  error
}

type Result struct {
	Spans    []Span
	Nodes    []*html.Node
	Rejected []Rejection

	// holders[i] is the element inside Nodes[i] that received the span's
	// markup, nil when the span was plain text.
	holders []*html.Node
}

// Revert puts each span's content back where its replacement node sits.
// Markup carried into a replacement is moved back out; an element the span
// split stays split.
func (r *Result) Revert() {
	for i := len(r.Nodes) - 1; i >= 0; i-- {
		n := r.Nodes[i]
		parent := n.Parent
		if parent == nil {
			continue
		}
		if h := r.holders[i]; h != nil {
			for c := h.FirstChild; c != nil; {
				next := c.NextSibling
				h.RemoveChild(c)
				parent.InsertBefore(c, n)
				c = next
			}
			parent.RemoveChild(n)
		} else {
			domtext.ReplaceWith(n, domtext.Text(r.Spans[i].Text))
		}
		domtext.Normalize(parent)
	}
	r.Nodes = nil
	r.Spans = nil
	r.holders = nil
}

// FindAndReplace replaces accepted occurrences of search under root.
// Overlapping occurrences after the first are skipped. The tree is only
// touched through the text nodes a span covers and the nodes strictly
// between them.
func FindAndReplace(root *html.Node, search string, replace Replacer, opts Options) (*Result, error) {
	idx := opts.Index
	if idx == nil {
		idx = BuildIndex(opts.IndexOptions, root)
	}
	res := &Result{}

	var spans []Span
	end := -1
	for _, start := range idx.Occurrences(search) {
		if opts.Accept != nil && !opts.Accept(start) {
			continue
		}
		if start < end {
			continue
		}
		sp := idx.span(start, start+len(search))
		if sp.Locked() {
			res.Rejected = append(res.Rejected, Rejection{Span: sp, Err: ErrLocked})
			continue
		}
		if got := sp.FragmentText(); got != search {
			res.Rejected = append(res.Rejected, Rejection{Span: sp, Err: fmt.Errorf("%w: fragments %q", ErrSpanMismatch, got)})
			continue
		}
		spans = append(spans, sp)
		end = sp.End
	}

	parents := map[*html.Node]bool{}
	var nodes, holders []*html.Node
	var kept []Span
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		repl, err := replace(sp)
		if err != nil {
			return nil, fmt.Errorf("replace %q at %d: %w", sp.Text, sp.Start, err)
		}
		if repl == nil {
			continue
		}
		holder, err := splice(sp, repl)
		if err != nil {
			if errors.Is(err, ErrSpanMismatch) {
				res.Rejected = append(res.Rejected, Rejection{Span: sp, Err: err})
				continue
			}
			return nil, err
		}
		parents[repl.Parent] = true
		nodes = append(nodes, repl)
		holders = append(holders, holder)
		kept = append(kept, sp)
	}
	for p := range parents {
		domtext.Normalize(p)
	}
	slices.Reverse(nodes)
	slices.Reverse(holders)
	slices.Reverse(kept)
	res.Nodes = nodes
	res.Spans = kept
	res.holders = holders
	return res, nil
}

// splice puts repl in place of sp. When the span crosses element
// boundaries, the inline markup it covers moves into repl: elements the span
// only partly covers are split and the covered part is carried along, so
// `See <i>Gene</i>sis <b>1</b>:1` becomes `See <a><i>Gene</i>sis <b>1</b>:1</a>`.
// It returns the element inside repl that now holds the span's content, or
// nil when repl carries plain text only.
func splice(sp Span, repl *html.Node) (*html.Node, error) {
	if len(sp.Fragments) == 0 {
		return nil, fmt.Errorf("%w: span %d-%d has no text nodes", ErrSpanMismatch, sp.Start, sp.End)
	}
	first := sp.Fragments[0]
	last := sp.Fragments[len(sp.Fragments)-1]
	a, b := first.Node, last.Node
	if a.Parent == nil || b.Parent == nil {
		return nil, fmt.Errorf("%w: detached text node", ErrSpanMismatch)
	}

	if a == b {
		suffix := a.Data[last.To:]
		a.Data = a.Data[:first.From]
		insertAfter(a, repl)
		if suffix != "" {
			insertAfter(repl, domtext.Text(suffix))
		}
		return nil, nil
	}

	var inner strings.Builder
	for _, f := range sp.Fragments[1 : len(sp.Fragments)-1] {
		inner.WriteString(f.Text())
	}
	var got strings.Builder
	for _, n := range between(a, b) {
		got.WriteString(domtext.TextContent(n, nil))
	}
	if got.String() != inner.String() {
		return nil, fmt.Errorf("%w: moving %q would carry text outside the span", ErrSpanMismatch, got.String())
	}

	c := commonAncestor(a, b)
	top, bottom := childOf(c, a), childOf(c, b)
	var middle []*html.Node
	for n := top.NextSibling; n != nil && n != bottom; n = n.NextSibling {
		middle = append(middle, n)
	}

	after := bottom.NextSibling
	content := []*html.Node{tail(top, a, first.From)}
	for _, n := range middle {
		c.RemoveChild(n)
		content = append(content, n)
	}
	content = append(content, head(bottom, b, last.To))
	if bottom.Parent == c {
		c.InsertBefore(repl, bottom)
	} else {
		c.InsertBefore(repl, after)
	}

	var holder *html.Node
	if carrier := textCarrier(repl, sp.Text); carrier != nil {
		holder = carrier.Parent
		for _, n := range content {
			holder.InsertBefore(n, carrier)
		}
		holder.RemoveChild(carrier)
	}
	prune(a, c)
	prune(b, c)
	return holder, nil
}

// tail detaches everything in n from offset from of text node t onwards.
// n moves whole when the span covers all of it; otherwise the covered part
// comes back in a copy of the element chain from n down to t.
func tail(n, t *html.Node, from int) *html.Node {
	if from == 0 && edge(n, t, func(x *html.Node) *html.Node { return x.PrevSibling }) {
		n.Parent.RemoveChild(n)
		return n
	}
	if n == t {
		out := domtext.Text(t.Data[from:])
		t.Data = t.Data[:from]
		return out
	}
	ch := childOf(n, t)
	rest := ch.NextSibling
	out := shallowClone(n)
	out.AppendChild(tail(ch, t, from))
	for s := rest; s != nil; {
		next := s.NextSibling
		n.RemoveChild(s)
		out.AppendChild(s)
		s = next
	}
	return out
}

// head is tail's mirror: everything in n before offset to of text node t.
func head(n, t *html.Node, to int) *html.Node {
	if to == len(t.Data) && edge(n, t, func(x *html.Node) *html.Node { return x.NextSibling }) {
		n.Parent.RemoveChild(n)
		return n
	}
	if n == t {
		out := domtext.Text(t.Data[:to])
		t.Data = t.Data[to:]
		return out
	}
	ch := childOf(n, t)
	out := shallowClone(n)
	for s := n.FirstChild; s != ch; {
		next := s.NextSibling
		n.RemoveChild(s)
		out.AppendChild(s)
		s = next
	}
	out.AppendChild(head(ch, t, to))
	return out
}

// edge reports whether t is at one end of n, following sibling from t up.
func edge(n, t *html.Node, sibling func(*html.Node) *html.Node) bool {
	for x := t; x != n; x = x.Parent {
		if sibling(x) != nil {
			return false
		}
	}
	return true
}

// prune removes t if it was emptied, then every ancestor below stop left
// without children.
func prune(t, stop *html.Node) {
	if t.Data != "" || t.Parent == nil {
		return
	}
	n := t
	for n != stop && n.Parent != nil && n.FirstChild == nil {
		p := n.Parent
		p.RemoveChild(n)
		n = p
	}
}

// shallowClone copies an element without children. The id is dropped so
// the split halves do not share it.
func shallowClone(n *html.Node) *html.Node {
	c := &html.Node{Type: n.Type, DataAtom: n.DataAtom, Data: n.Data, Namespace: n.Namespace}
	for _, at := range n.Attr {
		if at.Namespace == "" && at.Key == "id" {
			continue
		}
		c.Attr = append(c.Attr, at)
	}
	return c
}

func commonAncestor(a, b *html.Node) *html.Node {
	for n := a.Parent; n != nil; n = n.Parent {
		if domtext.Contains(n, b) {
			return n
		}
	}
	return nil
}

// childOf returns the child of anc that is or contains n.
func childOf(anc, n *html.Node) *html.Node {
	for n.Parent != anc {
		n = n.Parent
	}
	return n
}

// textCarrier finds the first text node under repl reading exactly text.
func textCarrier(repl *html.Node, text string) *html.Node {
	return domtext.Find(repl, func(n *html.Node) bool {
		return n.Type == html.TextNode && n.Data == text
	})
}

func insertAfter(ref, n *html.Node) {
	ref.Parent.InsertBefore(n, ref.NextSibling)
}

// between lists the maximal subtrees lying strictly after a and strictly
// before b in document order, excluding ancestors of either.
func between(a, b *html.Node) []*html.Node {
	var out []*html.Node
	for n := a; n != nil; n = n.Parent {
		for s := n.NextSibling; s != nil; s = s.NextSibling {
			if domtext.Contains(s, b) {
				return append(out, before(s, b)...)
			}
			out = append(out, s)
		}
	}
	return out
}

func before(anc, b *html.Node) []*html.Node {
	var out []*html.Node
	for c := anc.FirstChild; c != nil; c = c.NextSibling {
		if c == b {
			return out
		}
		if domtext.Contains(c, b) {
			return append(out, before(c, b)...)
		}
		out = append(out, c)
	}
	return out
}
