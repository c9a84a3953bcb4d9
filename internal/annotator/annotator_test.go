package annotator

import (
	"strings"
	"testing"

	"github.com/dgallion1/reflinker/internal/domtext"
	"github.com/dgallion1/reflinker/internal/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var refData = map[string]matcher.RefData{
	"Genesis 1:1": {Ref: "Genesis 1:1", URL: "/Genesis.1.1"},
	"Exodus 1:1":  {Ref: "Exodus 1:1", URL: "/Exodus.1.1"},
}

type recorder struct{ refs []string }

func (r *recorder) Bind(_ *html.Node, ref string) { r.refs = append(r.refs, ref) }

func TestPlan(t *testing.T) {
	single := matcher.CitationMatch{Refs: []string{"Genesis 1:1"}}
	ambiguous := matcher.CitationMatch{Refs: []string{"Genesis 1:1", "Exodus 1:1"}}
	failed := matcher.CitationMatch{LinkFailed: true}

	prod := New(Config{})
	assert.Equal(t, Link, prod.Plan(single))
	assert.Equal(t, SkipAmbiguous, prod.Plan(ambiguous))
	assert.Equal(t, SkipFailed, prod.Plan(failed))
	assert.Equal(t, SkipNoRef, prod.Plan(matcher.CitationMatch{}))

	debug := New(Config{Debug: true})
	assert.Equal(t, Link, debug.Plan(ambiguous))
	assert.Equal(t, Link, debug.Plan(failed))
	assert.Equal(t, "ambiguous", SkipAmbiguous.String())
}

func TestBuild_SingleAnchor(t *testing.T) {
	a := New(Config{PopupID: "sefaria-popup", ClickMode: true, BaseURL: "https://www.sefaria.org"})
	n := a.Build(3, matcher.CitationMatch{Refs: []string{"Genesis 1:1"}}, "Genesis 1:1", refData)

	require.True(t, domtext.IsElement(n, atom.A))
	assert.Equal(t, "https://www.sefaria.org/Genesis.1.1", domtext.Attr(n, "href"))
	assert.Equal(t, "Genesis 1:1", domtext.Attr(n, AttrRef))
	assert.Equal(t, "3", domtext.Attr(n, AttrResultIndex))
	assert.Equal(t, "sefaria-popup", domtext.Attr(n, "aria-controls"))
	assert.Equal(t, "dialog", domtext.Attr(n, "aria-haspopup"))
	assert.False(t, domtext.HasClass(n, ClassDebug))
	assert.Equal(t, "Genesis 1:1", PlainText(n))
}

func TestBuild_AmbiguousWrapper(t *testing.T) {
	a := New(Config{Debug: true})
	m := matcher.CitationMatch{Refs: []string{"Genesis 1:1", "Exodus 1:1"}}
	n := a.Build(0, m, "1:1", refData)

	require.True(t, domtext.HasClass(n, ClassWrapper))
	assert.True(t, domtext.HasClass(n, ClassAmbiguous))
	anchors := Anchors(n)
	require.Len(t, anchors, 2)
	assert.Equal(t, "1:1", domtext.TextContent(anchors[0], nil))
	assert.Equal(t, "[1]", domtext.TextContent(anchors[1], nil))
	assert.Equal(t, "/Exodus.1.1", domtext.Attr(anchors[1], "href"))
	assert.True(t, IsDecoration(anchors[1]))
	assert.Equal(t, "1:1", PlainText(n))
}

func TestBuild_Failed(t *testing.T) {
	n := New(Config{Debug: true}).Build(1, matcher.CitationMatch{LinkFailed: true}, "Gen. 99:99", refData)
	assert.True(t, domtext.HasClass(n, ClassFailed))
	assert.Nil(t, domtext.FindElement(n, atom.A))
	assert.Equal(t, "Gen. 99:99", PlainText(n))
}

func TestRemoveAll_RestoresText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<body><p>See Genesis 1:1 and 1:1.</p></body>`))
	require.NoError(t, err)
	p := domtext.FindElement(doc, atom.P)
	before := domtext.TextContent(doc, nil)

	a := New(Config{Debug: true})
	text := p.FirstChild
	text.Data = "See "
	p.AppendChild(a.Build(0, matcher.CitationMatch{Refs: []string{"Genesis 1:1"}}, "Genesis 1:1", refData))
	p.AppendChild(domtext.Text(" and "))
	p.AppendChild(a.Build(1, matcher.CitationMatch{Refs: []string{"Genesis 1:1", "Exodus 1:1"}}, "1:1", refData))
	p.AppendChild(domtext.Text("."))
	assert.Equal(t, before, PlainText(doc))

	rec := &recorder{}
	assert.Equal(t, 3, BindAll(doc, rec))
	assert.Equal(t, []string{"Genesis 1:1", "Genesis 1:1", "Exodus 1:1"}, rec.refs)

	prev, next, ok := ContextAround(doc, 1, 9)
	require.True(t, ok)
	assert.Equal(t, "1:1 and", prev)
	assert.Equal(t, ".", next)

	assert.Equal(t, 2, RemoveAll(doc))
	assert.Equal(t, before, domtext.TextContent(doc, nil))
	assert.Equal(t, p.FirstChild, p.LastChild)
}

func TestRemoveAll_RestoresMarkup(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<body><p>See <i>Gen</i>esis 1:1.</p></body>`))
	require.NoError(t, err)
	p := domtext.FindElement(doc, atom.P)
	i := domtext.FindElement(p, atom.I)
	rest := i.NextSibling

	n := New(Config{Debug: true}).Build(0, matcher.CitationMatch{Refs: []string{"Genesis 1:1", "Exodus 1:1"}}, "Genesis 1:1", refData)
	first := Anchors(n)[0]
	first.RemoveChild(first.FirstChild)
	p.InsertBefore(n, i)
	p.RemoveChild(i)
	p.RemoveChild(rest)
	rest.Data = "esis 1:1"
	first.AppendChild(i)
	first.AppendChild(rest)
	p.AppendChild(domtext.Text("."))
	assert.Equal(t, "See Genesis 1:1.", PlainText(p))

	assert.Equal(t, 1, RemoveAll(doc))
	var sb strings.Builder
	require.NoError(t, html.Render(&sb, p))
	assert.Equal(t, `<p>See <i>Gen</i>esis 1:1.</p>`, sb.String())
}
