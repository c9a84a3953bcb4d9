package locator

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dgallion1/reflinker/internal/domtext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func body(doc *html.Node) *html.Node {
	return domtext.FindElement(doc, atom.Body)
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		require.NoError(t, html.Render(&buf, c))
	}
	return buf.String()
}

func anchor(href string) Replacer {
	return func(sp Span) (*html.Node, error) {
		a := domtext.Element(atom.A, "href", href)
		a.AppendChild(domtext.Text(sp.Text))
		return a, nil
	}
}

func matchAt(t *testing.T, extracted, text string, nth int) Match {
	t.Helper()
	offs := occurrences(extracted, text)
	require.Greater(t, len(offs), nth, "occurrence %d of %q", nth, text)
	return Match{Text: text, Start: offs[nth], End: offs[nth] + len(text)}
}

func TestIndex_BlockBreaksAndLocks(t *testing.T) {
	doc := parse(t, `<body><p>One <a href="#">two</a></p><script>x</script><p>three</p></body>`)
	idx := BuildIndex(IndexOptions{}, body(doc))

	assert.Equal(t, "One two\nthree\n", idx.Text)
	require.Len(t, idx.Portions, 3)
	assert.False(t, idx.Portions[0].Locked)
	assert.True(t, idx.Portions[1].Locked)
	assert.False(t, idx.Portions[2].Locked)
}

func TestIndex_OccurrencesOverlap(t *testing.T) {
	idx := &Index{Text: "aaaa"}
	assert.Equal(t, []int{0, 1, 2}, idx.Occurrences("aa"))
	assert.Nil(t, idx.Occurrences(""))
}

func TestFindAndReplace_SingleNode(t *testing.T) {
	doc := parse(t, `<body><p>See Genesis 1:1 here.</p></body>`)
	res, err := FindAndReplace(body(doc), "Genesis 1:1", anchor("/g"), Options{})
	require.NoError(t, err)
	require.Len(t, res.Spans, 1)
	assert.Equal(t, `<p>See <a href="/g">Genesis 1:1</a> here.</p>`, render(t, body(doc)))
}

func TestFindAndReplace_CrossesElements(t *testing.T) {
	doc := parse(t, `<body><p>See Gen<b>esis</b> <i>1:1 and</i> more.</p></body>`)
	before := domtext.TextContent(doc, nil)

	res, err := FindAndReplace(body(doc), "Genesis 1:1", anchor("/g"), Options{})
	require.NoError(t, err)
	require.Len(t, res.Spans, 1)
	assert.Len(t, res.Spans[0].Fragments, 4)

	assert.Equal(t, `<p>See <a href="/g">Gen<b>esis</b> <i>1:1</i></a><i> and</i> more.</p>`, render(t, body(doc)))
	assert.Equal(t, before, domtext.TextContent(doc, nil))
}

func TestFindAndReplace_KeepsInlineMarkup(t *testing.T) {
	const src = `<p>See <i id="t">Gene</i>sis <b>1</b>:1 today.</p>`
	doc := parse(t, "<body>"+src+"</body>")

	res, err := FindAndReplace(body(doc), "Genesis 1:1", anchor("/g"), Options{})
	require.NoError(t, err)
	require.Len(t, res.Nodes, 1)
	assert.Equal(t, `<p>See <a href="/g"><i id="t">Gene</i>sis <b>1</b>:1</a> today.</p>`, render(t, body(doc)))

	res.Revert()
	assert.Equal(t, src, render(t, body(doc)))
}

func TestFindAndReplace_StartInsideInline(t *testing.T) {
	doc := parse(t, `<body><p><i>See Gen</i>esis 1:1.</p></body>`)
	_, err := FindAndReplace(body(doc), "Genesis 1:1", anchor("/g"), Options{})
	require.NoError(t, err)
	assert.Equal(t, `<p><i>See </i><a href="/g"><i>Gen</i>esis 1:1</a>.</p>`, render(t, body(doc)))
}

func TestFindAndReplace_AcceptFiltersOccurrences(t *testing.T) {
	doc := parse(t, `<body><p>Genesis 1:1 and Genesis 1:1</p></body>`)
	res, err := FindAndReplace(body(doc), "Genesis 1:1", anchor("/g"), Options{
		Accept: func(start int) bool { return start > 0 },
	})
	require.NoError(t, err)
	require.Len(t, res.Spans, 1)
	assert.Equal(t, 16, res.Spans[0].Start)
	assert.Equal(t, `<p>Genesis 1:1 and <a href="/g">Genesis 1:1</a></p>`, render(t, body(doc)))
}

func TestFindAndReplace_MultipleSpansInOneNode(t *testing.T) {
	doc := parse(t, `<body><p>Genesis 1:1 and Genesis 1:1.</p></body>`)
	res, err := FindAndReplace(body(doc), "Genesis 1:1", anchor("/g"), Options{})
	require.NoError(t, err)
	require.Len(t, res.Nodes, 2)
	assert.Equal(t, `<p><a href="/g">Genesis 1:1</a> and <a href="/g">Genesis 1:1</a>.</p>`, render(t, body(doc)))
}

func TestFindAndReplace_SkipsLocked(t *testing.T) {
	doc := parse(t, `<body><p><a href="/x">Genesis 1:1</a></p><p class="skip">Genesis 1:1</p></body>`)
	opts := Options{IndexOptions: IndexOptions{Lock: func(n *html.Node) bool { return domtext.HasClass(n, "skip") }}}

	res, err := FindAndReplace(body(doc), "Genesis 1:1", anchor("/g"), opts)
	require.NoError(t, err)
	assert.Empty(t, res.Spans)
	require.Len(t, res.Rejected, 2)
	assert.ErrorIs(t, res.Rejected[0].Err, ErrLocked)
}

func TestFindAndReplace_DoesNotDropHiddenText(t *testing.T) {
	doc := parse(t, `<body><p>Gen<script>var a;</script>esis</p></body>`)
	res, err := FindAndReplace(body(doc), "Genesis", anchor("/g"), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Spans)
	require.Len(t, res.Rejected, 1)
	assert.ErrorIs(t, res.Rejected[0].Err, ErrSpanMismatch)
	assert.Contains(t, render(t, body(doc)), "<script>var a;</script>")
}

func TestFindAndReplace_Revert(t *testing.T) {
	doc := parse(t, `<body><p>See Gen<b>esis</b> 1:1, twice: Genesis 1:1.</p></body>`)
	before := domtext.TextContent(doc, nil)

	res, err := FindAndReplace(body(doc), "Genesis 1:1", anchor("/g"), Options{})
	require.NoError(t, err)
	require.Len(t, res.Nodes, 2)

	res.Revert()
	assert.Equal(t, before, domtext.TextContent(doc, nil))
	assert.Nil(t, domtext.FindElement(doc, atom.A))
	assert.Equal(t, `<p>See Gen<b>esis</b> 1:1, twice: Genesis 1:1.</p>`, render(t, body(doc)))
	p := domtext.FindElement(doc, atom.P)
	assert.Len(t, domtext.FindAll(p, func(n *html.Node) bool { return n.Type == html.TextNode }, false), 3,
		"text nodes merged after revert")
}

func TestFindAndReplace_ReplacerError(t *testing.T) {
	doc := parse(t, `<body><p>Genesis 1:1</p></body>`)
	_, err := FindAndReplace(body(doc), "Genesis 1:1", func(Span) (*html.Node, error) {
		return nil, errors.New("boom")
	}, Options{})
	require.Error(t, err)
	assert.Equal(t, `<p>Genesis 1:1</p>`, render(t, body(doc)))
}

func TestLink_DuplicatePhrasesAreDistinct(t *testing.T) {
	const sentence = "See Genesis 1:1 for details, and also Genesis 1:1 in the appendix."
	doc := parse(t, `<body><p>`+sentence+`</p></body>`)
	extracted := sentence

	_, loc, err := Link([]*html.Node{body(doc)}, matchAt(t, extracted, "Genesis 1:1", 1), extracted, DefaultConfig(), IndexOptions{}, anchor("/second"))
	require.NoError(t, err)
	assert.Equal(t, 1, loc.WordsWidened)
	assert.Equal(t, 38, loc.Offset)

	_, loc, err = Link([]*html.Node{body(doc)}, matchAt(t, extracted, "Genesis 1:1", 0), extracted, DefaultConfig(), IndexOptions{}, anchor("/first"))
	require.NoError(t, err)
	assert.Equal(t, 4, loc.Offset)

	assert.Equal(t,
		`<p>See <a href="/first">Genesis 1:1</a> for details, and also <a href="/second">Genesis 1:1</a> in the appendix.</p>`,
		render(t, body(doc)))
}

func TestLink_NotFoundAfterWidening(t *testing.T) {
	doc := parse(t, `<body><p>See Genesis   1:1
		for details.</p></body>`)
	extracted := "See Genesis 1:1 for details."

	_, _, err := Link([]*html.Node{body(doc)}, matchAt(t, extracted, "Genesis 1:1", 0), extracted, DefaultConfig(), IndexOptions{}, anchor("/g"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var le *LocateError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 0, le.Occurrences)
	assert.Equal(t, 2, le.WordsWidened)
	assert.Nil(t, domtext.FindElement(doc, atom.A))
}

func TestLink_AmbiguousUnderLengthCap(t *testing.T) {
	doc := parse(t, `<body><p>Genesis 1:1</p><p>Genesis 1:1</p></body>`)
	extracted := "Genesis 1:1\nGenesis 1:1"

	_, _, err := Link([]*html.Node{body(doc)}, matchAt(t, extracted, "Genesis 1:1", 1), extracted, DefaultConfig(), IndexOptions{}, anchor("/g"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguous)

	var le *LocateError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 2, le.Occurrences)
	assert.Equal(t, 0, le.WordsWidened)
}

func TestLink_OrdinalAtLengthCap(t *testing.T) {
	const para = "Read Genesis 1:1 in the original Hebrew."
	doc := parse(t, `<body><p>`+para+`</p><p>`+para+`</p></body>`)
	extracted := para + "\n" + para

	res, loc, err := Link([]*html.Node{body(doc)}, matchAt(t, extracted, "Genesis 1:1", 1), extracted, DefaultConfig(), IndexOptions{}, anchor("/g"))
	require.NoError(t, err)
	assert.Equal(t, 2, loc.Occurrences)
	require.Len(t, res.Spans, 1)

	ps := domtext.FindAll(doc, func(n *html.Node) bool { return domtext.IsElement(n, atom.P) }, true)
	require.Len(t, ps, 2)
	assert.Nil(t, domtext.FindElement(ps[0], atom.A))
	assert.NotNil(t, domtext.FindElement(ps[1], atom.A))
}

func TestLink_WideningStopsAtBlockBreak(t *testing.T) {
	doc := parse(t, `<body><p>Intro</p><p>Genesis 1:1 text</p><p>Genesis 1:1 more</p></body>`)
	extracted := "Intro\nGenesis 1:1 text\nGenesis 1:1 more"

	_, loc, err := Link([]*html.Node{body(doc)}, matchAt(t, extracted, "Genesis 1:1", 0), extracted, DefaultConfig(), IndexOptions{}, anchor("/g"))
	require.NoError(t, err)
	assert.Equal(t, "Genesis 1:1 text", loc.Search)
}

func TestLink_RejectsInconsistentMatch(t *testing.T) {
	doc := parse(t, `<body><p>Genesis 1:1</p></body>`)
	_, _, err := Link([]*html.Node{body(doc)}, Match{Text: "Exodus", Start: 0, End: 6}, "Genesis 1:1", DefaultConfig(), IndexOptions{}, anchor("/g"))
	assert.ErrorIs(t, err, ErrSpanMismatch)
}

func TestWords(t *testing.T) {
	s := "one two\nthree four five"
	start := strings.Index(s, "four")
	assert.Equal(t, strings.Index(s, "three"), wordsBefore(s, start, 1))
	assert.Equal(t, strings.Index(s, "three"), wordsBefore(s, start, 5))
	assert.Equal(t, len(s), wordsAfter(s, start+len("four"), 3))
	assert.Equal(t, strings.Index(s, "\n"), wordsAfter(s, 0, 4))
}
