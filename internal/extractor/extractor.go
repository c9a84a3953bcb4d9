// Package extractor derives the readable text of a page, the string the
// reference matcher searches for citations.
package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dgallion1/reflinker/internal/domtext"
	"github.com/dgallion1/reflinker/internal/hostconfig"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// denylist holds elements removed before scoring. Tables and superscripts
// mostly carry footnote numbering that breaks phrase matching.
var denylist = map[atom.Atom]bool{
	atom.Table: true, atom.Sup: true,
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
	atom.Form: true, atom.Iframe: true, atom.Svg: true, atom.Button: true,
	atom.Select: true, atom.Textarea: true,
}

// ExtractedText is the readable text of one page.
type ExtractedText struct {
	Text        string
	Title       string
	CleanedHTML string
	// SupplementCount is how many host-specific fragments were appended.
	SupplementCount int
}

// Empty reports whether there is nothing worth sending to the matcher.
func (e ExtractedText) Empty() bool {
	return strings.TrimSpace(e.Text) == ""
}

type Options struct {
	// Selector restricts extraction to matching elements; default "body".
	Selector string
}

type Extractor struct {
	hosts  *hostconfig.Registry
	policy *bluemonday.Policy
}

func New(hosts *hostconfig.Registry) *Extractor {
	return &Extractor{hosts: hosts, policy: bluemonday.UGCPolicy()}
}

// Extract never modifies doc.
func (e *Extractor) Extract(doc *html.Node, pageURL string, opts Options) (ExtractedText, error) {
	selector := opts.Selector
	if selector == "" {
		selector = "body"
	}

	work := domtext.Clone(doc)
	gq := goquery.NewDocumentFromNode(work)
	out := ExtractedText{Title: title(gq)}

	roots := Outermost(gq.Find(selector).Nodes)
	if len(roots) == 0 {
		return out, nil
	}

	for _, r := range roots {
		for _, n := range domtext.FindAll(r, func(n *html.Node) bool {
			return n.Type == html.ElementNode && denylist[n.DataAtom]
		}, true) {
			domtext.Remove(n)
		}
	}

	var parts []*html.Node
	for _, r := range roots {
		parts = append(parts, article(r)...)
	}

	texts := make([]string, 0, len(parts))
	var cleaned bytes.Buffer
	for _, p := range parts {
		if t := domtext.BlockText(p); t != "" {
			texts = append(texts, t)
		}
		if err := html.Render(&cleaned, p); err != nil {
			return out, fmt.Errorf("render article: %w", err)
		}
	}
	out.Text = strings.Join(texts, string(domtext.BlockBreak))
	out.CleanedHTML = e.policy.Sanitize(cleaned.String())

	e.supplement(&out, doc, pageURL)
	return out, nil
}

// supplement appends host-specific fragments the scoring pass dropped.
func (e *Extractor) supplement(out *ExtractedText, doc *html.Node, pageURL string) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return
	}
	selectors := e.hosts.Selectors(u.Host)
	if len(selectors) == 0 {
		return
	}
	gq := goquery.NewDocumentFromNode(domtext.Clone(doc))
	for _, sel := range selectors {
		gq.Find(sel).Each(func(_ int, s *goquery.Selection) {
			for _, n := range s.Nodes {
				frag := domtext.BlockText(n)
				if frag == "" || strings.Contains(out.Text, frag) {
					continue
				}
				if out.Text != "" {
					out.Text += string(domtext.BlockBreak)
				}
				out.Text += frag
				out.SupplementCount++
			}
		})
	}
}

var titleSeparators = []string{" | ", " - ", " – ", " — ", " :: "}

func title(gq *goquery.Document) string {
	if og, ok := gq.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if og = strings.TrimSpace(og); og != "" {
			return og
		}
	}
	if t := strings.Join(strings.Fields(gq.Find("title").First().Text()), " "); t != "" {
		for _, sep := range titleSeparators {
			if i := strings.LastIndex(t, sep); i > 0 {
				return strings.TrimSpace(t[:i])
			}
		}
		return t
	}
	return strings.Join(strings.Fields(gq.Find("h1").First().Text()), " ")
}

// Outermost drops nodes contained in another node of the list, keeping
// document order.
func Outermost(nodes []*html.Node) []*html.Node {
	var out []*html.Node
	for _, n := range nodes {
		nested := false
		for _, m := range nodes {
			if m != n && domtext.Contains(m, n) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, n)
		}
	}
	return out
}
