package extractor

import (
	"math"
	"regexp"
	"strings"

	"github.com/dgallion1/reflinker/internal/domtext"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	unlikelyRe = regexp.MustCompile(`(?i)banner|breadcrumbs|combx|comment|community|cover-wrap|disqus|extra|legends|menu|related|remark|replies|rss|shoutbox|sidebar|skyscraper|social|sponsor|supplemental|ad-break|agegate|pagination|pager|popup|yom-remote`)
	maybeRe    = regexp.MustCompile(`(?i)and|article|body|column|content|main|shadow`)
	positiveRe = regexp.MustCompile(`(?i)article|body|content|entry|hentry|h-entry|main|page|pagination|post|text|blog|story`)
	negativeRe = regexp.MustCompile(`(?i)-ad-|hidden|^hid$| hid$| hid |^hid |banner|combx|comment|com-|contact|foot|footer|footnote|gdpr|masthead|media|meta|outbrain|promo|related|scroll|share|shoutbox|sidebar|skyscraper|sponsor|shopping|tags|widget`)
)

const minParagraphLen = 25

// paragraphs are the elements whose text feeds candidate scores.
var paragraphs = map[atom.Atom]bool{
	atom.P: true, atom.Pre: true, atom.Td: true, atom.Blockquote: true,
}

type scorer struct {
	scores map[*html.Node]float64
	order  []*html.Node
}

// article picks the subtree (plus qualifying siblings) most likely to be the
// main content of root. root itself is returned when nothing scores.
func article(root *html.Node) []*html.Node {
	removeUnlikely(root)

	s := &scorer{scores: map[*html.Node]float64{}}
	for _, p := range domtext.FindAll(root, isParagraph, true) {
		text := strings.TrimSpace(domtext.VisibleText(p, nil))
		if len(text) < minParagraphLen {
			continue
		}
		score := 1 + float64(strings.Count(text, ",")) + math.Min(float64(len(text))/100, 3)
		if parent := p.Parent; parent != nil && parent.Type == html.ElementNode {
			s.add(parent, score)
			if gp := parent.Parent; gp != nil && gp.Type == html.ElementNode {
				s.add(gp, score/2)
			}
		}
	}

	var top *html.Node
	best := 0.0
	for _, n := range s.order {
		final := s.scores[n] * (1 - linkDensity(n))
		s.scores[n] = final
		if top == nil || final > best {
			top, best = n, final
		}
	}
	if top == nil || !domtext.Contains(root, top) {
		return []*html.Node{root}
	}
	if top == root || top.Parent == nil || domtext.IsElement(top, atom.Body) || domtext.IsElement(top, atom.Html) {
		return []*html.Node{top}
	}
	return s.siblings(top, best)
}

func (s *scorer) add(n *html.Node, score float64) {
	if _, ok := s.scores[n]; !ok {
		s.scores[n] = baseScore(n)
		s.order = append(s.order, n)
	}
	s.scores[n] += score
}

// siblings merges top with neighbouring content that scores close to it.
func (s *scorer) siblings(top *html.Node, best float64) []*html.Node {
	threshold := math.Max(10, best*0.2)
	topClass := domtext.Attr(top, "class")
	var out []*html.Node
	for sib := top.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib == top {
			out = append(out, sib)
			continue
		}
		if sib.Type != html.ElementNode {
			continue
		}
		bonus := 0.0
		if topClass != "" && domtext.Attr(sib, "class") == topClass {
			bonus = best * 0.2
		}
		if score, ok := s.scores[sib]; ok && score+bonus >= threshold {
			out = append(out, sib)
			continue
		}
		if domtext.IsElement(sib, atom.P) {
			text := strings.TrimSpace(domtext.VisibleText(sib, nil))
			ld := linkDensity(sib)
			switch {
			case len(text) > 80 && ld < 0.25:
				out = append(out, sib)
			case len(text) > 0 && ld == 0 && strings.HasSuffix(text, "."):
				out = append(out, sib)
			}
		}
	}
	return out
}

func isParagraph(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if paragraphs[n.DataAtom] {
		return true
	}
	if n.DataAtom != atom.Div {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if domtext.IsBlock(c) {
			return false
		}
	}
	return true
}

func baseScore(n *html.Node) float64 {
	score := classWeight(n)
	switch n.DataAtom {
	case atom.Div:
		score += 5
	case atom.Pre, atom.Td, atom.Blockquote:
		score += 3
	case atom.Address, atom.Ol, atom.Ul, atom.Dl, atom.Dd, atom.Dt, atom.Li, atom.Form:
		score -= 3
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Th:
		score -= 5
	}
	return score
}

func classWeight(n *html.Node) float64 {
	var w float64
	for _, v := range []string{domtext.Attr(n, "class"), domtext.Attr(n, "id")} {
		if v == "" {
			continue
		}
		if negativeRe.MatchString(v) {
			w -= 25
		}
		if positiveRe.MatchString(v) {
			w += 25
		}
	}
	return w
}

func linkDensity(n *html.Node) float64 {
	total := len(strings.TrimSpace(domtext.VisibleText(n, nil)))
	if total == 0 {
		return 0
	}
	links := 0
	for _, a := range domtext.FindAll(n, func(c *html.Node) bool { return domtext.IsElement(c, atom.A) }, true) {
		links += len(strings.TrimSpace(domtext.VisibleText(a, nil)))
	}
	return float64(links) / float64(total)
}

// removeUnlikely drops elements whose class or id marks them as page chrome.
func removeUnlikely(root *html.Node) {
	unlikely := domtext.FindAll(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n == root {
			return false
		}
		switch n.DataAtom {
		case atom.Html, atom.Body, atom.Article, atom.Main, atom.A:
			return false
		}
		match := domtext.Attr(n, "class") + " " + domtext.Attr(n, "id")
		return unlikelyRe.MatchString(match) && !maybeRe.MatchString(match)
	}, true)
	for _, n := range unlikely {
		domtext.Remove(n)
	}
}
