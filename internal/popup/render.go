package popup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dgallion1/reflinker/internal/domtext"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	ClassPopup  = "sefaria-popup"
	ClassHeader = "sefaria-popup-header"
	ClassTitle  = "sefaria-popup-title"
	ClassText   = "sefaria-popup-text"
	ClassFooter = "sefaria-popup-footer"
	ClassClose  = "sefaria-popup-close"
)

// Renderer builds popup markup. It never reads the document outside the
// popup element it owns.
type Renderer struct {
	ID     string
	Mode   Mode
	Styles Styles
}

// Ensure returns the popup element under body, creating a hidden one when
// missing.
func (r Renderer) Ensure(body *html.Node) *html.Node {
	if el := domtext.FindByID(body, r.ID); el != nil {
		return el
	}
	el := domtext.Element(atom.Div, "id", r.ID, "class", ClassPopup, "role", "dialog", "hidden", "")
	if r.Mode == ModeClick {
		domtext.SetAttr(el, "aria-modal", "true")
	}
	body.AppendChild(el)
	return el
}

// Render reconciles el with st and c.
func (r Renderer) Render(el *html.Node, st State, c Content) {
	for el.FirstChild != nil {
		el.RemoveChild(el.FirstChild)
	}
	if st.Phase == Hidden {
		domtext.SetAttr(el, "hidden", "")
		domtext.RemoveAttr(el, "style")
		domtext.RemoveAttr(el, "aria-label")
		return
	}
	domtext.RemoveAttr(el, "hidden")
	domtext.SetAttr(el, "aria-label", c.Title)
	domtext.SetAttr(el, "data-phase", st.Phase.String())

	style := r.Styles.Inline()
	if st.Phase == Visible {
		pos := fmt.Sprintf("position: fixed; left: %.0fpx; top: %.0fpx; width: %.0fpx; max-height: %.0fpx; overflow-y: auto",
			st.Position.Left, st.Position.Top, st.Position.Width, st.Position.Height)
		style = joinStyle(style, pos)
	} else {
		style = joinStyle(style, "visibility: hidden")
	}
	domtext.SetAttr(el, "style", style)

	header := domtext.Element(atom.Div, "class", ClassHeader)
	title := domtext.Element(atom.A, "class", ClassTitle, "href", c.URL, "dir", c.TitleDir, "target", "_blank", "rel", "noopener")
	title.AppendChild(domtext.Text(c.Title))
	header.AppendChild(title)
	if r.Mode == ModeClick {
		closeBtn := domtext.Element(atom.Button, "type", "button", "class", ClassClose, "aria-label", "Close")
		closeBtn.AppendChild(domtext.Text("×"))
		header.AppendChild(closeBtn)
	}
	el.AppendChild(header)

	for _, b := range c.Blocks {
		div := domtext.Element(atom.Div, "class", ClassText, "lang", b.Lang, "dir", b.Dir)
		nodes, err := html.ParseFragment(strings.NewReader(b.HTML), div)
		if err != nil {
			div.AppendChild(domtext.Text(b.HTML))
		}
		for _, n := range nodes {
			div.AppendChild(n)
		}
		el.AppendChild(div)
	}

	if c.ReadMore != "" {
		footer := domtext.Element(atom.Div, "class", ClassFooter)
		more := domtext.Element(atom.A, "href", c.URL, "target", "_blank", "rel", "noopener")
		more.AppendChild(domtext.Text(c.ReadMore))
		footer.AppendChild(more)
		el.AppendChild(footer)
	}
}

// Focusables lists the elements inside el that take keyboard focus, in tab
// order.
func Focusables(el *html.Node) []*html.Node {
	return domtext.FindAll(el, func(n *html.Node) bool {
		return (domtext.IsElement(n, atom.A) && domtext.HasAttr(n, "href")) || domtext.IsElement(n, atom.Button)
	}, true)
}

// RenderContent returns standalone popup markup for c, as served to hosts
// that draw the popup themselves.
func RenderContent(c Content, mode Mode) (string, error) {
	r := Renderer{ID: "sefaria-popup", Mode: mode}
	el := domtext.Element(atom.Div, "id", r.ID, "class", ClassPopup, "role", "dialog")
	r.Render(el, State{Phase: Positioning}, c)
	domtext.RemoveAttr(el, "style")
	domtext.RemoveAttr(el, "data-phase")
	var buf bytes.Buffer
	if err := html.Render(&buf, el); err != nil {
		return "", fmt.Errorf("render popup: %w", err)
	}
	return buf.String(), nil
}

func joinStyle(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
