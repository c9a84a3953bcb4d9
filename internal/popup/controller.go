package popup

import (
	"log/slog"
	"unicode/utf8"

	"github.com/dgallion1/reflinker/internal/domtext"
	"github.com/dgallion1/reflinker/internal/matcher"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Measurer stands in for the browser's layout pass: it reports the size the
// popup would render at.
type Measurer func(c Content, env Env) (width, height float64)

type Config struct {
	ID            string
	Env           Env
	InterfaceLang Lang
	ContentLang   Lang
	BaseURL       string
	Styles        Styles
	Measure       Measurer
}

// Effects are the side effects a host should apply after an event.
type Effects struct {
	PreventDefault bool
	// Focus is the element that should receive keyboard focus.
	Focus *html.Node
	// Hid is set when a visible popup was hidden, including when it was
	// replaced by a popup for another anchor.
	Hid bool
}

// Controller owns the single popup of one document.
type Controller struct {
	cfg      Config
	renderer Renderer
	log      *slog.Logger

	el       *html.Node
	state    State
	content  Content
	refData  map[string]matcher.RefData
	bindings map[*html.Node]string
}

func NewController(cfg Config, log *slog.Logger) *Controller {
	if cfg.ID == "" {
		cfg.ID = "sefaria-popup"
	}
	if cfg.Measure == nil {
		cfg.Measure = EstimateSize
	}
	cfg.Env = cfg.Env.withDefaults()
	return &Controller{
		cfg:      cfg,
		renderer: Renderer{ID: cfg.ID, Mode: cfg.Env.Mode, Styles: cfg.Styles},
		log:      log,
		state:    hidden(nil),
		refData:  map[string]matcher.RefData{},
		bindings: map[*html.Node]string{},
	}
}

// Mount creates the hidden popup element in doc's body.
func (c *Controller) Mount(doc *html.Node) *html.Node {
	body := domtext.FindElement(doc, atom.Body)
	if body == nil {
		body = doc
	}
	c.el = c.renderer.Ensure(body)
	return c.el
}

// Bind makes anchor a popup trigger for ref.
func (c *Controller) Bind(anchor *html.Node, ref string) {
	c.bindings[anchor] = ref
}

func (c *Controller) Bound() int { return len(c.bindings) }

func (c *Controller) SetRefData(rd map[string]matcher.RefData) {
	for k, v := range rd {
		c.refData[k] = v
	}
}

func (c *Controller) State() State       { return c.state }
func (c *Controller) Element() *html.Node { return c.el }
func (c *Controller) Content() Content    { return c.content }

// Dispatch applies e. Hover and click events on anchors that were never
// bound are ignored.
func (c *Controller) Dispatch(e Event) Effects {
	switch ev := e.(type) {
	case Hover:
		ref, ok := c.bindings[ev.Trigger]
		if !ok {
			return Effects{}
		}
		ev.Ref = ref
		e = ev
	case Click:
		ref, ok := c.bindings[ev.Trigger]
		if !ok {
			return Effects{}
		}
		ev.Ref = ref
		e = ev
	}

	prev := c.state
	next := Transition(prev, e, c.env())
	if next.Phase == Positioning {
		c.content = BuildContent(c.refData[next.Ref], c.cfg.InterfaceLang, c.cfg.ContentLang, c.cfg.BaseURL)
	}
	fx := c.apply(prev, next)

	if next.Phase == Positioning {
		w, h := c.cfg.Measure(c.content, c.cfg.Env)
		measured := c.apply(next, Transition(next, Measured{Width: w, Height: h}, c.env()))
		fx.Focus = measured.Focus
	}
	return fx
}

func (c *Controller) apply(prev, next State) Effects {
	fx := Effects{PreventDefault: next.PreventDefault}
	if prev.Phase == Visible && (next.Phase == Hidden || next.Trigger != prev.Trigger || next.Phase == Positioning) {
		fx.Hid = true
	}
	c.state = next
	c.setExpanded(prev.Trigger, false)
	if next.Phase == Visible {
		c.setExpanded(next.Trigger, true)
	}
	if c.el != nil {
		c.renderer.Render(c.el, next, c.content)
	}
	if next.Phase == Hidden {
		c.content = Content{}
		fx.Focus = next.ReturnFocus
	} else if next.Phase == Visible && next.FocusIndex >= 0 && c.el != nil {
		if f := Focusables(c.el); next.FocusIndex < len(f) {
			fx.Focus = f[next.FocusIndex]
		}
	}
	if c.log != nil && prev.Phase != next.Phase {
		c.log.Debug("popup transition", "from", prev.Phase.String(), "to", next.Phase.String(), "ref", next.Ref)
	}
	return fx
}

func (c *Controller) setExpanded(anchor *html.Node, open bool) {
	if anchor == nil || !domtext.HasAttr(anchor, "aria-expanded") {
		return
	}
	v := "false"
	if open {
		v = "true"
	}
	domtext.SetAttr(anchor, "aria-expanded", v)
}

func (c *Controller) env() Env {
	env := c.cfg.Env
	if c.el != nil {
		env.Focusables = len(Focusables(c.el))
	}
	return env
}

// Remove detaches the popup element and forgets every binding.
func (c *Controller) Remove() {
	if c.el != nil {
		domtext.Remove(c.el)
		c.el = nil
	}
	c.state = hidden(nil)
	c.bindings = map[*html.Node]string{}
}

// EstimateSize approximates rendered size from text length: a fixed-width
// column with wrapped lines.
func EstimateSize(c Content, env Env) (float64, float64) {
	const width, charsPerLine, lineHeight, chrome = 400.0, 55, 22.0, 64.0
	lines := 0
	for _, b := range c.Blocks {
		lines += utf8.RuneCountInString(b.HTML)/charsPerLine + 1
	}
	h := chrome + float64(lines)*lineHeight
	if c.ReadMore != "" {
		h += lineHeight
	}
	return width, h
}
