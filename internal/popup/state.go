// Package popup is the reference preview shown next to an annotated
// citation. The behaviour is a pure state machine (Transition); Render
// reconciles a popup element in the document with a State.
package popup

import (
	"fmt"

	"golang.org/x/net/html"
)

type Mode string

const (
	ModeClick Mode = "popup-click"
	ModeHover Mode = "popup-hover"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeClick, nil
	case ModeClick, ModeHover:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown popup mode %q", s)
}

type Phase int

const (
	Hidden Phase = iota
	Positioning
	Visible
)

func (p Phase) String() string {
	switch p {
	case Hidden:
		return "hidden"
	case Positioning:
		return "positioning"
	case Visible:
		return "visible"
	}
	return "unknown"
}

// Rect is a bounding box in viewport pixels.
type Rect struct {
	Left, Top, Width, Height float64
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }

type Viewport struct {
	Width, Height float64
}

// Env is everything outside State that a transition depends on.
type Env struct {
	Mode     Mode
	Viewport Viewport
	// Margin is the minimum distance kept from the viewport edges.
	Margin float64
	// Gap separates the popup from its anchor.
	Gap float64
	// Focusables is the number of focusable elements inside the popup.
	Focusables int
}

func (e Env) withDefaults() Env {
	if e.Mode == "" {
		e.Mode = ModeClick
	}
	if e.Viewport.Width <= 0 {
		e.Viewport.Width = 1280
	}
	if e.Viewport.Height <= 0 {
		e.Viewport.Height = 800
	}
	if e.Margin <= 0 {
		e.Margin = 10
	}
	if e.Gap <= 0 {
		e.Gap = 5
	}
	return e
}

type State struct {
	Phase    Phase
	Trigger  *html.Node
	Ref      string
	Anchor   Rect
	Position Rect
	// FocusIndex is the focused element inside the popup, -1 for none.
	FocusIndex int
	// ReturnFocus is set when dismissal should move focus back to a trigger.
	ReturnFocus *html.Node
	// PreventDefault asks the host to cancel the triggering navigation.
	PreventDefault bool
}

func hidden(returnFocus *html.Node) State {
	return State{Phase: Hidden, FocusIndex: -1, ReturnFocus: returnFocus}
}

type Event interface{ event() }

type Key int

const (
	KeyTab Key = iota
	KeyShiftTab
	KeyEscape
)

type (
	Hover struct {
		Trigger *html.Node
		Ref     string
		Rect    Rect
	}
	// Unhover is the pointer leaving Trigger. IntoPopup is set when it moved
	// onto the popup itself.
	Unhover struct {
		Trigger   *html.Node
		IntoPopup bool
	}
	Click struct {
		Trigger *html.Node
		Ref     string
		Rect    Rect
	}
	ClickOutside struct{}
	KeyPress     struct{ Key Key }
	// Measured reports the rendered size of the popup content.
	Measured struct{ Width, Height float64 }
)

func (Hover) event()        {}
func (Unhover) event()      {}
func (Click) event()        {}
func (ClickOutside) event() {}
func (KeyPress) event()     {}
func (Measured) event()     {}

// Transition returns the state after e. Events that do not apply to the
// current mode or phase leave s unchanged.
func Transition(s State, e Event, env Env) State {
	env = env.withDefaults()
	switch e := e.(type) {
	case Hover:
		if env.Mode != ModeHover || e.Trigger == nil {
			return s
		}
		return State{Phase: Positioning, Trigger: e.Trigger, Ref: e.Ref, Anchor: e.Rect, FocusIndex: -1}

	case Click:
		if env.Mode != ModeClick || e.Trigger == nil {
			return s
		}
		return State{Phase: Positioning, Trigger: e.Trigger, Ref: e.Ref, Anchor: e.Rect, FocusIndex: -1, PreventDefault: true}

	case Measured:
		if s.Phase != Positioning {
			return s
		}
		s.Phase = Visible
		s.Position = Place(s.Anchor, e.Width, e.Height, env)
		s.PreventDefault = false
		if env.Mode == ModeClick && env.Focusables > 0 {
			s.FocusIndex = 0
		}
		return s

	case Unhover:
		if env.Mode != ModeHover || s.Phase == Hidden || e.IntoPopup {
			return s
		}
		if e.Trigger != nil && e.Trigger != s.Trigger {
			return s
		}
		return hidden(nil)

	case KeyPress:
		if s.Phase != Visible || env.Mode != ModeClick {
			return s
		}
		switch e.Key {
		case KeyEscape:
			return hidden(s.Trigger)
		case KeyTab, KeyShiftTab:
			n := env.Focusables
			if n == 0 {
				return s
			}
			step := 1
			if e.Key == KeyShiftTab {
				step = -1
			}
			s.FocusIndex = ((s.FocusIndex+step)%n + n) % n
			return s
		}
		return s

	case ClickOutside:
		if s.Phase == Hidden {
			return s
		}
		if env.Mode == ModeClick {
			return hidden(s.Trigger)
		}
		return hidden(nil)
	}
	return s
}

// Place positions a w×h popup beside anchor: to its right when the anchor
// sits in the left half of the viewport, otherwise to its left. The result
// is clamped to the viewport and shrunk to fit.
func Place(anchor Rect, w, h float64, env Env) Rect {
	env = env.withDefaults()
	vw, vh, m := env.Viewport.Width, env.Viewport.Height, env.Margin

	w = max(min(w, vw-2*m), 0)
	h = max(min(h, vh-2*m), 0)

	var left float64
	if anchor.Left+anchor.Width/2 < vw/2 {
		left = anchor.Right() + env.Gap
	} else {
		left = anchor.Left - env.Gap - w
	}
	left = clamp(left, m, vw-m-w)
	top := clamp(anchor.Top, m, vh-m-h)
	return Rect{Left: left, Top: top, Width: w, Height: h}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
