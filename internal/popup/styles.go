package popup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Styles is the popupStyles option: CSS properties applied inline to the
// popup element.
type Styles map[string]string

// Validate parses every declaration with the CSS inline grammar.
func (s Styles) Validate() error {
	for prop, val := range s {
		if _, err := declaration(prop, val); err != nil {
			return err
		}
	}
	return nil
}

// Inline renders s as a style attribute value, properties sorted.
func (s Styles) Inline() string {
	props := make([]string, 0, len(s))
	for p := range s {
		props = append(props, p)
	}
	slices.Sort(props)
	var decls []string
	for _, p := range props {
		if d, err := declaration(p, s[p]); err == nil {
			decls = append(decls, d)
		}
	}
	return strings.Join(decls, "; ")
}

// declaration normalises one property/value pair, rejecting anything that is
// not a single well-formed declaration.
func declaration(prop, val string) (string, error) {
	prop = strings.ToLower(strings.TrimSpace(prop))
	if prop == "" || strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("popup style %q: empty property or value", prop)
	}
	p := css.NewParser(parse.NewInput(bytes.NewReader([]byte(prop+": "+val))), true)

	var out string
	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := p.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("popup style %q: %w", prop, err)
			}
			if out == "" {
				return "", fmt.Errorf("popup style %q: no declaration", prop)
			}
			return out, nil
		case css.DeclarationGrammar:
			if out != "" {
				return "", fmt.Errorf("popup style %q: more than one declaration", prop)
			}
			if string(data) != prop {
				return "", fmt.Errorf("popup style %q: parsed as %q", prop, data)
			}
			if len(p.Values()) == 0 {
				return "", fmt.Errorf("popup style %q: no value", prop)
			}
			out = prop + ": " + strings.TrimSpace(val)
		default:
			return "", fmt.Errorf("popup style %q: unexpected %s", prop, gt)
		}
	}
}
