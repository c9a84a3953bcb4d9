package linker

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	"github.com/dgallion1/reflinker/internal/popup"
)

// Options are the per-page embed options.
type Options struct {
	Mode                string            `json:"mode,omitempty"`
	Selector            string            `json:"selector,omitempty"`
	ExcludeFromLinking  string            `json:"excludeFromLinking,omitempty"`
	ExcludeFromTracking string            `json:"excludeFromTracking,omitempty"`
	PopupStyles         map[string]string `json:"popupStyles,omitempty"`
	InterfaceLang       string            `json:"interfaceLang,omitempty"`
	ContentLang         string            `json:"contentLang,omitempty"`
	Debug               bool              `json:"debug,omitempty"`
}

func (o Options) WithDefaults() Options {
	if o.Mode == "" {
		o.Mode = string(popup.ModeClick)
	}
	if o.Selector == "" {
		o.Selector = "body"
	}
	if o.InterfaceLang == "" {
		o.InterfaceLang = string(popup.English)
	}
	if o.ContentLang == "" {
		o.ContentLang = string(popup.Bilingual)
	}
	return o
}

// Validate rejects unknown enum values and selectors that do not parse.
// ExcludeFromTracking is checked for syntax only; nothing tracks.
func (o Options) Validate() error {
	if _, err := popup.ParseMode(o.Mode); err != nil {
		return err
	}
	if _, err := popup.ParseLang(o.InterfaceLang, false); err != nil {
		return fmt.Errorf("interfaceLang: %w", err)
	}
	if _, err := popup.ParseLang(o.ContentLang, true); err != nil {
		return fmt.Errorf("contentLang: %w", err)
	}
	for name, sel := range map[string]string{
		"selector":            o.Selector,
		"excludeFromLinking":  o.ExcludeFromLinking,
		"excludeFromTracking": o.ExcludeFromTracking,
	} {
		if sel == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("%s %q: %w", name, sel, err)
		}
	}
	if err := popup.Styles(o.PopupStyles).Validate(); err != nil {
		return err
	}
	return nil
}
