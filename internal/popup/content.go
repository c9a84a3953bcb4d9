package popup

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/dgallion1/reflinker/internal/matcher"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Lang string

const (
	English   Lang = "english"
	Hebrew    Lang = "hebrew"
	Bilingual Lang = "bilingual"
)

// ParseLang accepts "" (english), english, hebrew and, when allowBilingual
// is set, bilingual.
func ParseLang(s string, allowBilingual bool) (Lang, error) {
	switch Lang(s) {
	case "":
		return English, nil
	case English, Hebrew:
		return Lang(s), nil
	case Bilingual:
		if allowBilingual {
			return Bilingual, nil
		}
	}
	return "", fmt.Errorf("unknown language %q", s)
}

// Block is one language's text for a reference, as sanitized HTML.
type Block struct {
	Lang string
	Dir  string
	HTML string
}

type Content struct {
	Title    string
	TitleDir string
	Category string
	URL      string
	Blocks   []Block
	// ReadMore is the label of the link to the full text, set when the
	// reference text was truncated.
	ReadMore string
}

const (
	readMoreEnglish = "Read More ›"
	readMoreHebrew  = "קרא עוד ›"
)

// hebrewMarks are cantillation marks and vowel points. Maqaf (U+05BE) and
// sof pasuq (U+05C3) are punctuation and stay.
var hebrewMarks = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0591, Hi: 0x05BD, Stride: 1},
		{Lo: 0x05BF, Hi: 0x05BF, Stride: 1},
		{Lo: 0x05C1, Hi: 0x05C2, Stride: 1},
		{Lo: 0x05C4, Hi: 0x05C5, Stride: 1},
		{Lo: 0x05C7, Hi: 0x05C7, Stride: 1},
	},
}

// StripMarks removes Hebrew cantillation and vowel marks from s.
func StripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(hebrewMarks)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

var textPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "em", "strong", "br", "small", "big", "u")
	p.SkipElementsContent("sup")
	return p
}()

// BuildContent chooses the title by interface language and the text blocks
// by content language, falling back to the other language when the chosen
// one has no text.
func BuildContent(rd matcher.RefData, interfaceLang, contentLang Lang, baseURL string) Content {
	c := Content{
		Title:    rd.Ref,
		TitleDir: "ltr",
		Category: rd.PrimaryCategory,
		URL:      resolve(baseURL, rd.URL),
	}
	if interfaceLang == Hebrew && rd.HeRef != "" {
		c.Title, c.TitleDir = rd.HeRef, "rtl"
	}

	en := block("en", "ltr", rd.En)
	he := block("he", "rtl", rd.He)
	switch contentLang {
	case Hebrew:
		c.Blocks = firstOf(he, en)
	case Bilingual:
		for _, b := range []*Block{en, he} {
			if b != nil {
				c.Blocks = append(c.Blocks, *b)
			}
		}
	default:
		c.Blocks = firstOf(en, he)
	}

	if rd.IsTruncated {
		c.ReadMore = readMoreEnglish
		if interfaceLang == Hebrew {
			c.ReadMore = readMoreHebrew
		}
	}
	return c
}

func block(lang, dir string, segs matcher.Segments) *Block {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if lang == "he" {
			s = StripMarks(s)
		}
		if s = strings.TrimSpace(textPolicy.Sanitize(s)); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return &Block{Lang: lang, Dir: dir, HTML: strings.Join(parts, " ")}
}

func firstOf(blocks ...*Block) []Block {
	for _, b := range blocks {
		if b != nil {
			return []Block{*b}
		}
	}
	return nil
}

func resolve(base, ref string) string {
	if base == "" || ref == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(u).String()
}
