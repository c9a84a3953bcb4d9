package locator

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dgallion1/reflinker/internal/domtext"
	"golang.org/x/net/html"
)

var (
	ErrNotFound     = errors.New("text not found in document")
	ErrAmbiguous    = errors.New("text still ambiguous after widening")
	ErrSpanMismatch = errors.New("located span does not match citation text")
	ErrLocked       = errors.New("located span is inside a locked element")
)

// LocateError describes a citation the locator gave up on.
type LocateError struct {
	Reason       error
	WordsWidened int
	Occurrences  int
	Search       string
}

func (e *LocateError) Error() string {
	return fmt.Sprintf("locate %q: %v (words widened %d, occurrences %d)", e.Search, e.Reason, e.WordsWidened, e.Occurrences)
}

func (e *LocateError) Unwrap() error { return e.Reason }

type Config struct {
	MaxWordsAround  int
	MaxSearchLength int
}

func DefaultConfig() Config {
	return Config{MaxWordsAround: 10, MaxSearchLength: 30}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxWordsAround <= 0 {
		c.MaxWordsAround = d.MaxWordsAround
	}
	if c.MaxSearchLength <= 0 {
		c.MaxSearchLength = d.MaxSearchLength
	}
	return c
}

// Match is a citation in extracted-text coordinates. Start and End are byte
// offsets and extracted[Start:End] must equal Text.
type Match struct {
	Text       string
	Start, End int
}

// Located is a citation mapped into index coordinates.
type Located struct {
	Offset       int
	WordsWidened int
	Occurrences  int
	Search       string
}

// Locate finds the index offset of m. The citation text is widened word by
// word with its surroundings in the extracted text until exactly one
// occurrence remains, the word limit is hit, or the search string reaches
// MaxSearchLength. Several occurrences at the length limit are resolved by
// ordinal position when the extracted text and the index agree on the count.
func Locate(idx *Index, m Match, extracted string, cfg Config) (Located, error) {
	cfg = cfg.withDefaults()
	if m.Text == "" || m.Start < 0 || m.End > len(extracted) || m.Start > m.End || extracted[m.Start:m.End] != m.Text {
		return Located{}, &LocateError{Reason: ErrSpanMismatch, Search: m.Text}
	}

	var (
		search, prev string
		lead         int
		occs         []int
		words        int
		atCap        bool
	)
	for words = 0; words <= cfg.MaxWordsAround; words++ {
		from := wordsBefore(extracted, m.Start, words)
		to := wordsAfter(extracted, m.End, words)
		search = extracted[from:to]
		if words > 0 && search == prev {
			words--
			break
		}
		prev = search
		lead = m.Start - from
		occs = idx.Occurrences(search)
		if len(occs) == 1 {
			return Located{Offset: occs[0] + lead, WordsWidened: words, Occurrences: 1, Search: search}, nil
		}
		if utf8.RuneCountInString(search) >= cfg.MaxSearchLength {
			atCap = true
			break
		}
	}
	words = min(words, cfg.MaxWordsAround)

	fail := func(reason error) (Located, error) {
		return Located{}, &LocateError{Reason: reason, WordsWidened: words, Occurrences: len(occs), Search: search}
	}
	if len(occs) == 0 {
		return fail(ErrNotFound)
	}
	if !atCap {
		return fail(ErrAmbiguous)
	}
	ext := occurrences(extracted, search)
	if len(ext) != len(occs) {
		return fail(ErrAmbiguous)
	}
	for i, off := range ext {
		if off == m.Start-lead {
			return Located{Offset: occs[i] + lead, WordsWidened: words, Occurrences: len(occs), Search: search}, nil
		}
	}
	return fail(ErrAmbiguous)
}

// wordsBefore moves pos back over k whole words, never crossing a block
// boundary.
func wordsBefore(s string, pos, k int) int {
	for range k {
		p := pos
		for p > 0 && s[p-1] != domtext.BlockBreak && domtext.IsSpace(s[p-1]) {
			p--
		}
		if p == 0 || s[p-1] == domtext.BlockBreak {
			break
		}
		for p > 0 && !domtext.IsSpace(s[p-1]) {
			p--
		}
		pos = p
	}
	return pos
}

func wordsAfter(s string, pos, k int) int {
	for range k {
		p := pos
		for p < len(s) && s[p] != domtext.BlockBreak && domtext.IsSpace(s[p]) {
			p++
		}
		if p == len(s) || s[p] == domtext.BlockBreak {
			break
		}
		for p < len(s) && !domtext.IsSpace(s[p]) {
			p++
		}
		pos = p
	}
	return pos
}

// Link locates m under roots and replaces exactly that occurrence of its
// text. Every other occurrence of the same text is left alone.
func Link(roots []*html.Node, m Match, extracted string, cfg Config, opts IndexOptions, replace Replacer) (*Result, Located, error) {
	idx := BuildIndex(opts, roots...)
	loc, err := Locate(idx, m, extracted, cfg)
	if err != nil {
		return nil, loc, err
	}
	var root *html.Node
	if len(roots) > 0 {
		root = roots[0]
	}
	res, err := FindAndReplace(root, m.Text, replace, Options{
		Index:  idx,
		Accept: func(start int) bool { return start == loc.Offset },
	})
	if err != nil {
		return nil, loc, err
	}
	if len(res.Spans) == 0 {
		reason := ErrNotFound
		if len(res.Rejected) > 0 {
			reason = res.Rejected[0].Err
		}
		return nil, loc, &LocateError{Reason: reason, WordsWidened: loc.WordsWidened, Occurrences: loc.Occurrences, Search: loc.Search}
	}
	return res, loc, nil
}
