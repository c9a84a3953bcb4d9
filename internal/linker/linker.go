// Package linker runs the whole citation pipeline over one page: extract,
// match, locate, annotate, then mount the popup.
package linker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/dgallion1/reflinker/internal/annotator"
	"github.com/dgallion1/reflinker/internal/domtext"
	"github.com/dgallion1/reflinker/internal/extractor"
	"github.com/dgallion1/reflinker/internal/hostconfig"
	"github.com/dgallion1/reflinker/internal/locator"
	"github.com/dgallion1/reflinker/internal/matcher"
	"github.com/dgallion1/reflinker/internal/popup"
	"golang.org/x/net/html"
)

// Matcher is the external reference matcher.
type Matcher interface {
	FindRefs(ctx context.Context, req matcher.FindRefsRequest, debug bool) (*matcher.FindRefsResponse, error)
	BulkText(ctx context.Context, refs []string) (map[string]matcher.RefData, error)
	Report(ctx context.Context, req matcher.ReportRequest) error
}

// RefCache is an optional store of reference display data.
type RefCache interface {
	GetMany(ctx context.Context, refs []string) (map[string]matcher.RefData, error)
	PutMany(ctx context.Context, entries map[string]matcher.RefData) error
}

type Config struct {
	Locator  locator.Config
	Viewport popup.Viewport
	// BaseURL resolves relative reference URLs in anchors and popups.
	BaseURL string
	PopupID string
}

// Skip reasons recorded in Result.Skipped.
const (
	ReasonNotFound       = "not_found"
	ReasonAmbiguousText  = "ambiguous_location"
	ReasonSpanMismatch   = "span_mismatch"
	ReasonLocked         = "locked"
	ReasonOffsetMismatch = "offset_mismatch"
	ReasonError          = "error"
)

// Skip is a citation that was left as plain text.
type Skip struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	Reason       string `json:"reason"`
	WordsWidened int    `json:"wordsWidened,omitempty"`
	Occurrences  int    `json:"occurrences,omitempty"`
}

type Result struct {
	Title     string          `json:"title"`
	Empty     bool            `json:"empty"`
	Matches   int             `json:"matches"`
	Annotated int             `json:"annotated"`
	Skipped   []Skip          `json:"skipped,omitempty"`
	DebugData json.RawMessage `json:"debugData,omitempty"`
}

// Page is one parsed document being linked. The linker mutates Doc in place.
type Page struct {
	Doc *html.Node
	URL string
	// Title overrides the extracted title when set.
	Title string
	// Viewport overrides Config.Viewport for popup placement.
	Viewport popup.Viewport

	popup   *popup.Controller
	matches []matcher.CitationMatch
	debug   json.RawMessage
}

// Popup returns the controller mounted by the last Link, or nil.
func (p *Page) Popup() *popup.Controller { return p.popup }

// Linker is safe for concurrent use on distinct pages.
type Linker struct {
	matcher   Matcher
	cache     RefCache
	extractor *extractor.Extractor
	cfg       Config
	log       *slog.Logger
}

func New(m Matcher, cache RefCache, hosts *hostconfig.Registry, cfg Config, log *slog.Logger) *Linker {
	if cfg.PopupID == "" {
		cfg.PopupID = "sefaria-popup"
	}
	return &Linker{
		matcher:   m,
		cache:     cache,
		extractor: extractor.New(hosts),
		cfg:       cfg,
		log:       log,
	}
}

// Link annotates every citation on page that can be located unambiguously.
// A page without readable text returns Result.Empty without calling the
// matcher. Matcher and bulk-text failures abort the run before the document
// is touched; per-citation failures are recorded in Result.Skipped.
func (l *Linker) Link(ctx context.Context, page *Page, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	log := l.log.With("url", page.URL)

	if opts.Debug {
		if n := l.Teardown(page); n > 0 {
			log.Debug("removed previous annotations", "count", n)
		}
	}

	ext, err := l.extractor.Extract(page.Doc, page.URL, extractor.Options{Selector: opts.Selector})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	title := page.Title
	if title == "" {
		title = ext.Title
	}
	res := &Result{Title: title}
	if ext.Empty() {
		log.Debug("no readable content, skipping")
		res.Empty = true
		return res, nil
	}

	found, err := l.matcher.FindRefs(ctx, matcher.FindRefsRequest{Text: ext.Text, URL: page.URL, Title: title}, opts.Debug)
	if err != nil {
		log.Error("matcher request failed", "error", err)
		return nil, fmt.Errorf("find refs: %w", err)
	}
	res.Matches = len(found.Results)
	res.DebugData = found.DebugData
	page.matches = found.Results
	page.debug = found.DebugData

	ann := annotator.New(annotator.Config{
		PopupID:   l.cfg.PopupID,
		ClickMode: opts.Mode == string(popup.ModeClick),
		Debug:     opts.Debug,
		BaseURL:   l.cfg.BaseURL,
	})

	var planned []int
	for i, m := range found.Results {
		if d := ann.Plan(m); d != annotator.Link {
			res.Skipped = append(res.Skipped, Skip{Index: i, Text: m.Text, Reason: d.String()})
			log.Debug("citation not linked", "index", i, "text", m.Text, "reason", d.String())
			continue
		}
		planned = append(planned, i)
	}

	refData, err := l.completeRefData(ctx, found, planned)
	if err != nil {
		log.Error("bulk text request failed", "error", err)
		return nil, fmt.Errorf("bulk text: %w", err)
	}

	roots := extractor.Outermost(goquery.NewDocumentFromNode(page.Doc).Find(opts.Selector).Nodes)
	idxOpts := locator.IndexOptions{
		// Candidate markers from earlier debug wrappers are not page text.
		Skip: func(n *html.Node) bool {
			return domtext.Attr(n, "id") == l.cfg.PopupID || annotator.IsDecoration(n)
		},
	}
	if opts.ExcludeFromLinking != "" {
		if sel, err := cascadia.ParseGroup(opts.ExcludeFromLinking); err == nil {
			idxOpts.Lock = sel.Match
		}
	}

	vp := l.cfg.Viewport
	if page.Viewport.Width > 0 && page.Viewport.Height > 0 {
		vp = page.Viewport
	}
	ctrl := popup.NewController(popup.Config{
		ID:            l.cfg.PopupID,
		Env:           popup.Env{Mode: popup.Mode(opts.Mode), Viewport: vp},
		InterfaceLang: popup.Lang(opts.InterfaceLang),
		ContentLang:   popup.Lang(opts.ContentLang),
		BaseURL:       l.cfg.BaseURL,
		Styles:        popup.Styles(opts.PopupStyles),
	}, log)

	// One citation at a time: each splice is committed before the next
	// index is built.
	for _, i := range planned {
		m := found.Results[i]
		skip, ok := l.linkOne(i, m, ext.Text, roots, idxOpts, ann, ctrl, refData)
		if !ok {
			res.Skipped = append(res.Skipped, skip)
			log.Warn("citation skipped", "index", i, "text", m.Text, "reason", skip.Reason,
				"words_widened", skip.WordsWidened, "occurrences", skip.Occurrences)
			continue
		}
		res.Annotated++
	}
	slices.SortFunc(res.Skipped, func(a, b Skip) int { return a.Index - b.Index })

	ctrl.SetRefData(refData)
	ctrl.Mount(page.Doc)
	page.popup = ctrl

	log.Info("page linked", "matches", res.Matches, "annotated", res.Annotated, "skipped", len(res.Skipped))
	return res, nil
}

func (l *Linker) linkOne(i int, m matcher.CitationMatch, text string, roots []*html.Node, idxOpts locator.IndexOptions,
	ann *annotator.Annotator, ctrl *popup.Controller, refData map[string]matcher.RefData) (Skip, bool) {
	skip := Skip{Index: i, Text: m.Text}

	start, end, ok := extractedSpan(text, m)
	if !ok {
		skip.Reason = ReasonOffsetMismatch
		return skip, false
	}
	res, _, err := locator.Link(roots, locator.Match{Text: m.Text, Start: start, End: end}, text, l.cfg.Locator, idxOpts,
		func(sp locator.Span) (*html.Node, error) {
			return ann.Build(i, m, sp.Text, refData), nil
		})
	if err != nil {
		var le *locator.LocateError
		if errors.As(err, &le) {
			skip.WordsWidened = le.WordsWidened
			skip.Occurrences = le.Occurrences
		}
		skip.Reason = reason(err)
		return skip, false
	}
	for _, n := range res.Nodes {
		annotator.BindAll(n, ctrl)
	}
	return skip, true
}

func reason(err error) string {
	switch {
	case errors.Is(err, locator.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, locator.ErrAmbiguous):
		return ReasonAmbiguousText
	case errors.Is(err, locator.ErrSpanMismatch):
		return ReasonSpanMismatch
	case errors.Is(err, locator.ErrLocked):
		return ReasonLocked
	}
	return ReasonError
}

// extractedSpan converts the matcher's character offsets to byte offsets in
// text. When they do not land on m.Text, the occurrence of m.Text nearest to
// the reported start is used instead.
func extractedSpan(text string, m matcher.CitationMatch) (int, int, bool) {
	if m.Text == "" {
		return 0, 0, false
	}
	start, ok := byteOffset(text, m.StartChar)
	if ok {
		if end := start + len(m.Text); end <= len(text) && text[start:end] == m.Text {
			return start, end, true
		}
	} else {
		start = len(text)
	}
	best, bestDist := -1, 0
	for off := 0; ; {
		j := indexFrom(text, m.Text, off)
		if j < 0 {
			break
		}
		if d := abs(j - start); best < 0 || d < bestDist {
			best, bestDist = j, d
		}
		off = j + 1
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, best + len(m.Text), true
}

func byteOffset(s string, runes int) (int, bool) {
	if runes < 0 {
		return 0, false
	}
	i := 0
	for n := 0; n < runes; n++ {
		if i >= len(s) {
			return 0, false
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i, true
}

func indexFrom(s, sub string, from int) int {
	if from > len(s) {
		return -1
	}
	for i := from; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// completeRefData adds display text for every planned reference that the
// find-refs reply carried without any, from the cache first and then from
// the matcher's bulk endpoint.
func (l *Linker) completeRefData(ctx context.Context, found *matcher.FindRefsResponse, planned []int) (map[string]matcher.RefData, error) {
	refData := make(map[string]matcher.RefData, len(found.RefData))
	for k, v := range found.RefData {
		refData[k] = v
	}
	var missing []string
	seen := map[string]bool{}
	for _, i := range planned {
		for _, ref := range found.Results[i].Refs {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			if rd, ok := refData[ref]; !ok || !rd.HasText() {
				missing = append(missing, ref)
			}
		}
	}
	if len(missing) == 0 {
		return refData, nil
	}
	fetched, err := l.RefData(ctx, missing)
	if err != nil {
		return nil, err
	}
	for ref, rd := range fetched {
		if prev, ok := refData[ref]; ok && rd.URL == "" {
			rd.URL = prev.URL
		}
		refData[ref] = rd
	}
	return refData, nil
}

// RefData returns display data for refs, cached entries first.
func (l *Linker) RefData(ctx context.Context, refs []string) (map[string]matcher.RefData, error) {
	out := map[string]matcher.RefData{}
	missing := refs
	if l.cache != nil {
		cached, err := l.cache.GetMany(ctx, refs)
		if err != nil {
			l.log.Warn("ref cache read failed", "error", err)
		} else {
			missing = missing[:0:0]
			for _, r := range refs {
				if rd, ok := cached[r]; ok {
					out[r] = rd
				} else {
					missing = append(missing, r)
				}
			}
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := l.matcher.BulkText(ctx, missing)
	if err != nil {
		return nil, err
	}
	for r, rd := range fetched {
		out[r] = rd
	}
	if l.cache != nil && len(fetched) > 0 {
		if err := l.cache.PutMany(ctx, fetched); err != nil {
			l.log.Warn("ref cache write failed", "error", err)
		}
	}
	return out, nil
}

// Teardown removes every annotation and the popup from page and returns the
// number of annotations removed.
func (l *Linker) Teardown(page *Page) int {
	n := annotator.RemoveAll(page.Doc)
	if page.popup != nil {
		page.popup.Remove()
		page.popup = nil
	} else if el := domtext.FindByID(page.Doc, l.cfg.PopupID); el != nil {
		domtext.Remove(el)
	}
	return n
}

// Report sends the citation with result index to the matcher's review
// queue, with the page text around its annotation. Only pages linked in
// debug mode carry the debug data a report needs.
func (l *Linker) Report(ctx context.Context, page *Page, index int) error {
	if index < 0 || index >= len(page.matches) {
		return fmt.Errorf("no citation with index %d", index)
	}
	if len(page.debug) == 0 {
		return errors.New("report: page was not linked in debug mode")
	}
	prev, next, _ := annotator.ContextAround(page.Doc, index, 100)
	return l.matcher.Report(ctx, matcher.ReportRequest{
		PrevContext: prev,
		NextContext: next,
		Citation:    page.matches[index],
		DebugData:   page.debug,
	})
}
