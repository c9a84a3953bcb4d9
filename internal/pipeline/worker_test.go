package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/reflinker/internal/config"
	"github.com/dgallion1/reflinker/internal/domtext"
	"github.com/dgallion1/reflinker/internal/fetch"
	"github.com/dgallion1/reflinker/internal/linker"
	"github.com/dgallion1/reflinker/internal/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type stubFetcher struct {
	errs  []error
	page  string
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) (*html.Node, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return html.Parse(strings.NewReader(f.page))
}

// stubLinker marks every paragraph so the rendered output shows it ran.
type stubLinker struct {
	err   error
	empty bool
	seen  *linker.Page
}

func (l *stubLinker) Link(_ context.Context, page *linker.Page, _ linker.Options) (*linker.Result, error) {
	l.seen = page
	if l.err != nil {
		return nil, l.err
	}
	if l.empty {
		return &linker.Result{Empty: true}, nil
	}
	ps := domtext.FindAll(page.Doc, func(n *html.Node) bool { return domtext.IsElement(n, atom.P) }, true)
	for _, p := range ps {
		domtext.AddClass(p, "linked")
	}
	return &linker.Result{Title: "Stub", Matches: len(ps), Annotated: len(ps)}, nil
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestWorker(f Fetcher, lk Linker) *Worker {
	w := NewWorker(f, lk, quietLog(), parser.Options{})
	w.backoff = func(int) time.Duration { return time.Millisecond }
	return w
}

func TestWorker_FetchesAndLinks(t *testing.T) {
	f := &stubFetcher{page: `<p>Genesis 1:1</p>`}
	lk := &stubLinker{}
	job := NewJob("https://example.com/a", "", "", linker.Options{})

	newTestWorker(f, lk).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%v)", snap.Status, snap.Progress.Errors)
	}
	if !strings.Contains(snap.HTML, `<p class="linked">`) {
		t.Errorf("expected linked html, got %q", snap.HTML)
	}
	if snap.Title != "Stub" || snap.Progress.Annotated != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.ContentHash == "" {
		t.Error("expected content hash")
	}
	if lk.seen.URL != "https://example.com/a" {
		t.Errorf("linker saw url %q", lk.seen.URL)
	}
}

func TestWorker_RetriesServerErrors(t *testing.T) {
	f := &stubFetcher{
		page: `<p>x</p>`,
		errs: []error{&fetch.StatusError{URL: "u", StatusCode: 503}, &fetch.StatusError{URL: "u", StatusCode: 502}},
	}
	job := NewJob("https://example.com/b", "", "", linker.Options{})
	newTestWorker(f, &stubLinker{}).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed after retries, got %q", snap.Status)
	}
	if snap.Progress.FetchAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", snap.Progress.FetchAttempts)
	}
}

func TestWorker_NoRetryOnClientError(t *testing.T) {
	f := &stubFetcher{errs: []error{&fetch.StatusError{URL: "u", StatusCode: 404}}}
	job := NewJob("https://example.com/c", "", "", linker.Options{})
	newTestWorker(f, &stubLinker{}).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "fetching" {
		t.Fatalf("expected failed while fetching, got %q/%q", snap.Status, snap.Phase)
	}
	if f.calls != 1 {
		t.Errorf("expected a single fetch, got %d", f.calls)
	}
}

func TestWorker_LinkFailure(t *testing.T) {
	f := &stubFetcher{page: `<p>x</p>`}
	job := NewJob("https://example.com/d", "", "", linker.Options{})
	newTestWorker(f, &stubLinker{err: errors.New("find refs: status 500")}).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "linking" {
		t.Fatalf("expected failed while linking, got %q/%q", snap.Status, snap.Phase)
	}
	if len(snap.Progress.Errors) != 1 || !strings.Contains(snap.Progress.Errors[0], "status 500") {
		t.Errorf("unexpected errors %v", snap.Progress.Errors)
	}
	if snap.HTML != "" {
		t.Error("failed job should carry no html")
	}
}

func TestWorker_EmptyPage(t *testing.T) {
	job := NewJob("https://example.com/e", "", "", linker.Options{})
	newTestWorker(&stubFetcher{page: `<nav>menu</nav>`}, &stubLinker{empty: true}).Process(context.Background(), job)
	if got := job.Snapshot().Status; got != StatusEmpty {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestWorker_UploadedFile(t *testing.T) {
	f := &stubFetcher{}
	lk := &stubLinker{}
	job := NewJob("", "notes.txt", "", linker.Options{})
	job.SetFileData([]byte("See Genesis 1:1.\n\nAnd Exodus 2:3."))

	newTestWorker(f, lk).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%v)", snap.Status, snap.Progress.Errors)
	}
	if f.calls != 0 {
		t.Error("uploaded jobs must not fetch")
	}
	if strings.Count(snap.HTML, `class="linked"`) != 2 {
		t.Errorf("expected two linked paragraphs, got %q", snap.HTML)
	}
	if job.FileData() != nil {
		t.Error("file data should be released after parsing")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&fetch.StatusError{StatusCode: 500}, true},
		{&fetch.StatusError{StatusCode: 429}, true},
		{&fetch.StatusError{StatusCode: 403}, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{errors.New("boom"), false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestBackoff_Bounded(t *testing.T) {
	for attempt := range 8 {
		d := Backoff(attempt)
		if d < time.Second || d > 45*time.Second {
			t.Errorf("attempt %d: backoff %s out of range", attempt, d)
		}
	}
}

func TestOrchestrator_SubmitAndProcess(t *testing.T) {
	cfg := config.Config{WorkerCount: 2, MaxQueueSize: 4, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, &stubFetcher{page: `<p>x</p>`}, &stubLinker{}, quietLog())
	o.Start(context.Background())
	defer o.Stop()

	job := NewJob("https://example.com/f", "", "", linker.Options{})
	if err := o.Submit(job); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := o.GetJob(job.ID).Snapshot().Status; s == StatusCompleted || s == StatusFailed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s := o.GetJob(job.ID).Snapshot().Status; s != StatusCompleted {
		t.Fatalf("expected completed, got %q", s)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := config.Config{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, &stubFetcher{}, &stubLinker{}, quietLog())
	// Workers not started: the queue never drains.
	if err := o.Submit(NewJob("a", "", "", linker.Options{})); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	job := NewJob("b", "", "", linker.Options{})
	if err := o.Submit(job); err == nil {
		t.Fatal("expected queue full error")
	}
	if s := job.Snapshot().Status; s != StatusFailed {
		t.Errorf("expected failed, got %q", s)
	}
	if o.QueueDepth() != 1 || o.JobCount() != 2 {
		t.Errorf("unexpected depth %d / count %d", o.QueueDepth(), o.JobCount())
	}
}
