package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/reflinker/internal/linker"
	"github.com/dgallion1/reflinker/internal/parser"
	"golang.org/x/net/html"
)

// Fetcher downloads and parses a page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*html.Node, error)
}

// Linker annotates a parsed page.
type Linker interface {
	Link(ctx context.Context, page *linker.Page, opts linker.Options) (*linker.Result, error)
}

// Worker processes a single link job.
type Worker struct {
	fetcher    Fetcher
	linker     Linker
	log        *slog.Logger
	parserOpts parser.Options
	backoff    func(attempt int) time.Duration
}

func NewWorker(f Fetcher, lk Linker, log *slog.Logger, parserOpts parser.Options) *Worker {
	return &Worker{
		fetcher:    f,
		linker:     lk,
		log:        log,
		parserOpts: parserOpts,
		backoff:    Backoff,
	}
}

// Process loads, links and renders the job's page.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "url", job.URL, "filename", job.Filename)

	// Phase 1: Load
	job.SetStatus(StatusFetching, "fetching")
	doc, err := w.load(ctx, job, log)
	if err != nil {
		log.Error("load failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "fetching")
		return
	}

	var original bytes.Buffer
	if err := html.Render(&original, doc); err == nil {
		job.SetContentHash(ContentHashHex(original.Bytes()))
	}

	// Phase 2: Link
	job.SetStatus(StatusLinking, "linking")
	page := &linker.Page{Doc: doc, URL: job.URL, Title: job.Title}
	res, err := w.linker.Link(ctx, page, job.Options)
	if err != nil {
		log.Error("link failed", "error", err)
		job.AddError(fmt.Sprintf("link: %s", err))
		job.SetStatus(StatusFailed, "linking")
		return
	}
	if res.Empty {
		log.Info("no readable content")
		job.SetResult(res, "")
		job.SetStatus(StatusEmpty, "done")
		return
	}

	var out strings.Builder
	if err := html.Render(&out, doc); err != nil {
		job.AddError(fmt.Sprintf("render: %s", err))
		job.SetStatus(StatusFailed, "rendering")
		return
	}
	job.SetResult(res, out.String())
	job.SetStatus(StatusCompleted, "done")
	log.Info("job complete", "matches", res.Matches, "annotated", res.Annotated, "skipped", len(res.Skipped))
}

func (w *Worker) load(ctx context.Context, job *Job, log *slog.Logger) (*html.Node, error) {
	if data := job.FileData(); data != nil {
		p, err := parser.ForFile(job.Filename, w.parserOpts)
		if err != nil {
			return nil, err
		}
		doc, err := p.Parse(bytes.NewReader(data), job.Filename)
		if err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
		// The bytes are no longer needed once parsed.
		job.SetFileData(nil)
		return doc, nil
	}

	var lastErr error
	for attempt := range MaxRetries {
		job.IncrFetchAttempts()
		doc, err := w.fetcher.Fetch(ctx, job.URL)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == MaxRetries-1 {
			break
		}
		log.Warn("retryable fetch error", "attempt", attempt, "error", err)
		select {
		case <-time.After(w.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
