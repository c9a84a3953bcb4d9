package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/dgallion1/reflinker/internal/linker"
	"github.com/dgallion1/reflinker/internal/parser"
	"github.com/dgallion1/reflinker/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"golang.org/x/net/html"
)

// linkRequest carries exactly one of HTML, Markdown or Text.
type linkRequest struct {
	HTML     string         `json:"html,omitempty"`
	Markdown string         `json:"markdown,omitempty"`
	Text     string         `json:"text,omitempty"`
	URL      string         `json:"url,omitempty"`
	Title    string         `json:"title,omitempty"`
	Options  linker.Options `json:"options"`
}

type linkResponse struct {
	*linker.Result
	HTML string `json:"html,omitempty"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	var (
		p    parser.Parser
		src  string
		name string
	)
	n := 0
	if req.HTML != "" {
		p, src, name, n = &parser.HTMLParser{}, req.HTML, "page.html", n+1
	}
	if req.Markdown != "" {
		p, src, name, n = &parser.MarkdownParser{}, req.Markdown, "page.md", n+1
	}
	if req.Text != "" {
		p, src, name, n = &parser.TextParser{}, req.Text, "page.txt", n+1
	}
	if n != 1 {
		jsonError(w, "exactly one of html, markdown or text is required", http.StatusBadRequest)
		return
	}

	doc, err := p.Parse(strings.NewReader(src), name)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.linkAndRespond(w, r, doc, req.URL, req.Title, req.Options)
}

// handleUpload links an uploaded file. With async=true the file is queued
// as a job instead.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	var opts linker.Options
	if raw := r.FormValue("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			jsonError(w, "invalid options: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	title := r.FormValue("title")
	pageURL := r.FormValue("url")

	if r.FormValue("async") == "true" {
		if err := opts.WithDefaults().Validate(); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		job := pipeline.NewJob(pageURL, filename, title, opts)
		job.SetFileData(data)
		s.submit(w, job)
		return
	}

	p, err := parser.ForFile(filename, parser.Options{PDFFallbackPdftotext: s.cfg.PDFFallbackPdftotext})
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		jsonError(w, "parse: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.linkAndRespond(w, r, doc, pageURL, title, opts)
}

func (s *Server) linkAndRespond(w http.ResponseWriter, r *http.Request, doc *html.Node, pageURL, title string, opts linker.Options) {
	if err := opts.WithDefaults().Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	page := &linker.Page{Doc: doc, URL: pageURL, Title: title}
	res, err := s.deps.Linker.Link(r.Context(), page, opts)
	if err != nil {
		s.log.Error("link failed", "url", pageURL, "error", err)
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}

	out := linkResponse{Result: res}
	if !res.Empty {
		var buf strings.Builder
		if err := html.Render(&buf, doc); err != nil {
			jsonError(w, "render: "+err.Error(), http.StatusInternalServerError)
			return
		}
		out.HTML = buf.String()
	}
	writeJSON(w, http.StatusOK, out)
}

type jobRequest struct {
	URL     string         `json:"url"`
	Title   string         `json:"title,omitempty"`
	Options linker.Options `json:"options"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		jsonError(w, "url must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}
	if err := req.Options.WithDefaults().Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.submit(w, pipeline.NewJob(req.URL, "", req.Title, req.Options))
}

func (s *Server) submit(w http.ResponseWriter, job *pipeline.Job) {
	if s.deps.Jobs == nil {
		jsonError(w, "job queue unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.deps.Jobs.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	snap := job.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   snap.ID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/link/jobs/%s", snap.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		jsonError(w, "job queue unavailable", http.StatusServiceUnavailable)
		return
	}
	jobID := chi.URLParam(r, "jobID")
	job := s.deps.Jobs.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
