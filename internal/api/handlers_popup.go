package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/reflinker/internal/matcher"
	"github.com/dgallion1/reflinker/internal/popup"
)

// handlePopup renders the popup fragment for one reference, the same
// markup the in-page popup shows.
func (s *Server) handlePopup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := q.Get("ref")
	if ref == "" {
		jsonError(w, "ref query parameter is required", http.StatusBadRequest)
		return
	}
	iface, err := popup.ParseLang(q.Get("interfaceLang"), false)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	contentLang := q.Get("contentLang")
	if contentLang == "" {
		contentLang = string(popup.Bilingual)
	}
	content, err := popup.ParseLang(contentLang, true)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := popup.ParseMode(q.Get("mode"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := s.deps.Linker.RefData(r.Context(), []string{ref})
	if err != nil {
		s.log.Error("ref data lookup failed", "ref", ref, "error", err)
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	rd, ok := data[ref]
	if !ok {
		jsonError(w, "unknown ref", http.StatusNotFound)
		return
	}

	fragment, err := popup.RenderContent(popup.BuildContent(rd, iface, content, s.cfg.MatcherURL), mode)
	if err != nil {
		jsonError(w, "render: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, fragment)
}

// handleReport forwards a bad-match report from a debug-mode page to the
// matcher without waiting for it.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req matcher.ReportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Citation.Text == "" {
		jsonError(w, "citation.text is required", http.StatusBadRequest)
		return
	}
	if !hasDebugData(req.DebugData) {
		jsonError(w, "debugData is required; reports come from pages linked in debug mode", http.StatusBadRequest)
		return
	}
	if s.deps.Reporter == nil {
		jsonError(w, "reporting unavailable", http.StatusServiceUnavailable)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout(s.cfg.MatcherTimeout))
		defer cancel()
		if err := s.deps.Reporter.Report(ctx, req); err != nil {
			s.log.Warn("report failed", "citation", req.Citation.Text, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func reportTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

func hasDebugData(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	return v != "" && v != "null"
}
