package matcher

import (
	"encoding/json"
	"fmt"
)

// FindRefsRequest is the body for POST /api/find-refs.
type FindRefsRequest struct {
	Text  string `json:"text"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// CitationMatch is one citation the matcher found. StartChar and EndChar
// count characters (runes) of the submitted text.
type CitationMatch struct {
	Text       string   `json:"text"`
	StartChar  int      `json:"startChar"`
	EndChar    int      `json:"endChar"`
	Refs       []string `json:"refs,omitempty"`
	URLs       []string `json:"urls,omitempty"`
	LinkFailed bool     `json:"linkFailed,omitempty"`
}

// Ambiguous reports whether the citation resolved to more than one reference.
func (m CitationMatch) Ambiguous() bool { return len(m.Refs) > 1 }

// URL returns the link for the i-th candidate reference, preferring the
// per-match URL list and falling back to refData.
func (m CitationMatch) URL(i int, refData map[string]RefData) string {
	if i < len(m.URLs) && m.URLs[i] != "" {
		return m.URLs[i]
	}
	if i < len(m.Refs) {
		if rd, ok := refData[m.Refs[i]]; ok {
			return rd.URL
		}
	}
	return ""
}

// RefData is the display data for one reference.
type RefData struct {
	Ref             string   `json:"ref"`
	HeRef           string   `json:"heRef,omitempty"`
	URL             string   `json:"url"`
	En              Segments `json:"en,omitempty"`
	He              Segments `json:"he,omitempty"`
	PrimaryCategory string   `json:"primaryCategory,omitempty"`
	IsTruncated     bool     `json:"isTruncated,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// HasText reports whether any text segment is present.
func (r RefData) HasText() bool { return len(r.En) > 0 || len(r.He) > 0 }

// FindRefsResponse is the decoded "text" section of a find-refs reply.
type FindRefsResponse struct {
	Results   []CitationMatch    `json:"results"`
	RefData   map[string]RefData `json:"refData"`
	DebugData json.RawMessage    `json:"debugData,omitempty"`
}

type findRefsEnvelope struct {
	Text FindRefsResponse `json:"text"`
}

// ReportRequest is the body for POST /api/find-refs/report.
type ReportRequest struct {
	PrevContext string          `json:"prevContext"`
	NextContext string          `json:"nextContext"`
	Citation    CitationMatch   `json:"citation"`
	DebugData   json.RawMessage `json:"debugData,omitempty"`
}

// Segments is text that arrives either as one string or as arbitrarily
// nested arrays of strings. Empty strings are dropped.
type Segments []string

func (s *Segments) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var out []string
	if err := flatten(v, &out); err != nil {
		return err
	}
	*s = out
	return nil
}

func flatten(v any, out *[]string) error {
	switch t := v.(type) {
	case nil:
	case string:
		if t != "" {
			*out = append(*out, t)
		}
	case []any:
		for _, e := range t {
			if err := flatten(e, out); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unexpected text segment of type %T", v)
	}
	return nil
}
