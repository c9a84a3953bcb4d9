package parser

import (
	"strings"
	"testing"
)

func TestMarkdownParser_HeadingHierarchy(t *testing.T) {
	input := `# Title

Intro text.

## Section A

Section A content.

### Subsection A1

Subsection A1 content.

## Section B

Section B content.
`
	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := docTitle(doc); got != "Title" {
		t.Errorf("expected title %q, got %q", "Title", got)
	}

	body := renderBody(t, doc)
	for _, want := range []string{
		"<h1>Title</h1>",
		"<p>Intro text.</p>",
		"<h2>Section A</h2>",
		"<h3>Subsection A1</h3>",
		"<h2>Section B</h2>",
		"<p>Section B content.</p>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q, got %q", want, body)
		}
	}
}

func TestMarkdownParser_NoHeadings(t *testing.T) {
	input := `Just some plain text.

Another paragraph here.`

	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "plain.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := docTitle(doc); got != "plain" {
		t.Errorf("expected filename title %q, got %q", "plain", got)
	}
	if got := strings.Count(renderBody(t, doc), "<p>"); got != 2 {
		t.Errorf("expected 2 paragraphs, got %d", got)
	}
}

func TestMarkdownParser_InlineMarkupKept(t *testing.T) {
	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader("Compare *Exodus* 2:3 and [Genesis 1:1](https://example.com)."), "refs.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := renderBody(t, doc)
	if !strings.Contains(body, "<em>Exodus</em> 2:3") {
		t.Errorf("expected emphasis kept, got %q", body)
	}
	if !strings.Contains(body, `<a href="https://example.com">Genesis 1:1</a>`) {
		t.Errorf("expected link kept, got %q", body)
	}
}

func TestMarkdownParser_CodeBlocks(t *testing.T) {
	input := "# API Reference\n\nList of endpoints:\n\n```\nGET /api/users\n```\n\nMore text after code.\n"

	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "api.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := renderBody(t, doc)
	if !strings.Contains(body, "<pre><code>GET /api/users\n</code></pre>") {
		t.Errorf("expected code block, got %q", body)
	}
	if !strings.Contains(body, "More text after code.") {
		t.Errorf("expected post-code text, got %q", body)
	}
}

func TestMarkdownParser_RawHTMLEscaped(t *testing.T) {
	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader("<script>alert(1)</script>\n\ntext"), "x.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(renderBody(t, doc), "<script>") {
		t.Error("raw html should not pass through")
	}
}

func TestMarkdownParser_TitleStripping(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"readme.md", "readme"},
		{"notes.markdown", "notes"},
		{"dir/plain.md", "plain"},
	}
	p := &MarkdownParser{}
	for _, tt := range tests {
		doc, err := p.Parse(strings.NewReader("text"), tt.filename)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", tt.filename, err)
		}
		if got := docTitle(doc); got != tt.want {
			t.Errorf("filename=%q: expected title %q, got %q", tt.filename, tt.want, got)
		}
	}
}
