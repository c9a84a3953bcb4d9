package hostconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_Parses(t *testing.T) {
	reg := Default()
	if reg.Len() == 0 {
		t.Fatal("expected embedded registry to have entries")
	}
}

func TestSelectors_ExactAndGlob(t *testing.T) {
	reg, err := Parse([]byte(`
version: 1
hosts:
  - host: "example.org"
    selectors: [".notes"]
  - host: "*.example.org"
    selectors: [".notes", ".footnotes"]
`), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := reg.Selectors("example.org"); len(got) != 1 || got[0] != ".notes" {
		t.Errorf("expected [.notes] for apex host, got %v", got)
	}
	got := reg.Selectors("WWW.Example.org:8443")
	if len(got) != 2 || got[0] != ".notes" || got[1] != ".footnotes" {
		t.Errorf("expected deduplicated glob selectors, got %v", got)
	}
	if got := reg.Selectors("other.com"); len(got) != 0 {
		t.Errorf("expected no selectors for unknown host, got %v", got)
	}
}

func TestParse_RejectsBadVersion(t *testing.T) {
	_, err := Parse([]byte("version: 2\nhosts: []\n"), "bad")
	if err == nil || !strings.Contains(err.Error(), "unsupported version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestParse_RejectsBadSelector(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
hosts:
  - host: "a.com"
    selectors: ["div[["]
`), "bad")
	if err == nil {
		t.Fatal("expected selector error")
	}
}

func TestParse_RejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte("version: 1\nhosts: []\nextra: true\n"), "bad")
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	if err := os.WriteFile(path, []byte("version: 1\nhosts:\n  - host: a.com\n    selectors: [p]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := reg.Selectors("a.com"); len(got) != 1 {
		t.Errorf("expected one selector, got %v", got)
	}
}
