package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/reflinker/internal/doctree"
	"golang.org/x/net/html"
)

// TextParser handles plain text files: blank lines separate paragraphs.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*html.Node, error) {
	tree, err := p.tree(r, filename)
	if err != nil {
		return nil, err
	}
	return tree.Document(), nil
}

func (p *TextParser) tree(r io.Reader, filename string) (*doctree.DocTree, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	tree := &doctree.DocTree{Title: baseTitle(filename)}
	for _, para := range paragraphs {
		tree.Children = append(tree.Children, &doctree.DocNode{Text: para})
	}
	return tree, nil
}
