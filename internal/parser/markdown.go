package parser

import (
	"context"
	"os"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func loadMarkdownPages(_ context.Context, filePath string) ([]schema.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []schema.Document{pageDocument(markdownToText(data), defaultPageNumber, 1)}, nil
}

func loadTextPages(_ context.Context, filePath string) ([]schema.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []schema.Document{pageDocument(string(data), defaultPageNumber, 1)}, nil
}

// markdownToText drops the markup and keeps one blank line between blocks,
// which is the first separator the splitter tries
func markdownToText(source []byte) string {
	doc := markdown.Parser().Parse(text.NewReader(source))

	var out strings.Builder
	// the separator is written lazily, before the next text, so no block
	// ever has to inspect what was already written
	pendingBreak := false
	write := func(b []byte) {
		if len(b) == 0 {
			return
		}
		if pendingBreak && out.Len() > 0 {
			out.WriteString("\n\n")
		}
		pendingBreak = false
		out.Write(b)
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					write([]byte{'\n'})
				}
			}
		case *ast.String:
			if entering {
				write(node.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					line := lines.At(i)
					write(line.Value(source))
				}
				return ast.WalkSkipChildren, nil
			}
		}
		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			pendingBreak = true
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(out.String())
}
