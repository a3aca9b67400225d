package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdownExtractor parses markdown and walks the AST collecting
// plain text, so formatting syntax never pollutes the chunk stream.
type markdownExtractor struct{}

func (m *markdownExtractor) Extract(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	md := goldmark.New()
	reader := text.NewReader(data)
	doc := md.Parser().Parse(reader)

	var sb strings.Builder
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := node.(interface{ Lines() *text.Segments }).Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(data))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.Blockquote:
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walk markdown: %w", err)
	}
	return sb.String(), nil
}

func init() {
	Register(".md", &markdownExtractor{})
	Register(".markdown", &markdownExtractor{})
}
