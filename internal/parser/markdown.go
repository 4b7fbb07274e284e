package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser extracts task definitions from markdown documents. Every
// fenced code block tagged yaml is decoded as a YAML task file fragment
// and the fragments are concatenated in document order, so a runbook can
// interleave prose with its task declarations.
type MarkdownParser struct {
	markdown goldmark.Markdown
	yaml     *YAMLParser
}

// NewMarkdownParser creates a new markdown task file parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
		yaml:     NewYAMLParser(),
	}
}

// Parse decodes a markdown task file from r.
func (p *MarkdownParser) Parse(r io.Reader) (*TaskFile, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	doc := p.markdown.Parser().Parse(text.NewReader(content))

	blocks, err := extractYAMLBlocks(doc, content)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no yaml task blocks found")
	}

	merged := &TaskFile{}
	for i, block := range blocks {
		tf, err := p.yaml.parse(block, true)
		if err != nil {
			return nil, fmt.Errorf("yaml block %d: %w", i+1, err)
		}
		merged.Tasks = append(merged.Tasks, tf.Tasks...)
		merged.Patterns = append(merged.Patterns, tf.Patterns...)
	}
	if len(merged.Tasks) == 0 {
		return nil, fmt.Errorf("no tasks declared in yaml blocks")
	}
	return merged, nil
}

// extractYAMLBlocks walks the markdown AST and collects the raw content
// of every fenced code block whose info string is yaml or yml.
func extractYAMLBlocks(doc ast.Node, source []byte) ([][]byte, error) {
	var blocks [][]byte

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		fence, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		switch string(fence.Language(source)) {
		case "yaml", "yml":
		default:
			return ast.WalkContinue, nil
		}

		var buf bytes.Buffer
		for i := 0; i < fence.Lines().Len(); i++ {
			line := fence.Lines().At(i)
			buf.Write(line.Value(source))
		}
		blocks = append(blocks, buf.Bytes())
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}
