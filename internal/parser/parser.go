// Package parser reads task definition files into model objects. Task
// files are YAML documents, either standalone or embedded in fenced code
// blocks of a markdown document.
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/overture/internal/matcher"
	"github.com/harrison/overture/internal/models"
)

// Format represents the format of a task definition file
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatMarkdown represents a Markdown (.md, .markdown) task file
	FormatMarkdown
	// FormatYAML represents a YAML (.yaml, .yml) task file
	FormatYAML
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// TaskFile is the decoded content of a task definition file: the declared
// tasks in declaration order plus any custom problem-matcher patterns.
type TaskFile struct {
	Tasks    []models.Task
	Patterns []matcher.Pattern
	FilePath string
}

// Parser is the interface that all task file parsers must implement
type Parser interface {
	// Parse reads from an io.Reader and returns the decoded task file
	Parse(r io.Reader) (*TaskFile, error)
}

// DetectFormat detects the task file format from the file extension.
// Supported extensions:
//   - .md, .markdown -> FormatMarkdown
//   - .yaml, .yml -> FormatYAML
//   - all others -> FormatUnknown
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// NewParser creates a parser for the specified format.
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownParser(), nil
	case FormatYAML:
		return NewYAMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// ParseFile auto-detects the format from the path's extension, opens the
// file, and parses it. The absolute path is stored in the result for
// later reference (watch mode, error messages).
func ParseFile(path string) (*TaskFile, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .md, .markdown, .yaml, .yml)", path)
	}

	p, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	tf, err := p.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	tf.FilePath = absPath
	return tf, nil
}
