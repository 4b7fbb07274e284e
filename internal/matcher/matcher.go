// Package matcher applies named problem-matcher patterns to captured task
// output, extracting structured Diagnostic records. Patterns are
// configuration objects with capture slots for file, line, column,
// severity, and message; they are never executable code.
package matcher

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/harrison/overture/internal/models"
)

// Pattern is the configuration form of a problem matcher. Capture slots are
// 1-based regexp group indices; a zero slot means the field is not captured.
type Pattern struct {
	Name     string          `yaml:"-"`
	Regexp   string          `yaml:"regexp"`
	File     int             `yaml:"file"`
	Line     int             `yaml:"line"`
	Column   int             `yaml:"column"`
	Severity int             `yaml:"severity"`
	Message  int             `yaml:"message"`
	Default  models.Severity `yaml:"defaultSeverity"`
}

type compiledPattern struct {
	Pattern
	re *regexp.Regexp
}

// Set holds compiled patterns addressable by name.
type Set struct {
	patterns map[string]*compiledPattern
}

// NewSet compiles the builtin patterns plus any extras. Extras may
// override a builtin by reusing its name.
func NewSet(extras []Pattern) (*Set, error) {
	s := &Set{patterns: make(map[string]*compiledPattern, len(builtins)+len(extras))}
	for _, p := range builtins {
		if err := s.add(p); err != nil {
			return nil, fmt.Errorf("builtin pattern %s: %w", p.Name, err)
		}
	}
	for _, p := range extras {
		if err := s.add(p); err != nil {
			return nil, fmt.Errorf("pattern %s: %w", p.Name, err)
		}
	}
	return s, nil
}

func (s *Set) add(p Pattern) error {
	if p.Name == "" {
		return fmt.Errorf("pattern name is required")
	}
	if p.Regexp == "" {
		return fmt.Errorf("regexp is required")
	}
	re, err := regexp.Compile(p.Regexp)
	if err != nil {
		return fmt.Errorf("compile regexp: %w", err)
	}
	groups := re.NumSubexp()
	for _, slot := range []int{p.File, p.Line, p.Column, p.Severity, p.Message} {
		if slot > groups {
			return fmt.Errorf("capture slot %d exceeds %d regexp groups", slot, groups)
		}
	}
	if p.Default == "" {
		p.Default = models.SeverityError
	}
	s.patterns[p.Name] = &compiledPattern{Pattern: p, re: re}
	return nil
}

// Known reports whether a pattern with the given name exists.
func (s *Set) Known(name string) bool {
	_, ok := s.patterns[name]
	return ok
}

// Match applies the named pattern to the output text line by line and
// returns the extracted diagnostics. Unmatched output produces no
// diagnostics and is not an error; an unknown pattern name is.
func (s *Set) Match(name, text string) ([]models.Diagnostic, error) {
	cp, ok := s.patterns[name]
	if !ok {
		return nil, fmt.Errorf("unknown pattern %q", name)
	}

	var diags []models.Diagnostic
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if d, ok := cp.matchLine(scanner.Text()); ok {
			diags = append(diags, d)
		}
	}
	if err := scanner.Err(); err != nil {
		return diags, fmt.Errorf("scanning output: %w", err)
	}
	return diags, nil
}

// MatchAll applies several patterns to the same text, concatenating results
// in pattern order.
func (s *Set) MatchAll(names []string, text string) ([]models.Diagnostic, error) {
	var diags []models.Diagnostic
	for _, name := range names {
		found, err := s.Match(name, text)
		if err != nil {
			return diags, err
		}
		diags = append(diags, found...)
	}
	return diags, nil
}

func (cp *compiledPattern) matchLine(line string) (models.Diagnostic, bool) {
	m := cp.re.FindStringSubmatch(line)
	if m == nil {
		return models.Diagnostic{}, false
	}

	d := models.Diagnostic{Pattern: cp.Name, Severity: cp.Default}
	if cp.File > 0 {
		d.File = m[cp.File]
	}
	if cp.Line > 0 {
		d.Line, _ = strconv.Atoi(m[cp.Line])
	}
	if cp.Column > 0 {
		d.Column, _ = strconv.Atoi(m[cp.Column])
	}
	if cp.Message > 0 {
		d.Message = m[cp.Message]
	}
	if cp.Severity > 0 && m[cp.Severity] != "" {
		d.Severity = normalizeSeverity(m[cp.Severity], cp.Default)
	}
	return d, true
}

func normalizeSeverity(raw string, fallback models.Severity) models.Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "error", "err", "e", "fatal":
		return models.SeverityError
	case "warning", "warn", "w":
		return models.SeverityWarning
	case "info", "note", "hint", "i":
		return models.SeverityInfo
	default:
		return fallback
	}
}

// builtins cover the common compiler line formats so task files work out of
// the box. Users can add or override patterns via the task file's
// patterns section.
var builtins = []Pattern{
	{
		// error: main.rs:10:5: unexpected token
		Name:     "rustc",
		Regexp:   `^(error|warning|note)(?:\[\w+\])?:\s+([^\s:]+):(\d+):(\d+):\s+(.+)$`,
		Severity: 1,
		File:     2,
		Line:     3,
		Column:   4,
		Message:  5,
	},
	{
		// main.go:12:3: undefined: foo
		Name:    "go",
		Regexp:  `^([^\s:]+\.go):(\d+):(\d+):\s+(.+)$`,
		File:    1,
		Line:    2,
		Column:  3,
		Message: 4,
	},
	{
		// file.c:10:5: warning: unused variable 'x'
		Name:     "gcc",
		Regexp:   `^([^\s:]+):(\d+):(\d+):\s+(error|warning|note):\s+(.+)$`,
		File:     1,
		Line:     2,
		Column:   3,
		Severity: 4,
		Message:  5,
	},
}
