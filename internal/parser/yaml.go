package parser

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/harrison/overture/internal/matcher"
	"github.com/harrison/overture/internal/models"
)

// YAMLParser decodes standalone YAML task files.
//
// The document has two top-level mappings: "tasks", keyed by task name,
// and an optional "patterns", keyed by pattern name. Both are decoded
// through yaml.Node so declaration order survives into the result.
type YAMLParser struct{}

// NewYAMLParser creates a new YAML task file parser
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

type yamlPresentation struct {
	Echo             bool   `yaml:"echo"`
	Reveal           string `yaml:"reveal"`
	Focus            bool   `yaml:"focus"`
	Panel            string `yaml:"panel"`
	PanelName        string `yaml:"panelName"`
	Clear            bool   `yaml:"clear"`
	ShowReuseMessage bool   `yaml:"showReuseMessage"`
}

type yamlTask struct {
	Command         string            `yaml:"command"`
	Args            []string          `yaml:"args"`
	Env             map[string]string `yaml:"env"`
	Group           string            `yaml:"group"`
	DependsOn       yamlStringList    `yaml:"dependsOn"`
	DependsOrder    string            `yaml:"dependsOrder"`
	ProblemMatchers yamlStringList    `yaml:"problemMatcher"`
	Presentation    *yamlPresentation `yaml:"presentation"`
	IgnoreFailure   bool              `yaml:"ignoreFailure"`
}

// yamlStringList accepts both a scalar and a sequence, so
// "dependsOn: build" and "dependsOn: [build, test]" both decode.
type yamlStringList []string

func (l *yamlStringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = yamlStringList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		*l = yamlStringList(ss)
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", node.Line)
	}
}

type yamlDocument struct {
	Tasks    yaml.Node `yaml:"tasks"`
	Patterns yaml.Node `yaml:"patterns"`
}

// Parse decodes a YAML task file from r.
func (p *YAMLParser) Parse(r io.Reader) (*TaskFile, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return p.parse(content, false)
}

// parse decodes one YAML document. A fragment (a block inside a markdown
// file) may omit the tasks mapping; a standalone file may not.
func (p *YAMLParser) parse(content []byte, fragment bool) (*TaskFile, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if doc.Tasks.Kind == 0 && !fragment {
		return nil, fmt.Errorf("missing top-level tasks mapping")
	}

	tf := &TaskFile{}
	if doc.Tasks.Kind != 0 {
		tasks, err := decodeTasks(&doc.Tasks)
		if err != nil {
			return nil, err
		}
		tf.Tasks = tasks
	}
	if doc.Patterns.Kind != 0 {
		patterns, err := decodePatterns(&doc.Patterns)
		if err != nil {
			return nil, err
		}
		tf.Patterns = patterns
	}
	return tf, nil
}

// decodeTasks walks the tasks mapping node pairwise (key, value) so the
// declaration order is preserved.
func decodeTasks(node *yaml.Node) ([]models.Task, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: tasks must be a mapping of name to task", node.Line)
	}

	tasks := make([]models.Task, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var yt yamlTask
		if err := valNode.Decode(&yt); err != nil {
			return nil, fmt.Errorf("task %s: %w", keyNode.Value, err)
		}

		task := models.Task{
			Name:            keyNode.Value,
			Command:         yt.Command,
			Args:            yt.Args,
			Env:             yt.Env,
			Group:           yt.Group,
			DependsOn:       []string(yt.DependsOn),
			DependsOrder:    models.DependsOrder(yt.DependsOrder),
			ProblemMatchers: []string(yt.ProblemMatchers),
			IgnoreFailure:   yt.IgnoreFailure,
		}
		if yt.Presentation != nil {
			task.Presentation = models.Presentation{
				Echo:             yt.Presentation.Echo,
				Reveal:           models.RevealMode(yt.Presentation.Reveal),
				Focus:            yt.Presentation.Focus,
				Panel:            models.PanelMode(yt.Presentation.Panel),
				PanelName:        yt.Presentation.PanelName,
				Clear:            yt.Presentation.Clear,
				ShowReuseMessage: yt.Presentation.ShowReuseMessage,
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func decodePatterns(node *yaml.Node) ([]matcher.Pattern, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: patterns must be a mapping of name to pattern", node.Line)
	}

	patterns := make([]matcher.Pattern, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var p matcher.Pattern
		if err := valNode.Decode(&p); err != nil {
			return nil, fmt.Errorf("pattern %s: %w", keyNode.Value, err)
		}
		p.Name = keyNode.Value
		patterns = append(patterns, p)
	}
	return patterns, nil
}
