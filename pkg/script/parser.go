package script

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Unwrap classifies every parse error as a script error.
func (e *ParseError) Unwrap() error {
	return core.ErrScriptParse
}

// ParseFile parses a single YAML script file.
func ParseFile(path string) (*Script, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided script file
	if err != nil {
		return nil, &ParseError{Path: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}
	return Parse(data, path)
}

// Parse parses YAML script content. The root is either a sequence of steps
// or a mapping with a steps key and optional name and platform.
func Parse(data []byte, sourcePath string) (*Script, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: sourcePath, Line: yamlErrorLine(err), Message: err.Error()}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "empty script file"}
	}

	if err := ValidateShape(data); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: err.Error()}
	}

	s := &Script{SourcePath: sourcePath}
	root := doc.Content[0]

	var stepsNode *yaml.Node
	switch root.Kind {
	case yaml.SequenceNode:
		stepsNode = root
	case yaml.MappingNode:
		for i := 0; i < len(root.Content)-1; i += 2 {
			key, val := root.Content[i], root.Content[i+1]
			switch key.Value {
			case "name":
				s.Name = val.Value
			case "platform":
				s.Platform = val.Value
			case "steps":
				stepsNode = val
			}
		}
		if stepsNode == nil || stepsNode.Kind != yaml.SequenceNode {
			return nil, &ParseError{Path: sourcePath, Line: root.Line, Message: "steps must be a list"}
		}
	default:
		return nil, &ParseError{Path: sourcePath, Line: root.Line, Message: "root must be a list of steps or a mapping with a steps list"}
	}

	for _, node := range stepsNode.Content {
		step, err := parseStep(node, sourcePath)
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, step)
	}
	return s, nil
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "step must be a mapping",
		}
	}

	fields := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i < len(node.Content)-1; i += 2 {
		fields[node.Content[i].Value] = node.Content[i+1]
	}

	stepType, err := extractStepType(fields)
	if err != nil {
		return nil, wrapParseError(sourcePath, node.Line, err)
	}
	base := BaseStep{StepType: stepType, SourcePath: sourcePath, Line: node.Line}

	switch stepType {
	case StepElement:
		return decodeElementStep(base, fields, sourcePath)
	case StepScreenshot:
		return &ScreenshotStep{BaseStep: base, Label: fields[string(StepScreenshot)].Value}, nil
	case StepLog:
		return &LogStep{BaseStep: base, Message: fields[string(StepLog)].Value}, nil
	case StepPause:
		v := fields[string(StepPause)]
		ms, err := parseMillis(v)
		if err != nil {
			return nil, wrapParseError(sourcePath, v.Line, err)
		}
		return &PauseStep{BaseStep: base, DurationMs: ms}, nil
	default:
		return &IncludeStep{BaseStep: base, FilePath: fields[string(StepInclude)].Value}, nil
	}
}

// extractStepType determines the step kind from the keys present. A step
// carrying keys of two kinds is ambiguous and rejected.
func extractStepType(fields map[string]*yaml.Node) (StepType, error) {
	var found []StepType
	if _, ok := fields["selector"]; ok {
		found = append(found, StepElement)
	} else if _, ok := fields["actions"]; ok {
		return "", fmt.Errorf("actions require a selector")
	}
	for _, t := range []StepType{StepScreenshot, StepLog, StepPause, StepInclude} {
		if _, ok := fields[string(t)]; ok {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		return "", fmt.Errorf("unknown step shape with keys: %s", strings.Join(keys, ", "))
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("ambiguous step: both %s and %s are set", found[0], found[1])
	}
}

func decodeElementStep(base BaseStep, fields map[string]*yaml.Node, sourcePath string) (Step, error) {
	selNode := fields["selector"]
	var sel Selector
	if err := selNode.Decode(&sel); err != nil {
		return nil, wrapParseError(sourcePath, selNode.Line, err)
	}
	var keys []string
	for i := 0; i < len(selNode.Content)-1; i += 2 {
		keys = append(keys, selNode.Content[i].Value)
	}
	kind, err := selectorKindFromKeys(keys)
	if err != nil {
		return nil, wrapParseError(sourcePath, selNode.Line, err)
	}
	sel.Variant = kind

	actNode, ok := fields["actions"]
	if !ok || actNode.Kind != yaml.SequenceNode || len(actNode.Content) == 0 {
		return nil, &ParseError{Path: sourcePath, Line: base.Line, Message: "element step needs a non-empty actions list"}
	}

	step := &ElementStep{BaseStep: base, Selector: sel}
	for _, n := range actNode.Content {
		action, err := parseAction(n)
		if err != nil {
			return nil, wrapParseError(sourcePath, n.Line, err)
		}
		step.Actions = append(step.Actions, action)
	}
	return step, nil
}

func parseAction(node *yaml.Node) (Action, error) {
	if node.Kind == yaml.ScalarNode {
		if !isBareAction(node.Value) {
			return Action{}, fmt.Errorf("unknown action: %s", node.Value)
		}
		return Action{Type: ActionType(node.Value), Line: node.Line}, nil
	}
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return Action{}, fmt.Errorf("action must be a name or a single-key mapping")
	}

	key, val := node.Content[0].Value, node.Content[1]
	switch ActionType(key) {
	case ActionInsertData:
		var body struct {
			Data *string `yaml:"data"`
		}
		if err := val.Decode(&body); err != nil {
			return Action{}, err
		}
		if body.Data == nil {
			return Action{}, fmt.Errorf("insert_data requires data")
		}
		return Action{Type: ActionInsertData, Data: *body.Data, Line: node.Line}, nil
	case ActionPause:
		ms, err := parseMillis(val)
		if err != nil {
			return Action{}, err
		}
		return Action{Type: ActionPause, DurationMs: ms, Line: node.Line}, nil
	default:
		return Action{}, fmt.Errorf("unknown action: %s", key)
	}
}

func parseMillis(node *yaml.Node) (uint64, error) {
	if node.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("duration must be a number of milliseconds")
	}
	ms, err := strconv.ParseUint(node.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: must be a non-negative number of milliseconds", node.Value)
	}
	return ms, nil
}

func wrapParseError(path string, line int, err error) error {
	return &ParseError{
		Path:    path,
		Line:    line,
		Message: err.Error(),
	}
}

// yamlErrorLine extracts the line from yaml.v3 syntax errors ("yaml: line N: ...").
func yamlErrorLine(err error) int {
	msg := err.Error()
	const prefix = "yaml: line "
	if !strings.HasPrefix(msg, prefix) {
		return 0
	}
	rest := msg[len(prefix):]
	if i := strings.IndexByte(rest, ':'); i > 0 {
		if n, err := strconv.Atoi(rest[:i]); err == nil {
			return n
		}
	}
	return 0
}
