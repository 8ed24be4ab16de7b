package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
)

// Expander flattens include steps depth-first into a list of leaf steps.
// Files are parsed at most once per Expander; a file may be included any
// number of times as long as it never appears twice on one inclusion chain.
type Expander struct {
	cache map[string]*Script
}

// NewExpander creates an Expander with an empty parse cache.
func NewExpander() *Expander {
	return &Expander{cache: make(map[string]*Script)}
}

// Expand loads the script at path and returns its flattened steps.
func Expand(path string) (*Script, []Step, error) {
	e := NewExpander()
	s, err := e.load(path)
	if err != nil {
		return nil, nil, err
	}
	steps, err := e.ExpandScript(s)
	return s, steps, err
}

// ExpandScript flattens an already parsed script. Included files are
// resolved relative to the directory of the file that includes them.
func (e *Expander) ExpandScript(s *Script) ([]Step, error) {
	root := s.SourcePath
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	e.cache[root] = s
	var out []Step
	if err := e.expand(s, []string{root}, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (e *Expander) expand(s *Script, chain []string, out *[]Step) error {
	for _, step := range s.Steps {
		inc, ok := step.(*IncludeStep)
		if !ok {
			*out = append(*out, step)
			continue
		}

		refPath := resolveFilePath(filepath.Dir(s.SourcePath), inc.FilePath)
		key := refPath
		if abs, err := filepath.Abs(refPath); err == nil {
			key = abs
		}

		for _, ancestor := range chain {
			if ancestor == key {
				cycle := append(append([]string{}, chain...), key)
				return core.ErrIncludeCycle.
					WithMessage(fmt.Sprintf("circular include detected at %s:%d: %s", s.SourcePath, inc.Line, strings.Join(cycle, " -> "))).
					WithDetails(map[string]interface{}{"file": s.SourcePath, "line": inc.Line})
			}
		}

		child, err := e.loadAt(refPath, key, s.SourcePath, inc.Line)
		if err != nil {
			return err
		}
		if err := e.expand(child, append(chain, key), out); err != nil {
			return err
		}
	}
	return nil
}

func (e *Expander) load(path string) (*Script, error) {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	return e.loadAt(path, key, "", 0)
}

func (e *Expander) loadAt(path, key, fromFile string, fromLine int) (*Script, error) {
	if s, ok := e.cache[key]; ok {
		return s, nil
	}

	if _, err := os.Stat(path); err != nil {
		where := path
		if fromFile != "" {
			where = fmt.Sprintf("%s (included from %s:%d)", path, fromFile, fromLine)
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.ErrIncludeNotFound.WithMessage("step file not found: " + where)
		}
		return nil, core.NewScriptError("cannot read step file %s", where).WithCause(err)
	}

	s, err := ParseFile(path)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, core.NewScriptError("invalid step file %s", pe.Error()).
				WithDetails(map[string]interface{}{"file": pe.Path, "line": pe.Line})
		}
		return nil, core.NewScriptError("invalid step file %s", path).WithCause(err)
	}
	e.cache[key] = s
	return s, nil
}

// resolveFilePath resolves a file path relative to a base directory.
func resolveFilePath(baseDir, filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(baseDir, filePath)
}
