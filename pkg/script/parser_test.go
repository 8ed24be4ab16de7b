package script

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
)

func TestParse_SequenceRoot(t *testing.T) {
	yaml := `
- selector:
    text: Login
  actions:
    - assert_visible
    - tap_on
    - insert_data:
        data: "hello"
    - pause: 250
- take_screenshot: home
- log: Logged in
- pause: 500
- step_file: common/logout.yaml
`
	s, err := Parse([]byte(yaml), "login.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(s.Steps) != 5 {
		t.Fatalf("len(Steps) = %d, want 5", len(s.Steps))
	}

	el, ok := s.Steps[0].(*ElementStep)
	if !ok {
		t.Fatalf("Steps[0] = %T, want *ElementStep", s.Steps[0])
	}
	if el.Selector.Kind() != SelectorText || el.Selector.Text != "Login" {
		t.Errorf("selector = %+v", el.Selector)
	}
	wantTypes := []ActionType{ActionAssertVisible, ActionTap, ActionInsertData, ActionPause}
	if len(el.Actions) != len(wantTypes) {
		t.Fatalf("len(Actions) = %d, want %d", len(el.Actions), len(wantTypes))
	}
	for i, want := range wantTypes {
		if el.Actions[i].Type != want {
			t.Errorf("Actions[%d].Type = %s, want %s", i, el.Actions[i].Type, want)
		}
	}
	if el.Actions[2].Data != "hello" {
		t.Errorf("insert_data = %q, want hello", el.Actions[2].Data)
	}
	if el.Actions[3].DurationMs != 250 {
		t.Errorf("pause = %d, want 250", el.Actions[3].DurationMs)
	}
	if el.Line != 2 {
		t.Errorf("Line = %d, want 2", el.Line)
	}

	if ss := s.Steps[1].(*ScreenshotStep); ss.Label != "home" {
		t.Errorf("screenshot label = %q", ss.Label)
	}
	if ls := s.Steps[2].(*LogStep); ls.Message != "Logged in" {
		t.Errorf("log message = %q", ls.Message)
	}
	if ps := s.Steps[3].(*PauseStep); ps.DurationMs != 500 {
		t.Errorf("pause = %d", ps.DurationMs)
	}
	if inc := s.Steps[4].(*IncludeStep); inc.FilePath != "common/logout.yaml" {
		t.Errorf("step_file = %q", inc.FilePath)
	}
}

func TestParse_MappingRoot(t *testing.T) {
	yaml := `
name: Checkout
platform: android
steps:
  - log: start
  - selector:
      id: com.app:id/buy
      index: 1
    actions: [tap_on]
`
	s, err := Parse([]byte(yaml), "checkout.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if s.Name != "Checkout" || s.Platform != "android" {
		t.Errorf("metadata = %q/%q", s.Name, s.Platform)
	}
	el := s.Steps[1].(*ElementStep)
	if el.Selector.Kind() != SelectorResourceID || el.Selector.Index == nil || *el.Selector.Index != 1 {
		t.Errorf("selector = %+v", el.Selector)
	}
	if s.DisplayName() != "Checkout" {
		t.Errorf("DisplayName() = %q", s.DisplayName())
	}
}

func TestParse_AllSelectorVariants(t *testing.T) {
	tests := []struct {
		sel  string
		want SelectorKind
	}{
		{`text: Login`, SelectorText},
		{`xpath: //android.widget.Button`, SelectorXPath},
		{`class_name: android.widget.EditText`, SelectorClassName},
		{"class_name: android.widget.EditText\n    instance: 2", SelectorClassName},
		{`id: com.app:id/name`, SelectorResourceID},
		{`description: Open menu`, SelectorDescription},
		{`text: ""`, SelectorText},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			yaml := "- selector:\n    " + tt.sel + "\n  actions: [assert_visible]\n"
			s, err := Parse([]byte(yaml), "t.yaml")
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := s.Steps[0].(*ElementStep).Selector.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{"empty", "", "empty script file"},
		{"unknown key", "- tap: Login\n", "tap"},
		{"two step kinds", "- log: a\n  pause: 10\n", "ambiguous step"},
		{"two selector variants", "- selector:\n    text: a\n    id: b\n  actions: [tap_on]\n", "exactly one is allowed"},
		{"instance without class", "- selector:\n    text: a\n    instance: 1\n  actions: [tap_on]\n", "instance is only valid"},
		{"unknown action", "- selector:\n    text: a\n  actions: [double_tap]\n", "actions.0"},
		{"missing actions", "- selector:\n    text: a\n", "actions"},
		{"negative pause", "- pause: -5\n", "pause"},
		{"insert without data", "- selector:\n    text: a\n  actions:\n    - insert_data: {}\n", "data"},
		{"scalar root", "hello\n", "root"},
		{"bad yaml", "- log: [unclosed\n", "t.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "t.yaml")
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not *ParseError", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantMsg)
			}
			if core.CategoryOf(err) != core.ErrCategoryScript {
				t.Errorf("category = %v, want script", core.CategoryOf(err))
			}
		})
	}
}

func TestParse_ErrorHasLine(t *testing.T) {
	yaml := "- log: ok\n- selector:\n    text: a\n    xpath: //b\n  actions: [tap_on]\n"
	_, err := Parse([]byte(yaml), "lines.yaml")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Line != 3 {
		t.Errorf("Line = %d, want 3", pe.Line)
	}
	if !strings.HasPrefix(err.Error(), "lines.yaml:3:") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestParseFile_Missing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "failed to read file") {
		t.Errorf("error = %v", err)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	if err := os.WriteFile(path, []byte("- log: hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if s.SourcePath != path {
		t.Errorf("SourcePath = %q", s.SourcePath)
	}
	if file, line := s.Steps[0].Origin(); file != path || line != 1 {
		t.Errorf("Origin() = %s:%d", file, line)
	}
}

func TestValidateShape(t *testing.T) {
	if err := ValidateShape([]byte("- log: hi\n- pause: 1\n")); err != nil {
		t.Errorf("valid script rejected: %v", err)
	}
	err := ValidateShape([]byte("- selector:\n    label: x\n  actions: [tap_on]\n"))
	if err == nil || !strings.Contains(err.Error(), "label") {
		t.Errorf("ValidateShape() = %v, want error naming label", err)
	}
}
