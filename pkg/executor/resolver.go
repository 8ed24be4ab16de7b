package executor

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/apptest-runner/pkg/core"
	"github.com/devicelab-dev/apptest-runner/pkg/script"
)

// Resolver turns script selectors into driver queries for one platform.
type Resolver struct {
	Platform string // android (default) or ios
}

// NewResolver creates a resolver for the given platform label.
func NewResolver(platform string) *Resolver {
	return &Resolver{Platform: strings.ToLower(platform)}
}

// Resolve maps a selector to a query. Empty or malformed selectors are
// rejected with a selector error before anything reaches the driver.
func (r *Resolver) Resolve(sel script.Selector) (core.Query, error) {
	kind := sel.Kind()
	if kind == script.SelectorNone {
		return core.Query{}, core.NewSelectorError("selector must set exactly one of text, xpath, class_name, id, description")
	}
	value := sel.Value()
	if strings.TrimSpace(value) == "" {
		return core.Query{}, core.NewSelectorError("%s selector is empty", kind)
	}
	if strings.ContainsAny(value, "\x00\n\r") {
		return core.Query{}, core.NewSelectorError("%s selector contains a control character: %q", kind, value)
	}
	if sel.Instance != nil && *sel.Instance < 0 {
		return core.Query{}, core.NewSelectorError("instance must be >= 0, got %d", *sel.Instance)
	}
	if sel.Index != nil && *sel.Index < 0 {
		return core.Query{}, core.NewSelectorError("index must be >= 0, got %d", *sel.Index)
	}

	if kind == script.SelectorXPath {
		if !strings.HasPrefix(value, "/") && !strings.HasPrefix(value, "(") && !strings.HasPrefix(value, ".") {
			return core.Query{}, core.NewSelectorError("xpath must start with '/', '(' or '.': %q", value)
		}
		return core.Query{Strategy: core.StrategyXPath, Value: value}, nil
	}

	if r.Platform == "ios" {
		return resolveIOS(kind, sel), nil
	}
	return resolveAndroid(kind, sel), nil
}

func resolveAndroid(kind script.SelectorKind, sel script.Selector) core.Query {
	var q string
	switch kind {
	case script.SelectorText:
		q = fmt.Sprintf(`new UiSelector().textMatches("%s")`, escapeQuoted(sel.Text))
	case script.SelectorDescription:
		q = fmt.Sprintf(`new UiSelector().descriptionMatches("%s")`, escapeQuoted(sel.Description))
	case script.SelectorResourceID:
		q = fmt.Sprintf(`new UiSelector().resourceIdMatches("%s")`, escapeQuoted(sel.ID))
		if sel.Index != nil {
			q += fmt.Sprintf(".instance(%d)", *sel.Index)
		}
	case script.SelectorClassName:
		q = fmt.Sprintf(`new UiSelector().className("%s")`, escapeQuoted(sel.ClassName))
		if sel.Instance != nil {
			q += fmt.Sprintf(".instance(%d)", *sel.Instance)
		}
	}
	return core.Query{Strategy: core.StrategyUiAutomator, Value: q}
}

// resolveIOS maps selectors onto XCUITest strategies. Class chain indexes
// are 1-based.
func resolveIOS(kind script.SelectorKind, sel script.Selector) core.Query {
	switch kind {
	case script.SelectorText:
		t := escapeQuoted(sel.Text)
		return core.Query{
			Strategy: core.StrategyPredicate,
			Value:    fmt.Sprintf(`label MATCHES "%s" OR value MATCHES "%s"`, t, t),
		}
	case script.SelectorDescription:
		return core.Query{Strategy: core.StrategyAccessibilityID, Value: sel.Description}
	case script.SelectorResourceID:
		if sel.Index != nil {
			return core.Query{
				Strategy: core.StrategyClassChain,
				Value:    fmt.Sprintf("**/*[`name MATCHES \"%s\"`][%d]", escapeQuoted(sel.ID), *sel.Index+1),
			}
		}
		return core.Query{
			Strategy: core.StrategyPredicate,
			Value:    fmt.Sprintf(`name MATCHES "%s"`, escapeQuoted(sel.ID)),
		}
	default:
		v := "**/" + sel.ClassName
		if sel.Instance != nil {
			v += fmt.Sprintf("[%d]", *sel.Instance+1)
		}
		return core.Query{Strategy: core.StrategyClassChain, Value: v}
	}
}

// escapeQuoted escapes a literal for embedding between double quotes.
func escapeQuoted(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
