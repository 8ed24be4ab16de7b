package script

import (
	"fmt"
	"strconv"
)

// SelectorKind identifies which selector variant is populated.
type SelectorKind int

const (
	SelectorNone SelectorKind = iota
	SelectorText
	SelectorXPath
	SelectorClassName
	SelectorResourceID
	SelectorDescription
)

// String returns the YAML key of the selector kind.
func (k SelectorKind) String() string {
	switch k {
	case SelectorText:
		return "text"
	case SelectorXPath:
		return "xpath"
	case SelectorClassName:
		return "class_name"
	case SelectorResourceID:
		return "id"
	case SelectorDescription:
		return "description"
	default:
		return "none"
	}
}

// Selector describes how to locate a UI element. Exactly one of Text, XPath,
// ClassName, ID or Description is set. Instance only qualifies ClassName and
// Index only qualifies ID; both are 0-based.
//
// Variant records which key the script declared, so that an empty value
// such as text: "" still has a kind and can be rejected by the resolver.
type Selector struct {
	Variant     SelectorKind `yaml:"-" json:"-"`
	Text        string       `yaml:"text" json:"text,omitempty"`
	XPath       string       `yaml:"xpath" json:"xpath,omitempty"`
	ClassName   string       `yaml:"class_name" json:"class_name,omitempty"`
	Instance    *int         `yaml:"instance" json:"instance,omitempty"`
	ID          string       `yaml:"id" json:"id,omitempty"`
	Index       *int         `yaml:"index" json:"index,omitempty"`
	Description string       `yaml:"description" json:"description,omitempty"`
}

// Kind returns the selector variant. Without an explicit Variant it is
// derived from the populated fields, and is SelectorNone when zero or more
// than one are set.
func (s *Selector) Kind() SelectorKind {
	if s.Variant != SelectorNone {
		return s.Variant
	}
	var kinds []SelectorKind
	if s.Text != "" {
		kinds = append(kinds, SelectorText)
	}
	if s.XPath != "" {
		kinds = append(kinds, SelectorXPath)
	}
	if s.ClassName != "" {
		kinds = append(kinds, SelectorClassName)
	}
	if s.ID != "" {
		kinds = append(kinds, SelectorResourceID)
	}
	if s.Description != "" {
		kinds = append(kinds, SelectorDescription)
	}
	if len(kinds) != 1 {
		return SelectorNone
	}
	return kinds[0]
}

// Value returns the literal of the populated variant.
func (s *Selector) Value() string {
	switch s.Kind() {
	case SelectorText:
		return s.Text
	case SelectorXPath:
		return s.XPath
	case SelectorClassName:
		return s.ClassName
	case SelectorResourceID:
		return s.ID
	case SelectorDescription:
		return s.Description
	}
	return ""
}

var selectorKeys = map[string]SelectorKind{
	"text":        SelectorText,
	"xpath":       SelectorXPath,
	"class_name":  SelectorClassName,
	"id":          SelectorResourceID,
	"description": SelectorDescription,
}

// selectorKindFromKeys applies the one-variant rule to the keys a script
// declared and checks that qualifiers sit on the right variant.
func selectorKindFromKeys(keys []string) (SelectorKind, error) {
	var kinds []string
	kind := SelectorNone
	var hasInstance, hasIndex bool
	for _, k := range keys {
		if v, ok := selectorKeys[k]; ok {
			kinds = append(kinds, k)
			kind = v
		}
		hasInstance = hasInstance || k == "instance"
		hasIndex = hasIndex || k == "index"
	}
	switch len(kinds) {
	case 0:
		return SelectorNone, fmt.Errorf("selector must set one of text, xpath, class_name, id, description")
	case 1:
	default:
		return SelectorNone, fmt.Errorf("selector sets both %s and %s; exactly one is allowed", kinds[0], kinds[1])
	}
	if hasInstance && kind != SelectorClassName {
		return SelectorNone, fmt.Errorf("instance is only valid with class_name")
	}
	if hasIndex && kind != SelectorResourceID {
		return SelectorNone, fmt.Errorf("index is only valid with id")
	}
	return kind, nil
}

// Describe returns a human-readable selector description, e.g. text="Login".
func (s *Selector) Describe() string {
	switch s.Kind() {
	case SelectorText:
		return "text=" + strconv.Quote(s.Text)
	case SelectorXPath:
		return "xpath=" + strconv.Quote(s.XPath)
	case SelectorClassName:
		if s.Instance != nil {
			return fmt.Sprintf("class_name=%q[%d]", s.ClassName, *s.Instance)
		}
		return "class_name=" + strconv.Quote(s.ClassName)
	case SelectorResourceID:
		if s.Index != nil {
			return fmt.Sprintf("id=%q[%d]", s.ID, *s.Index)
		}
		return "id=" + strconv.Quote(s.ID)
	case SelectorDescription:
		return "description=" + strconv.Quote(s.Description)
	default:
		return "<invalid selector>"
	}
}
