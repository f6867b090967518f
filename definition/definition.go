// Package definition parses and validates pulse definitions: a change anchor
// plus an ordered list of fetch steps with named extraction rules.
package definition

import (
	"path/filepath"
	"strings"
)

// Default values applied during normalization.
const (
	DefaultAttribute = "innerText"
	DefaultJoinWith  = "\n"
	ActionFetch      = "fetch"
)

// Definition is a parsed, validated pulse definition. It is never mutated
// after Parse returns.
type Definition struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Heartbeat string `json:"heartbeat"`
	Anchor    Anchor `json:"anchor"`
	Flow      []Step `json:"flow"`
}

// Anchor is the single-node lookup used to decide whether the resource
// changed.
type Anchor struct {
	URL       string `json:"url"`
	Select    string `json:"select"`
	Attribute string `json:"attribute"`
}

// Step is one fetch in the flow. Extract keeps the declaration order of the
// rules.
type Step struct {
	Step    int         `json:"step"`
	Action  string      `json:"action"`
	URL     string      `json:"url"`
	Extract []NamedRule `json:"extract"`
}

// NamedRule binds an extraction rule to the variable it produces.
type NamedRule struct {
	Name string      `json:"name"`
	Rule ExtractRule `json:"rule"`
}

// ExtractRule describes how to produce one variable. Either Select or
// Template is set; a rule with only a Template performs no DOM lookup and has
// an empty Attribute.
type ExtractRule struct {
	Select    string       `json:"select,omitempty"`
	Attribute string       `json:"attribute,omitempty"`
	Prefix    string       `json:"prefix,omitempty"`
	Suffix    string       `json:"suffix,omitempty"`
	Required  bool         `json:"required"`
	All       bool         `json:"all"`
	JoinWith  string       `json:"joinWith"`
	Template  string       `json:"template,omitempty"`
	Fields    []NamedField `json:"fields,omitempty"`
}

// IsTemplateOnly reports whether the rule is a pure substitution.
func (r ExtractRule) IsTemplateOnly() bool {
	return r.Select == ""
}

// NamedField binds a field rule to its name in the per-element scope.
type NamedField struct {
	Name  string    `json:"name"`
	Field FieldRule `json:"field"`
}

// FieldRule is a lookup scoped to an already-matched outer node.
type FieldRule struct {
	Select    string `json:"select"`
	Attribute string `json:"attribute"`
	Required  bool   `json:"required"`
}

var definitionExtensions = map[string]bool{
	".pulse": true,
	".json":  true,
	".yaml":  true,
	".yml":   true,
}

// IsDefinitionFile reports whether path looks like a pulse definition by its
// extension. Hidden files and editor backups are never definitions.
func IsDefinitionFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return definitionExtensions[strings.ToLower(filepath.Ext(base))]
}
