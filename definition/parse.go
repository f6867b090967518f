package definition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// InvalidDefinitionError describes why a definition was rejected. Field points
// at the offending value, e.g. "flow[1].extract.title.select".
type InvalidDefinitionError struct {
	Field  string
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	if e.Field == "" {
		return "invalid definition: " + e.Reason
	}
	return fmt.Sprintf("invalid definition: %s %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &InvalidDefinitionError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Format is the textual encoding of a definition.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "yaml"
}

var utf8BOM = []byte("\xef\xbb\xbf")

// DetectFormat sniffs raw: input whose first non-space byte is '{' or '[' is
// JSON, everything else is the structured YAML-like format.
func DetectFormat(raw []byte) Format {
	t := bytes.TrimSpace(bytes.TrimPrefix(raw, utf8BOM))
	if len(t) > 0 && (t[0] == '{' || t[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// ParseFile reads and parses the definition stored at path.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes, validates and normalizes a definition. All failures are
// returned as *InvalidDefinitionError.
func Parse(raw []byte) (*Definition, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	format := DetectFormat(raw)

	var tree any
	var rd rawDefinition
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, invalid("", "malformed JSON: %v", err)
		}
		if err := checkShape(tree); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &rd); err != nil {
			return nil, invalid("", "%v", err)
		}
	default:
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, invalid("", "malformed document: %v", err)
		}
		if err := checkShape(tree); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &rd); err != nil {
			return nil, invalid("", "%v", err)
		}
	}

	return rd.normalize()
}

type rawDefinition struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Heartbeat string    `json:"heartbeat" yaml:"heartbeat"`
	Anchor    rawAnchor `json:"anchor" yaml:"anchor"`
	Flow      []rawStep `json:"flow" yaml:"flow"`
}

type rawAnchor struct {
	URL       string `json:"url" yaml:"url"`
	Select    string `json:"select" yaml:"select"`
	Attribute string `json:"attribute" yaml:"attribute"`
}

type rawStep struct {
	Step    int              `json:"step" yaml:"step"`
	Action  string           `json:"action" yaml:"action"`
	URL     string           `json:"url" yaml:"url"`
	Extract ordered[rawRule] `json:"extract" yaml:"extract"`
}

type rawRule struct {
	Select    string             `json:"select" yaml:"select"`
	Attribute string             `json:"attribute" yaml:"attribute"`
	Prefix    string             `json:"prefix" yaml:"prefix"`
	Suffix    string             `json:"suffix" yaml:"suffix"`
	Required  *bool              `json:"required" yaml:"required"`
	All       *bool              `json:"all" yaml:"all"`
	JoinWith  *string            `json:"joinWith" yaml:"joinWith"`
	Template  string             `json:"template" yaml:"template"`
	Fields    *ordered[rawField] `json:"fields" yaml:"fields"`
}

type rawField struct {
	Select    string `json:"select" yaml:"select"`
	Attribute string `json:"attribute" yaml:"attribute"`
	Required  *bool  `json:"required" yaml:"required"`
}

func (rd *rawDefinition) normalize() (*Definition, error) {
	def := &Definition{
		ID:        strings.TrimSpace(rd.ID),
		Name:      strings.TrimSpace(rd.Name),
		Heartbeat: NormalizeHeartbeat(rd.Heartbeat),
		Anchor: Anchor{
			URL:       strings.TrimSpace(rd.Anchor.URL),
			Select:    strings.TrimSpace(rd.Anchor.Select),
			Attribute: orDefault(rd.Anchor.Attribute, DefaultAttribute),
		},
	}
	if def.ID == "" {
		return nil, invalid("id", "must be a non-empty string")
	}
	if def.Name == "" {
		return nil, invalid("name", "must be a non-empty string")
	}

	for i, rs := range rd.Flow {
		path := fmt.Sprintf("flow[%d]", i)
		action := strings.TrimSpace(rs.Action)
		if action != ActionFetch {
			return nil, invalid(path+".action", "must be %q, got %q", ActionFetch, action)
		}

		step := Step{
			Step:   rs.Step,
			Action: action,
			URL:    strings.TrimSpace(rs.URL),
		}
		for _, e := range rs.Extract {
			name := strings.TrimSpace(e.key)
			rule, err := e.value.normalize(path + ".extract." + name)
			if err != nil {
				return nil, err
			}
			step.Extract = append(step.Extract, NamedRule{Name: name, Rule: rule})
		}
		def.Flow = append(def.Flow, step)
	}

	return def, nil
}

func (rr rawRule) normalize(path string) (ExtractRule, error) {
	rule := ExtractRule{
		Select:   strings.TrimSpace(rr.Select),
		Prefix:   rr.Prefix,
		Suffix:   rr.Suffix,
		Template: strings.TrimSpace(rr.Template),
		Required: boolOr(rr.Required, true),
		All:      boolOr(rr.All, false),
		JoinWith: DefaultJoinWith,
	}
	if rr.JoinWith != nil {
		rule.JoinWith = *rr.JoinWith
	}

	if rule.Select == "" && rule.Template == "" {
		return rule, invalid(path, "must have a select or a template")
	}
	if rr.Fields != nil && rule.Select == "" {
		return rule, invalid(path+".fields", "requires a select")
	}
	if rule.Select != "" {
		rule.Attribute = orDefault(rr.Attribute, DefaultAttribute)
	}

	if rr.Fields != nil {
		for _, e := range *rr.Fields {
			name := strings.TrimSpace(e.key)
			sel := strings.TrimSpace(e.value.Select)
			if sel == "" {
				return rule, invalid(path+".fields."+name+".select", "is required")
			}
			rule.Fields = append(rule.Fields, NamedField{
				Name: name,
				Field: FieldRule{
					Select:    sel,
					Attribute: orDefault(e.value.Attribute, DefaultAttribute),
					Required:  boolOr(e.value.Required, true),
				},
			})
		}
	}

	return rule, nil
}

// checkShape validates the structural types of the decoded tree before the
// typed decode, so that errors can point at the offending field.
func checkShape(tree any) error {
	root, ok := asObject(tree)
	if !ok {
		return invalid("", "root must be an object")
	}

	if _, ok := asObject(root["anchor"]); !ok {
		return invalid("anchor", "must be an object")
	}

	steps, ok := root["flow"].([]any)
	if !ok {
		return invalid("flow", "must be an array")
	}

	for i, s := range steps {
		path := fmt.Sprintf("flow[%d]", i)
		step, ok := asObject(s)
		if !ok {
			return invalid(path, "must be an object")
		}
		ex, present := step["extract"]
		if !present || ex == nil {
			continue
		}
		rules, ok := asObject(ex)
		if !ok {
			return invalid(path+".extract", "must be an object")
		}
		for name, r := range rules {
			rulePath := path + ".extract." + name
			rule, ok := asObject(r)
			if !ok {
				return invalid(rulePath, "must be an object")
			}
			fs, present := rule["fields"]
			if !present || fs == nil {
				continue
			}
			fields, ok := asObject(fs)
			if !ok {
				return invalid(rulePath+".fields", "must be an object")
			}
			for fname, f := range fields {
				if _, ok := asObject(f); !ok {
					return invalid(rulePath+".fields."+fname, "must be an object")
				}
			}
		}
	}

	return nil
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

type entry[T any] struct {
	key   string
	value T
}

// ordered decodes a JSON object or YAML mapping while keeping key order.
type ordered[T any] []entry[T]

func (o *ordered[T]) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("expected an object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected key %v", tok)
		}
		var v T
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*o = append(*o, entry[T]{key: key, value: v})
	}

	_, err = dec.Token()
	return err
}

func (o *ordered[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var v T
		if err := node.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*o = append(*o, entry[T]{key: key, value: v})
	}
	return nil
}
