package definition

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
	"id": " counter ",
	"name": "Counter page",
	"heartbeat": "15m",
	"anchor": {"url": "http://example.com/", "select": "#count"},
	"flow": [
		{
			"step": 2,
			"action": "fetch",
			"url": "{{detailUrl}}",
			"extract": {
				"title": {"select": "h1"},
				"summary": {"template": "{{title}} ({{count}})"},
				"tags": {"select": ".tag", "all": true, "joinWith": ", ", "required": false}
			}
		},
		{
			"step": 1,
			"action": "fetch",
			"url": "http://example.com/",
			"extract": {
				"detailUrl": {"select": "a.more", "attribute": "href"},
				"rows": {
					"select": "tr",
					"all": true,
					"template": "{{name}}={{price}}",
					"fields": {
						"name": {"select": ".name"},
						"price": {"select": ".price", "attribute": "data-value", "required": false}
					}
				}
			}
		}
	]
}`

const sampleYAML = `
id: counter
name: Counter page
heartbeat: 3 H
anchor:
  url: http://example.com/
  select: "#count"
  attribute: data-count
flow:
  - step: 1
    action: fetch
    url: "[http://example.com/list]"
    extract:
      zeta:
        select: .z
      alpha:
        template: "{{zeta}}!"
        prefix: "> "
`

// TestParse_JSON verifies a complete JSON definition is normalized
func TestParse_JSON(t *testing.T) {
	def, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "counter", def.ID, "should trim id")
	assert.Equal(t, "Counter page", def.Name)
	assert.Equal(t, "15m", def.Heartbeat)
	assert.Equal(t, "innerText", def.Anchor.Attribute, "anchor attribute should default")

	require.Len(t, def.Flow, 2)
	first := def.Flow[0]
	assert.Equal(t, 2, first.Step, "declaration order is kept; sorting happens at run time")
	require.Len(t, first.Extract, 3)
	assert.Equal(t, "title", first.Extract[0].Name)
	assert.Equal(t, "summary", first.Extract[1].Name)
	assert.Equal(t, "tags", first.Extract[2].Name)

	title := first.Extract[0].Rule
	assert.Equal(t, "innerText", title.Attribute)
	assert.True(t, title.Required)
	assert.False(t, title.All)
	assert.Equal(t, "\n", title.JoinWith)

	summary := first.Extract[1].Rule
	assert.True(t, summary.IsTemplateOnly())
	assert.Empty(t, summary.Attribute, "template-only rule has no attribute")

	tags := first.Extract[2].Rule
	assert.True(t, tags.All)
	assert.False(t, tags.Required)
	assert.Equal(t, ", ", tags.JoinWith)

	rows := def.Flow[1].Extract[1].Rule
	require.Len(t, rows.Fields, 2)
	assert.Equal(t, "name", rows.Fields[0].Name)
	assert.Equal(t, FieldRule{Select: ".name", Attribute: "innerText", Required: true}, rows.Fields[0].Field)
	assert.Equal(t, FieldRule{Select: ".price", Attribute: "data-value", Required: false}, rows.Fields[1].Field)
}

// TestParse_YAML verifies the structured-text format and key order
func TestParse_YAML(t *testing.T) {
	def, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "counter", def.ID)
	assert.Equal(t, "3h", def.Heartbeat)
	assert.Equal(t, "data-count", def.Anchor.Attribute)
	require.Len(t, def.Flow, 1)
	assert.Equal(t, "[http://example.com/list]", def.Flow[0].URL, "URL cleaning happens at resolution time")

	require.Len(t, def.Flow[0].Extract, 2)
	assert.Equal(t, "zeta", def.Flow[0].Extract[0].Name, "should keep mapping order")
	assert.Equal(t, "alpha", def.Flow[0].Extract[1].Name)
	assert.Equal(t, "> ", def.Flow[0].Extract[1].Rule.Prefix, "prefix whitespace is significant")
}

// TestParse_Invalid verifies every rejection reason points at its field
func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{
			name:  "array root",
			input: `[1, 2]`,
			field: "",
		},
		{
			name:  "scalar yaml root",
			input: `just text`,
			field: "",
		},
		{
			name:  "missing id",
			input: `{"name": "n", "anchor": {}, "flow": []}`,
			field: "id",
		},
		{
			name:  "blank name",
			input: `{"id": "x", "name": "   ", "anchor": {}, "flow": []}`,
			field: "name",
		},
		{
			name:  "anchor not an object",
			input: `{"id": "x", "name": "n", "anchor": "http://x", "flow": []}`,
			field: "anchor",
		},
		{
			name:  "flow not an array",
			input: `{"id": "x", "name": "n", "anchor": {}, "flow": {}}`,
			field: "flow",
		},
		{
			name:  "wrong action",
			input: `{"id": "x", "name": "n", "anchor": {}, "flow": [{"step": 1, "action": "post"}]}`,
			field: "flow[0].action",
		},
		{
			name:  "rule without select or template",
			input: `{"id": "x", "name": "n", "anchor": {}, "flow": [{"step": 1, "action": "fetch", "extract": {"t": {"attribute": "href"}}}]}`,
			field: "flow[0].extract.t",
		},
		{
			name:  "fields without select",
			input: `{"id": "x", "name": "n", "anchor": {}, "flow": [{"step": 1, "action": "fetch", "extract": {"t": {"template": "x", "fields": {"a": {"select": "b"}}}}}]}`,
			field: "flow[0].extract.t.fields",
		},
		{
			name:  "field without select",
			input: `{"id": "x", "name": "n", "anchor": {}, "flow": [{"step": 1, "action": "fetch", "extract": {"t": {"select": "li", "fields": {"a": {"attribute": "href"}}}}}]}`,
			field: "flow[0].extract.t.fields.a.select",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)

			var invalidErr *InvalidDefinitionError
			require.True(t, errors.As(err, &invalidErr), "should be an InvalidDefinitionError: %v", err)
			assert.Equal(t, tt.field, invalidErr.Field)
		})
	}
}

// TestParse_MalformedJSON verifies syntax errors are reported as invalid
// definitions
func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"id": `))

	var invalidErr *InvalidDefinitionError
	require.True(t, errors.As(err, &invalidErr))
	assert.Contains(t, err.Error(), "malformed JSON")
}

// TestDetectFormat verifies format sniffing
func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, DetectFormat([]byte("  \n{}")))
	assert.Equal(t, FormatJSON, DetectFormat([]byte("[]")))
	assert.Equal(t, FormatJSON, DetectFormat([]byte("\xef\xbb\xbf{}")))
	assert.Equal(t, FormatYAML, DetectFormat([]byte("id: x")))
	assert.Equal(t, FormatYAML, DetectFormat(nil))
}

// TestParseFile verifies reading from disk and error wrapping
func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counter.pulse")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	def, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "counter", def.ID)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"id": "x"}`), 0o600))
	_, err = ParseFile(bad)
	var invalidErr *InvalidDefinitionError
	assert.True(t, errors.As(err, &invalidErr))
	assert.Contains(t, err.Error(), "bad.json")

	_, err = ParseFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

// TestNormalizeHeartbeat verifies heartbeat normalization
func TestNormalizeHeartbeat(t *testing.T) {
	tests := map[string]string{
		"2h":      "2h",
		"15m":     "15m",
		"7d":      "7d",
		"garbage": "1h",
		"":        "1h",
		"3 H":     "3h",
		"1.5h":    "1h",
		"10s":     "1h",
	}

	for input, expected := range tests {
		assert.Equal(t, expected, NormalizeHeartbeat(input), "input %q", input)
	}
}

// TestHeartbeatDuration verifies unit conversion
func TestHeartbeatDuration(t *testing.T) {
	assert.Equal(t, 15*time.Minute, HeartbeatDuration("15m"))
	assert.Equal(t, 2*time.Hour, HeartbeatDuration("2h"))
	assert.Equal(t, 48*time.Hour, HeartbeatDuration("2d"))
	assert.Equal(t, time.Hour, HeartbeatDuration("nonsense"))
}

// TestCleanURL verifies pasted-link shapes are reduced to the URL
func TestCleanURL(t *testing.T) {
	assert.Equal(t, "https://a.example/x", CleanURL("[docs](https://a.example/x)"))
	assert.Equal(t, "https://a.example/x", CleanURL(" [https://a.example/x] "))
	assert.Equal(t, "https://a.example/{{id}}", CleanURL("https://a.example/{{id}}"))
	assert.Equal(t, "[a b]", CleanURL("[a b]"))
}

// TestIsDefinitionFile verifies extension discrimination
func TestIsDefinitionFile(t *testing.T) {
	assert.True(t, IsDefinitionFile("/p/counter.pulse"))
	assert.True(t, IsDefinitionFile("/p/counter.JSON"))
	assert.True(t, IsDefinitionFile("counter.yml"))
	assert.False(t, IsDefinitionFile("/p/.counter.json"))
	assert.False(t, IsDefinitionFile("/p/counter.json~"))
	assert.False(t, IsDefinitionFile("/p/notes.txt"))
}
