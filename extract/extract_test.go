package extract

import (
	"errors"
	"testing"

	"github.com/pevans/ventricle/definition"
	"github.com/pevans/ventricle/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productPage = `
<html>
	<body>
		<h1>  Weekly
			Deals  </h1>
		<span id="count" data-count=" 42 ">5</span>
		<a class="more" href="/deals/42">More</a>
		<div id="body"><p>Hello <b>world</b></p></div>
		<ul>
			<li class="item"><span class="name">Apple</span><span class="price" data-value="1.20">$1.20</span></li>
			<li class="item"><span class="name">Pear</span></li>
			<li class="item name">Plum<span class="price" data-value="0.80">$0.80</span></li>
			<li class="item"><span class="name">   </span></li>
		</ul>
	</body>
</html>
`

func parseTestDoc(t *testing.T, html string) Document {
	doc, err := ParseHTMLString(html)
	require.NoError(t, err)
	return doc
}

func selectRule(sel string) definition.ExtractRule {
	return definition.ExtractRule{
		Select:    sel,
		Attribute: "innerText",
		Required:  true,
		JoinWith:  "\n",
	}
}

// TestReadAttribute verifies attribute keyword semantics
func TestReadAttribute(t *testing.T) {
	doc := parseTestDoc(t, productPage)

	h1 := doc.Query("h1")[0]
	assert.Equal(t, "Weekly Deals", ReadAttribute(h1, "innerText"), "should collapse whitespace")
	assert.Equal(t, "Weekly Deals", ReadAttribute(h1, "text"))
	assert.Equal(t, "Weekly Deals", ReadAttribute(h1, "textContent"))

	body := doc.Query("#body")[0]
	assert.Equal(t, "<p>Hello <b>world</b></p>", ReadAttribute(body, "innerHtml"))
	assert.Equal(t, "<p>Hello <b>world</b></p>", ReadAttribute(body, "html"))
	assert.Equal(t, `<div id="body"><p>Hello <b>world</b></p></div>`, ReadAttribute(body, "outerHtml"))
	assert.Equal(t, "Hello **world**", ReadAttribute(body, "markdown"))

	count := doc.Query("#count")[0]
	assert.Equal(t, "42", ReadAttribute(count, "data-count"), "should trim DOM attributes")
	assert.Equal(t, "", ReadAttribute(count, "data-missing"))
}

// TestValue_FirstMatch verifies single-valued selector rules
func TestValue_FirstMatch(t *testing.T) {
	doc := parseTestDoc(t, productPage)

	value, ok, err := Value(doc, "name", selectRule(".name"), template.NewScope())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Apple", value)
}

// TestValue_All verifies joined multi-valued rules skip blanks
func TestValue_All(t *testing.T) {
	doc := parseTestDoc(t, productPage)
	rule := selectRule("span.name")
	rule.All = true
	rule.JoinWith = ", "

	value, ok, err := Value(doc, "names", rule, template.NewScope())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Apple, Pear", value)
}

// TestValue_TemplatePerElement verifies the per-element scope variables
func TestValue_TemplatePerElement(t *testing.T) {
	doc := parseTestDoc(t, productPage)
	rule := selectRule("span.name")
	rule.All = true
	rule.Required = false
	rule.Template = "{{n}}/{{index}}:{{value}}@{{site}}"
	rule.JoinWith = "|"

	scope := template.ScopeFrom(map[string]string{"site": "shop"})
	value, ok, err := Value(doc, "names", rule, scope)
	require.NoError(t, err)
	assert.True(t, ok)
	// The blank fourth name has no value, so its lenient template still
	// renders; only fully blank results are dropped.
	assert.Equal(t, "1/0:Apple@shop|2/1:Pear@shop|3/2:@shop", value)
	_, leaked := scope.Get("value")
	assert.False(t, leaked, "per-element variables must not leak into the outer scope")
}

// TestValue_Fields verifies self-or-descendant field lookups
func TestValue_Fields(t *testing.T) {
	doc := parseTestDoc(t, productPage)
	rule := selectRule("li.item")
	rule.All = true
	rule.Required = false
	rule.JoinWith = ";"
	rule.Template = "{{name}}={{price}}"
	rule.Fields = []definition.NamedField{
		{Name: "name", Field: definition.FieldRule{Select: ".name", Attribute: "innerText", Required: true}},
		{Name: "price", Field: definition.FieldRule{Select: ".price", Attribute: "data-value", Required: true}},
	}

	value, ok, err := Value(doc, "rows", rule, template.NewScope())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Apple=1.20;Plum$0.80=0.80", value, "Pear lacks a price and is skipped; Plum matches itself")
}

// TestValue_RequiredFieldMissing verifies a required outer rule aborts
func TestValue_RequiredFieldMissing(t *testing.T) {
	doc := parseTestDoc(t, productPage)
	rule := selectRule("li.item")
	rule.All = true
	rule.Template = "{{price}}"
	rule.Fields = []definition.NamedField{
		{Name: "price", Field: definition.FieldRule{Select: ".price", Attribute: "data-value", Required: true}},
	}

	_, _, err := Value(doc, "rows", rule, template.NewScope())
	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "price", missing.Field)
	assert.Equal(t, "rows", missing.Rule)
}

// TestValue_OptionalFieldMissing verifies optional fields resolve to empty
func TestValue_OptionalFieldMissing(t *testing.T) {
	doc := parseTestDoc(t, productPage)
	rule := selectRule("li.item")
	rule.All = true
	rule.JoinWith = ","
	rule.Template = "{{name}}[{{price}}]"
	rule.Fields = []definition.NamedField{
		{Name: "name", Field: definition.FieldRule{Select: "span.name", Attribute: "innerText", Required: true}},
		{Name: "price", Field: definition.FieldRule{Select: ".price", Attribute: "data-value", Required: false}},
	}
	rule.Required = false

	value, ok, err := Value(doc, "rows", rule, template.NewScope())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Apple[1.20],Pear[]", value)
}

// TestValue_NoMatch verifies required vs optional behavior
func TestValue_NoMatch(t *testing.T) {
	doc := parseTestDoc(t, productPage)

	rule := selectRule(".does-not-exist")
	_, ok, err := Value(doc, "ghost", rule, template.NewScope())
	var noValue *NoExtractedValueError
	require.True(t, errors.As(err, &noValue))
	assert.Equal(t, "ghost", noValue.Rule)
	assert.False(t, ok)

	rule.Required = false
	_, ok, err = Value(doc, "ghost", rule, template.NewScope())
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestValue_TemplateOnly verifies pure substitution rules
func TestValue_TemplateOnly(t *testing.T) {
	doc := parseTestDoc(t, productPage)
	rule := definition.ExtractRule{Template: "{{a}}-{{b}}", Required: true, JoinWith: "\n"}

	value, ok, err := Value(doc, "ab", rule, template.ScopeFrom(map[string]string{"a": "x", "b": "y"}))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x-y", value)

	_, _, err = Value(doc, "ab", rule, template.ScopeFrom(map[string]string{"a": "x"}))
	var missing *template.MissingVariablesError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"b"}, missing.Keys)

	rule.Required = false
	value, ok, err = Value(doc, "ab", rule, template.ScopeFrom(map[string]string{"a": "x"}))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x-", value)
}

// TestValue_PrefixSuffix verifies wrapping with leniently resolved templates
func TestValue_PrefixSuffix(t *testing.T) {
	doc := parseTestDoc(t, productPage)
	rule := selectRule("a.more")
	rule.Attribute = "href"
	rule.Prefix = "{{base}}"
	rule.Suffix = "?ref={{missing}}"

	value, ok, err := Value(doc, "link", rule, template.ScopeFrom(map[string]string{"base": "http://shop.example"}))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://shop.example/deals/42?ref=", value)
}

// TestExtractOneAndAll verifies the single and multi-valued helpers
func TestExtractOneAndAll(t *testing.T) {
	doc := parseTestDoc(t, productPage)
	rule := selectRule("span.name")
	rule.JoinWith = "+"

	one, ok, err := ExtractOne(doc, "n", rule, template.NewScope())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Apple", one)

	all, ok, err := ExtractAll(doc, "n", rule, template.NewScope())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Apple+Pear", all)
}

// TestApply_TemplateRulesRunLast verifies template-only rules can reference
// selector rules declared after them
func TestApply_TemplateRulesRunLast(t *testing.T) {
	doc := parseTestDoc(t, productPage)
	rules := []definition.NamedRule{
		{Name: "summary", Rule: definition.ExtractRule{Template: "{{title}} has {{count}}", Required: true}},
		{Name: "title", Rule: selectRule("h1")},
		{Name: "count", Rule: selectRule("#count")},
		{Name: "optional", Rule: definition.ExtractRule{Select: ".nope", Attribute: "innerText"}},
	}

	scope := template.NewScope()
	require.NoError(t, Apply(doc, rules, scope))

	assert.Equal(t, []string{"title", "count", "summary"}, scope.Keys())
	summary, _ := scope.Get("summary")
	assert.Equal(t, "Weekly Deals has 5", summary)
}

// TestApply_RequiredFailureAborts verifies the error names the rule
func TestApply_RequiredFailureAborts(t *testing.T) {
	doc := parseTestDoc(t, productPage)
	rules := []definition.NamedRule{
		{Name: "title", Rule: selectRule("h1")},
		{Name: "ghost", Rule: selectRule(".ghost")},
	}

	err := Apply(doc, rules, template.NewScope())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract ghost")
	var noValue *NoExtractedValueError
	assert.True(t, errors.As(err, &noValue))
}
