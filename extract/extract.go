// Package extract evaluates extraction rules against parsed HTML documents
// and stores the results in a template.Scope.
package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pevans/ventricle/definition"
	"github.com/pevans/ventricle/template"
)

// NoExtractedValueError is returned when a required rule produced no usable
// value.
type NoExtractedValueError struct {
	Rule string
}

func (e *NoExtractedValueError) Error() string {
	return fmt.Sprintf("no value extracted for %q", e.Rule)
}

// MissingFieldError is returned when a required field of a required rule
// could not be read from a matched element.
type MissingFieldError struct {
	Rule  string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q in %q", e.Field, e.Rule)
}

// Apply runs rules against doc, storing each produced value in scope under
// the rule's name. Rules with a selector run before template-only rules so
// the latter can reference the former; declaration order is kept within each
// group. The first required failure aborts and is returned.
func Apply(doc Document, rules []definition.NamedRule, scope *template.Scope) error {
	ordered := make([]definition.NamedRule, 0, len(rules))
	for _, r := range rules {
		if !r.Rule.IsTemplateOnly() {
			ordered = append(ordered, r)
		}
	}
	for _, r := range rules {
		if r.Rule.IsTemplateOnly() {
			ordered = append(ordered, r)
		}
	}

	for _, r := range ordered {
		value, ok, err := Value(doc, r.Name, r.Rule, scope)
		if err != nil {
			return fmt.Errorf("extract %s: %w", r.Name, err)
		}
		if ok {
			scope.Set(r.Name, value)
		}
	}
	return nil
}

// ExtractOne evaluates a single-valued rule. ok is false when an optional
// rule produced nothing.
func ExtractOne(doc Document, name string, rule definition.ExtractRule, scope *template.Scope) (string, bool, error) {
	rule.All = false
	return Value(doc, name, rule, scope)
}

// ExtractAll evaluates rule over every match, joining results with the
// rule's JoinWith.
func ExtractAll(doc Document, name string, rule definition.ExtractRule, scope *template.Scope) (string, bool, error) {
	rule.All = true
	return Value(doc, name, rule, scope)
}

// Value evaluates rule against doc without modifying scope. ok is false when
// an optional rule produced nothing; a required rule that produces nothing
// returns an error instead.
func Value(doc Document, name string, rule definition.ExtractRule, scope *template.Scope) (string, bool, error) {
	var results []string

	if rule.IsTemplateOnly() {
		out, err := template.Resolve(rule.Template, scope, rule.Required)
		if err != nil {
			return "", false, err
		}
		if strings.TrimSpace(out) != "" {
			results = append(results, out)
		}
	} else {
		matches := doc.Query(rule.Select)
		if !rule.All && len(matches) > 1 {
			matches = matches[:1]
		}

		for i, node := range matches {
			out, keep, err := elementValue(node, i, name, rule, scope)
			if err != nil {
				return "", false, err
			}
			if !keep || strings.TrimSpace(out) == "" {
				continue
			}
			results = append(results, out)
			if !rule.All {
				break
			}
		}
	}

	if len(results) == 0 {
		if rule.Required {
			return "", false, &NoExtractedValueError{Rule: name}
		}
		return "", false, nil
	}

	value := results[0]
	if rule.All {
		value = strings.Join(results, rule.JoinWith)
	}

	prefix, _ := template.Resolve(rule.Prefix, scope, false)
	suffix, _ := template.Resolve(rule.Suffix, scope, false)
	return prefix + value + suffix, true, nil
}

// elementValue computes the result for one matched node. keep is false when
// an optional rule skips the element.
func elementValue(node Node, index int, name string, rule definition.ExtractRule, scope *template.Scope) (string, bool, error) {
	base := ReadAttribute(node, rule.Attribute)

	elem := scope.Clone()
	elem.Set("index", strconv.Itoa(index))
	elem.Set("n", strconv.Itoa(index+1))
	if base != "" {
		elem.Set("value", base)
		elem.Set("text", base)
	}
	if html := strings.TrimSpace(node.InnerHTML()); html != "" {
		elem.Set("html", html)
	}
	if outer := strings.TrimSpace(node.OuterHTML()); outer != "" {
		elem.Set("outerHtml", outer)
	}

	for _, f := range rule.Fields {
		var v string
		if found := node.QuerySelfOrDescendants(f.Field.Select); len(found) > 0 {
			v = ReadAttribute(found[0], f.Field.Attribute)
		}
		if v == "" && f.Field.Required {
			if rule.Required {
				return "", false, &MissingFieldError{Rule: name, Field: f.Name}
			}
			return "", false, nil
		}
		elem.Set(f.Name, v)
	}

	if rule.Template == "" {
		return base, true, nil
	}

	out, err := template.Resolve(rule.Template, elem, rule.Required)
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}
