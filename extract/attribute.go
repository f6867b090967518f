package extract

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var markdownConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// ReadAttribute reads the base value of node. The keywords innerText, text
// and textContent yield whitespace-collapsed text; innerHtml and html the
// inner markup; outerHtml the element markup; markdown the inner markup
// rendered as Markdown. Any other name is read as a DOM attribute. Keywords
// are case-insensitive. The result is trimmed; "" means no value.
func ReadAttribute(node Node, attribute string) string {
	switch strings.ToLower(strings.TrimSpace(attribute)) {
	case "", "innertext", "text", "textcontent":
		return collapseWhitespace(node.Text())
	case "innerhtml", "html":
		return strings.TrimSpace(node.InnerHTML())
	case "outerhtml":
		return strings.TrimSpace(node.OuterHTML())
	case "markdown":
		md, err := markdownConverter.ConvertString(node.InnerHTML())
		if err != nil {
			return ""
		}
		return strings.TrimSpace(md)
	default:
		v, _ := node.Attr(strings.ToLower(strings.TrimSpace(attribute)))
		return strings.TrimSpace(v)
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
