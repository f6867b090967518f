package definition

import (
	"regexp"
	"strings"
)

var (
	markdownLinkPattern = regexp.MustCompile(`^\[[^\]]*\]\(\s*([^()\s]+)\s*\)$`)
	bracketedURLPattern = regexp.MustCompile(`^\[\s*([^\[\]\s]+)\s*\]$`)
)

// CleanURL reduces a hand-pasted link to its bare URL. Both the Markdown form
// "[text](url)" and the bracketed form "[url]" are recognized; any other
// input is returned trimmed.
func CleanURL(raw string) string {
	s := strings.TrimSpace(raw)
	if m := markdownLinkPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := bracketedURLPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
