package ventricle

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/ventricle/definition"
	"github.com/pevans/ventricle/feed"
	"github.com/pevans/ventricle/flow"
	"github.com/pevans/ventricle/template"
)

// Candidate variable names for each item field, first non-blank wins.
var (
	titleKeys   = []string{"title", "headline"}
	contentKeys = []string{"content", "body", "summary", "description"}
	urlKeys     = []string{"url", "link", "href"}
	expiryKeys  = []string{"expiresAt", "expires", "expiry"}
)

var expiryLayouts = []string{
	time.RFC3339,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Seed returns the scope a flow starts from: the resolved anchor under both
// of its names.
func Seed(anchor string) *template.Scope {
	seed := template.NewScope()
	seed.Set("anchor", anchor)
	seed.Set("anchorValue", anchor)
	return seed
}

// NewItem derives an item from a flow's output variables. The first
// non-blank candidate variable wins for each field.
func NewItem(def *definition.Definition, anchor string, result *flow.Result, now time.Time) feed.Item {
	vars := result.Variables

	item := feed.Item{
		ID:          uuid.New(),
		PulseID:     def.ID,
		Title:       firstNonBlank(vars, titleKeys, def.Name),
		Content:     firstNonBlank(vars, contentKeys, anchor),
		CreatedAt:   now,
		AnchorValue: anchor,
	}

	var lastVisited string
	if n := len(result.VisitedURLs); n > 0 {
		lastVisited = result.VisitedURLs[n-1]
	}
	item.URL = firstNonBlank(vars, urlKeys, lastVisited)

	if raw := firstNonBlank(vars, expiryKeys, ""); raw != "" {
		item.ExpiresAt = parseExpiry(raw)
	}

	return item
}

func firstNonBlank(vars *template.Scope, keys []string, fallback string) string {
	for _, k := range keys {
		if v, ok := vars.Get(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return fallback
}

// parseExpiry returns nil unless raw is a valid date in one of the
// accepted layouts.
func parseExpiry(raw string) *time.Time {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
