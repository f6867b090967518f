package definition

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultHeartbeat is used whenever a heartbeat is absent or malformed.
const DefaultHeartbeat = "1h"

var heartbeatPattern = regexp.MustCompile(`^\d+[mhd]$`)

// NormalizeHeartbeat lowercases raw, strips all whitespace, and returns it if
// it has the form <digits><m|h|d>. Anything else becomes DefaultHeartbeat.
func NormalizeHeartbeat(raw string) string {
	s := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	if !heartbeatPattern.MatchString(s) {
		return DefaultHeartbeat
	}
	if _, err := strconv.Atoi(s[:len(s)-1]); err != nil {
		return DefaultHeartbeat
	}
	return s
}

// HeartbeatDuration converts a heartbeat string to a duration, normalizing it
// first.
func HeartbeatDuration(heartbeat string) time.Duration {
	s := NormalizeHeartbeat(heartbeat)
	n, _ := strconv.Atoi(s[:len(s)-1])

	var unit time.Duration
	switch s[len(s)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	default:
		unit = 24 * time.Hour
	}
	return time.Duration(n) * unit
}
