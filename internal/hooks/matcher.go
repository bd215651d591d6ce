package hooks

import "strings"

type matchKind int

const (
	matchExact matchKind = iota
	matchTier
)

// Matcher decides whether a hook receives an event type. It is either an
// exact match or a tiered prefix: Tier("cron") matches "cron" and
// "cron:hourly" but not "cronjob".
type Matcher struct {
	kind  matchKind
	value string
}

// Exact matches the event type verbatim.
func Exact(eventType string) Matcher {
	return Matcher{kind: matchExact, value: eventType}
}

// Tier matches the bare type and any colon-qualified subtype.
func Tier(prefix string) Matcher {
	return Matcher{kind: matchTier, value: prefix}
}

// Matches reports whether the event type satisfies the matcher.
func (m Matcher) Matches(eventType string) bool {
	switch m.kind {
	case matchTier:
		return eventType == m.value || strings.HasPrefix(eventType, m.value+":")
	default:
		return eventType == m.value
	}
}

// String renders the matcher for logs.
func (m Matcher) String() string {
	if m.kind == matchTier {
		return m.value + ":*"
	}
	return m.value
}
