package hooks

import "testing"

func TestMatcher(t *testing.T) {
	tests := []struct {
		name      string
		matcher   Matcher
		eventType string
		want      bool
	}{
		{"exact match", Exact("heartbeat"), "heartbeat", true},
		{"exact mismatch", Exact("heartbeat"), "heartbeats", false},
		{"exact ignores subtype", Exact("cron"), "cron:hourly", false},
		{"tier bare", Tier("cron"), "cron", true},
		{"tier subtype", Tier("cron"), "cron:hourly", true},
		{"tier deep subtype", Tier("cron"), "cron:hourly:retry", true},
		{"tier prefix is not substring", Tier("cron"), "cronjob", false},
		{"tier mismatch", Tier("cron"), "heartbeat", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.matcher.Matches(tt.eventType); got != tt.want {
				t.Errorf("%s.Matches(%q) = %v, want %v", tt.matcher, tt.eventType, got, tt.want)
			}
		})
	}
}
