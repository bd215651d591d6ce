package gateway

import (
	"sync"
	"time"
)

// Notifier suppresses repeats of the same alert within a cooldown
// window. Alerts are keyed per scope (usually a session key), so one
// conversation's noisy alert cannot silence another's.
type Notifier struct {
	cooldown time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewNotifier returns a Notifier with the given cooldown.
func NewNotifier(cooldown time.Duration) *Notifier {
	return &Notifier{
		cooldown: cooldown,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether the alert may fire now, and records it if so.
func (n *Notifier) Allow(scope, alert string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := scope + "\x00" + alert
	now := n.now()
	if at, ok := n.last[key]; ok && now.Sub(at) < n.cooldown {
		return false
	}
	n.last[key] = now
	return true
}
