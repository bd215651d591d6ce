// Package tier keeps the short-term mirror in step with transcripts in
// real time and promotes aged sessions into long-term storage.
package tier

import (
	"context"
	"log/slog"
	"time"

	"github.com/rcliao/agent-gateway/internal/model"
	"github.com/rcliao/agent-gateway/internal/session"
)

// KeyResolver maps transcript paths back to session keys. Satisfied by
// session.Store.
type KeyResolver interface {
	FindSessionKeyByTranscriptPath(path string) (string, bool)
}

// ShortStore is the mirror-facing slice of the short-term store.
type ShortStore interface {
	ReplaceSession(ctx context.Context, sessionKey string, messages []model.Message) error
	Messages(ctx context.Context, sessionKey string) ([]model.Message, error)
	SessionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteSession(ctx context.Context, sessionKey string) error
}

// LongStore is the archival-facing slice of the long-term store.
type LongStore interface {
	Insert(ctx context.Context, rec model.LongTermRecord) (*model.LongTermRecord, error)
}

// SubscriberID is the bus id under which the mirror subscribes; using a
// fixed id means re-wiring the sync replaces the old subscription
// instead of doubling it.
const SubscriberID = "tier-mirror"

// Sync mirrors transcript deltas into the short-term store. The mirror
// is always a full re-derivation: the transcript is re-parsed and the
// session's rows are replaced wholesale, trading work for immunity to
// partial-append divergence.
type Sync struct {
	sessions KeyResolver
	short    ShortStore
	logger   *slog.Logger
}

// NewSync returns a mirror sync over the given stores.
func NewSync(sessions KeyResolver, short ShortStore, logger *slog.Logger) *Sync {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sync{sessions: sessions, short: short, logger: logger.With("component", "tier")}
}

// OnTranscriptUpdate re-derives the short-term mirror for the session
// owning the updated transcript. Updates for unknown paths are ignored.
func (s *Sync) OnTranscriptUpdate(ctx context.Context, update model.TranscriptUpdate) error {
	key, ok := s.sessions.FindSessionKeyByTranscriptPath(update.SessionFile)
	if !ok {
		s.logger.Debug("update for unindexed transcript", "file", update.SessionFile)
		return nil
	}

	messages, err := session.ReadMessages(update.SessionFile)
	if err != nil {
		return err
	}
	return s.short.ReplaceSession(ctx, key, messages)
}

// BusHandler adapts the sync to a bus subscription; mirror errors are
// logged, not propagated, so other subscribers still run.
func (s *Sync) BusHandler(ctx context.Context) func(model.TranscriptUpdate) {
	return func(update model.TranscriptUpdate) {
		if err := s.OnTranscriptUpdate(ctx, update); err != nil {
			s.logger.Error("mirror update failed", "file", update.SessionFile, "error", err)
		}
	}
}
