package tier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rcliao/agent-gateway/internal/compress"
	"github.com/rcliao/agent-gateway/internal/model"
)

// ArchiveResult summarizes one archival batch.
type ArchiveResult struct {
	Archived int
	Failed   int
}

// ArchiverOptions tunes promotion into long-term storage.
type ArchiverOptions struct {
	// Keyframes also stores compressed keyframe records alongside each
	// session archive.
	Keyframes bool
	Compress  compress.Options
}

// Archiver promotes aged short-term sessions into the long-term store.
// It is the only writer of either memory store besides the mirror sync.
// Promotion is at-least-once: the short-term entry is deleted only
// after the long-term insert succeeded, so a crash in between can
// duplicate an archive but never lose one.
type Archiver struct {
	short  ShortStore
	long   LongStore
	opts   ArchiverOptions
	logger *slog.Logger
}

// NewArchiver returns an Archiver over the given stores.
func NewArchiver(short ShortStore, long LongStore, opts ArchiverOptions, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Compress == (compress.Options{}) {
		opts.Compress = compress.DefaultOptions()
	}
	return &Archiver{short: short, long: long, opts: opts, logger: logger.With("component", "archiver")}
}

// Archive scans short-term sessions last touched before the cutoff and
// promotes up to batchSize of them. A failed insert leaves the
// short-term entry in place and the batch moves on.
func (a *Archiver) Archive(ctx context.Context, cutoff time.Time, batchSize int) (ArchiveResult, error) {
	var res ArchiveResult

	keys, err := a.short.SessionsBefore(ctx, cutoff, batchSize)
	if err != nil {
		return res, fmt.Errorf("scan short-term sessions: %w", err)
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := a.archiveSession(ctx, key); err != nil {
			a.logger.Warn("archival failed, keeping short-term entry", "session_key", key, "error", err)
			res.Failed++
			continue
		}
		res.Archived++
	}

	if res.Archived > 0 || res.Failed > 0 {
		a.logger.Info("archive batch done", "archived", res.Archived, "failed", res.Failed)
	}
	return res, nil
}

func (a *Archiver) archiveSession(ctx context.Context, sessionKey string) error {
	messages, err := a.short.Messages(ctx, sessionKey)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return a.short.DeleteSession(ctx, sessionKey)
	}

	rec := formatArchive(sessionKey, messages)
	inserted, err := a.long.Insert(ctx, rec)
	if err != nil {
		return fmt.Errorf("insert archive: %w", err)
	}

	if a.opts.Keyframes {
		// Keyframe storage rides along best-effort; the archive record
		// above is the durability guarantee.
		if err := a.storeKeyframes(ctx, sessionKey, inserted.ID, messages); err != nil {
			a.logger.Warn("keyframe storage failed", "session_key", sessionKey, "error", err)
		}
	}

	return a.short.DeleteSession(ctx, sessionKey)
}

func (a *Archiver) storeKeyframes(ctx context.Context, sessionKey, archiveID string, messages []model.Message) error {
	for _, frame := range compress.Compress(messages, a.opts.Compress) {
		_, err := a.long.Insert(ctx, model.LongTermRecord{
			Schema:     model.SchemaKeyframeV1,
			Content:    frame.Core,
			Importance: frame.Importance,
			Tags:       frame.Keywords,
			Metadata: map[string]string{
				"session_key":  sessionKey,
				"archive_id":   archiveID,
				"sequence":     fmt.Sprintf("%d", frame.Sequence),
				"role":         frame.Role,
				"content_type": string(frame.ContentType),
				"strategy":     frame.Strategy,
				"details":      strings.Join(frame.Details, "\n"),
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// formatArchive renders a session's messages into one long-term record.
func formatArchive(sessionKey string, messages []model.Message) model.LongTermRecord {
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}
	return model.LongTermRecord{
		Schema:  model.SchemaArchiveV1,
		Content: b.String(),
		Metadata: map[string]string{
			"session_key":   sessionKey,
			"message_count": fmt.Sprintf("%d", len(messages)),
		},
		Tags: []string{"session-archive"},
	}
}
