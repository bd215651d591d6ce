package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rcliao/agent-gateway/internal/model"
)

// ShortTermStore is the bounded mirror of recent transcript content,
// keyed by session. It never diverges from the transcript except as a
// rebuildable mirror: writers replace a session wholesale.
type ShortTermStore struct {
	db       *DB
	capacity int
	ttl      time.Duration
}

// ReplaceSession deletes the session's mirror and reinserts the given
// messages, keeping only the newest capacity messages.
func (s *ShortTermStore) ReplaceSession(ctx context.Context, sessionKey string, messages []model.Message) error {
	if s.capacity > 0 && len(messages) > s.capacity {
		messages = messages[len(messages)-s.capacity:]
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM short_term WHERE session_key = ?`, sessionKey); err != nil {
		return fmt.Errorf("clear mirror: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	for i, msg := range messages {
		var msgAt any
		if !msg.Timestamp.IsZero() {
			msgAt = msg.Timestamp.UTC().Format(timeLayout)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO short_term (id, session_key, seq, role, content, msg_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.db.newID(), sessionKey, i, msg.Role, msg.Content, msgAt, now)
		if err != nil {
			return fmt.Errorf("insert mirror row: %w", err)
		}
	}

	return tx.Commit()
}

// Messages returns the mirrored messages for a session in order.
func (s *ShortTermStore) Messages(ctx context.Context, sessionKey string) ([]model.Message, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT role, content, msg_at FROM short_term WHERE session_key = ? ORDER BY seq`,
		sessionKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		var msgAt sql.NullString
		if err := rows.Scan(&msg.Role, &msg.Content, &msgAt); err != nil {
			return nil, err
		}
		if msgAt.Valid {
			msg.Timestamp, _ = time.Parse(timeLayout, msgAt.String)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SessionsBefore returns up to limit session keys whose newest mirror
// write predates the cutoff. These are the archiver's candidates.
func (s *ShortTermStore) SessionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT session_key FROM short_term
		 GROUP BY session_key
		 HAVING MAX(created_at) < ?
		 ORDER BY MAX(created_at)
		 LIMIT ?`,
		cutoff.UTC().Format(timeLayout), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteSession removes a session's mirror entirely.
func (s *ShortTermStore) DeleteSession(ctx context.Context, sessionKey string) error {
	_, err := s.db.db.ExecContext(ctx, `DELETE FROM short_term WHERE session_key = ?`, sessionKey)
	return err
}

// PruneExpired drops mirror rows older than the TTL and returns how
// many were removed.
func (s *ShortTermStore) PruneExpired(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-s.ttl).Format(timeLayout)
	res, err := s.db.db.ExecContext(ctx, `DELETE FROM short_term WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
