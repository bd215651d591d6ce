package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/agent-gateway/internal/model"
)

// LongTermStore holds durable archival records. Records are immutable
// once inserted except for metadata enrichment.
type LongTermStore struct {
	db *DB
}

// Insert stores a new long-term record, assigning an id and creation
// time when absent, and returns the stored record.
func (s *LongTermStore) Insert(ctx context.Context, rec model.LongTermRecord) (*model.LongTermRecord, error) {
	if rec.Schema == "" {
		return nil, fmt.Errorf("long-term record requires a schema tag")
	}
	if rec.ID == "" {
		rec.ID = s.db.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	metadata, err := marshalNullable(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	tags, err := marshalNullable(rec.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.db.ExecContext(ctx,
		`INSERT INTO long_term (id, schema, content, metadata, importance, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Schema, rec.Content, metadata, rec.Importance, tags,
		rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert long-term record: %w", err)
	}
	return &rec, nil
}

// Get returns one record by id.
func (s *LongTermStore) Get(ctx context.Context, id string) (*model.LongTermRecord, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT id, schema, content, metadata, importance, tags, created_at
		 FROM long_term WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("long-term record not found: %s", id)
	}
	return rec, err
}

// Search returns records matching a content substring and optional
// schema tag, newest first.
func (s *LongTermStore) Search(ctx context.Context, query, schema string, limit int) ([]model.LongTermRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	where := []string{"content LIKE ?"}
	args := []any{"%" + query + "%"}
	if schema != "" {
		where = append(where, "schema = ?")
		args = append(args, schema)
	}
	args = append(args, limit)

	rows, err := s.db.db.QueryContext(ctx,
		`SELECT id, schema, content, metadata, importance, tags, created_at
		 FROM long_term WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.LongTermRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Count returns the number of records, optionally restricted by schema.
func (s *LongTermStore) Count(ctx context.Context, schema string) (int, error) {
	var n int
	var err error
	if schema == "" {
		err = s.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM long_term`).Scan(&n)
	} else {
		err = s.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM long_term WHERE schema = ?`, schema).Scan(&n)
	}
	return n, err
}

// EnrichMetadata merges keys into a record's metadata. This is the only
// permitted mutation of a stored record.
func (s *LongTermStore) EnrichMetadata(ctx context.Context, id string, extra map[string]string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]string, len(extra))
	}
	for k, v := range extra {
		rec.Metadata[k] = v
	}
	metadata, err := marshalNullable(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.db.ExecContext(ctx, `UPDATE long_term SET metadata = ? WHERE id = ?`, metadata, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.LongTermRecord, error) {
	var rec model.LongTermRecord
	var metadata, tags sql.NullString
	var createdAt string
	if err := row.Scan(&rec.ID, &rec.Schema, &rec.Content, &metadata, &rec.Importance, &tags, &createdAt); err != nil {
		return nil, err
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &rec.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &rec, nil
}

func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case map[string]string:
		if len(t) == 0 {
			return nil, nil
		}
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
