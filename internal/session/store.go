// Package session provides the durable session store: a session-key →
// metadata index plus per-agent append-only JSONL transcripts.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/rcliao/agent-gateway/internal/model"
)

const indexFile = "sessions.json"

// Publisher receives a TranscriptUpdate after every durable append.
// Satisfied by bus.Bus; may be nil.
type Publisher interface {
	Publish(model.TranscriptUpdate)
}

// Store owns session metadata and transcript files under
// <agentsDir>/<agentID>/sessions/. Appends to one transcript are
// serialized by an in-process mutex per file plus a cross-process file
// lock, so a restarted daemon never interleaves writes with a dying one.
type Store struct {
	agentsDir string
	pub       Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]*model.SessionEntry // session key -> entry
	byPath  map[string]string              // transcript path -> session key
	fileMu  map[string]*sync.Mutex         // transcript path -> writer mutex
	entropy *rand.Rand
}

// NewStore loads all per-agent indexes under agentsDir.
func NewStore(agentsDir string, pub Publisher, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		agentsDir: agentsDir,
		pub:       pub,
		logger:    logger.With("component", "session"),
		entries:   make(map[string]*model.SessionEntry),
		byPath:    make(map[string]string),
		fileMu:    make(map[string]*sync.Mutex),
		entropy:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.loadIndexes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadIndexes() error {
	matches, err := filepath.Glob(filepath.Join(s.agentsDir, "*", "sessions", indexFile))
	if err != nil {
		return fmt.Errorf("glob indexes: %w", err)
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable index", "path", path, "error", err)
			continue
		}
		var idx map[string]model.SessionEntry
		if err := json.Unmarshal(data, &idx); err != nil {
			s.logger.Warn("skipping corrupt index", "path", path, "error", err)
			continue
		}
		for key, entry := range idx {
			e := entry
			s.entries[key] = &e
			s.byPath[filepath.Clean(e.SessionFile)] = key
		}
	}
	return nil
}

func (s *Store) newSessionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// AppendMessage appends one message record to the session's transcript,
// creating the session on first write. The record is durably flushed
// before the call returns and a TranscriptUpdate is published.
func (s *Store) AppendMessage(ctx context.Context, sessionKey, agentID, role, content string) (*model.SessionEntry, error) {
	if !model.ValidRoles[role] {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	now := time.Now().UTC()

	s.mu.Lock()
	entry, ok := s.entries[sessionKey]
	if !ok {
		id := s.newSessionID()
		entry = &model.SessionEntry{
			SessionID:   id,
			SessionFile: filepath.Join(s.agentsDir, agentID, "sessions", id+".jsonl"),
			AgentID:     agentID,
			CreatedAt:   now,
		}
		s.entries[sessionKey] = entry
		s.byPath[filepath.Clean(entry.SessionFile)] = sessionKey
	}
	entry.LastActivity = now
	fm, ok := s.fileMu[entry.SessionFile]
	if !ok {
		fm = &sync.Mutex{}
		s.fileMu[entry.SessionFile] = fm
	}
	path := entry.SessionFile
	s.mu.Unlock()

	rec := model.TranscriptRecord{
		Type:      model.RecordMessage,
		Timestamp: now,
		Message:   &model.Message{Role: role, Content: content, Timestamp: now},
	}
	if err := s.appendRecord(ctx, fm, path, rec); err != nil {
		return nil, err
	}

	if err := s.writeIndex(agentID); err != nil {
		return nil, err
	}

	if s.pub != nil {
		s.pub.Publish(model.TranscriptUpdate{SessionFile: path, Timestamp: now})
	}

	clone := *entry
	return &clone, nil
}

// appendRecord serializes writers on the transcript: in-process mutex
// first, then the cross-process flock. The lock is retried, never
// dropped, until the context expires.
func (s *Store) appendRecord(ctx context.Context, fm *sync.Mutex, path string, rec model.TranscriptRecord) error {
	fm.Lock()
	defer fm.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock transcript: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock transcript %s: not acquired", path)
	}
	defer fl.Unlock()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("flush transcript: %w", err)
	}
	return nil
}

// writeIndex rewrites the agent's sessions.json atomically.
func (s *Store) writeIndex(agentID string) error {
	s.mu.Lock()
	idx := make(map[string]model.SessionEntry)
	for key, entry := range s.entries {
		if entry.AgentID == agentID {
			idx[key] = *entry
		}
	}
	s.mu.Unlock()

	dir := filepath.Join(s.agentsDir, agentID, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, indexFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, indexFile)); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Resolve returns the entry for a session key, or nil.
func (s *Store) Resolve(sessionKey string) *model.SessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionKey]
	if !ok {
		return nil
	}
	clone := *entry
	return &clone
}

// FindSessionKeyByTranscriptPath reverse-looks-up the session key owning
// a transcript path.
func (s *Store) FindSessionKeyByTranscriptPath(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byPath[filepath.Clean(path)]
	return key, ok
}

// Keys returns all known session keys.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

// Reset forgets the session key. The next append allocates a fresh
// session id and transcript; the old transcript stays on disk.
func (s *Store) Reset(sessionKey string) error {
	s.mu.Lock()
	entry, ok := s.entries[sessionKey]
	if ok {
		delete(s.entries, sessionKey)
		delete(s.byPath, filepath.Clean(entry.SessionFile))
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.writeIndex(entry.AgentID)
}
