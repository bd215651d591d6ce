package tier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/agent-gateway/internal/memory"
	"github.com/rcliao/agent-gateway/internal/model"
	"github.com/rcliao/agent-gateway/internal/session"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStores(t *testing.T) (*memory.ShortTermStore, *memory.LongTermStore) {
	t.Helper()
	d, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d.ShortTerm(100, time.Hour), d.LongTerm()
}

func TestMirrorMatchesTranscript(t *testing.T) {
	ctx := context.Background()
	short, _ := newStores(t)
	store, err := session.NewStore(t.TempDir(), nil, discard())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	entry, err := store.AppendMessage(ctx, "wa:42", "assistant-a", model.RoleUser, "u1")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []struct{ role, content string }{
		{model.RoleAssistant, "a1"},
		{model.RoleUser, "u2"},
	} {
		if _, err := store.AppendMessage(ctx, "wa:42", "assistant-a", m.role, m.content); err != nil {
			t.Fatal(err)
		}
	}

	mirror := NewSync(store, short, discard())
	update := model.TranscriptUpdate{SessionFile: entry.SessionFile, Timestamp: time.Now().UTC()}
	if err := mirror.OnTranscriptUpdate(ctx, update); err != nil {
		t.Fatalf("mirror update: %v", err)
	}

	mirrored, err := short.Messages(ctx, "wa:42")
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := session.ReadMessages(entry.SessionFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(mirrored) != len(fresh) {
		t.Fatalf("mirror has %d messages, transcript has %d", len(mirrored), len(fresh))
	}
	for i := range fresh {
		if mirrored[i].Role != fresh[i].Role || mirrored[i].Content != fresh[i].Content {
			t.Errorf("position %d: mirror %s/%q, transcript %s/%q",
				i, mirrored[i].Role, mirrored[i].Content, fresh[i].Role, fresh[i].Content)
		}
	}
}

func TestMirrorIgnoresUnknownTranscript(t *testing.T) {
	ctx := context.Background()
	short, _ := newStores(t)
	store, err := session.NewStore(t.TempDir(), nil, discard())
	if err != nil {
		t.Fatal(err)
	}

	mirror := NewSync(store, short, discard())
	update := model.TranscriptUpdate{SessionFile: "/nowhere/stray.jsonl"}
	if err := mirror.OnTranscriptUpdate(ctx, update); err != nil {
		t.Fatalf("unknown path must be a no-op, got %v", err)
	}
}

// failingLong rejects inserts after permitting the first allowed count.
type failingLong struct {
	mu      sync.Mutex
	inner   LongStore
	allowed int
	calls   int
}

func (f *failingLong) Insert(ctx context.Context, rec model.LongTermRecord) (*model.LongTermRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls > f.allowed {
		return nil, fmt.Errorf("storage full")
	}
	return f.inner.Insert(ctx, rec)
}

func seedSession(t *testing.T, short *memory.ShortTermStore, key string, contents ...string) {
	t.Helper()
	messages := make([]model.Message, len(contents))
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		messages[i] = model.Message{Role: role, Content: c, Timestamp: time.Now().UTC()}
	}
	if err := short.ReplaceSession(context.Background(), key, messages); err != nil {
		t.Fatalf("seed session %s: %v", key, err)
	}
}

func TestArchivePromotesAndDeletes(t *testing.T) {
	ctx := context.Background()
	short, long := newStores(t)
	seedSession(t, short, "wa:1", "please deploy", "deployed to staging")

	arch := NewArchiver(short, long, ArchiverOptions{}, discard())
	res, err := arch.Archive(ctx, time.Now().UTC().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if res.Archived != 1 || res.Failed != 0 {
		t.Fatalf("expected 1 archived, got %+v", res)
	}

	if remaining, _ := short.Messages(ctx, "wa:1"); len(remaining) != 0 {
		t.Errorf("short-term entry should be gone, still has %d messages", len(remaining))
	}

	records, err := long.Search(ctx, "deploy", model.SchemaArchiveV1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 archive record, got %d", len(records))
	}
	rec := records[0]
	if !strings.Contains(rec.Content, "[user] please deploy") ||
		!strings.Contains(rec.Content, "[assistant] deployed to staging") {
		t.Errorf("archive content missing messages: %q", rec.Content)
	}
	if rec.Metadata["session_key"] != "wa:1" || rec.Metadata["message_count"] != "2" {
		t.Errorf("archive metadata wrong: %+v", rec.Metadata)
	}
}

func TestArchiveFailureKeepsShortTermEntry(t *testing.T) {
	ctx := context.Background()
	short, long := newStores(t)
	seedSession(t, short, "wa:1", "hello", "hi")

	arch := NewArchiver(short, &failingLong{inner: long}, ArchiverOptions{}, discard())
	res, err := arch.Archive(ctx, time.Now().UTC().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if res.Archived != 0 || res.Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", res)
	}

	remaining, err := short.Messages(ctx, "wa:1")
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 {
		t.Fatalf("short-term entry must survive a failed insert, got %d messages", len(remaining))
	}
	if n, _ := long.Count(ctx, ""); n != 0 {
		t.Errorf("no long-term record should exist, got %d", n)
	}
}

func TestArchiveBatchContinuesPastFailure(t *testing.T) {
	ctx := context.Background()
	short, long := newStores(t)
	seedSession(t, short, "wa:1", "first")
	seedSession(t, short, "wa:2", "second")

	// One insert allowed: whichever session archives first succeeds,
	// the other fails and stays mirrored.
	arch := NewArchiver(short, &failingLong{inner: long, allowed: 1}, ArchiverOptions{}, discard())
	res, err := arch.Archive(ctx, time.Now().UTC().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if res.Archived != 1 || res.Failed != 1 {
		t.Fatalf("expected 1 archived and 1 failed, got %+v", res)
	}
}

// emptyShort reports a candidate session that turns out to have no
// messages, as when a reset races the archiver.
type emptyShort struct {
	deleted []string
}

func (e *emptyShort) ReplaceSession(ctx context.Context, key string, messages []model.Message) error {
	return nil
}

func (e *emptyShort) Messages(ctx context.Context, key string) ([]model.Message, error) {
	return nil, nil
}

func (e *emptyShort) SessionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return []string{"wa:gone"}, nil
}

func (e *emptyShort) DeleteSession(ctx context.Context, key string) error {
	e.deleted = append(e.deleted, key)
	return nil
}

func TestArchiveEmptySessionJustDeletes(t *testing.T) {
	ctx := context.Background()
	_, long := newStores(t)
	short := &emptyShort{}

	arch := NewArchiver(short, long, ArchiverOptions{}, discard())
	res, err := arch.Archive(ctx, time.Now().UTC().Add(time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Archived != 1 {
		t.Fatalf("empty session still counts as archived, got %+v", res)
	}
	if len(short.deleted) != 1 || short.deleted[0] != "wa:gone" {
		t.Errorf("expected mirror delete for wa:gone, got %v", short.deleted)
	}
	if n, _ := long.Count(ctx, ""); n != 0 {
		t.Errorf("empty session must not produce an archive, got %d records", n)
	}
}

func TestArchiveStoresKeyframes(t *testing.T) {
	ctx := context.Background()
	short, long := newStores(t)
	seedSession(t, short, "wa:1",
		"Build fails with TypeError: x is undefined at a.ts:10",
		"Fixed the null check in a.ts")

	arch := NewArchiver(short, long, ArchiverOptions{Keyframes: true}, discard())
	res, err := arch.Archive(ctx, time.Now().UTC().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if res.Archived != 1 {
		t.Fatalf("expected 1 archived, got %+v", res)
	}

	frames, err := long.Search(ctx, "", model.SchemaKeyframeV1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) == 0 {
		t.Fatal("expected keyframe records alongside the archive")
	}
	archives, err := long.Search(ctx, "", model.SchemaArchiveV1, 10)
	if err != nil || len(archives) != 1 {
		t.Fatalf("expected 1 archive record: n=%d err=%v", len(archives), err)
	}
	for _, frame := range frames {
		if frame.Metadata["archive_id"] != archives[0].ID {
			t.Errorf("keyframe not linked to archive: %+v", frame.Metadata)
		}
		if frame.Metadata["session_key"] != "wa:1" {
			t.Errorf("keyframe session key wrong: %+v", frame.Metadata)
		}
	}
}
