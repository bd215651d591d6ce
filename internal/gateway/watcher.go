package gateway

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rcliao/agent-gateway/internal/model"
)

// startWatcher publishes bus updates for transcript files modified by
// other processes (a dying daemon draining its last appends, tooling
// editing state). The mirror replace is a full re-derivation, so the
// occasional duplicate publish for our own writes is harmless.
func (g *Gateway) startWatcher(ctx context.Context) (<-chan struct{}, error) {
	agentsDir := g.cfg.AgentsDir()
	if err := os.MkdirAll(agentsDir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addWatchDirs(watcher, agentsDir); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				g.handleWatchEvent(watcher, event)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				g.logger.Warn("transcript watcher error", "error", err)
			}
		}
	}()
	return done, nil
}

func (g *Gateway) handleWatchEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	// New agent or session directories need their own watch.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				g.logger.Warn("watch new dir", "dir", event.Name, "error", err)
			}
			return
		}
	}

	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}
	if !strings.HasSuffix(event.Name, ".jsonl") {
		return
	}

	g.bus.Publish(model.TranscriptUpdate{
		SessionFile: event.Name,
		Timestamp:   time.Now().UTC(),
	})
}

func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
