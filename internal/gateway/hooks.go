package gateway

import (
	"context"
	"time"

	"github.com/rcliao/agent-gateway/internal/hooks"
	"github.com/rcliao/agent-gateway/internal/model"
)

// registerBundledHooks installs the hooks the gateway ships with.
// Plugins register additional hooks through the same engine; every hook
// can be disabled by id from configuration without a restart.
func (g *Gateway) registerBundledHooks() {
	g.engine.Register(hooks.Exact(model.EventGateway), hooks.HookFunc{
		Name: "startup-log",
		Fn:   g.startupLogHook,
	})
	g.engine.Register(hooks.Exact(model.EventSession), hooks.HookFunc{
		Name: "session-end-flush",
		Fn:   g.sessionEndHook,
	})
	g.engine.Register(hooks.Exact(model.EventCommand), hooks.HookFunc{
		Name: "command-reset",
		Fn:   g.commandResetHook,
	})

	maintenance := hooks.HookFunc{Name: "memory-maintenance", Fn: g.maintenanceHook}
	g.engine.Register(hooks.Exact(model.EventHeartbeat), maintenance)
	g.engine.Register(hooks.Tier(model.EventCron), maintenance)
}

func (g *Gateway) startupLogHook(ctx context.Context, event *model.HookEvent) error {
	g.logger.Info("gateway startup hooks firing", "event_id", event.ID, "context", event.Context)
	return nil
}

// sessionEndHook forces one last mirror re-derivation so the short-term
// store holds the complete conversation before it ages toward archive.
func (g *Gateway) sessionEndHook(ctx context.Context, event *model.HookEvent) error {
	if event.Action != model.ActionEnd || event.SessionKey == "" {
		return nil
	}
	entry := g.sessions.Resolve(event.SessionKey)
	if entry == nil {
		return nil
	}
	return g.sync.OnTranscriptUpdate(ctx, model.TranscriptUpdate{
		SessionFile: entry.SessionFile,
		Timestamp:   event.Timestamp,
	})
}

// commandResetHook rotates a session on the "new" command: the index
// entry and short-term mirror go, the old transcript stays on disk.
func (g *Gateway) commandResetHook(ctx context.Context, event *model.HookEvent) error {
	if event.Action != model.ActionNew || event.SessionKey == "" {
		return nil
	}
	if err := g.sessions.Reset(event.SessionKey); err != nil {
		return err
	}
	if err := g.short.DeleteSession(ctx, event.SessionKey); err != nil {
		return err
	}
	event.AddMessage(model.RoleAssistant, "Started a fresh session.")
	return nil
}

// maintenanceHook prunes expired mirror rows and promotes aged sessions
// into long-term storage. Persistent archival failure raises one alert
// per cooldown window instead of one per heartbeat.
func (g *Gateway) maintenanceHook(ctx context.Context, event *model.HookEvent) error {
	if _, err := g.short.PruneExpired(ctx); err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-g.cfg.Memory.ArchiveAge.Std())
	res, err := g.archiver.Archive(ctx, cutoff, g.cfg.Memory.ArchiveBatch)
	if err != nil {
		return err
	}
	if res.Failed > 0 && g.notifier.Allow(event.SessionKey, "archival-failing") {
		event.AddMessage(model.RoleAssistant, "Some conversation memory could not be archived; will retry.")
	}
	return nil
}
