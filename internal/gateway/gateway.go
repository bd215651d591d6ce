// Package gateway wires the session store, update bus, hook engine and
// memory pipeline into the long-running daemon process.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rcliao/agent-gateway/internal/bus"
	"github.com/rcliao/agent-gateway/internal/config"
	"github.com/rcliao/agent-gateway/internal/hooks"
	"github.com/rcliao/agent-gateway/internal/lockfile"
	"github.com/rcliao/agent-gateway/internal/memory"
	"github.com/rcliao/agent-gateway/internal/model"
	"github.com/rcliao/agent-gateway/internal/procinspect"
	"github.com/rcliao/agent-gateway/internal/reconcile"
	"github.com/rcliao/agent-gateway/internal/session"
	"github.com/rcliao/agent-gateway/internal/tier"
)

// GatewayMarker is the process-name marker used to classify listeners
// as gateway-owned during reconciliation.
const GatewayMarker = "agent-gateway"

// Gateway owns every state handle of the daemon. All collaborators are
// constructor-injected so tests can run several gateways in one
// process.
type Gateway struct {
	cfg       *config.Config
	logger    *slog.Logger
	inspector *procinspect.Inspector
	locks     *lockfile.Manager
	rec       *reconcile.Reconciler
	bus       *bus.Bus
	sessions  *session.Store
	db        *memory.DB
	short     *memory.ShortTermStore
	long      *memory.LongTermStore
	sync      *tier.Sync
	archiver  *tier.Archiver
	engine    *hooks.Engine
	notifier  *Notifier
	startedAt time.Time
}

// New builds a fully wired gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	inspector := procinspect.New(GatewayMarker, cfg.StateDir)
	locks := lockfile.New(cfg.LockPath(), inspector)

	b := bus.New(logger)
	sessions, err := session.NewStore(cfg.AgentsDir(), b, logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	db, err := memory.Open(cfg.MemoryDBPath())
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	short := db.ShortTerm(cfg.Memory.ShortTermCapacity, cfg.Memory.ShortTermTTL.Std())
	long := db.LongTerm()

	g := &Gateway{
		cfg:       cfg,
		logger:    logger.With("component", "gateway"),
		inspector: inspector,
		locks:     locks,
		rec:       reconcile.New(inspector, locks, logger),
		bus:       b,
		sessions:  sessions,
		db:        db,
		short:     short,
		long:      long,
		sync:      tier.NewSync(sessions, short, logger),
		archiver:  tier.NewArchiver(short, long, archiverOptions(cfg), logger),
		notifier:  NewNotifier(5 * time.Minute),
		startedAt: time.Now().UTC(),
	}
	g.engine = hooks.NewEngine(cfg.HookEnabled, 30*time.Second, logger)
	g.registerBundledHooks()

	return g, nil
}

func archiverOptions(cfg *config.Config) tier.ArchiverOptions {
	opts := tier.ArchiverOptions{Keyframes: cfg.Memory.Keyframes}
	opts.Compress.MaxMemories = cfg.Memory.MaxMemories
	opts.Compress.MinImportance = cfg.Memory.MinImportance
	return opts
}

// Sessions exposes the session store to callers embedding the gateway.
func (g *Gateway) Sessions() *session.Store { return g.sessions }

// Dispatch sends an event through the hook engine.
func (g *Gateway) Dispatch(ctx context.Context, event *model.HookEvent) []model.Message {
	return g.engine.Dispatch(ctx, event)
}

// Run reconciles, binds and serves until the context is cancelled.
// Everything before the bind is best-effort; a bind failure after
// reconciliation is the one fatal startup error.
func (g *Gateway) Run(ctx context.Context) error {
	port := g.cfg.Port

	_, err := g.rec.Startup(ctx, port, reconcile.Options{
		GracePeriod: g.cfg.Reconcile.GracePeriod.Std(),
		Skip:        g.cfg.TestMode || g.cfg.AllowMultiple,
	})
	if err != nil {
		g.logger.Warn("startup reconciliation incomplete", "error", err)
	}

	if !g.cfg.AllowMultiple {
		if err := g.locks.Acquire(port); err != nil {
			return fmt.Errorf("acquire gateway lock: %w", err)
		}
		defer g.locks.Release()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("port %d is still busy after reconciliation, refusing to start: %w", port, err)
	}

	// The mirror subscription uses a fixed id: rewiring replaces the
	// old subscription instead of mirroring twice.
	unsubscribe := g.bus.Subscribe(tier.SubscriberID, g.sync.BusHandler(ctx))
	defer unsubscribe()

	watcherDone, err := g.startWatcher(ctx)
	if err != nil {
		g.logger.Warn("transcript watcher unavailable", "error", err)
	}

	server := &http.Server{Handler: g.router()}
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ln) }()
	g.logger.Info("gateway listening", "port", port, "state_dir", g.cfg.StateDir)

	startup := hooks.NewEvent(model.EventGateway, model.ActionStartup, "", map[string]any{"port": port})
	g.deliverFollowUps(g.engine.Dispatch(ctx, startup))

	g.runTickers(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		g.logger.Warn("admin server shutdown", "error", err)
	}
	if watcherDone != nil {
		<-watcherDone
	}
	if err := g.db.Close(); err != nil {
		g.logger.Warn("closing memory db", "error", err)
	}

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	g.logger.Info("gateway stopped")
	return nil
}

// runTickers emits heartbeat and hourly cron events until cancelled.
func (g *Gateway) runTickers(ctx context.Context) {
	interval := g.cfg.HeartbeatInterval.Std()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()
	hourly := time.NewTicker(time.Hour)
	defer hourly.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			ev := hooks.NewEvent(model.EventHeartbeat, "", "", nil)
			g.deliverFollowUps(g.engine.Dispatch(ctx, ev))
		case <-hourly.C:
			ev := hooks.NewEvent(model.EventCron+":hourly", "", "", nil)
			g.deliverFollowUps(g.engine.Dispatch(ctx, ev))
		}
	}
}

// deliverFollowUps hands hook-contributed messages to the outbound
// side. Channel adapters are external; the daemon records them.
func (g *Gateway) deliverFollowUps(messages []model.Message) {
	for _, msg := range messages {
		g.logger.Info("hook follow-up", "role", msg.Role, "content", msg.Content)
	}
}
